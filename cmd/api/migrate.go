package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"eventproxy/internal/config"
	"eventproxy/internal/database"
	"eventproxy/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			db, err := database.InitDB(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.LogEvent(logrus.InfoLevel, "Migrations applied", nil)
			return nil
		},
	}
}

func loadConfig() *config.Config {
	cfg, envErr := config.Load()
	logger.Configure(cfg.LogLevel, cfg.LogFormat, nil)
	if envErr != nil {
		logger.LogEvent(logrus.WarnLevel, "No .env file loaded", logrus.Fields{"error": envErr.Error()})
	}
	return cfg
}
