package database

import (
	"context"
	"fmt"
	"time"

	"eventproxy/internal/config"
	"eventproxy/internal/database/migrations"
	"eventproxy/internal/logger"
	"eventproxy/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	// Configure GORM logger
	gormLogger := gormlogger.New(
		logger.Logger,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies every named migration that has not been recorded yet.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range migrations.GetMigrations() {
		var record models.MigrationRecord
		result := db.Where("name = ?", migration.Name).Limit(1).Find(&record)
		if result.Error != nil {
			return fmt.Errorf("failed to check migration status: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			continue
		}

		logger.Logger.WithField("migration", migration.Name).Info("Running migration")
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Run(tx); err != nil {
				return err
			}
			return tx.Create(&models.MigrationRecord{Name: migration.Name}).Error
		})
		if err != nil {
			return fmt.Errorf("migration '%s' failed: %w", migration.Name, err)
		}
	}
	return nil
}

// Ping checks database connectivity for the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
