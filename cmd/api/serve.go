package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"eventproxy/internal/api"
	"eventproxy/internal/api/controllers"
	"eventproxy/internal/config"
	"eventproxy/internal/database"
	"eventproxy/internal/logger"
	"eventproxy/internal/middleware"
	"eventproxy/internal/proxy"
	"eventproxy/internal/repository"
	"eventproxy/internal/services"
)

const growthInterval = time.Hour

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled() {
		redisClient, err = services.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	handler := buildHandler(cfg, db, redisClient)

	metricsService := services.NewMetricsService(
		repository.NewEventRepository(db),
		repository.NewUsageRepository(db),
		repository.NewChartRepository(db),
	)
	go services.RunGrowthRecorder(ctx, metricsService, growthInterval)

	// no WriteTimeout: streamed completions are bounded by the upstream timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogEvent(logrus.InfoLevel, "Server starting", logrus.Fields{
			"port":        cfg.Port,
			"redis":       redisClient != nil,
			"rate_limit":  cfg.RateLimit.PerMinute,
			"upstream":    cfg.Upstream.URLTemplate,
			"max_body_kb": cfg.MaxBodyBytes >> 10,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.LogEvent(logrus.InfoLevel, "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildHandler(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) http.Handler {
	eventRepo := repository.NewEventRepository(db)
	deploymentRepo := repository.NewDeploymentRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	chartRepo := repository.NewChartRepository(db)

	checks := map[string]controllers.Check{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}

	var counter services.Counter
	authRepo := eventRepo
	if redisClient != nil {
		cache := services.NewRedisCacheService(redisClient)
		authRepo = services.NewCachedEventRepository(eventRepo, cache, cfg.Cache.DefaultTTL)
		counter = services.NewRedisCounter(redisClient, usageRepo, cfg.Cache.DefaultTTL)
		checks["redis"] = cache.Ping
	}

	usageService := services.NewUsageService(usageRepo)
	router := api.SetupRoutes(api.Dependencies{
		Auth:         services.NewAuthService(authRepo),
		Deployments:  services.NewDeploymentService(deploymentRepo),
		Quota:        services.NewQuotaService(usageRepo, usageService, counter),
		Metrics:      services.NewMetricsService(eventRepo, usageRepo, chartRepo),
		Forwarder:    proxy.NewForwarder(cfg.Upstream),
		RateLimiter:  middleware.NewRateLimiter(cfg.RateLimit),
		MaxBodyBytes: cfg.MaxBodyBytes,
		HealthChecks: checks,
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"Api-Key",
			middleware.RequestIDHeader,
		},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			"X-Quota-Limit",
			"X-Quota-Remaining",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		MaxAge: 300,
	})

	return corsMiddleware.Handler(router)
}
