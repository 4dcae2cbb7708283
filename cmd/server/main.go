package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/api"
	"github.com/stocksage/stocksage-go/internal/api/handlers"
	"github.com/stocksage/stocksage-go/internal/cache"
	"github.com/stocksage/stocksage-go/internal/config"
	"github.com/stocksage/stocksage-go/internal/database"
	"github.com/stocksage/stocksage-go/internal/forecast"
	"github.com/stocksage/stocksage-go/internal/logging"
	"github.com/stocksage/stocksage-go/internal/middleware"
	"github.com/stocksage/stocksage-go/internal/scheduler"
	"github.com/stocksage/stocksage-go/internal/services"
	"github.com/stocksage/stocksage-go/internal/telemetry"
	"github.com/stocksage/stocksage-go/pkg/modelserver"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "stocksage-go"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	shutdownLogs, err := logging.AttachOTLP(ctx, logger, logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: telemetry.ServiceVersion,
		Environment:    cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
		if err := shutdownLogs(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown log export")
		}
	}()

	// Postgres backs the account endpoints only; forecasting works without it.
	var (
		db       *database.PostgresDB
		dbHealth handlers.HealthChecker
	)
	policies := services.DefaultRetryPolicies()
	_, err = services.Retry(ctx, "postgres_connect", policies["postgres_connect"], logger, func(ctx context.Context) error {
		var connErr error
		db, connErr = database.NewPostgresConnection(ctx, cfg.Database)
		return connErr
	})
	if err != nil {
		if cfg.Environment == "production" {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.WithError(err).Warn("Database unavailable, account endpoints disabled")
		db = nil
	} else {
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		dbHealth = db
	}

	var (
		redis        *database.RedisClient
		contentCache services.ContentCache
		redisHealth  handlers.HealthChecker
	)
	_, err = services.Retry(ctx, "redis_connect", policies["redis_connect"], logger, func(ctx context.Context) error {
		var connErr error
		redis, connErr = database.NewRedisConnection(ctx, cfg.Redis)
		return connErr
	})
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, content served without cache")
	} else {
		defer redis.Close()
		contentCache = cache.NewRedisContentCache(redis.Client, cfg.Content.TTL(), logger)
		redisHealth = redis
	}

	// Model server sidecar, guarded by a circuit breaker.
	modelClient := modelserver.NewClient(&cfg.ModelServer)
	breaker := services.NewCircuitBreaker("model_server", services.CircuitBreakerConfig{}, logger)
	artifacts := forecast.NewArtifactStore(cfg.Forecast.ArtifactDir, cfg.Forecast.WindowWidth, modelClient, breaker, logger)

	visualizer := forecast.NewVisualizer(cfg.Forecast.ChartHistoryPoints, logger)
	predictionService, err := services.NewPredictionService(cfg.Forecast, artifacts, visualizer, logger)
	if err != nil {
		return err
	}
	monitor := services.NewResourceMonitor(services.ResourceMonitorConfig{}, logger)
	stockReturns := services.NewStockReturnsService(predictionService, monitor, logger)
	contentService := services.NewContentService(cfg.Content, cfg.Forecast.Sectors, contentCache, logger)
	var cacheStats handlers.CacheStatsReporter
	if redis != nil {
		analytics := services.NewCacheAnalyticsService(redis.Client, logger)
		analytics.StartPeriodicReporting(ctx, 5*time.Minute)
		contentService.WithAnalytics(analytics)
		cacheStats = analytics
	}

	if cfg.Scheduler.Enabled {
		jobs := scheduler.NewScheduler(ctx, contentService, artifacts, logger)
		if err := jobs.RegisterAll(cfg.Scheduler.ContentRefresh, cfg.Scheduler.ArtifactInvalidate); err != nil {
			return err
		}
		jobs.Start()
		defer jobs.Stop()
	}

	modelHealth := handlers.HealthCheckFunc(func(ctx context.Context) error {
		_, err := modelClient.HealthCheck(ctx)
		return err
	})

	routes := api.Handlers{
		Health:   handlers.NewHealthHandler(dbHealth, redisHealth, modelHealth, monitor).WithCacheStats(cacheStats),
		Forecast: handlers.NewForecastHandler(predictionService, stockReturns, logger),
		Content:  handlers.NewContentHandler(contentService, cfg.Content.Interval(), logger),
	}
	if db != nil {
		auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
		users := database.NewUserRepository(database.NewTracedDB(db.Pool))
		routes.Auth = auth
		routes.Users = handlers.NewUserHandler(users, auth, cfg.Security.Expiry(), cfg.Security.BcryptCost, logger)
	}
	srv := newServer(cfg.Server.Port, newRouter(cfg, logger, routes))

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logging.LogShutdown(logger, serviceName, "signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.WithFields(logrus.Fields{"service": serviceName}).Info("Server exited gracefully")
	return nil
}

func newRouter(cfg *config.Config, logger *logrus.Logger, routes api.Handlers) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName, otelgin.WithFilter(middleware.ShouldTrace)))
	api.SetupRoutes(router, routes)
	return router
}

// WriteTimeout stays at zero so the market summary websocket is not cut.
func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
