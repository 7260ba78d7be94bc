package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/order-quota/configs"
	"github.com/avatarctic/order-quota/internal/application/services"
	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/db"
	"github.com/avatarctic/order-quota/internal/infrastructure/health"
	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver"
	"github.com/avatarctic/order-quota/internal/infrastructure/redis"
	"github.com/avatarctic/order-quota/internal/infrastructure/repositories"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting order quota service...")

	database, err := db.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	logger.Info("Connected to Redis successfully")

	if err := database.Migrate(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations:", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Repositories
	redisCache := redis.NewRedisCache(redisClient, "quota")
	orderRepo := repositories.NewOrderRepository(database, logger)
	settingsRepo := repositories.NewSettingsRepository(database)
	overrideRepo := repositories.NewCachingOverrideRepository(repositories.NewOverrideRepository(database, logger), redisCache, 10*time.Minute)
	auditRepo := repositories.NewAuditRepository(database, logger)
	countCache := repositories.NewOrderCountCache(redisCache, cfg.Quota.CachePrefix)
	rateLimitRepo := repositories.NewRateLimitRedisRepository(redisClient)

	defaults := quota.Settings{
		Enabled:        cfg.Quota.Enabled,
		Interval:       interval.Kind(cfg.Quota.Interval),
		Limit:          cfg.Quota.Limit,
		CustomerNotice: cfg.Quota.CustomerNotice,
		WeekStartDay:   time.Weekday(cfg.Quota.WeekStartDay),
	}
	if err := defaults.Validate(); err != nil {
		logger.Fatal("Invalid quota configuration:", err)
	}

	// Services
	metrics := services.NewQuotaMetrics(prometheus.DefaultRegisterer)
	quotaService, err := services.NewQuotaService(ctx, settingsRepo, orderRepo, overrideRepo, countCache, &services.QuotaServiceConfig{
		Defaults:     defaults,
		Location:     cfg.Quota.Location(),
		QueryTimeout: cfg.Quota.QueryTimeout,
	}, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to initialize quota limiter:", err)
	}

	auditService := services.NewAuditService(auditRepo, logger)
	notifier := redis.NewSettingsNotifier(redisClient, cfg.Quota.SettingsChannel, logger)
	settingsService := services.NewSettingsService(settingsRepo, overrideRepo, notifier, auditService, &services.SettingsServiceConfig{
		Defaults:                    defaults,
		ResetOverridesOnLimitChange: cfg.Quota.ResetOverridesOnLimitChange,
	}, logger)
	settingsService.OnChange(quotaService.HandleSettingsChange)

	if cfg.Quota.RolloverEnabled {
		scheduler := services.NewRolloverScheduler(quotaService, cfg.Quota.Location(), metrics, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("Failed to start window rollover scheduler:", err)
		}
		settingsService.OnChange(scheduler.Reschedule)
	}

	// Changes saved on other instances reach the same listeners as local ones.
	if err := notifier.Subscribe(ctx, func(s quota.Settings) {
		if err := settingsService.ApplyRemoteChange(ctx, s); err != nil {
			logger.WithError(err).Warn("failed to apply quota settings change from another instance")
		}
	}); err != nil {
		logger.Warn("Quota settings changes from other instances will not be applied:", err)
	}

	orderService := services.NewOrderService(orderRepo, quotaService, logger)
	throttle := services.NewCheckoutThrottleService(rateLimitRepo, &services.CheckoutThrottleConfig{
		AttemptsPerMinute: cfg.Throttle.AttemptsPerMinute,
		KeyPrefix:         cfg.Throttle.KeyPrefix,
	}, logger)

	hcSlice := []ports.HealthChecker{health.NewDBHealthChecker(database), health.NewRedisHealthChecker(redisClient)}

	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
		FailOpen:       cfg.Quota.FailOpen,
	}

	deps := httpserver.ServerDeps{
		QuotaService:     quotaService,
		SettingsService:  settingsService,
		OrderService:     orderService,
		AuditService:     auditService,
		CheckoutThrottle: throttle,
		HealthCheckers:   hcSlice,
	}

	server := httpserver.NewServer(serverConfig, cfg.Admin.JWTSecret, logger, deps)
	server.LogMetricsInitialization()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
