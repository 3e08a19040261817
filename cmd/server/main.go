package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/cache"
	"github.com/SAP-F-2025/evaluation-access-service/internal/config"
	"github.com/SAP-F-2025/evaluation-access-service/internal/handlers"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/SAP-F-2025/evaluation-access-service/internal/worker"
	"github.com/SAP-F-2025/evaluation-access-service/pkg"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := utils.NewLogger(cfg.Environment)
	slogger := logger.Slog()
	logger.Info("Starting evaluation access service",
		"port", cfg.Port,
		"environment", cfg.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Storage ───────────────────────────────────────────────────────
	var repo repositories.Repository
	if cfg.DatabaseURL != "" {
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			logger.LogError(err, "Failed to connect to PostgreSQL")
			os.Exit(1)
		}
		if !cfg.IsProduction() {
			if err := pkg.AutoMigrate(db); err != nil {
				logger.LogError(err, "Auto migration failed")
				os.Exit(1)
			}
		}
		repo = postgres.NewRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		repo = memory.NewRepository(memory.NewDB())
	}

	cacheService := cache.NewNoopCache()
	if cfg.RedisURL != "" {
		rdb, err := pkg.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.LogError(err, "Failed to connect to Redis")
			os.Exit(1)
		}
		defer rdb.Close()
		cacheService = cache.NewRedisCache(rdb, slogger)
	}

	// ─── Events ────────────────────────────────────────────────────────
	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.LogError(err, "Failed to create event publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	// ─── Services ──────────────────────────────────────────────────────
	coordinator := services.NewAccessCoordinator(repo, cacheService, publisher, validator.New(), slogger, services.CoordinatorConfig{
		TokenTTL:            cfg.TokenTTL,
		BaseURL:             cfg.BaseURL,
		SuspiciousThreshold: cfg.SuspiciousThreshold,
	})
	reports := services.NewReportService(repo, slogger)

	// ─── HTTP ──────────────────────────────────────────────────────────
	routerCfg := handlers.RouterConfig{AllowedOrigins: cfg.AllowedOrigins}
	if cfg.Casdoor.Enabled() {
		routerCfg.TokenParser = casdoorsdk.NewClient(
			cfg.Casdoor.Endpoint,
			cfg.Casdoor.ClientID,
			cfg.Casdoor.ClientSecret,
			cfg.Casdoor.Certificate,
			cfg.Casdoor.OrganizationName,
			cfg.Casdoor.ApplicationName,
		)
	} else {
		logger.Warn("Casdoor not configured, trusting X-User-ID header")
	}

	router := handlers.NewHandlerManager(coordinator, reports, logger, routerCfg).NewRouter()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Background Workers ────────────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(ctx)
	sweeper := worker.NewSweepWorker(coordinator, worker.SweepConfig{
		Interval:       cfg.SweepInterval,
		AbandonAfter:   cfg.AbandonAfter,
		TokenRetention: cfg.TokenRetention,
	}, slogger)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		sweeper.Start(workerCtx)
	}()

	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server error")
			os.Exit(1)
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down gracefully", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError(err, "HTTP server shutdown error")
	}

	workerCancel()
	<-workerDone

	logger.Info("Shutdown complete")
}
