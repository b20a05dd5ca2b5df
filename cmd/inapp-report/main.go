package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/inapp-report/internal/config"
	"github.com/radiusdt/inapp-report/internal/database"
	"github.com/radiusdt/inapp-report/internal/httpserver"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting inapp-report",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("preferences", cfg.Preferences.Backend),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := &httpserver.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics("inapp_report", nil),
	}

	// Initialize PostgreSQL
	if cfg.NeedsPostgres() {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		deps.DB = db
	}

	// Initialize Redis
	if cfg.NeedsRedis() {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		deps.Redis = rdb
	}

	reports, err := httpserver.NewReportService(ctx, deps)
	if err != nil {
		logger.Fatal("failed to build report service", zap.Error(err))
	}
	deps.Reports = reports

	// Warm the record store; requests retry the load if this fails.
	if _, err := reports.EnsureLoaded(ctx); err != nil {
		logger.Warn("initial report load failed", zap.Error(err))
	}

	handler, err := httpserver.NewServer(deps)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(deps.Metrics)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(handler),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Source.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Periodic refresh from upstream
	if cfg.Source.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Source.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := reports.Refresh(ctx); err != nil {
						logger.Error("scheduled refresh failed", zap.Error(err))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background goroutines
	cancel()

	logger.Info("server stopped")
}
