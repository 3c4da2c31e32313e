// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"contrib-tracker/internal/api"
	"contrib-tracker/internal/config"
	"contrib-tracker/internal/github"
	"contrib-tracker/internal/store"
	"contrib-tracker/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	ghClient := github.NewClient(cfg.GithubToken, logger).
		WithPRFetchLimits(cfg.PRSearchMaxPages, cfg.PRDetailBatchSize)
	querier := store.New(dbpool)
	appSyncer := syncer.NewSyncer(querier, ghClient, logger)

	// 6. Start the HTTP server
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(querier, appSyncer, cfg.CronSecret, logger),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// 7. Start the periodic full sync
	go runScheduler(ctx, appSyncer, cfg.SyncInterval, logger)

	// 8. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	<-ctx.Done()
	logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	return nil
}

// runScheduler triggers a full sync of all tracked repositories on a fixed
// interval, starting with one immediate pass.
func runScheduler(ctx context.Context, s *syncer.Syncer, interval time.Duration, logger *slog.Logger) {
	logger.Info("Starting sync scheduler", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runFullSync(ctx, s, logger)

	for {
		select {
		case <-ticker.C:
			runFullSync(ctx, s, logger)
		case <-ctx.Done():
			logger.Info("Sync scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

func runFullSync(ctx context.Context, s *syncer.Syncer, logger *slog.Logger) {
	results, err := s.SyncAll(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Scheduled sync failed", "error", err)
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	logger.Info("Scheduled sync finished", "succeeded", succeeded, "total", len(results))
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
