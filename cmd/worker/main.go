package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/config"
	"github.com/brojonat/unmarshall/service/db"
	"github.com/brojonat/unmarshall/service/metrics"
	natspkg "github.com/brojonat/unmarshall/service/nats"
	"github.com/brojonat/unmarshall/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	if err := cfg.RequireDatabase(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	store := db.NewStore(dbPool, metricsCollector)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Unmarshall API client
	opts := []client.Option{client.WithRecorder(metricsCollector)}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, client.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)))
	}
	apiClient, err := client.NewClient(
		client.Config{BaseURL: cfg.UnmarshallAPIURL, APIKey: cfg.UnmarshallAPIKey},
		&http.Client{Timeout: cfg.HTTPTimeout},
		logger,
		opts...,
	)
	if err != nil {
		logger.Error("failed to create unmarshall client", "error", err)
		os.Exit(1)
	}

	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()

	// Temporal client for reconciling schedules of registered wallets
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	if err := reconcileSchedules(ctx, store, temporalClient, cfg, logger); err != nil {
		// Not fatal: existing schedules keep running and the next start retries.
		logger.Error("failed to reconcile schedules", "error", err)
	}

	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		APIClient:         apiClient,
		Store:             store,
		Publisher:         natsPublisher,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// reconcileSchedules makes sure every wallet registered in the database has a
// sync schedule with its configured interval.
func reconcileSchedules(ctx context.Context, store *db.Store, tc *temporal.Client, cfg *config.Config, logger *slog.Logger) error {
	wallets, err := store.ListWallets(ctx)
	if err != nil {
		return err
	}

	for _, w := range wallets {
		interval := w.SyncInterval
		if interval < time.Minute {
			interval = cfg.SyncInterval
		}
		input := temporal.SyncWalletInput{
			Chain:   w.Chain,
			Address: w.Address,
			Depth:   cfg.SyncDepth,
			Limit:   cfg.SyncPageSize,
		}
		if err := tc.UpsertSyncSchedule(ctx, input, interval); err != nil {
			logger.Error("failed to reconcile schedule",
				"chain", w.Chain,
				"address", w.Address,
				"error", err,
			)
		}
	}

	logger.Info("reconciled wallet schedules", "wallets", len(wallets))
	return nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
