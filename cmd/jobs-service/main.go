// jobs-service is the HTTP API server orchestrating externally processed
// media jobs (stem separation, media downloads).
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

	"mediajobs/internal/adapter/download"
	"mediajobs/internal/adapter/separation"
	"mediajobs/internal/api"
	"mediajobs/internal/config"
	"mediajobs/internal/health"
	"mediajobs/internal/job"
	"mediajobs/internal/notify"
	"mediajobs/internal/observability"
	"mediajobs/internal/reminder"
	"mediajobs/internal/storage"
	"mediajobs/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	config.LoadDotEnv()
	svcCfg := config.LoadServiceConfig()
	dbCfg := config.LoadDBConfig()
	notifyCfg := notify.LoadConfigFromEnv()
	blobCfg := storage.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Connect to PostgreSQL
	db, err := store.Open(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("Connected to database", "host", dbCfg.Host, "name", dbCfg.Name)

	jobStore := store.NewJobStore(db)
	reminderStore := store.NewReminderStore(db)

	// Lifecycle event notifier (optional)
	var sink job.EventSink
	var notifier *notify.Notifier
	if notifyCfg.Enabled() {
		notifier = notify.New(notifyCfg, metrics)
		sink = notifier
	} else {
		slog.Info("Lifecycle notifications disabled - no NOTIFY_WEBHOOK_URL configured")
	}

	// External service adapters
	logger := slog.Default()
	blobs := storage.NewHTTPBlobStore(blobCfg, logger)
	separationAdapter := separation.New(separation.LoadConfigFromEnv(), blobs, jobStore, logger)
	downloadAdapter := download.New(download.LoadConfigFromEnv(), blobs, jobStore, logger)

	// Tick-driven poller, one lane per adapter
	poller := job.NewPoller(jobStore, metrics, sink)
	poller.RegisterLane(separationAdapter, svcCfg.SeparationCap)
	poller.RegisterLane(downloadAdapter, svcCfg.DownloadCap)

	sweeper := job.NewSweeper(jobStore, svcCfg.RetentionWindow, metrics,
		job.LaneSeparation, job.LaneDownload)

	// Services and HTTP surface
	jobService := job.NewService(jobStore, nil, job.LaneSeparation, job.LaneDownload)
	reminderService := reminder.NewService(reminderStore)
	healthChecker := health.NewChecker(jobStore)

	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Poller:        poller,
		Sweeper:       sweeper,
		Reminders:     reminderService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		TriggerToken:  svcCfg.TriggerToken,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}
	if svcCfg.TriggerToken == "" {
		slog.Warn("Trigger authentication disabled - no TRIGGER_TOKEN configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: fail readiness so load balancers drain traffic
	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting connections, finish in-flight requests.
	// In-flight external jobs are unaffected: their state is durable and the
	// next tick after restart picks them up where they were.
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: drain the notifier
	if notifier != nil {
		slog.Info("Draining notifier")
		notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer notifierCancel()
		if err := notifier.Close(notifierCtx); err != nil {
			slog.Warn("Notifier shutdown error", "error", err)
		}
		stats := notifier.Stats()
		slog.Info("Notifier stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	slog.Info("Shutdown complete")
	return nil
}
