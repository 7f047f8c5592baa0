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
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tatkal-desk/tatkal/internal/app"
	jobmetrics "github.com/tatkal-desk/tatkal/internal/jobs"
	"github.com/tatkal-desk/tatkal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	notifications := &jobs.NotificationJob{Logger: logger, Metrics: metrics}
	announcements := &jobs.PhaseAnnouncementJob{Logger: logger, Metrics: metrics, Location: cfg.Location()}

	cron, err := jobs.PhaseCron()
	if err != nil {
		logger.Error("build phase cron", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.RedisOptions().Asynq(),
		Logger:      logger,
		Location:    cfg.Location(),
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOTPDispatch, Handler: notifications.HandleOTPDispatch},
			{Type: jobs.TaskTokenConfirmation, Handler: notifications.HandleConfirmation},
			{Type: jobs.TaskPhaseAnnouncement, Handler: announcements.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker metrics shutdown", slog.Any("error", err))
	}
}
