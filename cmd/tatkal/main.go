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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tatkal-desk/tatkal/internal/app"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/platform/cache"
	"github.com/tatkal-desk/tatkal/internal/seed"
	"github.com/tatkal-desk/tatkal/jobs"
	"github.com/tatkal-desk/tatkal/web"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisOpts := cfg.RedisOptions()
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	data, err := seed.Load(web.Seed, cfg.Location())
	if err != nil {
		logger.Error("load seed data", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient := jobs.NewClient(redisOpts.Asynq())
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts.Asynq())
	defer inspector.Close()

	desk, err := app.NewDesk(app.DeskParams{
		Config:    cfg,
		Logger:    logger,
		Redis:     redisClient,
		Clock:     clock.New(cfg.Location()),
		Seed:      data,
		Notifier:  jobClient,
		Inspector: inspector,
	})
	if err != nil {
		logger.Error("assemble desk", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      desk.Router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.AppTimezone))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return desk.Hub.Run(gctx)
	})
	g.Go(func() error {
		return desk.Ticker().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("desk stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
