package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/backoffice"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/jobs"
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

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := cfg.PrefixPolicy()
	if err != nil {
		logger.Error("grid prefix policy", slog.Any("error", err))
		os.Exit(1)
	}
	// The worker only resolves rows, so the registry needs no templates.
	registry := backoffice.NewRegistry(backoffice.Deps{
		Logger:       logger,
		Cache:        redisClient,
		CacheTTL:     cfg.GridCacheTTL,
		PageSize:     cfg.GridDefaultPageSize,
		MaxPageSize:  cfg.GridMaxPageSize,
		PrefixPolicy: policy,
	})
	if err := backoffice.RegisterDemo(registry, cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout}); err != nil {
		logger.Error("register resources", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	exportJob := jobs.NewExportJob(registry, cfg.ExportDir, logger, metrics)
	cleanupJob := jobs.NewCleanupJob(cfg.ExportDir, logger, metrics)

	cleanupTask, err := jobs.NewExportCleanupTask(cfg.ExportRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.QueueRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeGridExport, Handler: exportJob.Handle},
			{Type: jobs.TaskTypeExportCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
