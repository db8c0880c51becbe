package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
	"github.com/odyssey-erp/odyssey-authz/jobs"
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

	runtime, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer runtime.Close()

	metrics := jobmetrics.NewMetrics(nil)
	seedJob := jobs.NewSeedDefaultsJob(runtime.Service, logger, metrics)
	auditJob := jobs.NewMatrixAuditJob(runtime.Service, logger, metrics)

	auditTask, err := jobs.NewMatrixAuditTask(time.Now().UTC())
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSeedRoleDefaults, Handler: seedJob.Handle},
			{Type: jobs.TaskMatrixAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
