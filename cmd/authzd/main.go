package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/cmd/authzd/cli"
	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}

	logger := app.NewLogger(cfg)

	runtime, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap engine", slog.Any("error", err))
		return 1
	}
	defer runtime.Close()

	if len(os.Args) > 1 && cli.IsCommand(os.Args[1]) {
		return cli.New(runtime.Service).Run(ctx, os.Args[1:], cli.Options{})
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	rbacMiddleware := rbac.Middleware{Service: runtime.Service, Logger: logger}
	authzHandler := rbac.NewHandler(logger, runtime.Service, jobClient, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: authzHandler,
		JobHandler:   jobs.NewHandler(inspector, logger),
		Store:        runtime.Store,
		Metrics:      runtime.Metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
