package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gearbox-erp/gearbox-erp/internal/app"
	"github.com/gearbox-erp/gearbox-erp/internal/catalog"
	"github.com/gearbox-erp/gearbox-erp/internal/observability"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/cache"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
	"github.com/gearbox-erp/gearbox-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	locker := shared.NewLocker(redisClient, cfg.LockTTL)
	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(logger, stockRepo, catalogRepo, locker, cfg.AllowNegativeStock)

	snapshotJob := jobs.NewStockSnapshotJob(stockService, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(stockService, logger, metrics)

	snapshotTask, err := jobs.NewStockSnapshotTask(time.Now().UTC())
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}
	lowStockTask, err := jobs.NewLowStockScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
