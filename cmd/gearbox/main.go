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

	"github.com/gearbox-erp/gearbox-erp/internal/app"
	"github.com/gearbox-erp/gearbox-erp/internal/catalog"
	"github.com/gearbox-erp/gearbox-erp/internal/dashboard"
	"github.com/gearbox-erp/gearbox-erp/internal/expense"
	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/observability"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/cache"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
	"github.com/gearbox-erp/gearbox-erp/internal/pricing"
	"github.com/gearbox-erp/gearbox-erp/internal/procurement"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
	"github.com/gearbox-erp/gearbox-erp/internal/workorder"
	"github.com/gearbox-erp/gearbox-erp/jobs"
)

// lineNames adapts the catalog repository to the name lookups work
// orders need when freezing line descriptions.
type lineNames struct {
	repo *catalog.Repository
}

func (n lineNames) ServiceName(ctx context.Context, serviceID int64) (string, error) {
	svc, err := n.repo.GetService(ctx, serviceID)
	if err != nil {
		return "", err
	}
	return svc.Name, nil
}

func (n lineNames) ProductName(ctx context.Context, productID int64) (string, error) {
	product, err := n.repo.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	return product.Name, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	catalogRepo := catalog.NewRepository(dbpool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo)

	pricingRepo := pricing.NewRepository(dbpool)
	pricingService := pricing.NewService(pricingRepo)
	pricingHandler := pricing.NewHandler(logger, pricingService)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(logger, stockRepo, catalogRepo, locker, cfg.AllowNegativeStock)
	stockHandler := stock.NewHandler(logger, stockService)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(logger, ledgerRepo, locker)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	workOrderRepo := workorder.NewRepository(dbpool)
	workOrderService := workorder.NewService(logger, workOrderRepo, pricingService, stockService, lineNames{repo: catalogRepo}, ledgerService)
	workOrderHandler := workorder.NewHandler(logger, workOrderService)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(logger, procurementRepo, stockService)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	expenseRepo := expense.NewRepository(dbpool)
	expenseService := expense.NewService(logger, expenseRepo)
	expenseHandler := expense.NewHandler(logger, expenseService)

	dashboardService := dashboard.NewService(logger, workOrderRepo, ledgerRepo, stockService, expenseService, catalogRepo, procurementRepo)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalogHandler,
		PricingHandler:     pricingHandler,
		StockHandler:       stockHandler,
		WorkOrderHandler:   workOrderHandler,
		LedgerHandler:      ledgerHandler,
		ProcurementHandler: procurementHandler,
		ExpenseHandler:     expenseHandler,
		DashboardHandler:   dashboardHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
	}
}
