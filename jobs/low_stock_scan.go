package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gearbox-erp/gearbox-erp/internal/observability"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// LowStockScanJob logs an advisory report of products that fell to or below
// their minimum threshold. The flag never blocks writes; it only surfaces
// what needs reordering.
type LowStockScanJob struct {
	stock   *stock.Service
	logger  *slog.Logger
	metrics *observability.Metrics
	printer *message.Printer
}

// NewLowStockScanJob constructs the scan job.
func NewLowStockScanJob(stockService *stock.Service, logger *slog.Logger, metrics *observability.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		stock:   stockService,
		logger:  logger,
		metrics: metrics,
		printer: message.NewPrinter(language.English),
	}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	items, err := j.stock.LowStock(ctx)
	if err != nil {
		j.metrics.IncJob(TaskLowStockScan, "error")
		j.logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}

	for _, item := range items {
		j.logger.Warn("low stock",
			slog.Int64("product_id", item.ProductID),
			slog.String("name", item.Name),
			slog.String("summary", j.printer.Sprintf("%s left of minimum %s", item.Quantity.String(), item.MinStock.String())),
		)
	}
	j.logger.Info("low stock scan complete",
		slog.String("summary", j.printer.Sprintf("%d product(s) at or below threshold", len(items))),
	)
	j.metrics.IncJob(TaskLowStockScan, "ok")
	return nil
}
