package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gearbox-erp/gearbox-erp/internal/observability"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// StockSnapshotJob recomputes cached stock levels from the movement ledger.
type StockSnapshotJob struct {
	stock   *stock.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStockSnapshotJob constructs the snapshot job.
func NewStockSnapshotJob(stockService *stock.Service, logger *slog.Logger, metrics *observability.Metrics) *StockSnapshotJob {
	return &StockSnapshotJob{stock: stockService, logger: logger, metrics: metrics}
}

// Handle processes TaskStockSnapshot tasks.
func (j *StockSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	if err := j.stock.SnapshotAll(ctx); err != nil {
		j.metrics.IncJob(TaskStockSnapshot, "error")
		j.logger.Error("stock snapshot failed", slog.Any("error", err))
		return err
	}
	j.metrics.IncJob(TaskStockSnapshot, "ok")
	return nil
}
