package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSnapshot recomputes the cached stock level per product.
	TaskStockSnapshot = "stock:snapshot"
	// TaskLowStockScan logs an advisory report of products at or below
	// their minimum threshold.
	TaskLowStockScan = "stock:low_scan"
)

// StockSnapshotPayload carries scheduling metadata.
type StockSnapshotPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockSnapshotTask constructs an Asynq task for the snapshot run.
func NewStockSnapshotTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockSnapshotPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
