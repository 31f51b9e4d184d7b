package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryReconcile compares stored stock with the movement history.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskUOMWarmup rebuilds the cached unit graph snapshot.
	TaskUOMWarmup = "uom:warmup"
)

// ReconcilePayload carries scheduling metadata.
type ReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CleanupPayload sets how long keys are kept. Zero uses the job default.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewReconcileTask constructs an inventory reconciliation task.
func NewReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewCleanupTask constructs an idempotency cleanup task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewUOMWarmupTask constructs a unit cache warmup task.
func NewUOMWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskUOMWarmup, []byte("{}"), asynq.Queue(QueueDefault))
}
