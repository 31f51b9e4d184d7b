package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	jobmetrics "github.com/hdthieu/seafood-restaurant-be-sub001/internal/jobs"
)

// Reconciler lists items out of balance with their stock card.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Discrepancy, error)
}

// ReconcileJob reports stock discrepancies. It never corrects stock; the
// stock card stays the source of truth for an operator to act on.
type ReconcileJob struct {
	Inventory Reconciler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReconcileJob wires dependencies for the reconcile handler.
func NewReconcileJob(inv Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Inventory: inv, Logger: logger, Metrics: metrics}
}

// Handle processes TaskInventoryReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Inventory == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskInventoryReconcile))
	if !payload.ScheduledFor.IsZero() {
		logger = logger.With(slog.String("scheduled_for", payload.ScheduledFor.Format(time.RFC3339)))
	}

	found, err := j.Inventory.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return err
	}
	byReason := map[string]int{}
	for _, d := range found {
		byReason[d.Reason]++
		logger.Warn("stock discrepancy",
			slog.Int64("item_id", d.ItemID),
			slog.Float64("quantity", d.Quantity),
			slog.Float64("last_after_qty", d.LastAfterQty),
			slog.Float64("net_qty", d.NetQty),
			slog.String("reason", d.Reason),
		)
	}
	for reason, n := range byReason {
		j.Metrics.AddDiscrepancies(reason, n)
	}
	logger.Info("reconcile finished", slog.Int("discrepancies", len(found)))
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
