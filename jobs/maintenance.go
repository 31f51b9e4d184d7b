package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hdthieu/seafood-restaurant-be-sub001/internal/jobs"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

const defaultRetention = 7 * 24 * time.Hour

// KeyPurger deletes idempotency keys older than a cutoff.
type KeyPurger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob keeps the idempotency table bounded.
type CleanupJob struct {
	Store     KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = j.Retention
	}
	if retention <= 0 {
		retention = defaultRetention
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	purged, err := j.Store.Purge(ctx, retention)
	if err != nil {
		loggerOrDefault(j.Logger).Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	loggerOrDefault(j.Logger).Info("idempotency cleanup finished",
		slog.Duration("retention", retention), slog.Int64("purged", purged))
	return nil
}

// GraphLoader returns the current unit graph, rebuilding the cache on miss.
type GraphLoader interface {
	Graph(ctx context.Context) (*uom.Graph, error)
}

// UOMWarmupJob loads the unit graph so the first posting after a deploy
// does not pay for the rebuild.
type UOMWarmupJob struct {
	Units   GraphLoader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskUOMWarmup tasks.
func (j *UOMWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Units == nil {
		return errors.New("uom warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskUOMWarmup)
	defer func() { err = tracker.End(err) }()

	if _, err := j.Units.Graph(ctx); err != nil {
		loggerOrDefault(j.Logger).Error("uom warmup", slog.Any("error", err))
		return err
	}
	return nil
}
