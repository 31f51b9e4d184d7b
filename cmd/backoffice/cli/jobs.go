package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hdthieu/seafood-restaurant-be-sub001/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI enqueues maintenance tasks by hand and inspects the queue.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
	now       func() time.Time
}

// NewJobsCLI connects the helpers to the worker's Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(opts),
		inspector: asynq.NewInspector(opts),
		now:       time.Now,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerOptions tunes a manual trigger.
type TriggerOptions struct {
	// Retention overrides IDEMPOTENCY_RETENTION for one cleanup run.
	Retention time.Duration
}

// Trigger enqueues a maintenance task by name. A second trigger of the same
// task within a minute is rejected by the queue.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var (
		task *asynq.Task
		err  error
	)
	switch name {
	case jobs.TaskInventoryReconcile:
		task, err = jobs.NewReconcileTask(c.now().UTC())
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewCleanupTask(opts.Retention)
	case jobs.TaskUOMWarmup:
		task = jobs.NewUOMWarmupTask()
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %q", name)
	}
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Unique(time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("jobs cli: %s already queued", name)
	}
	return info, err
}

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

// InspectQueue reports counters for the default queue.
func (c *JobsCLI) InspectQueue(_ context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Size = info.Size
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
		stats.Paused = info.Paused
	}
	return stats, nil
}

// ScheduledTask is one entry of the scheduled set.
type ScheduledTask struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	NextRunAt time.Time `json:"next_run_at"`
}

// ListScheduled returns the first size scheduled tasks.
func (c *JobsCLI) ListScheduled(_ context.Context, size int) ([]ScheduledTask, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	infos, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScheduledTask{ID: info.ID, Type: info.Type, NextRunAt: info.NextProcessAt})
	}
	return out, nil
}
