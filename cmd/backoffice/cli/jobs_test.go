package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/hdthieu/seafood-restaurant-be-sub001/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
}

func (f *fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, nil }

func (f *fakeInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.scheduled, nil
}

func (f *fakeInspector) Close() error { return nil }

func TestTriggerEnqueuesKnownTasks(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq, now: func() time.Time { return time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC) }}

	info, err := c.Trigger(context.Background(), jobs.TaskInventoryReconcile, TriggerOptions{})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskInventoryReconcile, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: 48 * time.Hour})
	require.NoError(t, err)
	var payload jobs.CleanupPayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &payload))
	require.Equal(t, 48, payload.RetentionHours)

	_, err = c.Trigger(context.Background(), jobs.TaskUOMWarmup, TriggerOptions{})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 3)
}

func TestTriggerRejectsUnknownAndDuplicate(t *testing.T) {
	c := &JobsCLI{client: &fakeEnqueuer{}, now: time.Now}
	_, err := c.Trigger(context.Background(), "nope", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")

	c.client = &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	_, err = c.Trigger(context.Background(), jobs.TaskUOMWarmup, TriggerOptions{})
	require.ErrorContains(t, err, "already queued")
}

func TestInspectQueueAndScheduled(t *testing.T) {
	next := time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)
	c := &JobsCLI{inspector: &fakeInspector{
		info:      &asynq.QueueInfo{Size: 4, Pending: 2, Active: 1, Retry: 1, Paused: true},
		scheduled: []*asynq.TaskInfo{{ID: "s1", Type: jobs.TaskInventoryReconcile, NextProcessAt: next}},
	}}

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Size: 4, Pending: 2, Active: 1, Retry: 1, Paused: true}, stats)

	scheduled, err := c.ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []ScheduledTask{{ID: "s1", Type: jobs.TaskInventoryReconcile, NextRunAt: next}}, scheduled)
}

func TestJobsCLINotConfigured(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskUOMWarmup, TriggerOptions{})
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}
