package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	jobmetrics "github.com/hdthieu/seafood-restaurant-be-sub001/internal/jobs"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

type stubReconciler struct {
	found []inventory.Discrepancy
	err   error
	calls int
}

func (s *stubReconciler) Reconcile(context.Context) ([]inventory.Discrepancy, error) {
	s.calls++
	return s.found, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileJobReportsDiscrepancies(t *testing.T) {
	inv := &stubReconciler{found: []inventory.Discrepancy{
		{ItemID: 3, Quantity: 5, LastAfterQty: 4, Reason: "quantity differs from last movement"},
	}}
	job := NewReconcileJob(inv, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewReconcileTask(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, inv.calls)
}

func TestReconcileJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewReconcileJob(&stubReconciler{err: boom}, quietLogger(), nil)
	task, err := NewReconcileTask(time.Now())
	require.NoError(t, err)

	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestReconcileJobRejectsBadPayload(t *testing.T) {
	inv := &stubReconciler{}
	job := NewReconcileJob(inv, quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskInventoryReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, inv.calls)
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 3, nil
}

func TestCleanupJobRetention(t *testing.T) {
	store := &stubCleaner{}
	job := &CleanupJob{Store: store, Retention: 48 * time.Hour, Logger: quietLogger()}

	task, err := NewCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.retention)

	task, err = NewCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, store.retention)
}

type stubGraph struct {
	calls int
}

func (s *stubGraph) Graph(context.Context) (*uom.Graph, error) {
	s.calls++
	return uom.NewGraph(nil, nil), nil
}

func TestUOMWarmupLoadsGraph(t *testing.T) {
	units := &stubGraph{}
	job := &UOMWarmupJob{Units: units}
	require.NoError(t, job.Handle(context.Background(), NewUOMWarmupTask()))
	require.Equal(t, 1, units.calls)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "job-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func serveJobs(h *Handler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := serveJobs(NewHandler(nil, nil, quietLogger()), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"failed":0,"paused":false}`, rr.Body.String())
}

func TestHealthReportsQueueInfo(t *testing.T) {
	insp := fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Active: 1, Failed: 2, Paused: true}}
	rr := serveJobs(NewHandler(insp, nil, quietLogger()), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":1,"retry":0,"failed":2,"paused":true}`, rr.Body.String())
}

func TestHealthUnreachableQueue(t *testing.T) {
	insp := fakeInspector{err: errors.New("dial tcp: refused")}
	rr := serveJobs(NewHandler(insp, nil, quietLogger()), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTriggerReconcileEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewHandler(nil, enq, quietLogger())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	rr := serveJobs(h, http.MethodPost, "/jobs/reconcile")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"id":"job-1","type":"inventory:reconcile","queue":"default"}`, rr.Body.String())
	require.Len(t, enq.tasks, 1)
	require.JSONEq(t, `{"scheduled_for":"2026-03-01T08:00:00Z"}`, string(enq.tasks[0].Payload()))
}

func TestTriggerDuplicateIsConflict(t *testing.T) {
	enq := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	rr := serveJobs(NewHandler(nil, enq, quietLogger()), http.MethodPost, "/jobs/uom-warmup")
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestTriggerWithoutQueue(t *testing.T) {
	rr := serveJobs(NewHandler(nil, nil, quietLogger()), http.MethodPost, "/jobs/reconcile")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewWorkerRejectsUnhandledSchedule(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    quietLogger(),
		Schedules: []Schedule{{Cron: "@hourly", Task: NewUOMWarmupTask()}},
	})
	require.Error(t, err)
}

func TestNewWorkerRejectsDuplicateHandler(t *testing.T) {
	handle := func(context.Context, *asynq.Task) error { return nil }
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers: []Registration{
			{Type: TaskUOMWarmup, Handler: handle},
			{Type: TaskUOMWarmup, Handler: handle},
		},
	})
	require.Error(t, err)
}
