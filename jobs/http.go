package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
)

// QueueInspector reads queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler exposes queue health and on-demand triggers over HTTP. Either
// dependency may be nil when Redis is not configured.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler constructs the jobs HTTP handler.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, enqueuer: enqueuer, logger: loggerOrDefault(logger), now: time.Now}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/reconcile", h.trigger(func(now time.Time) (*asynq.Task, error) {
		return NewReconcileTask(now)
	}))
	r.Post("/uom-warmup", h.trigger(func(time.Time) (*asynq.Task, error) {
		return NewUOMWarmupTask(), nil
	}))
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
	Failed  int    `json:"failed"`
	Paused  bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := queueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable")
		return
	}
	if info != nil {
		out.Pending, out.Active, out.Retry = info.Pending, info.Active, info.Retry
		out.Failed, out.Paused = info.Failed, info.Paused
	}
	httpx.JSON(w, http.StatusOK, out)
}

type enqueued struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func (h *Handler) trigger(build func(time.Time) (*asynq.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.enqueuer == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
			return
		}
		task, err := build(h.now().UTC())
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		info, err := h.enqueuer.EnqueueContext(r.Context(), task, asynq.MaxRetry(3), asynq.Unique(time.Minute))
		switch {
		case errors.Is(err, asynq.ErrDuplicateTask):
			httpx.Problem(w, http.StatusConflict, "Conflict", task.Type()+" already queued")
			return
		case err != nil:
			h.logger.Error("enqueue task", slog.String("type", task.Type()), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable")
			return
		}
		httpx.JSON(w, http.StatusAccepted, enqueued{ID: info.ID, Type: info.Type, Queue: info.Queue})
	}
}
