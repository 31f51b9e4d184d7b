package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Registration binds a task type to its handler.
type Registration struct {
	Type    string
	Handler asynq.HandlerFunc
}

// Schedule runs Task on a cron expression evaluated in UTC.
type Schedule struct {
	Cron    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Logger          *slog.Logger
	Concurrency     int
	ShutdownTimeout time.Duration
	Handlers        []Registration
	Schedules       []Schedule
}

// Worker processes queued tasks and, when schedules are configured, enqueues
// the periodic ones.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates the registrations and prepares the asynq server.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := loggerOrDefault(cfg.Logger)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 20 * time.Second
	}

	mux := asynq.NewServeMux()
	seen := make(map[string]bool, len(cfg.Handlers))
	for _, reg := range cfg.Handlers {
		if reg.Type == "" || reg.Handler == nil {
			return nil, errors.New("worker: registration needs a type and a handler")
		}
		if seen[reg.Type] {
			return nil, fmt.Errorf("worker: duplicate handler for %s", reg.Type)
		}
		seen[reg.Type] = true
		mux.HandleFunc(reg.Type, reg.Handler)
	}

	for _, s := range cfg.Schedules {
		if s.Task == nil || !seen[s.Task.Type()] {
			return nil, fmt.Errorf("worker: schedule %q has no registered handler", s.Cron)
		}
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})

	w := &Worker{server: srv, mux: mux, logger: logger}
	if len(cfg.Schedules) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	for _, s := range cfg.Schedules {
		if _, err := w.scheduler.Register(s.Cron, s.Task, s.Options...); err != nil {
			return nil, fmt.Errorf("worker: schedule %s: %w", s.Task.Type(), err)
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled or the server stops on its own.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.scheduler != nil))

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}
