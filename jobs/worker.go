package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/proconsa/erp-bridge/internal/notify"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

// Runner is one sync pipeline. Every service in this repo satisfies it.
type Runner interface {
	Run(ctx context.Context) runlog.Summary
}

// RunnerFunc adapts a function to Runner, for pipelines that build per-run
// state before executing.
type RunnerFunc func(ctx context.Context) runlog.Summary

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) runlog.Summary {
	return f(ctx)
}

// SummaryStore persists run summaries for the admin API.
type SummaryStore interface {
	Save(ctx context.Context, summary runlog.Summary) error
}

// Alerter posts failure notifications. *notify.Teams satisfies it.
type Alerter interface {
	Post(ctx context.Context, title, text string, failed bool, facts []notify.Fact) error
}

// NewSyncHandler wraps a pipeline into an Asynq handler: run, persist the
// summary, alert on failure. The returned error drives Asynq's retry; a
// failed phase inside an otherwise-finished run is reported but not retried,
// since the next cron tick covers it.
func NewSyncHandler(name string, runner Runner, store SummaryStore, alerter Alerter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		logger.Info("task starting", slog.String("task", name))
		summary := runner.Run(ctx)

		if store != nil {
			if err := store.Save(ctx, summary); err != nil {
				logger.Error("persist run summary",
					slog.String("task", name), slog.Any("error", err))
			}
		}

		if summary.Failed() {
			logger.Error("task finished with failures",
				slog.String("task", name),
				slog.String("summary", runlog.Describe(summary)))
			if alerter != nil {
				facts := []notify.Fact{
					{Name: "task", Value: name},
					{Name: "run_id", Value: summary.RunID},
					{Name: "detail", Value: runlog.Describe(summary)},
				}
				if err := alerter.Post(ctx, "Sync con errores: "+name, "", true, facts); err != nil {
					logger.Error("post failure alert", slog.Any("error", err))
				}
			}
			return nil
		}

		logger.Info("task finished",
			slog.String("task", name),
			slog.String("summary", runlog.Describe(summary)))
		return nil
	}
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec string
	Task *asynq.Task
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  map[string]asynq.HandlerFunc
	Cron      []CronRegistration
	Location  *time.Location
}

// Worker wraps the Asynq server and scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker constructs a Worker. Queue concurrency is pinned to 1: sync runs
// share external endpoints and must never overlap.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for taskType, handler := range cfg.Handlers {
		mux.HandleFunc(taskType, handler)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: loc})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			opts := []asynq.Option{
				asynq.Queue(QueueDefault),
				asynq.MaxRetry(0),
				asynq.Unique(time.Hour),
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, opts...); err != nil {
				return nil, fmt.Errorf("jobs: register cron %q: %w", entry.Spec, err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits tasks to the queue. It backs the admin API's manual trigger.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Enqueue queues one immediate run of the named task.
func (c *Client) Enqueue(ctx context.Context, taskName string) (string, error) {
	task, err := NewSyncTask(taskName)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue %s: %w", taskName, err)
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
