// Package runlog records per-phase timings and outcomes of a sync run and
// produces the structured summary consumed by notifiers and the admin API.
package runlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Phase is one timed step of a run.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Counts aggregates the write-side outcome of a run.
type Counts struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Archived     int `json:"archived"`
	StockApplied int `json:"stock_applied"`
	Errors       int `json:"errors"`
}

// Summary is the end-of-run report. It is the only artifact that outlives a
// run: change-sets and normalized state are discarded with the run itself.
type Summary struct {
	RunID      string    `json:"run_id"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Phases     []Phase   `json:"phases"`
	Counts     Counts    `json:"counts"`
}

// Failed reports whether any phase recorded an error.
func (s *Summary) Failed() bool {
	for _, p := range s.Phases {
		if p.Err != "" {
			return true
		}
	}
	return false
}

// Recorder accumulates phases for one run. Not safe for concurrent use; a
// run executes its phases sequentially.
type Recorder struct {
	summary Summary
	logger  *slog.Logger
}

// NewRecorder starts a recorder for the named task.
func NewRecorder(task string, dryRun bool, logger *slog.Logger) *Recorder {
	return &Recorder{
		summary: Summary{
			RunID:     uuid.NewString(),
			Task:      task,
			StartedAt: time.Now().UTC(),
			DryRun:    dryRun,
		},
		logger: logger,
	}
}

// RunID returns the run identifier threaded through log lines.
func (r *Recorder) RunID() string {
	return r.summary.RunID
}

// Counts exposes the mutable tally for apply phases.
func (r *Recorder) Counts() *Counts {
	return &r.summary.Counts
}

// Phase times fn and records its outcome. The error is returned unchanged so
// callers decide whether the run continues on partial data.
func (r *Recorder) Phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	p := Phase{Name: name, Duration: time.Since(start)}
	if err != nil {
		p.Err = err.Error()
		r.logger.Error("phase failed",
			slog.String("run_id", r.summary.RunID),
			slog.String("phase", name),
			slog.Duration("took", p.Duration),
			slog.Any("error", err),
		)
	} else {
		r.logger.Info("phase done",
			slog.String("run_id", r.summary.RunID),
			slog.String("phase", name),
			slog.Duration("took", p.Duration),
		)
	}
	r.summary.Phases = append(r.summary.Phases, p)
	return err
}

// Finish seals the summary.
func (r *Recorder) Finish() Summary {
	r.summary.FinishedAt = time.Now().UTC()
	return r.summary
}

// Describe renders a compact one-line diagnostic per phase for logs.
func Describe(s Summary) string {
	out := fmt.Sprintf("run %s task=%s", s.RunID, s.Task)
	for _, p := range s.Phases {
		mark := "ok"
		if p.Err != "" {
			mark = "FAIL"
		}
		out += fmt.Sprintf(" | %s %.2fs %s", p.Name, p.Duration.Seconds(), mark)
	}
	return out
}
