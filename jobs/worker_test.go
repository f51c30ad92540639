package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proconsa/erp-bridge/internal/notify"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

type fakeRunner struct {
	summary runlog.Summary
	runs    int
}

func (f *fakeRunner) Run(context.Context) runlog.Summary {
	f.runs++
	return f.summary
}

type fakeStore struct {
	saved []runlog.Summary
}

func (f *fakeStore) Save(_ context.Context, s runlog.Summary) error {
	f.saved = append(f.saved, s)
	return nil
}

type fakeAlerter struct {
	posts []string
}

func (f *fakeAlerter) Post(_ context.Context, title, _ string, _ bool, _ []notify.Fact) error {
	f.posts = append(f.posts, title)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSyncTaskKnownNames(t *testing.T) {
	for name, taskType := range TaskNames {
		task, err := NewSyncTask(name)
		require.NoError(t, err)
		assert.Equal(t, taskType, task.Type())
	}

	_, err := NewSyncTask("no-such-task")
	assert.Error(t, err)
}

func TestSyncHandlerPersistsSummary(t *testing.T) {
	runner := &fakeRunner{summary: runlog.Summary{RunID: "r1", Task: "price-sync"}}
	store := &fakeStore{}
	alerter := &fakeAlerter{}
	handler := NewSyncHandler("price-sync", runner, store, alerter, discard())

	err := handler(context.Background(), asynq.NewTask(TaskPriceSync, nil))

	require.NoError(t, err)
	assert.Equal(t, 1, runner.runs)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "r1", store.saved[0].RunID)
	assert.Empty(t, alerter.posts)
}

func TestSyncHandlerAlertsOnFailure(t *testing.T) {
	runner := &fakeRunner{summary: runlog.Summary{
		RunID:  "r2",
		Task:   "erp-pg-sync",
		Phases: []runlog.Phase{{Name: "extract", Err: "mssql timeout"}},
	}}
	store := &fakeStore{}
	alerter := &fakeAlerter{}
	handler := NewSyncHandler("erp-pg-sync", runner, store, alerter, discard())

	err := handler(context.Background(), asynq.NewTask(TaskErpPostgres, nil))

	// Failed runs are reported but not retried; the next cron tick covers it.
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	require.Len(t, alerter.posts, 1)
	assert.Contains(t, alerter.posts[0], "erp-pg-sync")
}
