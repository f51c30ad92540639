package runlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderTracksPhasesAndCounts(t *testing.T) {
	rec := NewRecorder("price-sync", true, discardLogger())
	require.NotEmpty(t, rec.RunID())

	err := rec.Phase(context.Background(), "extract", func(context.Context) error { return nil })
	require.NoError(t, err)
	rec.Counts().Updated += 3

	failure := errors.New("mssql: login failed")
	err = rec.Phase(context.Background(), "apply", func(context.Context) error { return failure })
	assert.Equal(t, failure, err)

	s := rec.Finish()
	assert.Equal(t, "price-sync", s.Task)
	assert.True(t, s.DryRun)
	assert.True(t, s.Failed())
	assert.Equal(t, 3, s.Counts.Updated)
	require.Len(t, s.Phases, 2)
	assert.Equal(t, "extract", s.Phases[0].Name)
	assert.Empty(t, s.Phases[0].Err)
	assert.Equal(t, "mssql: login failed", s.Phases[1].Err)
	assert.False(t, s.FinishedAt.Before(s.StartedAt))
}

func TestSummaryFailedFalseWhenClean(t *testing.T) {
	rec := NewRecorder("wix-sync", false, discardLogger())
	_ = rec.Phase(context.Background(), "stock", func(context.Context) error { return nil })
	s := rec.Finish()
	assert.False(t, s.Failed())
}

func TestDescribeMarksFailedPhases(t *testing.T) {
	s := Summary{
		RunID: "abc",
		Task:  "erp-pg-sync",
		Phases: []Phase{
			{Name: "extract", Duration: 1200 * time.Millisecond},
			{Name: "load", Duration: time.Second, Err: "copy failed"},
		},
	}
	out := Describe(s)
	assert.Contains(t, out, "run abc task=erp-pg-sync")
	assert.Contains(t, out, "extract 1.20s ok")
	assert.Contains(t, out, "load 1.00s FAIL")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved := Summary{
		RunID:     "run-1",
		Task:      "inventory-sync",
		StartedAt: time.Date(2025, 6, 1, 8, 15, 0, 0, time.UTC),
		Counts:    Counts{Created: 12, Errors: 1},
		Phases:    []Phase{{Name: "extract", Duration: 2 * time.Second}},
	}
	require.NoError(t, store.Save(ctx, saved))

	got, err := store.Last(ctx, "inventory-sync")
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, got.RunID)
	assert.Equal(t, saved.Counts, got.Counts)
	assert.Equal(t, saved.StartedAt, got.StartedAt)
	require.Len(t, got.Phases, 1)
	assert.Equal(t, "extract", got.Phases[0].Name)
}

func TestStoreKeepsLatestRunPerTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Summary{RunID: "old", Task: "wix-sync"}))
	require.NoError(t, store.Save(ctx, Summary{RunID: "new", Task: "wix-sync"}))

	got, err := store.Last(ctx, "wix-sync")
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)
}

func TestStoreLastWithoutRun(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Last(context.Background(), "price-sync")
	assert.ErrorIs(t, err, ErrNoRun)
}
