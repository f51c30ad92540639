package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoRun is returned when a task has no recorded run yet.
var ErrNoRun = errors.New("runlog: no run recorded")

// Store persists the latest summary per task in Redis so the admin API can
// answer "what happened last run" without a database round trip.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore builds a Store with the given retention for summaries.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(task string) string {
	return "bridge:lastrun:" + task
}

// Save stores the summary as the task's latest run.
func (s *Store) Save(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("runlog: marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, key(summary.Task), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("runlog: save summary: %w", err)
	}
	return nil
}

// Last returns the task's latest run summary.
func (s *Store) Last(ctx context.Context, task string) (Summary, error) {
	payload, err := s.client.Get(ctx, key(task)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, ErrNoRun
	}
	if err != nil {
		return Summary{}, fmt.Errorf("runlog: load summary: %w", err)
	}
	var summary Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return Summary{}, fmt.Errorf("runlog: decode summary: %w", err)
	}
	return summary, nil
}
