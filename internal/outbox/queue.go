// Package outbox buffers mutations that could not be sent immediately
// and replays them once connectivity returns. Entries survive process
// restarts; the backing store is SQLite.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pennypincher/pennypincher/internal/model"
)

// DefaultMaxRetries is the replay budget per entry before eviction.
const DefaultMaxRetries = 5

// Queue owns the durable set of pending mutations. All retry
// bookkeeping goes through it; callers never touch entries directly.
type Queue struct {
	store    Store
	degraded bool
}

// NewQueue wraps an already-open store. Used by tests and by callers
// supplying their own storage backend.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Open opens the durable queue at path. An unusable database is first
// recreated from scratch; if that also fails the queue degrades to a
// non-persistent no-op so a corrupted local store never blocks entry.
// The degraded queue reports zero entries and drops enqueued mutations.
func Open(path string) *Queue {
	store, err := NewSQLiteStore(path)
	if err == nil {
		return &Queue{store: store}
	}

	slog.Warn("outbox store unusable, recreating",
		"path", path,
		"error", err)
	for _, stale := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(stale)
	}

	store, err = NewSQLiteStore(path)
	if err == nil {
		return &Queue{store: store}
	}

	slog.Warn("outbox degraded to non-persistent mode, queued mutations will be lost",
		"path", path,
		"error", err)
	return &Queue{store: noopStore{}, degraded: true}
}

// Degraded reports whether the queue lost its durable backing.
func (q *Queue) Degraded() bool {
	return q.degraded
}

// Close closes the backing store.
func (q *Queue) Close() error {
	return q.store.Close()
}

// Enqueue persists a new mutation for later replay and returns its id.
func (q *Queue) Enqueue(ctx context.Context, mutation string, variables map[string]any) (string, error) {
	m := &model.QueuedMutation{
		ID:        uuid.NewString(),
		Mutation:  mutation,
		Variables: variables,
		Timestamp: time.Now().UTC(),
	}
	if err := q.store.Add(ctx, m); err != nil {
		return "", fmt.Errorf("failed to enqueue mutation %s: %w", mutation, err)
	}

	slog.Debug("queued mutation for replay", "id", m.ID, "mutation", mutation)
	return m.ID, nil
}

// ListAll returns all pending entries, oldest first.
func (q *Queue) ListAll(ctx context.Context) ([]model.QueuedMutation, error) {
	return q.store.List(ctx)
}

// Remove deletes an entry after successful replay.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.Remove(ctx, id)
}

// IncrementRetry records a failed replay attempt. It returns true while
// the entry still has retry budget left; once the budget is exhausted
// the entry is evicted and false is returned.
func (q *Queue) IncrementRetry(ctx context.Context, id string, maxRetries int, lastErr string) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	m, err := q.store.Get(ctx, id)
	if err != nil {
		return false, err
	}

	m.RetryCount++
	m.LastError = lastErr

	if m.RetryCount >= maxRetries {
		if err := q.store.Remove(ctx, id); err != nil {
			return false, err
		}
		slog.Warn("evicting mutation after exhausting retry budget",
			"id", m.ID,
			"mutation", m.Mutation,
			"retries", m.RetryCount,
			"last_error", lastErr)
		return false, nil
	}

	if err := q.store.Update(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

// Size returns the number of pending entries.
func (q *Queue) Size(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// Clear drops every pending entry.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx)
}

// noopStore is the degraded, memoryless backing used when the durable
// store cannot be opened. Lossy but non-fatal.
type noopStore struct{}

func (noopStore) Add(_ context.Context, _ *model.QueuedMutation) error { return nil }
func (noopStore) Get(_ context.Context, id string) (*model.QueuedMutation, error) {
	return nil, fmt.Errorf("degraded outbox holds no entry %s", id)
}
func (noopStore) List(_ context.Context) ([]model.QueuedMutation, error) { return nil, nil }
func (noopStore) Update(_ context.Context, _ *model.QueuedMutation) error {
	return nil
}
func (noopStore) Remove(_ context.Context, _ string) error { return nil }
func (noopStore) Count(_ context.Context) (int, error)     { return 0, nil }
func (noopStore) Clear(_ context.Context) error            { return nil }
func (noopStore) Close() error                             { return nil }
