package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypincher/pennypincher/internal/common"
)

// stubProber reports a switchable connectivity state.
type stubProber struct {
	mu     sync.Mutex
	online bool
}

func (p *stubProber) Probe(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *stubProber) set(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

// recordingReplayer records replayed mutations and fails ids on demand.
type recordingReplayer struct {
	mu       sync.Mutex
	replayed []string
	fail     map[string]error
}

func newRecordingReplayer() *recordingReplayer {
	return &recordingReplayer{fail: make(map[string]error)}
}

func (r *recordingReplayer) replay(_ context.Context, m QueuedEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[m.ID]; ok {
		return err
	}
	r.replayed = append(r.replayed, m.ID)
	return nil
}

func (r *recordingReplayer) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replayed...)
}

func TestManager_SyncDrainsInEnqueueOrder(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"createAccount", "createTransaction", "createTransaction"} {
		id, err := q.Enqueue(ctx, name, map[string]any{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	replayer := newRecordingReplayer()
	m := NewManager(q, &stubProber{}, replayer.replay, DefaultConfig())

	require.NoError(t, m.Sync(ctx))

	assert.Equal(t, ids, replayer.seen(), "replay must follow enqueue order")
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestManager_SyncKeepsFailedEntries(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	okID, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)
	badID, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)

	replayer := newRecordingReplayer()
	replayer.fail[badID] = errors.New("connection refused")
	m := NewManager(q, &stubProber{}, replayer.replay, DefaultConfig())

	require.NoError(t, m.Sync(ctx))

	assert.Equal(t, []string{okID}, replayer.seen())

	entries, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, badID, entries[0].ID)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "connection refused", entries[0].LastError)
}

func TestManager_EvictsAfterRetryBudget(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)

	replayer := newRecordingReplayer()
	replayer.fail[id] = errors.New("connection refused")

	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	m := NewManager(q, &stubProber{}, replayer.replay, cfg)

	for range 3 {
		require.NoError(t, m.Sync(ctx))
	}

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size, "entry should be evicted after exhausting its budget")
}

func TestManager_DropsPermanentFailuresImmediately(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)

	replayer := newRecordingReplayer()
	replayer.fail[id] = &common.RetryableError{
		Err:       errors.New("account no longer exists"),
		Retryable: false,
	}
	m := NewManager(q, &stubProber{}, replayer.replay, DefaultConfig())

	require.NoError(t, m.Sync(ctx))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size, "permanent failures are not worth retrying")
}

func TestManager_DrainsOnReconnect(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)

	prober := &stubProber{}
	replayer := newRecordingReplayer()
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	m := NewManager(q, prober, replayer.replay, cfg)

	var transitions []bool
	var transitionMu sync.Mutex
	m.OnTransition(func(online bool) {
		transitionMu.Lock()
		defer transitionMu.Unlock()
		transitions = append(transitions, online)
	})

	require.NoError(t, m.Start(ctx))
	defer m.Close()

	assert.False(t, m.IsOnline())

	prober.set(true)

	require.Eventually(t, func() bool {
		return len(replayer.seen()) == 1
	}, 2*time.Second, 10*time.Millisecond, "reconnect should trigger a drain")
	assert.Equal(t, []string{id}, replayer.seen())
	assert.True(t, m.IsOnline())

	transitionMu.Lock()
	assert.Contains(t, transitions, true)
	transitionMu.Unlock()
}

func TestManager_SetOnlineTriggersDrain(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
	require.NoError(t, err)

	replayer := newRecordingReplayer()
	m := NewManager(q, &stubProber{}, replayer.replay, DefaultConfig())

	m.SetOnline(ctx, true)

	require.Eventually(t, func() bool {
		return len(replayer.seen()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status := m.Status(ctx)
	assert.True(t, status.Online)
	assert.Zero(t, status.QueueSize)
}

func TestManager_StatusReportsQueueDepth(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	for range 2 {
		_, err := q.Enqueue(ctx, "createTransaction", map[string]any{})
		require.NoError(t, err)
	}

	m := NewManager(q, &stubProber{}, newRecordingReplayer().replay, DefaultConfig())

	status := m.Status(ctx)
	assert.False(t, status.Online)
	assert.Equal(t, 2, status.QueueSize)
}
