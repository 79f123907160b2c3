package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/service"
)

// ReplayFunc replays a single queued mutation against the remote side.
type ReplayFunc func(ctx context.Context, m QueuedEntry) error

// QueuedEntry is the read-only view of an entry handed to replay.
type QueuedEntry struct {
	Mutation  string
	ID        string
	Variables map[string]any
}

// Status is the queue state exposed to the surrounding UI.
type Status struct {
	Online    bool
	QueueSize int
}

// Config holds the manager's tunables.
type Config struct {
	// PollInterval is the liveness poll cadence, cross-checking reported
	// connectivity against actual reachability in case transition events
	// are missed.
	PollInterval time.Duration
	// MaxRetries is the per-entry replay budget.
	MaxRetries int
	// Retry bounds the in-pass attempts for one entry. The cross-pass
	// budget is MaxRetries; by default each pass makes a single attempt.
	Retry service.RetryOptions
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxRetries:   DefaultMaxRetries,
		Retry:        service.RetryOptions{MaxAttempts: 1},
	}
}

// Manager watches connectivity and drains the queue when the remote
// side becomes reachable. Drains process entries strictly in enqueue
// order, one at a time, so dependent writes replay in the order they
// were issued.
type Manager struct {
	queue        *Queue
	prober       service.Prober
	replay       ReplayFunc
	onTransition func(online bool)
	cancel       context.CancelFunc
	done         chan struct{}
	cfg          Config
	mu           sync.Mutex
	drainMu      sync.Mutex
	online       bool
	started      bool
}

// NewManager creates a manager over the given queue. The prober decides
// reachability; replay performs the actual remote call.
func NewManager(queue *Queue, prober service.Prober, replay ReplayFunc, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Manager{
		queue:  queue,
		prober: prober,
		replay: replay,
		cfg:    cfg,
	}
}

// OnTransition registers a callback invoked on every online/offline
// change. Replaces any previously registered callback.
func (m *Manager) OnTransition(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Start launches the liveness poll. The initial probe runs immediately
// so callers see a settled state without waiting a full interval.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("outbox manager already started")
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.check(ctx)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
	return nil
}

// Close stops the liveness poll and waits for it to exit. The queue
// itself stays open.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.started = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetOnline feeds an explicit connectivity transition event from the
// host application. Going online triggers a background drain.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.transition(ctx, online)
}

// IsOnline reports the last observed connectivity state.
func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns connectivity and queue depth for display.
func (m *Manager) Status(ctx context.Context) Status {
	size, err := m.queue.Size(ctx)
	if err != nil {
		slog.Warn("failed to read outbox size", "error", err)
	}
	return Status{Online: m.IsOnline(), QueueSize: size}
}

// Sync drains the queue now, regardless of observed connectivity.
func (m *Manager) Sync(ctx context.Context) error {
	return m.drain(ctx)
}

// Clear drops every pending entry without replaying it.
func (m *Manager) Clear(ctx context.Context) error {
	return m.queue.Clear(ctx)
}

func (m *Manager) check(ctx context.Context) {
	m.transition(ctx, m.prober.Probe(ctx))
}

func (m *Manager) transition(ctx context.Context, online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	fn := m.onTransition
	m.mu.Unlock()

	if !changed {
		return
	}

	slog.Info("connectivity changed", "online", online)
	if fn != nil {
		fn(online)
	}
	if online {
		go func() {
			if err := m.drain(ctx); err != nil {
				common.LogError(err, "outbox drain failed", common.Fields{})
			}
		}()
	}
}

// drain replays all pending entries sequentially in enqueue order. Only
// one drain runs at a time; a drain triggered while another is in
// progress waits for it and then sees whatever entries remain.
func (m *Manager) drain(ctx context.Context) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	entries, err := m.queue.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queued mutations: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	slog.Info("draining outbox", "pending", len(entries))

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		replayErr := common.WithRetry(ctx, func() error {
			return m.replay(ctx, QueuedEntry{
				ID:        entry.ID,
				Mutation:  entry.Mutation,
				Variables: entry.Variables,
			})
		}, m.cfg.Retry)

		if replayErr == nil {
			if err := m.queue.Remove(ctx, entry.ID); err != nil {
				slog.Warn("failed to remove replayed mutation", "id", entry.ID, "error", err)
			}
			slog.Debug("replayed queued mutation", "id", entry.ID, "mutation", entry.Mutation)
			continue
		}

		if common.IsPermanent(replayErr) {
			if err := m.queue.Remove(ctx, entry.ID); err != nil {
				slog.Warn("failed to drop failed mutation", "id", entry.ID, "error", err)
			}
			common.LogError(replayErr, "dropping permanently failed mutation", common.Fields{
				"id":       entry.ID,
				"mutation": entry.Mutation,
			})
			continue
		}

		shouldRetry, err := m.queue.IncrementRetry(ctx, entry.ID, m.cfg.MaxRetries, replayErr.Error())
		if err != nil {
			slog.Warn("failed to record replay failure", "id", entry.ID, "error", err)
			continue
		}
		if !shouldRetry {
			common.LogError(replayErr, "mutation evicted after exhausting retries", common.Fields{
				"id":       entry.ID,
				"mutation": entry.Mutation,
			})
		}
	}

	return nil
}
