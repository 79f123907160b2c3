// Package infer maps a candidate transaction amount to the account,
// category, and payee most often used with it historically. Lookups are
// debounced so a user typing an amount triggers at most one remote call
// per settle window.
package infer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
	"github.com/pennypincher/pennypincher/internal/service"
)

// Defaults for the debounce window and historical lookback.
const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultLookbackDays = 90
)

// Config holds the debouncer's tunables and callbacks. OnResult receives
// the inference for the settled amount; a nil-id result means "clear the
// inferred selection". OnError receives lookup failures, which carry no
// new information and must not clear existing selections.
type Config struct {
	OnResult     func(model.UsageDetails)
	OnError      func(error)
	Debounce     time.Duration
	LookbackDays int
}

// Debouncer coalesces rapid amount changes into a single lookup.
type Debouncer struct {
	lookup   service.UsageLookup
	onResult func(model.UsageDetails)
	onError  func(error)
	timer    *time.Timer
	cancel   context.CancelFunc
	ctx      context.Context
	debounce time.Duration
	lookback int
	mu       sync.Mutex
	wg       sync.WaitGroup
	loading  bool
	closed   bool
}

// New creates a debouncer over the given lookup service.
func New(lookup service.UsageLookup, cfg Config) *Debouncer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		lookup:   lookup,
		onResult: cfg.OnResult,
		onError:  cfg.OnError,
		debounce: cfg.Debounce,
		lookback: cfg.LookbackDays,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit offers a new candidate amount. Only the last amount submitted
// within a settle window reaches the remote lookup. Non-positive or
// non-finite amounts skip the network entirely and synchronously clear
// the inferred selection.
func (d *Debouncer) Submit(amount float64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		d.loading = false
		fn := d.onResult
		d.mu.Unlock()
		if fn != nil {
			fn(model.UsageDetails{})
		}
		return
	}

	d.loading = true
	d.timer = time.AfterFunc(d.debounce, func() {
		d.fire(amount)
	})
	d.mu.Unlock()
}

// Loading reports whether a lookup is pending or in flight.
func (d *Debouncer) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Close cancels any pending lookup and waits for an in-flight one to
// finish. Late results are dropped, never delivered. The underlying
// request context is cancelled rather than abandoned.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.loading = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Debouncer) fire(amount float64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()

	details, err := d.lookup.LookupMostUsedDetails(d.ctx, amount, d.lookback)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.loading = false
	onResult, onError := d.onResult, d.onError
	d.mu.Unlock()

	if err != nil {
		// No new information; the current selection stands.
		common.LogDebug("usage inference lookup failed", common.Fields{
			"amount": amount,
			"error":  err.Error(),
		})
		if onError != nil {
			onError(err)
		}
		return
	}

	if details == nil {
		details = &model.UsageDetails{}
	}
	if onResult != nil {
		onResult(*details)
	}
}
