package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultReaperInterval = time.Minute
)

// EvictFunc is called once per session removed by the reaper.
type EvictFunc func(ctx context.Context, id string)

// Reaper periodically deletes sessions that have been idle longer than the
// configured timeout.
type Reaper struct {
	store    Store
	idle     time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onEvict  EvictFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ReaperOption customises a [Reaper].
type ReaperOption func(*Reaper)

// WithReaperClock overrides the clock used to compute the idle cutoff.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// WithReaperLogger sets the logger for sweep failures.
func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEvictHook registers a callback run after each eviction.
func WithEvictHook(fn EvictFunc) ReaperOption {
	return func(r *Reaper) { r.onEvict = fn }
}

// NewReaper builds a reaper. Non-positive durations fall back to defaults.
func NewReaper(store Store, idle, interval time.Duration, opts ...ReaperOption) *Reaper {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	r := &Reaper{
		store:    store,
		idle:     idle,
		interval: interval,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep runs one pass and returns the number of sessions removed. A failed
// delete is logged and skipped; the rest of the pass continues. A session
// whose activity moved past the cutoff since the scan is left alone.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	ids, err := r.store.FindExpired(ctx, r.idle, now)
	if err != nil {
		return 0, err
	}
	// Sessions touched after the scan survive the conditional delete.
	cutoff := now.Add(-r.idle)
	removed := 0
	for _, id := range ids {
		ok, err := r.store.DeleteIfIdle(ctx, id, cutoff)
		if err != nil {
			r.logger.Warn("reaper delete failed", "session_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		removed++
		if r.onEvict != nil {
			r.onEvict(ctx, id)
		}
	}
	if removed > 0 {
		r.logger.Info("reaped idle sessions", "count", removed, "idle", r.idle)
	}
	return removed, nil
}

// Start launches the background loop. Calling Start on a running reaper is
// a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("reaper sweep failed", "error", err)
			}
		}
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call more than
// once and on a reaper that was never started.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
