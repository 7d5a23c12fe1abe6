package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultPollInterval matches the cadence the settlement backend is
	// provisioned for; polling faster trips its rate limits.
	DefaultPollInterval = 8 * time.Second

	// DefaultCompletedDelay keeps the final state on screen briefly before
	// the completion callback fires.
	DefaultCompletedDelay = 3 * time.Second
)

// StatusFetcher fetches the current server-side record for a settlement.
type StatusFetcher interface {
	GetSettlement(ctx context.Context, id string) (*Record, error)
}

// Callbacks receive tracker events. Any callback may be nil. They are invoked
// from the tracking goroutine; implementations must not block for long.
type Callbacks struct {
	// OnStatus fires each time the displayed canonical status advances.
	OnStatus func(st Status, rec *Record)

	// OnCompleted fires once, after the completed delay.
	OnCompleted func(rec *Record)

	// OnFailed fires once, immediately. rec carries the transaction hash
	// when the backend reported one, so the failure can be investigated
	// on-chain.
	OnFailed func(rec *Record)
}

// Tracker polls settlements to a terminal state. At most one watch is active
// per tracker: starting a new one cancels the previous, so a fresh sell
// attempt never leaks the prior attempt's poll loop.
type Tracker struct {
	fetcher        StatusFetcher
	interval       time.Duration
	completedDelay time.Duration
	log            *log.Logger

	mu     sync.Mutex
	active *Watch
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithCompletedDelay overrides the delay before the completion callback.
func WithCompletedDelay(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d >= 0 {
			t.completedDelay = d
		}
	}
}

// WithLogger overrides the tracker's logger.
func WithLogger(l *log.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker creates a tracker polling through fetcher.
func NewTracker(fetcher StatusFetcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		fetcher:        fetcher,
		interval:       DefaultPollInterval,
		completedDelay: DefaultCompletedDelay,
		log:            log.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Watch is one live tracking loop for a settlement id.
type Watch struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	record *Record

	stopOnce sync.Once
}

// ID returns the settlement id being watched.
func (w *Watch) ID() string { return w.id }

// Status returns the currently displayed canonical status.
func (w *Watch) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Record returns the last record received from the backend, or nil.
func (w *Watch) Record() *Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record
}

// Done is closed when the loop has exited, for any reason.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Stop cancels the loop. It only stops client-side tracking: a broadcast
// transaction is irrevocable and the settlement keeps progressing
// server-side. Safe to call more than once.
func (w *Watch) Stop() {
	w.stopOnce.Do(w.cancel)
}

// Track starts polling the given settlement. initial is the status to
// display before the first response arrives (PENDING right after submission;
// resumed tracking passes the freshly fetched status instead). Any previously
// active watch is stopped first.
func (t *Tracker) Track(ctx context.Context, id string, initial Status, cb Callbacks) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		status: initial,
	}

	t.mu.Lock()
	if t.active != nil {
		t.active.Stop()
	}
	t.active = w
	t.mu.Unlock()

	go t.run(ctx, w, cb)
	return w
}

func (t *Tracker) run(ctx context.Context, w *Watch, cb Callbacks) {
	defer close(w.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// First poll happens immediately; the ticker paces the rest.
	for {
		if done := t.poll(ctx, w, cb); done {
			return
		}
		select {
		case <-ctx.Done():
			t.log.Debug("tracking stopped", "settlement", w.id, "status", w.Status())
			return
		case <-ticker.C:
		}
	}
}

// poll performs one status fetch and applies the transition rules. It
// returns true when tracking should end.
func (t *Tracker) poll(ctx context.Context, w *Watch, cb Callbacks) bool {
	rec, err := t.fetcher.GetSettlement(ctx, w.id)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// A single failed poll never aborts tracking.
		t.log.Warn("settlement poll failed", "settlement", w.id, "error", err)
		return false
	}

	mapped, ok := MapRawStatus(rec.Status)
	if !ok {
		// Unknown backend vocabulary: hold the last known status.
		t.log.Warn("unrecognized settlement status", "settlement", w.id, "raw", rec.Status)
		w.mu.Lock()
		w.record = rec
		w.mu.Unlock()
		return false
	}

	w.mu.Lock()
	next, changed := Advance(w.status, mapped)
	w.status = next
	w.record = rec
	w.mu.Unlock()

	if changed && cb.OnStatus != nil {
		cb.OnStatus(next, rec)
	}

	switch next {
	case StatusFailed:
		if cb.OnFailed != nil {
			cb.OnFailed(rec)
		}
		return true
	case StatusCompleted:
		select {
		case <-time.After(t.completedDelay):
			if cb.OnCompleted != nil {
				cb.OnCompleted(rec)
			}
		case <-ctx.Done():
		}
		return true
	}
	return false
}
