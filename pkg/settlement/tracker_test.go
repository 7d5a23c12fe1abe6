package settlement

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// scriptedFetcher serves a fixed sequence of raw statuses, repeating the
// last one once exhausted.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []string
	errs     []error
	calls    int
}

func (f *scriptedFetcher) GetSettlement(ctx context.Context, id string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return &Record{ID: id, Status: f.statuses[i], TransactionHash: "0xabc"}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestTracker(f StatusFetcher) *Tracker {
	return NewTracker(f,
		WithInterval(5*time.Millisecond),
		WithCompletedDelay(0),
		WithLogger(quietLogger()),
	)
}

func waitDone(t *testing.T, w *Watch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not finish in time")
	}
}

func TestTrackerHappyPath(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []string{"RECEIVED", "SOLD", "COMPLETED"}}
	tracker := newTestTracker(fetcher)

	var mu sync.Mutex
	var seen []Status
	completions := 0

	w := tracker.Track(context.Background(), "stl_1", StatusPending, Callbacks{
		OnStatus: func(st Status, rec *Record) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		},
		OnCompleted: func(rec *Record) {
			mu.Lock()
			completions++
			mu.Unlock()
		},
	})

	waitDone(t, w)

	mu.Lock()
	defer mu.Unlock()

	want := []Status{StatusReceived, StatusSold, StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("status sequence = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("status sequence = %v, want %v", seen, want)
		}
	}
	if completions != 1 {
		t.Errorf("completion callback fired %d times, want exactly 1", completions)
	}
	if w.Status() != StatusCompleted {
		t.Errorf("final status = %v, want COMPLETED", w.Status())
	}
}

func TestTrackerDisplayNeverRegresses(t *testing.T) {
	// An out-of-order poll response (PENDING after RECEIVED) must not move
	// the display backwards.
	fetcher := &scriptedFetcher{statuses: []string{"RECEIVED", "PENDING", "SOLD", "COMPLETED"}}
	tracker := newTestTracker(fetcher)

	var mu sync.Mutex
	var seen []Status

	w := tracker.Track(context.Background(), "stl_2", StatusPending, Callbacks{
		OnStatus: func(st Status, rec *Record) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		},
	})

	waitDone(t, w)

	mu.Lock()
	defer mu.Unlock()
	prev := StatusPending
	for _, st := range seen {
		if st.Before(prev) {
			t.Fatalf("displayed status regressed: %v after %v (sequence %v)", st, prev, seen)
		}
		prev = st
	}
	for _, st := range seen {
		if st == StatusPending {
			t.Errorf("out-of-order PENDING was displayed: %v", seen)
		}
	}
}

func TestTrackerHoldsOnUnknownStatus(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []string{"RECEIVED", "SHINY_NEW_STATE", "COMPLETED"}}
	tracker := newTestTracker(fetcher)

	var mu sync.Mutex
	var seen []Status

	w := tracker.Track(context.Background(), "stl_3", StatusPending, Callbacks{
		OnStatus: func(st Status, rec *Record) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		},
	})

	waitDone(t, w)

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusReceived, StatusCompleted}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("status sequence = %v, want %v (unknown status must be held, not displayed)", seen, want)
	}
}

func TestTrackerFailedStopsPollingImmediately(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []string{"RECEIVED", "FAILED", "COMPLETED"}}
	tracker := newTestTracker(fetcher)

	var mu sync.Mutex
	failures, completions := 0, 0

	w := tracker.Track(context.Background(), "stl_4", StatusPending, Callbacks{
		OnFailed: func(rec *Record) {
			mu.Lock()
			failures++
			mu.Unlock()
			if rec.TransactionHash == "" {
				t.Error("failure record should carry the transaction hash")
			}
		},
		OnCompleted: func(rec *Record) {
			mu.Lock()
			completions++
			mu.Unlock()
		},
	})

	waitDone(t, w)
	callsAtDone := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if failures != 1 {
		t.Errorf("failure callback fired %d times, want 1", failures)
	}
	if completions != 0 {
		t.Errorf("completion callback fired after FAILED")
	}
	if w.Status() != StatusFailed {
		t.Errorf("final status = %v, want FAILED", w.Status())
	}
	if got := fetcher.callCount(); got != callsAtDone {
		t.Errorf("polling continued after FAILED: %d calls, was %d at done", got, callsAtDone)
	}
}

func TestTrackerStopReleasesLoop(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []string{"PENDING"}}
	tracker := newTestTracker(fetcher)

	w := tracker.Track(context.Background(), "stl_5", StatusPending, Callbacks{})

	// Let a few polls happen, then stop.
	time.Sleep(25 * time.Millisecond)
	w.Stop()
	waitDone(t, w)

	calls := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := fetcher.callCount(); got != calls {
		t.Errorf("polling continued after Stop: %d calls, was %d", got, calls)
	}
	if w.Status() != StatusPending {
		t.Errorf("Stop must not alter the displayed status, got %v", w.Status())
	}

	// Stop is idempotent.
	w.Stop()
}

func TestTrackerNewWatchCancelsPrior(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []string{"PENDING"}}
	tracker := newTestTracker(fetcher)

	first := tracker.Track(context.Background(), "stl_6", StatusPending, Callbacks{})

	second := tracker.Track(context.Background(), "stl_7", StatusPending, Callbacks{})
	defer second.Stop()

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("prior watch was not cancelled by the new one")
	}
}

func TestTrackerSurvivesPollErrors(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses: []string{"RECEIVED", "COMPLETED"},
		errs:     []error{errors.New("connection reset")},
	}
	tracker := newTestTracker(fetcher)

	w := tracker.Track(context.Background(), "stl_8", StatusPending, Callbacks{})
	waitDone(t, w)

	if w.Status() != StatusCompleted {
		t.Errorf("final status = %v, want COMPLETED despite one failed poll", w.Status())
	}
}
