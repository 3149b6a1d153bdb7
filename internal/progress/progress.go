// Package progress defines the event sink the engine pushes phase and
// count updates into.
package progress

import (
	"sync"
	"time"
)

// Phase names the engine stage an event belongs to.
type Phase string

const (
	PhaseScanning   Phase = "scanning"
	PhaseExtracting Phase = "extracting"
	PhaseComparing  Phase = "comparing"
	PhaseGrouping   Phase = "grouping"
	PhaseExecuting  Phase = "executing"
)

// Event is one progress update. Done and Total are unit counts for the
// current phase; Status is a human-readable line.
type Event struct {
	Phase  Phase
	Done   int
	Total  int
	Status string
}

// Reporter receives progress events. Implementations must tolerate calls
// from multiple goroutines.
type Reporter interface {
	Report(Event)
}

// Func adapts a plain function to the Reporter interface.
type Func func(Event)

func (f Func) Report(e Event) { f(e) }

// Nop discards all events.
type Nop struct{}

func (Nop) Report(Event) {}

// Throttled forwards at most one event per interval to the underlying
// reporter, except phase transitions and final events (Done == Total),
// which always pass through.
type Throttled struct {
	mu        sync.Mutex
	next      Reporter
	interval  time.Duration
	last      time.Time
	lastPhase Phase
}

// NewThrottled wraps next with a minimum reporting interval.
func NewThrottled(next Reporter, interval time.Duration) *Throttled {
	return &Throttled{next: next, interval: interval}
}

func (t *Throttled) Report(e Event) {
	t.mu.Lock()
	now := time.Now()
	pass := e.Phase != t.lastPhase ||
		(e.Total > 0 && e.Done >= e.Total) ||
		now.Sub(t.last) >= t.interval
	if pass {
		t.last = now
		t.lastPhase = e.Phase
	}
	t.mu.Unlock()

	if pass {
		t.next.Report(e)
	}
}
