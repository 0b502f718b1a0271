package window

import (
	"sync"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/types"
)

// Window is a time-bounded sliding sequence of spread points for one
// (exchange1, exchange2, symbol) triple. Appends slide the window
// incrementally and enforce a hard point cap independent of the time bound.
type Window struct {
	mu sync.RWMutex

	key       string
	exchange1 string
	exchange2 string
	symbol    string

	size    time.Duration
	hardCap int

	points      []types.SpreadPoint
	windowStart time.Time
	windowEnd   time.Time
}

func newWindow(ex1, ex2, symbol string, size time.Duration, hardCap int) *Window {
	return &Window{
		key:       types.WindowKey(ex1, ex2, symbol),
		exchange1: ex1,
		exchange2: ex2,
		symbol:    symbol,
		size:      size,
		hardCap:   hardCap,
	}
}

// Key returns the canonical "{exchange1}_{exchange2}_{symbol}" key.
func (w *Window) Key() string { return w.key }

// Append adds a point, drops points older than the window size relative to
// the new point's timestamp, and enforces the hard cap. Out-of-order points
// from clock skew are appended as-is; the slide tolerates them because it
// only inspects the queue front.
func (w *Window) Append(p types.SpreadPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = append(w.points, p)

	cutoff := p.Timestamp.Add(-w.size)
	for len(w.points) > 0 && w.points[0].Timestamp.Before(cutoff) {
		w.points = w.points[1:]
	}
	for len(w.points) > w.hardCap {
		w.points = w.points[1:]
	}

	w.windowEnd = p.Timestamp
	w.windowStart = p.Timestamp.Add(-w.size)
}

// Snapshot copies the current points in append order.
func (w *Window) Snapshot() []types.SpreadPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.SpreadPoint, len(w.points))
	copy(out, w.points)
	return out
}

// Len returns the number of retained points.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.points)
}

// End returns the timestamp of the last appended point.
func (w *Window) End() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.windowEnd
}

// Bounds returns the current [windowStart, windowEnd] interval.
func (w *Window) Bounds() (time.Time, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.windowStart, w.windowEnd
}
