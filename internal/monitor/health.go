// Package monitor tracks adapter and pipeline health for the HTTP surface.
package monitor

import (
	"sync"
	"time"
)

// AdapterStatus is the live view of one exchange adapter.
type AdapterStatus struct {
	Exchange   string    `json:"exchange"`
	Connected  bool      `json:"connected"`
	Reconnects int64     `json:"reconnects"`
	LastChange time.Time `json:"lastChange"`
}

// DropCounter reports the number of items a bounded queue has discarded.
type DropCounter func() int64

// Tracker aggregates adapter connection state and channel drop counters.
// A process with any registered adapter disconnected reports degraded.
type Tracker struct {
	mu       sync.RWMutex
	adapters map[string]*AdapterStatus
	drops    map[string]DropCounter
	started  time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		adapters: make(map[string]*AdapterStatus),
		drops:    make(map[string]DropCounter),
		started:  time.Now(),
	}
}

// RegisterAdapter declares an adapter before it connects.
func (t *Tracker) RegisterAdapter(exchange string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.adapters[exchange]; !ok {
		t.adapters[exchange] = &AdapterStatus{Exchange: exchange, LastChange: time.Now()}
	}
}

// SetConnected records an adapter's connection state transition. A transition
// from connected to disconnected counts as the start of a reconnect.
func (t *Tracker) SetConnected(exchange string, connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.adapters[exchange]
	if !ok {
		st = &AdapterStatus{Exchange: exchange}
		t.adapters[exchange] = st
	}
	if st.Connected && !connected {
		st.Reconnects++
	}
	st.Connected = connected
	st.LastChange = time.Now()
}

// RegisterDropCounter attaches a channel drop counter to the health payload.
func (t *Tracker) RegisterDropCounter(name string, counter DropCounter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drops[name] = counter
}

// Health is the /health response body.
type Health struct {
	Status   string           `json:"status"`
	Uptime   string           `json:"uptime"`
	Adapters []AdapterStatus  `json:"adapters"`
	Drops    map[string]int64 `json:"drops"`
}

// Snapshot computes the current health view.
func (t *Tracker) Snapshot() Health {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h := Health{
		Status: "healthy",
		Uptime: time.Since(t.started).Round(time.Second).String(),
		Drops:  make(map[string]int64, len(t.drops)),
	}
	for _, st := range t.adapters {
		h.Adapters = append(h.Adapters, *st)
		if !st.Connected {
			h.Status = "degraded"
		}
	}
	for name, counter := range t.drops {
		h.Drops[name] = counter()
	}
	return h
}
