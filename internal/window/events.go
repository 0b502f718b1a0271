package window

import (
	"sync"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

// Handler receives each spread point appended to a subscribed window.
// Handlers run synchronously on the consumer goroutine and must be fast and
// non-blocking; slow delivery belongs behind a queue on the subscriber side.
type Handler func(p types.SpreadPoint)

// Subscription is the opaque token returned by Subscribe. Unsubscribing
// through the token makes cancellation first-class and leaks testable.
type Subscription struct {
	id  uint64
	key string
}

type subEntry struct {
	id uint64
	fn Handler
}

// Registry routes window append events to targeted subscribers. It replaces
// a global "window updated" broadcast: only subscribers of the appended
// window are invoked, in subscription order.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64

	// window key -> ordered subscriber list
	handlers map[string][]subEntry

	// "{exchange}_{symbol}" -> set of window keys that exchange+symbol feeds
	index map[string]map[string]struct{}

	log *logrus.Entry
}

// NewRegistry creates an empty event registry.
func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{
		handlers: make(map[string][]subEntry),
		index:    make(map[string]map[string]struct{}),
		log:      log,
	}
}

// Subscribe registers a handler for the canonical window of (ex1, ex2,
// symbol) and returns the cancellation token.
func (r *Registry) Subscribe(ex1, ex2, symbol string, fn Handler) *Subscription {
	key := types.WindowKey(ex1, ex2, symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{id: r.nextID, key: key}
	r.handlers[key] = append(r.handlers[key], subEntry{id: sub.id, fn: fn})
	return sub
}

// Unsubscribe revokes a token. Subsequent dispatches to the subscriber are
// no-ops; unsubscribing twice is harmless.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[sub.key]
	for i, en := range entries {
		if en.id == sub.id {
			r.handlers[sub.key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.handlers[sub.key]) == 0 {
		delete(r.handlers, sub.key)
	}
}

// SubscriberCount reports the number of live subscriptions for a window.
func (r *Registry) SubscriberCount(ex1, ex2, symbol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[types.WindowKey(ex1, ex2, symbol)])
}

// registerWindow records the window key under both exchange_symbol index
// entries. Called when the engine creates a window.
func (r *Registry) registerWindow(w *Window) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, exSym := range []string{
		types.TickKey(w.exchange1, w.symbol),
		types.TickKey(w.exchange2, w.symbol),
	} {
		set, ok := r.index[exSym]
		if !ok {
			set = make(map[string]struct{})
			r.index[exSym] = set
		}
		set[w.key] = struct{}{}
	}
}

// deregisterWindow removes index entries when a window is evicted. Live
// subscriptions are left in place; they simply receive no further events,
// and dead-subscription cleanup is the subscriber's responsibility.
func (r *Registry) deregisterWindow(w *Window) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, exSym := range []string{
		types.TickKey(w.exchange1, w.symbol),
		types.TickKey(w.exchange2, w.symbol),
	} {
		if set, ok := r.index[exSym]; ok {
			delete(set, w.key)
			if len(set) == 0 {
				delete(r.index, exSym)
			}
		}
	}
}

// WindowsFor returns the keys of all windows fed by (exchange, symbol).
func (r *Registry) WindowsFor(exchange, symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.index[types.TickKey(exchange, symbol)]
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}

// publish dispatches a point to the appended window's subscribers in
// subscription order. Handler panics are logged and swallowed so one bad
// subscriber cannot take down the consumer loop.
func (r *Registry) publish(windowKey string, p types.SpreadPoint) {
	r.mu.RLock()
	entries := make([]subEntry, len(r.handlers[windowKey]))
	copy(entries, r.handlers[windowKey])
	r.mu.RUnlock()

	for _, en := range entries {
		r.invoke(windowKey, en, p)
	}
}

func (r *Registry) invoke(windowKey string, en subEntry, p types.SpreadPoint) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"window": windowKey,
				"panic":  rec,
			}).Error("window event handler panicked")
		}
	}()
	en.fn(p)
}
