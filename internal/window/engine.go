// Package window implements the rolling-window engine: the last-tick cache,
// the sliding spread-point windows, targeted event delivery and chart-frame
// queries. All state is bounded; nothing here grows with history.
package window

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/cache"
	"github.com/Gogi213/arb1-sub000/pkg/channel"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config bounds the engine's state and schedules its cleanup passes.
type Config struct {
	Size           time.Duration
	HardCapPoints  int
	MaxWindows     int
	MaxLatestTicks int

	WindowCleanupEvery time.Duration
	TickCleanupEvery   time.Duration
	TickTTL            time.Duration
	CleanupBatch       int

	Chart ChartParams
}

func (c *Config) applyDefaults() {
	if c.Size <= 0 {
		c.Size = 5 * time.Minute
	}
	if c.HardCapPoints <= 0 {
		c.HardCapPoints = 5000
	}
	if c.MaxWindows <= 0 {
		c.MaxWindows = 10000
	}
	if c.MaxLatestTicks <= 0 {
		c.MaxLatestTicks = 50000
	}
	if c.WindowCleanupEvery <= 0 {
		c.WindowCleanupEvery = 5 * time.Minute
	}
	if c.TickCleanupEvery <= 0 {
		c.TickCleanupEvery = 2 * time.Minute
	}
	if c.TickTTL <= 0 {
		c.TickTTL = 5 * time.Minute
	}
	if c.CleanupBatch <= 0 {
		c.CleanupBatch = 100
	}
	c.Chart.applyDefaults()
}

// lastTick is the cached top of book for one (exchange, symbol).
type lastTick struct {
	Timestamp time.Time
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
}

// exchangeSet tracks which exchanges currently trade a symbol.
type exchangeSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func (s *exchangeSet) add(exchange string) {
	s.mu.Lock()
	s.set[exchange] = struct{}{}
	s.mu.Unlock()
}

func (s *exchangeSet) others(exchange string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.set))
	for ex := range s.set {
		if ex != exchange {
			out = append(out, ex)
		}
	}
	return out
}

// WindowCreatedHandler observes new window creation; the signal detector
// uses it to attach itself to every pair as it appears.
type WindowCreatedHandler func(ex1, ex2, symbol string)

// Engine consumes the window channel and turns independent per-exchange
// ticks into per-pair spread-point streams via last-tick matching.
type Engine struct {
	cfg Config
	log *logrus.Entry

	latest  *cache.LRU[string, lastTick]
	windows *cache.LRU[string, *Window]

	symbolExchanges sync.Map // symbol -> *exchangeSet

	events *Registry

	createdMu sync.RWMutex
	created   []WindowCreatedHandler

	cleanupRunning atomic.Bool
}

// New creates an engine with the given bounds.
func New(cfg Config, log *logrus.Entry) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:    cfg,
		log:    log,
		events: NewRegistry(log),
	}
	e.latest = cache.NewLRU[string, lastTick](cfg.MaxLatestTicks, nil)
	e.windows = cache.NewLRU[string, *Window](cfg.MaxWindows, func(_ string, w *Window) {
		e.events.deregisterWindow(w)
	})
	return e
}

// Events exposes the subscription registry.
func (e *Engine) Events() *Registry { return e.events }

// Subscribe attaches a handler to the canonical window of (ex1, ex2, symbol).
func (e *Engine) Subscribe(ex1, ex2, symbol string, fn Handler) *Subscription {
	return e.events.Subscribe(ex1, ex2, symbol, fn)
}

// Unsubscribe revokes a subscription token.
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.events.Unsubscribe(sub)
}

// OnWindowCreated registers a hook invoked synchronously whenever a new
// window is created. Registration is not safe to call from the hook itself.
func (e *Engine) OnWindowCreated(fn WindowCreatedHandler) {
	e.createdMu.Lock()
	e.created = append(e.created, fn)
	e.createdMu.Unlock()
}

// Run consumes ticks from the window channel until ctx is cancelled, with
// the two periodic cleanup passes running alongside.
func (e *Engine) Run(ctx context.Context, ch *channel.Channel[types.Tick]) {
	go e.cleanupLoop(ctx)

	for {
		tick, ok := ch.Receive(ctx)
		if !ok {
			// Drain at most one more item, then exit.
			if tick, ok = ch.TryReceive(); ok {
				e.ProcessTick(tick)
			}
			return
		}
		e.ProcessTick(tick)
	}
}

// ProcessTick runs last-tick matching for one tick: match against every
// other exchange's cached tick for the same symbol, then cache this tick.
// Caching after matching is what prevents a tick from matching itself.
func (e *Engine) ProcessTick(t types.Tick) {
	setAny, _ := e.symbolExchanges.LoadOrStore(t.Symbol, &exchangeSet{set: make(map[string]struct{})})
	exSet := setAny.(*exchangeSet)
	exSet.add(t.Exchange)

	for _, other := range exSet.others(t.Exchange) {
		cached, ok := e.latest.Get(types.TickKey(other, t.Symbol))
		if !ok {
			continue
		}

		ex1, ex2 := types.CanonicalPair(t.Exchange, other)
		bid1, bid2 := t.BestBid, cached.BestBid
		if ex1 != t.Exchange {
			bid1, bid2 = cached.BestBid, t.BestBid
		}
		if !bid1.IsPositive() || !bid2.IsPositive() {
			continue
		}

		point := types.SpreadPoint{
			Timestamp:     t.LocalTimestamp,
			Symbol:        t.Symbol,
			Exchange1:     ex1,
			Exchange2:     ex2,
			Bid1:          bid1,
			Bid2:          bid2,
			SpreadPercent: types.CrossSpreadPercent(bid1, bid2),
			Staleness:     t.LocalTimestamp.Sub(cached.Timestamp),
			TriggeredBy:   t.Exchange,
		}
		e.appendPoint(ex1, ex2, t.Symbol, point)
	}

	e.latest.Put(types.TickKey(t.Exchange, t.Symbol), lastTick{
		Timestamp: t.LocalTimestamp,
		BestBid:   t.BestBid,
		BestAsk:   t.BestAsk,
	})
}

func (e *Engine) appendPoint(ex1, ex2, symbol string, p types.SpreadPoint) {
	key := types.WindowKey(ex1, ex2, symbol)

	// Single consumer goroutine appends, so create-if-absent needs no CAS.
	w, ok := e.windows.Get(key)
	if !ok {
		w = newWindow(ex1, ex2, symbol, e.cfg.Size, e.cfg.HardCapPoints)
		e.windows.Put(key, w)
		e.events.registerWindow(w)
		e.notifyCreated(ex1, ex2, symbol)
	}

	w.Append(p)
	e.events.publish(key, p)
}

func (e *Engine) notifyCreated(ex1, ex2, symbol string) {
	e.createdMu.RLock()
	hooks := make([]WindowCreatedHandler, len(e.created))
	copy(hooks, e.created)
	e.createdMu.RUnlock()

	for _, fn := range hooks {
		fn(ex1, ex2, symbol)
	}
}

// LookupWindow returns the live window for a triple, if present.
func (e *Engine) LookupWindow(ex1, ex2, symbol string) (*Window, bool) {
	return e.windows.Get(types.WindowKey(ex1, ex2, symbol))
}

// WindowCount reports the number of live windows.
func (e *Engine) WindowCount() int { return e.windows.Len() }

// LatestTickCount reports the number of cached last ticks.
func (e *Engine) LatestTickCount() int { return e.latest.Len() }

// ChartFrame builds the pull-path chart payload for a triple. The boolean is
// false when the window is absent or empty.
func (e *Engine) ChartFrame(ex1, ex2, symbol string, now time.Time) (types.ChartFrame, bool) {
	w, ok := e.windows.Get(types.WindowKey(ex1, ex2, symbol))
	if !ok || w == nil {
		return types.ChartFrame{}, false
	}
	points := w.Snapshot()
	if len(points) == 0 {
		return types.ChartFrame{}, false
	}
	return BuildFrame(points, now, e.cfg.Chart), true
}

// cleanupLoop runs the window sweep every WindowCleanupEvery and the
// last-tick sweep every TickCleanupEvery. The running flag forbids
// overlapping passes; LRU eviction stays active regardless, so these only
// handle the low-traffic tail.
func (e *Engine) cleanupLoop(ctx context.Context) {
	windowTicker := time.NewTicker(e.cfg.WindowCleanupEvery)
	tickTicker := time.NewTicker(e.cfg.TickCleanupEvery)
	defer windowTicker.Stop()
	defer tickTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-windowTicker.C:
			e.runExclusive(func() { e.sweepWindows(ctx, time.Now()) })
		case <-tickTicker.C:
			e.runExclusive(func() { e.sweepLatestTicks(ctx, time.Now()) })
		}
	}
}

func (e *Engine) runExclusive(fn func()) {
	if !e.cleanupRunning.CompareAndSwap(false, true) {
		return
	}
	defer e.cleanupRunning.Store(false)
	fn()
}

func (e *Engine) sweepWindows(ctx context.Context, now time.Time) {
	keys := e.windows.Keys()
	removed := 0

	for i := 0; i < len(keys); i += e.cfg.CleanupBatch {
		if ctx.Err() != nil {
			return
		}
		end := i + e.cfg.CleanupBatch
		if end > len(keys) {
			end = len(keys)
		}
		for _, key := range keys[i:end] {
			w, ok := e.windows.Peek(key)
			if !ok || w == nil {
				continue
			}
			if w.End().Before(now.Add(-e.cfg.Size)) {
				e.windows.Remove(key)
				removed++
			}
		}
		runtime.Gosched()
	}

	if removed > 0 {
		e.log.WithField("removed", removed).Debug("window cleanup pass complete")
	}
}

func (e *Engine) sweepLatestTicks(ctx context.Context, now time.Time) {
	keys := e.latest.Keys()
	removed := 0

	for i := 0; i < len(keys); i += e.cfg.CleanupBatch {
		if ctx.Err() != nil {
			return
		}
		end := i + e.cfg.CleanupBatch
		if end > len(keys) {
			end = len(keys)
		}
		for _, key := range keys[i:end] {
			entry, ok := e.latest.Peek(key)
			if !ok {
				continue
			}
			if entry.Timestamp.Before(now.Add(-e.cfg.TickTTL)) {
				e.latest.Remove(key)
				removed++
			}
		}
		runtime.Gosched()
	}

	if removed > 0 {
		e.log.WithField("removed", removed).Debug("last-tick cleanup pass complete")
	}
}
