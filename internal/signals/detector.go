// Package signals implements the mean-reversion threshold detector: entry
// when the cross-exchange deviation exceeds the configured threshold, exit
// as it converges back.
package signals

import (
	"sync"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/window"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Executor receives each emitted signal synchronously. Executors that must
// do I/O have to hand the work to their own queue; their latency directly
// gates detector throughput.
type Executor func(sig types.Signal)

// Publisher receives each emitted signal for fire-and-forget distribution
// (WebSocket broadcast, NATS).
type Publisher func(sig types.Signal)

// Config parameterizes the detector. Thresholds are percentages.
type Config struct {
	EntryThresholdPct decimal.Decimal
	ExitThresholdPct  decimal.Decimal
	Cooldown          time.Duration
}

// pairState is the per-(exchange1, exchange2, symbol) detector state.
type pairState struct {
	active         bool
	lastSignalTime time.Time
	subscription   *window.Subscription
}

// Detector subscribes to the spread-point stream of every window and runs
// the entry/exit state machine per triple. At most one entry is active per
// triple; cooldown gates entries only, exits always fire.
type Detector struct {
	cfg      Config
	log      *logrus.Entry
	executor Executor
	publish  Publisher

	mu     sync.Mutex
	states map[string]*pairState
}

// New creates a detector. executor and publish may be nil.
func New(cfg Config, log *logrus.Entry, executor Executor, publish Publisher) *Detector {
	return &Detector{
		cfg:      cfg,
		log:      log,
		executor: executor,
		publish:  publish,
		states:   make(map[string]*pairState),
	}
}

// Attach hooks the detector onto the engine: every window created from now
// on gets a targeted subscription feeding the state machine.
func (d *Detector) Attach(engine *window.Engine) {
	engine.OnWindowCreated(func(ex1, ex2, symbol string) {
		d.Watch(engine, ex1, ex2, symbol)
	})
}

// Watch subscribes the detector to one triple. Watching a triple twice is a
// no-op.
func (d *Detector) Watch(engine *window.Engine, ex1, ex2, symbol string) {
	key := types.WindowKey(ex1, ex2, symbol)

	d.mu.Lock()
	if _, ok := d.states[key]; ok {
		d.mu.Unlock()
		return
	}
	st := &pairState{}
	d.states[key] = st
	d.mu.Unlock()

	st.subscription = engine.Subscribe(ex1, ex2, symbol, func(p types.SpreadPoint) {
		d.OnSpreadPoint(p)
	})
}

// OnSpreadPoint advances the state machine for the point's triple.
func (d *Detector) OnSpreadPoint(p types.SpreadPoint) {
	key := types.WindowKey(p.Exchange1, p.Exchange2, p.Symbol)
	abs := p.SpreadPercent.Abs()

	d.mu.Lock()
	st, ok := d.states[key]
	if !ok {
		st = &pairState{}
		d.states[key] = st
	}

	var sig *types.Signal
	switch {
	case !st.active &&
		abs.GreaterThanOrEqual(d.cfg.EntryThresholdPct) &&
		p.Timestamp.Sub(st.lastSignalTime) >= d.cfg.Cooldown:
		st.active = true
		st.lastSignalTime = p.Timestamp
		sig = d.buildSignal(p, types.SignalEntry)

	case st.active && abs.LessThanOrEqual(d.cfg.ExitThresholdPct):
		st.active = false
		st.lastSignalTime = p.Timestamp
		sig = d.buildSignal(p, types.SignalExit)
	}
	d.mu.Unlock()

	if sig != nil {
		d.emit(*sig)
	}
}

// buildSignal fixes direction and the cheap/expensive sides from the sign of
// the canonically ordered spread.
func (d *Detector) buildSignal(p types.SpreadPoint, kind types.SignalKind) *types.Signal {
	direction := types.DirectionUp
	cheap, expensive := p.Exchange1, p.Exchange2
	if p.SpreadPercent.IsNegative() {
		direction = types.DirectionDown
		cheap, expensive = p.Exchange2, p.Exchange1
	}

	return &types.Signal{
		Symbol:            p.Symbol,
		Exchange1:         p.Exchange1,
		Exchange2:         p.Exchange2,
		Deviation:         p.SpreadPercent,
		Direction:         direction,
		CheapExchange:     cheap,
		ExpensiveExchange: expensive,
		Kind:              kind,
		Timestamp:         p.Timestamp,
	}
}

func (d *Detector) emit(sig types.Signal) {
	d.log.WithFields(logrus.Fields{
		"symbol":    sig.Symbol,
		"kind":      sig.Kind,
		"deviation": sig.Deviation.String(),
		"cheap":     sig.CheapExchange,
		"expensive": sig.ExpensiveExchange,
	}).Info("signal emitted")

	if d.executor != nil {
		d.runExecutor(sig)
	}
	if d.publish != nil {
		d.publish(sig)
	}
}

// runExecutor isolates executor failures: a panicking executor is logged and
// the detector state is left unchanged.
func (d *Detector) runExecutor(sig types.Signal) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"symbol": sig.Symbol,
				"panic":  r,
			}).Error("signal executor panicked")
		}
	}()
	d.executor(sig)
}

// ActiveCount reports how many triples currently hold an active entry.
func (d *Detector) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, st := range d.states {
		if st.active {
			n++
		}
	}
	return n
}
