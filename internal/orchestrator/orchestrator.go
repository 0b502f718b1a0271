// Package orchestrator owns the hot path: it starts the exchange adapters,
// admits symbols, and runs the fixed per-tick pipeline. The live broadcast
// comes first and nothing on this path ever blocks.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/config"
	"github.com/Gogi213/arb1-sub000/internal/exchange"
	"github.com/Gogi213/arb1-sub000/internal/monitor"
	"github.com/Gogi213/arb1-sub000/pkg/channel"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

// Broadcaster receives the serialized live-tick envelope, fire-and-forget.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// envelope wraps a tick for the realtime WebSocket stream.
type envelope struct {
	Type    string     `json:"type"`
	Payload types.Tick `json:"payload"`
}

// Orchestrator subscribes to every enabled adapter and pushes normalized
// ticks into the broadcast surface and the two bounded channels.
type Orchestrator struct {
	cfg         *config.Config
	adapters    []exchange.Adapter
	raw         *channel.Channel[types.Tick]
	window      *channel.Channel[types.Tick]
	broadcaster Broadcaster
	tracker     *monitor.Tracker
	log         *logrus.Entry

	symbolMu sync.RWMutex
	symbols  map[string]types.SymbolInfo // "{exchange}_{symbol}"

	rawWarn    rateLimitedWarn
	windowWarn rateLimitedWarn
}

// New wires the orchestrator. broadcaster may be nil in tests.
func New(cfg *config.Config, adapters []exchange.Adapter,
	raw, window *channel.Channel[types.Tick],
	broadcaster Broadcaster, tracker *monitor.Tracker, log *logrus.Entry) *Orchestrator {

	return &Orchestrator{
		cfg:         cfg,
		adapters:    adapters,
		raw:         raw,
		window:      window,
		broadcaster: broadcaster,
		tracker:     tracker,
		log:         log.WithField("component", "orchestrator"),
		symbols:     make(map[string]types.SymbolInfo),
		rawWarn:     rateLimitedWarn{every: 5 * time.Second},
		windowWarn:  rateLimitedWarn{every: 5 * time.Second},
	}
}

// Start launches one goroutine per adapter and returns. A failing adapter is
// logged and skipped; it never takes the process down.
func (o *Orchestrator) Start(ctx context.Context) {
	for _, adapter := range o.adapters {
		o.tracker.RegisterAdapter(adapter.Name())
		go o.runAdapter(ctx, adapter)
	}
}

func (o *Orchestrator) runAdapter(ctx context.Context, adapter exchange.Adapter) {
	name := adapter.Name()
	log := o.log.WithField("exchange", name)
	exCfg := o.cfg.Exchanges[name]

	symbols, err := adapter.Symbols(ctx)
	if err != nil {
		log.WithError(err).Error("symbol discovery failed, skipping exchange")
		return
	}
	tickers, err := adapter.Tickers(ctx)
	if err != nil {
		log.WithError(err).Error("ticker discovery failed, skipping exchange")
		return
	}

	admitted := AdmitSymbols(symbols, tickers, exCfg.MinUSDVolume, exCfg.MaxUSDVolume)
	if len(admitted) == 0 {
		log.Warn("no symbols admitted, skipping exchange")
		return
	}

	names := make([]string, 0, len(admitted))
	o.symbolMu.Lock()
	for _, info := range admitted {
		o.symbols[types.TickKey(name, info.Symbol)] = info
		names = append(names, info.Symbol)
	}
	o.symbolMu.Unlock()

	log.WithField("symbols", len(names)).Info("subscribing to ticker streams")

	handler := exchange.Guard(log, func(tick types.Tick) {
		o.handleTick(tick, exCfg)
	})
	if err := adapter.SubscribeTickers(ctx, names, handler); err != nil {
		log.WithError(err).Error("ticker subscription failed")
	}
}

// handleTick is the fixed per-tick pipeline. Step order matters: validate,
// normalize, annotate, broadcast (hot), then try-publish (cold).
func (o *Orchestrator) handleTick(tick types.Tick, exCfg config.ExchangeConfig) {
	if !tick.BestAsk.IsPositive() || !tick.BestBid.IsPositive() {
		o.log.WithFields(logrus.Fields{
			"exchange": tick.Exchange,
			"symbol":   tick.Symbol,
		}).Debug("dropping tick with non-positive book")
		return
	}

	tick.Symbol = types.NormalizeSymbol(tick.Symbol)
	tick.SpreadPercent = types.IntraSpreadPercent(tick.BestBid, tick.BestAsk)
	tick.MinVolume = exCfg.MinUSDVolume
	tick.MaxVolume = exCfg.MaxUSDVolume

	if o.broadcaster != nil {
		payload, err := json.Marshal(envelope{Type: "Spread", Payload: tick})
		if err != nil {
			o.log.WithError(err).Error("tick serialization failed, skipping broadcast")
		} else {
			o.broadcaster.Broadcast(payload)
		}
	}

	if !o.raw.TryPublish(tick) {
		o.rawWarn.warn(o.log, "raw channel overflow, dropping oldest", o.raw.Dropped())
	}
	if !o.window.TryPublish(tick) {
		o.windowWarn.warn(o.log, "window channel overflow, dropping oldest", o.window.Dropped())
	}
}

// SymbolInfo returns the admitted metadata for an exchange+symbol.
func (o *Orchestrator) SymbolInfo(exchangeName, symbol string) (types.SymbolInfo, bool) {
	o.symbolMu.RLock()
	defer o.symbolMu.RUnlock()
	info, ok := o.symbols[types.TickKey(exchangeName, symbol)]
	return info, ok
}

// SymbolCount reports the number of admitted (exchange, symbol) pairs.
func (o *Orchestrator) SymbolCount() int {
	o.symbolMu.RLock()
	defer o.symbolMu.RUnlock()
	return len(o.symbols)
}

// rateLimitedWarn suppresses repeated overflow warnings on the hot path.
type rateLimitedWarn struct {
	every    time.Duration
	lastNano atomic.Int64
}

func (r *rateLimitedWarn) warn(log *logrus.Entry, msg string, dropped int64) {
	now := time.Now().UnixNano()
	last := r.lastNano.Load()
	if now-last < int64(r.every) {
		return
	}
	if r.lastNano.CompareAndSwap(last, now) {
		log.WithField("dropped", dropped).Warn(msg)
	}
}
