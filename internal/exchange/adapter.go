// Package exchange defines the uniform contract the pipeline consumes.
// Per-exchange protocol clients live in subpackages and implement Adapter;
// the core never sees exchange-specific wire formats.
package exchange

import (
	"context"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

// TickHandler receives one normalized top-of-book update. Adapters may call
// it from any goroutine but never concurrently for the same symbol.
type TickHandler func(tick types.Tick)

// Adapter is the capability every exchange client provides. Symbols and
// Tickers are one-shot discovery calls at startup; SubscribeTickers runs
// until the context is cancelled and must reconnect on disconnect without
// external prompting.
type Adapter interface {
	Name() string
	Symbols(ctx context.Context) ([]types.SymbolInfo, error)
	Tickers(ctx context.Context) ([]types.Ticker, error)
	SubscribeTickers(ctx context.Context, symbols []string, onTick TickHandler) error
}

// StateListener observes adapter connectivity transitions. The health
// tracker implements this; adapters call it on connect, disconnect and
// reconnect so /health can report degraded service.
type StateListener interface {
	SetConnected(exchange string, connected bool)
}

type nopStateListener struct{}

func (nopStateListener) SetConnected(string, bool) {}

// NopStateListener is used when no health tracker is wired, e.g. in tests.
var NopStateListener StateListener = nopStateListener{}

// Guard wraps a tick handler so a panic in downstream processing is logged
// and swallowed instead of propagating into the adapter's read loop.
func Guard(log *logrus.Entry, onTick TickHandler) TickHandler {
	return func(tick types.Tick) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"exchange": tick.Exchange,
					"symbol":   tick.Symbol,
					"panic":    r,
				}).Error("tick handler panicked")
			}
		}()
		onTick(tick)
	}
}
