// Package binance adapts the Binance spot bookTicker stream to the pipeline
// contract: REST discovery at startup, combined WebSocket streams afterwards
// with unconditional reconnects.
package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/exchange"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// Streams per combined WebSocket connection. Binance allows up to 1024;
	// smaller chunks keep reconnect blast radius down.
	streamsPerConn = 200

	reconnectWait = 2 * time.Second
)

// Adapter implements exchange.Adapter for Binance spot markets.
type Adapter struct {
	name   string
	client *binance.Client
	log    *logrus.Entry
	state  exchange.StateListener

	liveConns atomic.Int32
}

// New creates the adapter. Public market data needs no credentials.
func New(testnet bool, state exchange.StateListener, log *logrus.Entry) *Adapter {
	binance.UseTestnet = testnet
	if state == nil {
		state = exchange.NopStateListener
	}
	return &Adapter{
		name:   "binance",
		client: binance.NewClient("", ""),
		log:    log.WithField("exchange", "binance"),
		state:  state,
	}
}

// Name returns the short exchange identifier.
func (a *Adapter) Name() string { return a.name }

// Symbols fetches trading-pair metadata for all actively trading symbols.
func (a *Adapter) Symbols(ctx context.Context) ([]types.SymbolInfo, error) {
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}

	out := make([]types.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		si := types.SymbolInfo{
			Exchange: a.name,
			Symbol:   types.NormalizeSymbol(s.Symbol),
		}
		for _, filter := range s.Filters {
			switch filter["filterType"] {
			case "PRICE_FILTER":
				si.PriceStep = parseFilterDecimal(filter, "tickSize")
			case "LOT_SIZE":
				si.QuantityStep = parseFilterDecimal(filter, "stepSize")
			case "MIN_NOTIONAL", "NOTIONAL":
				si.MinNotional = parseFilterDecimal(filter, "minNotional")
			}
		}
		out = append(out, si)
	}
	return out, nil
}

// Tickers fetches 24h rolling statistics for all symbols.
func (a *Adapter) Tickers(ctx context.Context) ([]types.Ticker, error) {
	stats, err := a.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 24h tickers: %w", err)
	}

	out := make([]types.Ticker, 0, len(stats))
	for _, st := range stats {
		volume, err := decimal.NewFromString(st.QuoteVolume)
		if err != nil {
			continue
		}
		out = append(out, types.Ticker{
			Symbol:         types.NormalizeSymbol(st.Symbol),
			QuoteVolume24h: volume,
		})
	}
	return out, nil
}

// SubscribeTickers runs combined bookTicker streams, chunked across
// connections, until ctx is cancelled. Each connection reconnects on its own
// without external prompting.
func (a *Adapter) SubscribeTickers(ctx context.Context, symbols []string, onTick exchange.TickHandler) error {
	if len(symbols) == 0 {
		return fmt.Errorf("binance: no symbols to subscribe")
	}

	var wg sync.WaitGroup
	for start := 0; start < len(symbols); start += streamsPerConn {
		end := start + streamsPerConn
		if end > len(symbols) {
			end = len(symbols)
		}
		streams := make([]string, 0, end-start)
		for _, symbol := range symbols[start:end] {
			streams = append(streams, fmt.Sprintf("%s@bookTicker", strings.ToLower(symbol)))
		}

		wg.Add(1)
		go func(streams []string) {
			defer wg.Done()
			a.runStream(ctx, streams, onTick)
		}(streams)
	}
	wg.Wait()
	return nil
}

func (a *Adapter) runStream(ctx context.Context, streams []string, onTick exchange.TickHandler) {
	wsHandler := func(event *binance.WsBookTickerEvent) {
		tick, ok := a.tickFromEvent(event)
		if !ok {
			return
		}
		onTick(tick)
	}
	errHandler := func(err error) {
		a.log.WithError(err).Warn("websocket stream error")
	}

	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := binance.WsCombinedBookTickerServe(streams, wsHandler, errHandler)
		if err != nil {
			a.log.WithError(err).Warn("websocket connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectWait):
			}
			continue
		}

		a.connUp()
		select {
		case <-ctx.Done():
			close(stopC)
			a.connDown()
			return
		case <-doneC:
			a.connDown()
			a.log.Warn("websocket stream closed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectWait):
			}
		}
	}
}

func (a *Adapter) tickFromEvent(event *binance.WsBookTickerEvent) (types.Tick, bool) {
	bid, err := decimal.NewFromString(event.BestBidPrice)
	if err != nil {
		return types.Tick{}, false
	}
	ask, err := decimal.NewFromString(event.BestAskPrice)
	if err != nil {
		return types.Tick{}, false
	}

	return types.Tick{
		Exchange:       a.name,
		Symbol:         types.NormalizeSymbol(event.Symbol),
		BestBid:        bid,
		BestAsk:        ask,
		LocalTimestamp: time.Now(),
	}, true
}

func (a *Adapter) connUp() {
	if a.liveConns.Add(1) == 1 {
		a.state.SetConnected(a.name, true)
	}
}

func (a *Adapter) connDown() {
	if a.liveConns.Add(-1) == 0 {
		a.state.SetConnected(a.name, false)
	}
}

func parseFilterDecimal(filter map[string]interface{}, key string) decimal.Decimal {
	raw, ok := filter[key].(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
