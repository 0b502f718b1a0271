package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/exchange"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// Bybit caps subscribe args per request.
	topicsPerRequest = 10

	pingInterval  = 20 * time.Second
	readWait      = 40 * time.Second
	reconnectWait = 2 * time.Second
)

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsMessage struct {
	Topic string          `json:"topic"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type tickerData struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

// SubscribeTickers streams the spot tickers topics for the given symbols
// until ctx is cancelled, reconnecting on every failure.
func (a *Adapter) SubscribeTickers(ctx context.Context, symbols []string, onTick exchange.TickHandler) error {
	if len(symbols) == 0 {
		return fmt.Errorf("bybit: no symbols to subscribe")
	}

	topics := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		topics = append(topics, "tickers."+symbol)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := a.runStream(ctx, topics, onTick); err != nil {
			a.log.WithError(err).Warn("websocket stream failed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectWait):
		}
	}
}

func (a *Adapter) runStream(ctx context.Context, topics []string, onTick exchange.TickHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for start := 0; start < len(topics); start += topicsPerRequest {
		end := start + topicsPerRequest
		if end > len(topics) {
			end = len(topics)
		}
		if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: topics[start:end]}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	a.state.SetConnected(a.name, true)
	defer a.state.SetConnected(a.name, false)

	// Keepalive pings; the server answers with an op:"pong" frame.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteJSON(wsRequest{Op: "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Topic == "" {
			continue // pong or subscription ack
		}

		var ticker tickerData
		if err := json.Unmarshal(msg.Data, &ticker); err != nil {
			continue
		}
		tick, ok := a.tickFromData(ticker, msg.TS)
		if !ok {
			continue
		}
		onTick(tick)
	}
}

func (a *Adapter) tickFromData(data tickerData, serverMillis int64) (types.Tick, bool) {
	bid, err := decimal.NewFromString(data.Bid1Price)
	if err != nil {
		return types.Tick{}, false
	}
	ask, err := decimal.NewFromString(data.Ask1Price)
	if err != nil {
		return types.Tick{}, false
	}

	tick := types.Tick{
		Exchange:       a.name,
		Symbol:         types.NormalizeSymbol(data.Symbol),
		BestBid:        bid,
		BestAsk:        ask,
		LocalTimestamp: time.Now(),
	}
	if serverMillis > 0 {
		server := decimal.NewFromInt(serverMillis).Div(decimal.NewFromInt(1000))
		tick.ServerTimestamp = &server
	}
	return tick, true
}
