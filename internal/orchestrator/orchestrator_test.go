package orchestrator

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/config"
	"github.com/Gogi213/arb1-sub000/internal/monitor"
	"github.com/Gogi213/arb1-sub000/pkg/channel"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBroadcaster struct {
	payloads [][]byte
}

func (b *captureBroadcaster) Broadcast(payload []byte) {
	b.payloads = append(b.payloads, payload)
}

func testOrchestrator(t *testing.T) (*Orchestrator, *captureBroadcaster, *channel.Channel[types.Tick], *channel.Channel[types.Tick]) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg, err := config.Load("")
	require.NoError(t, err)

	raw := channel.New[types.Tick]("raw", 8)
	window := channel.New[types.Tick]("window", 8)
	broadcaster := &captureBroadcaster{}

	o := New(cfg, nil, raw, window, broadcaster, monitor.NewTracker(), logrus.NewEntry(logger))
	return o, broadcaster, raw, window
}

func validTick() types.Tick {
	return types.Tick{
		Exchange:       "binance",
		Symbol:         "BTC/USDT",
		BestBid:        decimal.RequireFromString("65000.10"),
		BestAsk:        decimal.RequireFromString("65000.20"),
		LocalTimestamp: time.Now(),
	}
}

func TestHandleTickPipeline(t *testing.T) {
	o, broadcaster, raw, window := testOrchestrator(t)

	exCfg := config.ExchangeConfig{
		MinUSDVolume: decimal.NewFromInt(1000000),
		MaxUSDVolume: decimal.NewFromInt(500000000),
	}
	o.handleTick(validTick(), exCfg)

	// Broadcast happened and carries the envelope.
	require.Len(t, broadcaster.payloads, 1)
	var env struct {
		Type    string     `json:"type"`
		Payload types.Tick `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(broadcaster.payloads[0], &env))
	assert.Equal(t, "Spread", env.Type)
	assert.Equal(t, "BTCUSDT", env.Payload.Symbol, "symbol is normalized")
	assert.True(t, env.Payload.MinVolume.Equal(exCfg.MinUSDVolume))
	assert.True(t, env.Payload.SpreadPercent.IsPositive())

	// Both consumers received the same tick.
	rawTick, ok := raw.TryReceive()
	require.True(t, ok)
	winTick, ok := window.TryReceive()
	require.True(t, ok)
	assert.Equal(t, rawTick.Symbol, winTick.Symbol)
}

func TestHandleTickRejectsNonPositiveBook(t *testing.T) {
	o, broadcaster, raw, window := testOrchestrator(t)

	bad := validTick()
	bad.BestAsk = decimal.Zero
	o.handleTick(bad, config.ExchangeConfig{})

	bad = validTick()
	bad.BestBid = decimal.RequireFromString("-1")
	o.handleTick(bad, config.ExchangeConfig{})

	assert.Empty(t, broadcaster.payloads)
	assert.Equal(t, 0, raw.Len())
	assert.Equal(t, 0, window.Len())
}

func TestHandleTickSurvivesChannelOverflow(t *testing.T) {
	o, _, raw, window := testOrchestrator(t)

	for i := 0; i < 20; i++ {
		o.handleTick(validTick(), config.ExchangeConfig{})
	}

	assert.Equal(t, raw.Cap(), raw.Len())
	assert.Equal(t, window.Cap(), window.Len())
	assert.Positive(t, raw.Dropped())
	assert.Positive(t, window.Dropped())
}
