package binance

import (
	"io"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestTickFromEvent(t *testing.T) {
	a := New(false, nil, testLog())

	tick, ok := a.tickFromEvent(&binance.WsBookTickerEvent{
		Symbol:       "BTC_USDT",
		BestBidPrice: "65000.10",
		BestAskPrice: "65000.20",
	})
	require.True(t, ok)
	assert.Equal(t, "binance", tick.Exchange)
	assert.Equal(t, "BTCUSDT", tick.Symbol, "symbol is normalized")
	assert.True(t, tick.BestBid.Equal(decimal.RequireFromString("65000.10")))
	assert.True(t, tick.BestAsk.Equal(decimal.RequireFromString("65000.20")))
	assert.False(t, tick.LocalTimestamp.IsZero())
	assert.Nil(t, tick.ServerTimestamp, "bookTicker events carry no server time")
}

func TestTickFromEventRejectsBadPrices(t *testing.T) {
	a := New(false, nil, testLog())

	_, ok := a.tickFromEvent(&binance.WsBookTickerEvent{
		Symbol: "BTCUSDT", BestBidPrice: "not-a-price", BestAskPrice: "1",
	})
	assert.False(t, ok)

	_, ok = a.tickFromEvent(&binance.WsBookTickerEvent{
		Symbol: "BTCUSDT", BestBidPrice: "1", BestAskPrice: "",
	})
	assert.False(t, ok)
}

func TestParseFilterDecimal(t *testing.T) {
	filter := map[string]interface{}{
		"filterType": "PRICE_FILTER",
		"tickSize":   "0.01",
		"minPrice":   1.5, // numbers instead of strings are ignored
	}

	assert.True(t, parseFilterDecimal(filter, "tickSize").Equal(decimal.RequireFromString("0.01")))
	assert.True(t, parseFilterDecimal(filter, "minPrice").IsZero())
	assert.True(t, parseFilterDecimal(filter, "missing").IsZero())
}

func TestConnStateTransitions(t *testing.T) {
	tracker := &fakeListener{}
	a := New(false, tracker, testLog())

	a.connUp()
	a.connUp()
	require.Equal(t, []bool{true}, tracker.transitions, "only the first connection flips state")

	a.connDown()
	require.Equal(t, []bool{true}, tracker.transitions)

	a.connDown()
	assert.Equal(t, []bool{true, false}, tracker.transitions, "last connection down flips state back")
}

type fakeListener struct {
	transitions []bool
}

func (f *fakeListener) SetConnected(_ string, connected bool) {
	f.transitions = append(f.transitions, connected)
}
