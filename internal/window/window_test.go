package window

import (
	"testing"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(ts time.Time, bid1, bid2 string) types.SpreadPoint {
	b1 := decimal.RequireFromString(bid1)
	b2 := decimal.RequireFromString(bid2)
	return types.SpreadPoint{
		Timestamp:     ts,
		Symbol:        "BTCUSDT",
		Exchange1:     "binance",
		Exchange2:     "bybit",
		Bid1:          b1,
		Bid2:          b2,
		SpreadPercent: types.CrossSpreadPercent(b1, b2),
	}
}

func TestWindowSlidesByTime(t *testing.T) {
	w := newWindow("binance", "bybit", "BTCUSDT", 5*time.Minute, 5000)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	w.Append(point(base, "100", "100"))
	w.Append(point(base.Add(time.Minute), "100", "100"))
	w.Append(point(base.Add(6*time.Minute), "100", "100"))

	// The first point is more than 5m older than the newest.
	assert.Equal(t, 2, w.Len())

	start, end := w.Bounds()
	assert.Equal(t, base.Add(6*time.Minute), end)
	assert.Equal(t, base.Add(time.Minute), start)
}

func TestWindowHardCap(t *testing.T) {
	w := newWindow("binance", "bybit", "BTCUSDT", time.Hour, 3)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.Append(point(base.Add(time.Duration(i)*time.Second), "100", "100"))
	}

	require.Equal(t, 3, w.Len())
	points := w.Snapshot()
	assert.Equal(t, base.Add(2*time.Second), points[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Second), points[2].Timestamp)
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	w := newWindow("binance", "bybit", "BTCUSDT", time.Hour, 100)
	base := time.Now()

	w.Append(point(base, "100", "100"))
	snap := w.Snapshot()
	w.Append(point(base.Add(time.Second), "101", "100"))

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, w.Len())
}

func TestWindowKey(t *testing.T) {
	w := newWindow("binance", "bybit", "BTCUSDT", time.Minute, 10)
	assert.Equal(t, "binance_bybit_BTCUSDT", w.Key())
}
