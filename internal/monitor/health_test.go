package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthyWhenAllConnected(t *testing.T) {
	tr := NewTracker()
	tr.RegisterAdapter("binance")
	tr.RegisterAdapter("bybit")
	tr.SetConnected("binance", true)
	tr.SetConnected("bybit", true)

	h := tr.Snapshot()
	assert.Equal(t, "healthy", h.Status)
	assert.Len(t, h.Adapters, 2)
}

func TestDegradedWhenAdapterDown(t *testing.T) {
	tr := NewTracker()
	tr.RegisterAdapter("binance")
	tr.SetConnected("binance", true)
	tr.RegisterAdapter("bybit")

	h := tr.Snapshot()
	assert.Equal(t, "degraded", h.Status, "registered but never connected counts as down")
}

func TestReconnectCounting(t *testing.T) {
	tr := NewTracker()
	tr.SetConnected("binance", true)
	tr.SetConnected("binance", false)
	tr.SetConnected("binance", true)
	tr.SetConnected("binance", false)

	h := tr.Snapshot()
	require.Len(t, h.Adapters, 1)
	assert.Equal(t, int64(2), h.Adapters[0].Reconnects)
	assert.False(t, h.Adapters[0].Connected)
}

func TestDropCounters(t *testing.T) {
	tr := NewTracker()
	var drops int64 = 7
	tr.RegisterDropCounter("raw", func() int64 { return drops })

	h := tr.Snapshot()
	assert.Equal(t, int64(7), h.Drops["raw"])

	drops = 9
	assert.Equal(t, int64(9), tr.Snapshot().Drops["raw"])
}
