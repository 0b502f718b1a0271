package signals

import (
	"io"
	"testing"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/window"
	"github.com/Gogi213/arb1-sub000/pkg/types"
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

func testConfig() Config {
	return Config{
		EntryThresholdPct: decimal.RequireFromString("0.35"),
		ExitThresholdPct:  decimal.RequireFromString("0.05"),
		Cooldown:          10 * time.Second,
	}
}

func spreadAt(ts time.Time, spread string) types.SpreadPoint {
	return types.SpreadPoint{
		Timestamp:     ts,
		Symbol:        "BTCUSDT",
		Exchange1:     "binance",
		Exchange2:     "bybit",
		SpreadPercent: decimal.RequireFromString(spread),
	}
}

func TestEntryThenExit(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	d.OnSpreadPoint(spreadAt(base, "0.10"))
	require.Empty(t, got, "below entry threshold")

	d.OnSpreadPoint(spreadAt(base.Add(time.Second), "0.40"))
	require.Len(t, got, 1)
	assert.Equal(t, types.SignalEntry, got[0].Kind)
	assert.Equal(t, types.DirectionUp, got[0].Direction)
	assert.Equal(t, "binance", got[0].CheapExchange)
	assert.Equal(t, "bybit", got[0].ExpensiveExchange)
	assert.Equal(t, 1, d.ActiveCount())

	// Already active: further exceedances emit nothing.
	d.OnSpreadPoint(spreadAt(base.Add(2*time.Second), "0.50"))
	require.Len(t, got, 1)

	d.OnSpreadPoint(spreadAt(base.Add(3*time.Second), "0.04"))
	require.Len(t, got, 2)
	assert.Equal(t, types.SignalExit, got[1].Kind)
	assert.Equal(t, 0, d.ActiveCount())
}

func TestThresholdBoundariesInclusive(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	base := time.Now()

	d.OnSpreadPoint(spreadAt(base, "0.35"))
	require.Len(t, got, 1, "spread equal to the entry threshold fires")

	d.OnSpreadPoint(spreadAt(base.Add(time.Second), "0.05"))
	require.Len(t, got, 2, "spread equal to the exit threshold fires")
}

func TestCooldownGatesEntriesOnly(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	d.OnSpreadPoint(spreadAt(base, "0.40"))
	d.OnSpreadPoint(spreadAt(base.Add(time.Second), "0.01"))
	require.Len(t, got, 2, "exit is never gated by cooldown")

	// Re-entry two seconds after the exit is still inside the entry cooldown.
	d.OnSpreadPoint(spreadAt(base.Add(3*time.Second), "0.40"))
	require.Len(t, got, 2)
	assert.Equal(t, 0, d.ActiveCount())

	d.OnSpreadPoint(spreadAt(base.Add(12*time.Second), "0.40"))
	require.Len(t, got, 3)
	assert.Equal(t, types.SignalEntry, got[2].Kind)
}

func TestConvergenceWhileInactiveEmitsNothing(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// A divergence/convergence cycle, then a second cycle inside the entry
	// cooldown, then a divergence right at the cooldown boundary.
	d.OnSpreadPoint(spreadAt(base, "0.40"))
	d.OnSpreadPoint(spreadAt(base.Add(1*time.Second), "0.02"))
	d.OnSpreadPoint(spreadAt(base.Add(5*time.Second), "0.40"))
	d.OnSpreadPoint(spreadAt(base.Add(6*time.Second), "0.02"))
	d.OnSpreadPoint(spreadAt(base.Add(11*time.Second), "0.40"))

	// The suppressed entry at 5s leaves no active state, so the convergence
	// at 6s has nothing to close and must not emit an exit.
	require.Len(t, got, 3)
	assert.Equal(t, types.SignalEntry, got[0].Kind)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, types.SignalExit, got[1].Kind)
	assert.Equal(t, base.Add(1*time.Second), got[1].Timestamp)
	assert.Equal(t, types.SignalEntry, got[2].Kind)
	assert.Equal(t, base.Add(11*time.Second), got[2].Timestamp)
	assert.Equal(t, 1, d.ActiveCount())
}

func TestNegativeSpreadDirection(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })

	d.OnSpreadPoint(spreadAt(time.Now(), "-0.40"))
	require.Len(t, got, 1)
	assert.Equal(t, types.DirectionDown, got[0].Direction)
	assert.Equal(t, "bybit", got[0].CheapExchange)
	assert.Equal(t, "binance", got[0].ExpensiveExchange)
	assert.True(t, got[0].Deviation.Equal(decimal.RequireFromString("-0.40")))
}

func TestTriplesAreIndependent(t *testing.T) {
	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	base := time.Now()

	btc := spreadAt(base, "0.40")
	eth := spreadAt(base, "0.40")
	eth.Symbol = "ETHUSDT"

	d.OnSpreadPoint(btc)
	d.OnSpreadPoint(eth)
	require.Len(t, got, 2)
	assert.Equal(t, 2, d.ActiveCount())
}

func TestExecutorPanicDoesNotBlockPublish(t *testing.T) {
	var published []types.Signal
	executor := func(types.Signal) { panic("executor down") }
	d := New(testConfig(), testLog(), executor, func(sig types.Signal) { published = append(published, sig) })

	d.OnSpreadPoint(spreadAt(time.Now(), "0.40"))
	require.Len(t, published, 1)
	assert.Equal(t, 1, d.ActiveCount())
}

func TestAttachWatchesNewWindows(t *testing.T) {
	engine := window.New(window.Config{}, testLog())

	var got []types.Signal
	d := New(testConfig(), testLog(), nil, func(sig types.Signal) { got = append(got, sig) })
	d.Attach(engine)

	base := time.Now()
	engine.ProcessTick(types.Tick{
		Exchange: "binance", Symbol: "BTCUSDT",
		BestBid: decimal.RequireFromString("100.00"), BestAsk: decimal.RequireFromString("100.02"),
		LocalTimestamp: base,
	})
	engine.ProcessTick(types.Tick{
		Exchange: "bybit", Symbol: "BTCUSDT",
		BestBid: decimal.RequireFromString("100.50"), BestAsk: decimal.RequireFromString("100.52"),
		LocalTimestamp: base.Add(time.Millisecond),
	})

	// Spread is about -0.4975%, beyond the entry threshold.
	require.Len(t, got, 1)
	assert.Equal(t, types.SignalEntry, got[0].Kind)
	assert.Equal(t, types.DirectionDown, got[0].Direction)
}
