package storage

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func testTick(exchange, symbol string) types.Tick {
	return types.Tick{
		Exchange:       exchange,
		Symbol:         symbol,
		BestBid:        decimal.RequireFromString("100.10"),
		BestAsk:        decimal.RequireFromString("100.20"),
		LocalTimestamp: time.Now().UTC(),
	}
}

func TestWriteTickJSONL(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, Compress: false}, testLog())
	require.NoError(t, err)

	w.WriteTick(testTick("binance", "BTCUSDT"))
	w.WriteTick(testTick("binance", "ETHUSDT"))
	w.CloseAll()

	files, err := filepath.Glob(filepath.Join(dir, "binance", "ticks_*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var tick types.Tick
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &tick))
		symbols = append(symbols, tick.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
}

func TestWriteTickSplitsByExchange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, Compress: false}, testLog())
	require.NoError(t, err)

	w.WriteTick(testTick("binance", "BTCUSDT"))
	w.WriteTick(testTick("bybit", "BTCUSDT"))
	w.CloseAll()

	for _, exchange := range []string{"binance", "bybit"} {
		files, err := filepath.Glob(filepath.Join(dir, exchange, "ticks_*.jsonl"))
		require.NoError(t, err)
		assert.Len(t, files, 1, "exchange %s", exchange)
	}
}

func TestFlushAllMakesDataVisible(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, Compress: false}, testLog())
	require.NoError(t, err)
	defer w.CloseAll()

	w.WriteTick(testTick("binance", "BTCUSDT"))
	w.FlushAll()

	files, err := filepath.Glob(filepath.Join(dir, "binance", "ticks_*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "BTCUSDT")
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, RotateInterval: time.Nanosecond, Compress: false}, testLog())
	require.NoError(t, err)

	w.WriteTick(testTick("binance", "BTCUSDT"))
	time.Sleep(5 * time.Millisecond)
	w.WriteTick(testTick("binance", "ETHUSDT"))
	w.CloseAll()

	files, err := filepath.Glob(filepath.Join(dir, "binance", "ticks_*.jsonl"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2, "rotation should open a new file")
}
