package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.True(t, cfg.Streams.Tickers)
	assert.False(t, cfg.Streams.Trades)
	assert.Equal(t, 100000, cfg.Channels.RawCapacity)
	assert.Equal(t, 100000, cfg.Channels.WindowCapacity)
	assert.Equal(t, 5*time.Minute, cfg.Window.Size)
	assert.Equal(t, 5000, cfg.Window.HardCapPoints)
	assert.Equal(t, 10000, cfg.Window.MaxWindows)
	assert.Equal(t, 50000, cfg.Window.MaxLatestTicks)
	assert.True(t, cfg.Signals.EntryThresholdPct.Equal(decimal.RequireFromString("0.35")))
	assert.True(t, cfg.Signals.ExitThresholdPct.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 10*time.Second, cfg.Signals.Cooldown)
	assert.Equal(t, 15*time.Minute, cfg.Chart.RecentWindow)
	assert.Equal(t, 200, cfg.Chart.QuantileWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.WS.PerSendTimeout)
	assert.False(t, cfg.NATS.Enabled)
	assert.True(t, cfg.Storage.Enabled)
	assert.Empty(t, cfg.Exchanges)
}

func TestLoadFromFile(t *testing.T) {
	raw := `
log:
  level: debug
server:
  addr: ":9090"
signals:
  entry_threshold_pct: "0.5"
  exit_threshold_pct: "0.1"
exchanges:
  binance:
    enabled: true
    min_usd_volume: "1000000"
    max_usd_volume: "500000000"
  bybit:
    enabled: true
    testnet: true
    min_usd_volume: "2000000"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.True(t, cfg.Signals.EntryThresholdPct.Equal(decimal.RequireFromString("0.5")))

	binance, ok := cfg.Exchanges["binance"]
	require.True(t, ok)
	assert.True(t, binance.Enabled)
	assert.False(t, binance.TestNet)
	assert.True(t, binance.MinUSDVolume.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, binance.MaxUSDVolume.Equal(decimal.NewFromInt(500000000)))

	bybit := cfg.Exchanges["bybit"]
	assert.True(t, bybit.TestNet)
	assert.True(t, bybit.MaxUSDVolume.IsZero())

	assert.ElementsMatch(t, []string{"binance", "bybit"}, cfg.EnabledExchanges())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidDecimal(t *testing.T) {
	raw := `
signals:
  entry_threshold_pct: "not-a-number"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid decimal")
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero raw capacity", func(c *Config) { c.Channels.RawCapacity = 0 }},
		{"zero window size", func(c *Config) { c.Window.Size = 0 }},
		{"zero hard cap", func(c *Config) { c.Window.HardCapPoints = 0 }},
		{"entry not positive", func(c *Config) { c.Signals.EntryThresholdPct = decimal.Zero }},
		{"exit above entry", func(c *Config) { c.Signals.ExitThresholdPct = decimal.NewFromInt(1) }},
		{"negative cooldown", func(c *Config) { c.Signals.Cooldown = -time.Second }},
		{"bad upper quantile", func(c *Config) { c.Chart.UpperQuantile = 1.5 }},
		{"quantiles inverted", func(c *Config) { c.Chart.LowerQuantile = 0.99 }},
		{"zero send timeout", func(c *Config) { c.WS.PerSendTimeout = 0 }},
		{"min above max volume", func(c *Config) {
			c.Exchanges = map[string]ExchangeConfig{"binance": {
				Enabled:      true,
				MinUSDVolume: decimal.NewFromInt(100),
				MaxUSDVolume: decimal.NewFromInt(10),
			}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
