// Package config loads and validates the process configuration. Errors here
// are fatal: the process must exit non-zero before accepting any traffic.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ExchangeConfig controls one exchange adapter.
type ExchangeConfig struct {
	Enabled      bool
	TestNet      bool
	MinUSDVolume decimal.Decimal
	MaxUSDVolume decimal.Decimal
}

// StreamsConfig selects which market-data streams are subscribed.
type StreamsConfig struct {
	Tickers bool
	Trades  bool
}

// ChannelsConfig sizes the two bounded pipeline queues.
type ChannelsConfig struct {
	RawCapacity    int
	WindowCapacity int
}

// WindowConfig bounds the rolling-window engine.
type WindowConfig struct {
	Size           time.Duration
	HardCapPoints  int
	MaxWindows     int
	MaxLatestTicks int
}

// SignalsConfig parameterizes the threshold detector.
type SignalsConfig struct {
	EntryThresholdPct decimal.Decimal
	ExitThresholdPct  decimal.Decimal
	Cooldown          time.Duration
}

// ChartConfig parameterizes chart-frame computation.
type ChartConfig struct {
	RecentWindow   time.Duration
	QuantileWindow int
	UpperQuantile  float64
	LowerQuantile  float64
}

// WSConfig bounds WebSocket delivery.
type WSConfig struct {
	PerSendTimeout time.Duration
}

// NATSConfig controls the optional external bus.
type NATSConfig struct {
	Enabled bool
	URL     string
}

// StorageConfig controls the raw-tick persistence consumer.
type StorageConfig struct {
	Enabled        bool
	Dir            string
	RotateInterval time.Duration
	Compress       bool
}

// Config is the full validated process configuration.
type Config struct {
	LogLevel   string
	ServerAddr string
	Exchanges  map[string]ExchangeConfig
	Streams    StreamsConfig
	Channels   ChannelsConfig
	Window     WindowConfig
	Signals    SignalsConfig
	Chart      ChartConfig
	WS         WSConfig
	NATS       NATSConfig
	Storage    StorageConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("streams.tickers", true)
	v.SetDefault("streams.trades", false)
	v.SetDefault("channels.raw.capacity", 100000)
	v.SetDefault("channels.window.capacity", 100000)
	v.SetDefault("window.size", "5m")
	v.SetDefault("window.hard_cap_points", 5000)
	v.SetDefault("window.max_windows", 10000)
	v.SetDefault("window.max_latest_ticks", 50000)
	v.SetDefault("signals.entry_threshold_pct", "0.35")
	v.SetDefault("signals.exit_threshold_pct", "0.05")
	v.SetDefault("signals.cooldown", "10s")
	v.SetDefault("chart.recent_window", "15m")
	v.SetDefault("chart.quantile_window", 200)
	v.SetDefault("chart.upper_quantile", 0.97)
	v.SetDefault("chart.lower_quantile", 0.03)
	v.SetDefault("ws.per_send_timeout", "250ms")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.dir", "data/ticks")
	v.SetDefault("storage.rotate_interval", "1h")
	v.SetDefault("storage.compress", true)
}

// Load reads configuration from the given file (optional) plus ARB_*
// environment overrides and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:   v.GetString("log.level"),
		ServerAddr: v.GetString("server.addr"),
		Exchanges:  make(map[string]ExchangeConfig),
		Streams: StreamsConfig{
			Tickers: v.GetBool("streams.tickers"),
			Trades:  v.GetBool("streams.trades"),
		},
		Channels: ChannelsConfig{
			RawCapacity:    v.GetInt("channels.raw.capacity"),
			WindowCapacity: v.GetInt("channels.window.capacity"),
		},
		Window: WindowConfig{
			Size:           v.GetDuration("window.size"),
			HardCapPoints:  v.GetInt("window.hard_cap_points"),
			MaxWindows:     v.GetInt("window.max_windows"),
			MaxLatestTicks: v.GetInt("window.max_latest_ticks"),
		},
		Signals: SignalsConfig{
			Cooldown: v.GetDuration("signals.cooldown"),
		},
		Chart: ChartConfig{
			RecentWindow:   v.GetDuration("chart.recent_window"),
			QuantileWindow: v.GetInt("chart.quantile_window"),
			UpperQuantile:  v.GetFloat64("chart.upper_quantile"),
			LowerQuantile:  v.GetFloat64("chart.lower_quantile"),
		},
		WS: WSConfig{
			PerSendTimeout: v.GetDuration("ws.per_send_timeout"),
		},
		NATS: NATSConfig{
			Enabled: v.GetBool("nats.enabled"),
			URL:     v.GetString("nats.url"),
		},
		Storage: StorageConfig{
			Enabled:        v.GetBool("storage.enabled"),
			Dir:            v.GetString("storage.dir"),
			RotateInterval: v.GetDuration("storage.rotate_interval"),
			Compress:       v.GetBool("storage.compress"),
		},
	}

	var err error
	cfg.Signals.EntryThresholdPct, err = parseDecimal(v, "signals.entry_threshold_pct")
	if err != nil {
		return nil, err
	}
	cfg.Signals.ExitThresholdPct, err = parseDecimal(v, "signals.exit_threshold_pct")
	if err != nil {
		return nil, err
	}

	for name := range v.GetStringMap("exchanges") {
		prefix := "exchanges." + name
		exCfg := ExchangeConfig{
			Enabled: v.GetBool(prefix + ".enabled"),
			TestNet: v.GetBool(prefix + ".testnet"),
		}
		exCfg.MinUSDVolume, err = parseDecimal(v, prefix+".min_usd_volume")
		if err != nil {
			return nil, err
		}
		exCfg.MaxUSDVolume, err = parseDecimal(v, prefix+".max_usd_volume")
		if err != nil {
			return nil, err
		}
		cfg.Exchanges[name] = exCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := v.GetString(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q", key, raw)
	}
	return d, nil
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	if c.Channels.RawCapacity <= 0 || c.Channels.WindowCapacity <= 0 {
		return fmt.Errorf("channel capacities must be positive")
	}
	if c.Window.Size <= 0 {
		return fmt.Errorf("window.size must be positive")
	}
	if c.Window.HardCapPoints <= 0 || c.Window.MaxWindows <= 0 || c.Window.MaxLatestTicks <= 0 {
		return fmt.Errorf("window bounds must be positive")
	}
	if !c.Signals.EntryThresholdPct.IsPositive() {
		return fmt.Errorf("signals.entry_threshold_pct must be positive")
	}
	if c.Signals.ExitThresholdPct.IsNegative() {
		return fmt.Errorf("signals.exit_threshold_pct must not be negative")
	}
	if c.Signals.ExitThresholdPct.GreaterThanOrEqual(c.Signals.EntryThresholdPct) {
		return fmt.Errorf("signals.exit_threshold_pct must be below the entry threshold")
	}
	if c.Signals.Cooldown < 0 {
		return fmt.Errorf("signals.cooldown must not be negative")
	}
	if c.Chart.QuantileWindow <= 0 {
		return fmt.Errorf("chart.quantile_window must be positive")
	}
	if c.Chart.UpperQuantile <= 0 || c.Chart.UpperQuantile > 1 ||
		c.Chart.LowerQuantile < 0 || c.Chart.LowerQuantile >= 1 {
		return fmt.Errorf("chart quantiles must lie in (0,1]")
	}
	if c.Chart.LowerQuantile >= c.Chart.UpperQuantile {
		return fmt.Errorf("chart.lower_quantile must be below chart.upper_quantile")
	}
	if c.WS.PerSendTimeout <= 0 {
		return fmt.Errorf("ws.per_send_timeout must be positive")
	}
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		if ex.MaxUSDVolume.IsPositive() && ex.MinUSDVolume.GreaterThan(ex.MaxUSDVolume) {
			return fmt.Errorf("exchanges.%s: min_usd_volume exceeds max_usd_volume", name)
		}
	}
	return nil
}

// EnabledExchanges returns the names of all enabled exchanges, for health
// reporting and adapter startup.
func (c *Config) EnabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, name)
		}
	}
	return names
}
