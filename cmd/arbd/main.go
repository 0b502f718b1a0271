// arbd is the cross-exchange spread aggregator daemon. It wires the exchange
// adapters, the hot-path orchestrator, the rolling-window engine, the signal
// detector, persistence and the HTTP/WebSocket surfaces, and tears them down
// in reverse order on a single cancellation signal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/config"
	"github.com/Gogi213/arb1-sub000/internal/exchange"
	"github.com/Gogi213/arb1-sub000/internal/exchange/binance"
	"github.com/Gogi213/arb1-sub000/internal/exchange/bybit"
	"github.com/Gogi213/arb1-sub000/internal/monitor"
	"github.com/Gogi213/arb1-sub000/internal/orchestrator"
	"github.com/Gogi213/arb1-sub000/internal/server"
	"github.com/Gogi213/arb1-sub000/internal/signals"
	"github.com/Gogi213/arb1-sub000/internal/storage"
	"github.com/Gogi213/arb1-sub000/internal/window"
	"github.com/Gogi213/arb1-sub000/internal/ws"
	"github.com/Gogi213/arb1-sub000/pkg/channel"
	"github.com/Gogi213/arb1-sub000/pkg/natsbus"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("configuration error")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.WithField("service", "arbd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := monitor.NewTracker()

	rawCh := channel.New[types.Tick]("raw", cfg.Channels.RawCapacity)
	windowCh := channel.New[types.Tick]("window", cfg.Channels.WindowCapacity)
	tracker.RegisterDropCounter("raw", rawCh.Dropped)
	tracker.RegisterDropCounter("window", windowCh.Dropped)

	engine := window.New(window.Config{
		Size:           cfg.Window.Size,
		HardCapPoints:  cfg.Window.HardCapPoints,
		MaxWindows:     cfg.Window.MaxWindows,
		MaxLatestTicks: cfg.Window.MaxLatestTicks,
		Chart: window.ChartParams{
			RecentWindow:   cfg.Chart.RecentWindow,
			QuantileWindow: cfg.Chart.QuantileWindow,
			UpperQuantile:  cfg.Chart.UpperQuantile,
			LowerQuantile:  cfg.Chart.LowerQuantile,
		},
	}, log)

	realtimeHub := ws.NewHub("realtime", cfg.WS.PerSendTimeout, 0, log)
	signalsHub := ws.NewHub("signals", cfg.WS.PerSendTimeout, 0, log)
	chartServer := ws.NewChartServer(engine, cfg.WS.PerSendTimeout, 0, log)

	var bus *natsbus.Bus
	if cfg.NATS.Enabled {
		bus, err = natsbus.Connect(cfg.NATS.URL, "arbd", log)
		if err != nil {
			log.WithError(err).Fatal("nats connection failed")
		}
		defer bus.Close()
	}

	detector := signals.New(signals.Config{
		EntryThresholdPct: cfg.Signals.EntryThresholdPct,
		ExitThresholdPct:  cfg.Signals.ExitThresholdPct,
		Cooldown:          cfg.Signals.Cooldown,
	}, log, nil, publishSignal(signalsHub, bus, log))
	detector.Attach(engine)

	if bus != nil {
		engine.OnWindowCreated(func(ex1, ex2, symbol string) {
			engine.Subscribe(ex1, ex2, symbol, bus.PublishSpread)
		})
	}

	go engine.Run(ctx, windowCh)

	var tickWriter *storage.Writer
	if cfg.Storage.Enabled {
		tickWriter, err = storage.NewWriter(storage.Config{
			Dir:            cfg.Storage.Dir,
			RotateInterval: cfg.Storage.RotateInterval,
			Compress:       cfg.Storage.Compress,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("storage init failed")
		}
		go tickWriter.Run(ctx, rawCh)
	}

	adapters := buildAdapters(cfg, tracker, log)
	if len(adapters) == 0 {
		log.Fatal("no exchanges enabled")
	}

	orch := orchestrator.New(cfg, adapters, rawCh, windowCh, realtimeHub, tracker, log)
	if cfg.Streams.Tickers {
		orch.Start(ctx)
	} else {
		log.Warn("ticker streams disabled by config")
	}

	srv := server.New(cfg.ServerAddr, engine, tracker, realtimeHub, signalsHub, chartServer, log)
	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}

	realtimeHub.CloseAll()
	signalsHub.CloseAll()
	chartServer.CloseAll()

	if tickWriter != nil {
		tickWriter.CloseAll()
	}
	log.Info("arbd stopped")
}

func buildAdapters(cfg *config.Config, tracker *monitor.Tracker, log *logrus.Entry) []exchange.Adapter {
	var adapters []exchange.Adapter
	for name, exCfg := range cfg.Exchanges {
		if !exCfg.Enabled {
			continue
		}
		switch name {
		case "binance":
			adapters = append(adapters, binance.New(exCfg.TestNet, tracker, log))
		case "bybit":
			adapters = append(adapters, bybit.New(exCfg.TestNet, tracker, log))
		default:
			log.WithField("exchange", name).Warn("unknown exchange in config, skipping")
		}
	}
	return adapters
}

// publishSignal fans a signal out to the signals WebSocket surface and, when
// configured, to NATS. Both paths are fire-and-forget.
func publishSignal(hub *ws.Hub, bus *natsbus.Bus, log *logrus.Entry) signals.Publisher {
	return func(sig types.Signal) {
		payload, err := json.Marshal(sig)
		if err != nil {
			log.WithError(err).Error("signal serialization failed")
		} else {
			hub.Broadcast(payload)
		}
		if bus != nil {
			bus.PublishSignal(sig)
		}
	}
}
