package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/window"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

// ChartServer serves /ws/realtime_charts: each connection subscribes to one
// (ex1, ex2, symbol) window and receives a freshly computed chart frame on
// every append to that window.
type ChartServer struct {
	engine      *window.Engine
	hub         *Hub
	log         *logrus.Entry
	sendTimeout time.Duration
}

// NewChartServer creates the chart surface. The hub only tracks client
// lifecycle; charts are never broadcast.
func NewChartServer(engine *window.Engine, sendTimeout time.Duration, queueSize int, log *logrus.Entry) *ChartServer {
	return &ChartServer{
		engine:      engine,
		hub:         NewHub("charts", sendTimeout, queueSize, log),
		log:         log.WithField("component", "chart-server"),
		sendTimeout: sendTimeout,
	}
}

// ClientCount returns the number of chart subscribers.
func (s *ChartServer) ClientCount() int { return s.hub.ClientCount() }

// CloseAll disconnects all chart subscribers.
func (s *ChartServer) CloseAll() { s.hub.CloseAll() }

// Handler validates the query parameters, upgrades the socket and wires the
// window subscription. The subscription token is revoked on disconnect.
func (s *ChartServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		symbol := types.NormalizeSymbol(q.Get("symbol"))
		ex1 := q.Get("ex1")
		ex2 := q.Get("ex2")
		if symbol == "" || ex1 == "" || ex2 == "" || ex1 == ex2 {
			http.Error(w, "symbol, ex1 and ex2 query parameters are required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		var (
			mu     sync.Mutex
			sub    *window.Subscription
			closed bool
		)

		client := s.hub.Attach(conn, func(*Client) {
			mu.Lock()
			closed = true
			if sub != nil {
				s.engine.Unsubscribe(sub)
			}
			mu.Unlock()
		})

		push := func() {
			frame, ok := s.engine.ChartFrame(ex1, ex2, symbol, time.Now())
			if !ok {
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				s.log.WithError(err).Error("chart frame serialization failed")
				return
			}
			if !client.TrySend(payload) {
				client.Close()
			}
		}

		mu.Lock()
		if !closed {
			sub = s.engine.Subscribe(ex1, ex2, symbol, func(types.SpreadPoint) { push() })
		}
		mu.Unlock()

		// Initial frame so a reconnecting client does not wait for the next
		// tick to see data.
		push()
	}
}
