// Package server wires the HTTP and WebSocket surfaces onto one listener.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/monitor"
	"github.com/Gogi213/arb1-sub000/internal/window"
	"github.com/Gogi213/arb1-sub000/internal/ws"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes /health, /ping, the dashboard NDJSON endpoint and the three
// WebSocket endpoints.
type Server struct {
	httpServer *http.Server
	engine     *window.Engine
	tracker    *monitor.Tracker
	log        *logrus.Entry
}

// New assembles the router. realtimeHub and signalsHub own their broadcast
// surfaces; chartServer owns the targeted chart stream.
func New(addr string, engine *window.Engine, tracker *monitor.Tracker,
	realtimeHub, signalsHub *ws.Hub, chartServer *ws.ChartServer, log *logrus.Entry) *Server {

	s := &Server{
		engine:  engine,
		tracker: tracker,
		log:     log.WithField("component", "server"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard_data", s.handleDashboardData).Methods(http.MethodGet)
	r.HandleFunc("/ws/realtime", realtimeHub.Handler())
	r.HandleFunc("/ws/signals", signalsHub.Handler())
	r.HandleFunc("/ws/realtime_charts", chartServer.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": types.EpochSeconds(time.Now()),
	})
}

// handleDashboardData streams historical chart frames as NDJSON: one JSON
// object per line, ending with an empty line.
func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := types.NormalizeSymbol(q.Get("symbol"))
	ex1 := q.Get("exchange1")
	ex2 := q.Get("exchange2")
	if symbol == "" || ex1 == "" || ex2 == "" || ex1 == ex2 {
		http.Error(w, "symbol, exchange1 and exchange2 query parameters are required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if frame, ok := s.engine.ChartFrame(ex1, ex2, symbol, time.Now()); ok {
		if err := enc.Encode(frame); err != nil {
			s.log.WithError(err).Debug("dashboard stream aborted")
			return
		}
	}
	// Empty terminator line.
	w.Write([]byte("\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
