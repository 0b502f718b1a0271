// Package ws implements the WebSocket surfaces: the realtime tick broadcast,
// the signal stream and the targeted per-window chart stream. A slow or dead
// socket only ever costs itself; it is evicted without blocking the rest.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultQueueSize = 256

	// Broken connections must be detected within 30s.
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains one set of connected clients and broadcasts serialized
// payloads to all of them. Sends are per-client and non-blocking: the hub
// snapshots the client set, then enqueues to each client's own buffered
// queue; a client whose queue is full is evicted on the spot.
type Hub struct {
	name        string
	log         *logrus.Entry
	sendTimeout time.Duration
	queueSize   int

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. queueSize <= 0 selects the default per-client queue.
func NewHub(name string, sendTimeout time.Duration, queueSize int, log *logrus.Entry) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		name:        name,
		log:         log.WithField("hub", name),
		sendTimeout: sendTimeout,
		queueSize:   queueSize,
		clients:     make(map[*Client]struct{}),
	}
}

// Broadcast enqueues payload to every connected client. The client set is
// snapshotted under the lock; sends happen outside it.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.TrySend(payload) {
			h.log.WithField("remote", c.RemoteAddr()).Warn("client send queue full, evicting")
			c.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades an HTTP request and attaches the socket to the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		h.Attach(conn, nil)
	}
}

// Attach wraps an accepted connection in a Client and starts its pumps.
// onClose, if not nil, runs once when the client disconnects.
func (h *Hub) Attach(conn *websocket.Conn, onClose func(*Client)) *Client {
	c := newClient(conn, h.sendTimeout, h.queueSize, h.log)
	c.onClose = func(closed *Client) {
		h.remove(closed)
		if onClose != nil {
			onClose(closed)
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.start()
	return c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// CloseAll disconnects every client, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		c.Close()
	}
}
