package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client owns one WebSocket connection. All writes flow through a single
// writer goroutine fed by a bounded queue, which serializes message order
// per socket and bounds each write with the per-send timeout.
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	sendTimeout time.Duration
	log         *logrus.Entry

	onClose   func(*Client)
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, sendTimeout time.Duration, queueSize int, log *logrus.Entry) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, queueSize),
		sendTimeout: sendTimeout,
		log:         log,
		done:        make(chan struct{}),
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

// RemoteAddr identifies the peer for logs.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// TrySend enqueues a payload without blocking. False means the queue is
// full, i.e. the client cannot keep up.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return true // already closing; drop silently
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the connection down once; safe from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// writePump drains the send queue. Every write carries its own deadline; a
// write that exceeds it marks the socket dead.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump discards inbound frames and drives liveness detection: the read
// deadline is refreshed on every pong, so a silent peer is detected within
// pongWait.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
