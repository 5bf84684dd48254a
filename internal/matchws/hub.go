package matchws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/obslog"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// outbound is the wire envelope sent to clients.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub tracks live connections and delivers events to them. It implements room.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Notify queues an event for connID. Unknown connections are ignored; a connection whose
// queue is full is closed.
func (h *Hub) Notify(connID, event string, data any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		obslog.L().Debug("ws_notify_unknown_conn", zap.String("conn_id", connID), zap.String("event", event))
		return
	}
	if !c.enqueue(outbound{Event: event, Data: data}) {
		obslog.L().Warn("ws_slow_consumer", zap.String("conn_id", connID), zap.String("event", event))
		c.shutdown(websocket.StatusPolicyViolation, "send queue full")
	}
}

// Count is the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan outbound

	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan outbound, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *client) enqueue(msg outbound) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close(code, reason)
	})
}

// writeLoop is the only writer of the connection, so frames from concurrent Notify calls never interleave.
func (c *client) writeLoop(ctx context.Context, pingInterval time.Duration) {
	var tick <-chan time.Time
	if pingInterval > 0 {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.shutdown(websocket.StatusInternalError, "write failed")
				return
			}
		case <-tick:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_ping_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.shutdown(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
