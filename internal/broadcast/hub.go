// Package broadcast implements the live subscriber fan-out: a registry
// of WebSocket clients, heartbeat liveness, and non-blocking,
// back-pressure-aware sends that disconnect a client rather than block
// the hub on a slow reader.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
)

// FrameType names the closed set of outbound frame shapes.
type FrameType string

const (
	FrameConnection       FrameType = "connection"
	FrameNewTransaction   FrameType = "new_transaction"
	FrameStatsUpdate      FrameType = "stats_update"
	FrameConnectionStatus FrameType = "connection_status"
	FrameError            FrameType = "error"
	FrameSubscribed       FrameType = "subscribed"
	FrameUnsubscribed     FrameType = "unsubscribed"
	FrameDisconnected     FrameType = "disconnected"
)

// Frame is the wire envelope every outbound message shares.
type Frame struct {
	Type      FrameType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

const maxConsecutiveSendFailures = 3

// client is one connected WebSocket subscriber.
type client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	fails    int32
	hub      *Hub
	closed   atomic.Bool
}

// Hub owns the subscriber registry and fan-out.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	pingInterval time.Duration
	sendBuffer   int
	maxClients   int
	log          *logging.Logger

	sent, dropped int64
}

// Config configures the Hub.
type Config struct {
	PingInterval time.Duration
	SendBuffer   int
	MaxClients   int
}

// New builds a Hub.
func New(cfg Config, log *logging.Logger) *Hub {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:      make(map[string]*client),
		pingInterval: cfg.PingInterval,
		sendBuffer:   cfg.SendBuffer,
		maxClients:   cfg.MaxClients,
		log:          log.WithComponent("broadcast-hub"),
	}
}

// ClientCount returns the number of currently connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket connection and
// registers the resulting client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := h.maxClients > 0 && len(h.clients) >= h.maxClients
	h.mu.RUnlock()
	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c.id] = c
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.sendToClient(c, Frame{
		Type: FrameConnection,
		Data: map[string]interface{}{
			"status":     "connected",
			"clientId":   c.id,
			"serverTime": time.Now().UTC(),
			"stats":      map[string]interface{}{"connectedClients": clientCount},
		},
		Timestamp: time.Now().UTC(),
	})

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast serializes frame once and fans it out to every connected
// client, disconnecting any client whose send buffer stays full across
// maxConsecutiveSendFailures attempts.
func (h *Hub) Broadcast(frame Frame) {
	frame.Timestamp = time.Now().UTC()
	raw, err := json.Marshal(frame)
	if err != nil {
		h.log.WithError(err).Error("marshal broadcast frame")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- raw:
			atomic.StoreInt32(&c.fails, 0)
			atomic.AddInt64(&h.sent, 1)
		default:
			atomic.AddInt64(&h.dropped, 1)
			if atomic.AddInt32(&c.fails, 1) >= maxConsecutiveSendFailures {
				h.log.WithFields(map[string]interface{}{"client": c.id}).Warn("disconnecting slow subscriber")
				h.removeClient(c)
			}
		}
	}
}

func (h *Hub) sendToClient(c *client, frame Frame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (h *Hub) removeClient(c *client) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.send)
	c.conn.Close()
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.removeClient(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(4096)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleInboundFrame(c, msg)
	}
}

func (h *Hub) handleInboundFrame(c *client, msg []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(msg, &envelope) != nil {
		return
	}
	switch envelope.Type {
	case "ping", "heartbeat":
		h.sendToClient(c, Frame{Type: "pong", Data: nil, Timestamp: time.Now().UTC()})
	case "subscribe":
		// Acknowledged but does not change delivery: every client
		// already receives every frame the hub broadcasts.
		h.sendToClient(c, Frame{Type: FrameSubscribed, Data: nil, Timestamp: time.Now().UTC()})
	case "unsubscribe":
		h.sendToClient(c, Frame{Type: FrameUnsubscribed, Data: nil, Timestamp: time.Now().UTC()})
	}
}

// BroadcastStats returns cumulative send/drop counters, for metrics.
func (h *Hub) BroadcastStats() (sent, dropped int64) {
	return atomic.LoadInt64(&h.sent), atomic.LoadInt64(&h.dropped)
}

// Close notifies every subscriber that the server is shutting down,
// then disconnects each with an explicit WebSocket close code so
// clients can distinguish a clean shutdown from a dropped connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	frame := Frame{
		Type:      FrameDisconnected,
		Data:      map[string]interface{}{"reason": "server shutting down"},
		Timestamp: time.Now().UTC(),
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		h.log.WithError(err).Error("marshal disconnect frame")
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		if err == nil {
			c.conn.WriteMessage(websocket.TextMessage, raw)
		}
		c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		h.removeClient(c)
	}
}
