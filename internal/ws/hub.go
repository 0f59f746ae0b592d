package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	filter Filter
	send   chan Message
	logger *zap.Logger
}

// Hub manages active WebSocket connections and fans telemetry out to the
// clients whose filter matches.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	connectedClients.Set(float64(n))
	h.logger.Debug("websocket client connected",
		zap.String("device_id", c.filter.DeviceID),
		zap.String("site_id", c.filter.SiteID),
	)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	connectedClients.Set(float64(n))
	h.logger.Debug("websocket client disconnected",
		zap.String("device_id", c.filter.DeviceID),
		zap.String("site_id", c.filter.SiteID),
	)
}

// Broadcast queues msg for every client whose filter matches. Slow clients
// lose the message rather than blocking the publisher. It returns the number
// of clients the message was queued for.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !c.filter.Matches(msg) {
			continue
		}
		select {
		case c.send <- msg:
			delivered++
		default:
			droppedMessages.Inc()
			h.logger.Warn("client send buffer full, dropping message",
				zap.String("device_id", msg.DeviceID),
				zap.String("site_id", msg.SiteID),
			)
		}
	}
	return delivered
}

// CloseAll unregisters every client, ending their write pumps.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	connectedClients.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump sends messages from the client's send channel to the WebSocket.
func (c *Client) writePump(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains the connection until the client goes away. Clients send
// nothing meaningful; reading keeps control frames flowing.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
