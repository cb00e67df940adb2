package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	mu         sync.RWMutex
	logger     *slog.Logger

	droppedEvents atomic.Uint64
	droppedSlow   atomic.Uint64
}

// HubStats reports the dashboard hub's connection and back-pressure state,
// consumed by the health endpoint so an operator can tell a quiet hub from
// one that is silently losing kill/reject events to slow clients.
type HubStats struct {
	ClientCount   int    `json:"client_count"`
	DroppedEvents uint64 `json:"dropped_events"`
	DroppedSlow   uint64 `json:"dropped_slow_clients"`
}

// Stats returns a point-in-time snapshot of hub connection/back-pressure
// counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubStats{
		ClientCount:   n,
		DroppedEvents: h.droppedEvents.Load(),
		DroppedSlow:   h.droppedSlow.Load(),
	}
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		logger:     logger.With("component", "ws-hub"),
	}
}

// broadcastMsg pairs an event's marshaled bytes with whether it carries
// operator-actionable venue state (a kill or reject) as opposed to routine
// execution/status/snapshot traffic. Drops of critical events are logged
// louder, since a lost kill notification means an operator doesn't learn a
// venue was halted.
type broadcastMsg struct {
	data     []byte
	critical bool
}

// Run starts the hub's main loop (should be called in a goroutine)
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "count", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "count", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg.data:
				default:
					// Client can't keep up, close it.
					close(client.send)
					delete(h.clients, client)
					h.droppedSlow.Add(1)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent sends an engine event to all connected clients.
func (h *Hub) BroadcastEvent(evt EngineEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err, "event_type", evt.Type)
		return
	}

	msg := broadcastMsg{data: data, critical: evt.Type == "kill" || evt.Type == "reject"}

	select {
	case h.broadcast <- msg:
	default:
		h.droppedEvents.Add(1)
		if msg.critical {
			h.logger.Error("broadcast channel full, dropped critical event", "event_type", evt.Type, "venue", evt.Venue)
		} else {
			h.logger.Warn("broadcast channel full, dropping event", "event_type", evt.Type, "venue", evt.Venue)
		}
	}
}

// BroadcastSnapshot sends a full snapshot to all connected clients
func (h *Hub) BroadcastSnapshot(snapshot DashboardSnapshot) {
	evt := EngineEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      snapshot,
	}
	h.BroadcastEvent(evt)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		// Dashboard is read-only, ignore any client messages
	}
}

// NewClient creates a new WebSocket client and starts its pumps
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	// Start pumps
	go client.writePump()
	go client.readPump()

	return client
}
