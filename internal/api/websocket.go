package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"waypoint/internal/clock"
	"waypoint/internal/models"
	"waypoint/internal/risk"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event types sent to websocket clients
const (
	EventProposed       = "proposed"
	EventTransition     = "transition"
	EventProposalFailed = "proposal_failed"
	EventExecution      = "execution"
	EventTick           = "tick"
)

// Event is one message on the live feed.
type Event struct {
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Tick      int64               `json:"tick,omitempty"`
	Action    *models.Action      `json:"action,omitempty"`
	From      models.ActionStatus `json:"from,omitempty"`
	Risk      *risk.Decision      `json:"risk,omitempty"`
	AgentID   string              `json:"agent_id,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	ElapsedMS int64               `json:"elapsed_ms,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Hub fans lifecycle and tick events out to websocket clients. Slow
// clients lose messages rather than stall the orchestrator.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	logger  *slog.Logger
}

// wsClient maintains the WebSocket connection with one client
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*wsClient]struct{}), logger: logger}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every client.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket buffer full, dropping message", "type", ev.Type)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeWS handles WebSocket connections
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the client going away; the feed is one-way.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket error", "error", err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ActionProposed implements the orchestrator observer.
func (h *Hub) ActionProposed(a *models.Action, d risk.Decision) {
	h.Broadcast(Event{Type: EventProposed, Tick: a.Tick, Action: a, Risk: &d, AgentID: a.AgentID})
}

// ActionTransitioned implements the orchestrator observer.
func (h *Hub) ActionTransitioned(a *models.Action, from models.ActionStatus) {
	h.Broadcast(Event{Type: EventTransition, Tick: a.Tick, Action: a, From: from, AgentID: a.AgentID})
}

// ProposalFailed implements the orchestrator observer.
func (h *Hub) ProposalFailed(agent models.Agent, reason string) {
	h.Broadcast(Event{Type: EventProposalFailed, AgentID: agent.AgentID, Reason: reason})
}

// ExecutionFinished implements the orchestrator observer.
func (h *Hub) ExecutionFinished(a *models.Action, elapsed time.Duration) {
	h.Broadcast(Event{Type: EventExecution, Tick: a.Tick, Action: a, AgentID: a.AgentID, ElapsedMS: elapsed.Milliseconds()})
}

// RecordTick is a clock tick hook.
func (h *Hub) RecordTick(res clock.TickResult) {
	ev := Event{Type: EventTick, Tick: res.Tick, ElapsedMS: res.Duration.Milliseconds()}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	h.Broadcast(ev)
}
