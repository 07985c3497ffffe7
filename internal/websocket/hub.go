package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bingo-rooms/internal/service"
)

// Message types handled in addition to the engine notifications
const (
	MessageTypeCreateRoom = "create_room"
	MessageTypeJoinRoom   = "join_room"
	MessageTypeStartGame  = "start_game"
	MessageTypeDrawNumber = "draw_number"
	MessageTypeMarkNumber = "mark_number"
	MessageTypeBingoClaim = "bingo_claim"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	RoomCode  string      `json:"roomCode,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks connections and the room each one belongs to, and fans engine
// outcomes out to them. Outcomes are fanned out from a single queue in the
// order the engine committed them, and room membership follows that order.
type Hub struct {
	// Connections by room code
	rooms map[string]map[*Client]bool

	// Room code of each connection that joined one
	memberOf map[*Client]string

	// All connected clients by connection id
	allClients map[string]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outcomes waiting to be fanned out
	broadcast chan *service.Outcome

	mu sync.RWMutex

	engine   *service.Engine
	autoDraw *service.AutoDrawer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(engine *service.Engine, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		memberOf:   make(map[*Client]string),
		allClients: make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *service.Outcome, 256),
		engine:     engine,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetAutoDrawer enables interval draws for rooms in auto mode
func (h *Hub) SetAutoDrawer(a *service.AutoDrawer) {
	h.autoDraw = a
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client.id] = client
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case out := <-h.broadcast:
			h.fanout(out)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// Deliver queues an outcome for fan-out. The engine calls it while holding
// the room's lane. It blocks only while the queue is full and returns
// immediately once the hub is stopped.
func (h *Hub) Deliver(out *service.Outcome) {
	select {
	case h.broadcast <- out:
	case <-h.ctx.Done():
	}
}

// removeClient drops the connection so no further outcome reaches it
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client.id]; !ok {
		return
	}
	delete(h.allClients, client.id)
	h.detachLocked(client)
	close(client.send)
}

// attachLocked records that client now belongs to the room
func (h *Hub) attachLocked(client *Client, code string) {
	h.detachLocked(client)
	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[*Client]bool)
	}
	h.rooms[code][client] = true
	h.memberOf[client] = code
}

func (h *Hub) detachLocked(client *Client) string {
	code, ok := h.memberOf[client]
	if !ok {
		return ""
	}
	delete(h.memberOf, client)
	if clients, ok := h.rooms[code]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, code)
		}
	}
	return code
}

// fanout sends every notification of an outcome to its audience
func (h *Hub) fanout(out *service.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if out.Joined {
		if client, ok := h.allClients[out.ActorID]; ok {
			h.attachLocked(client, out.RoomCode)
		}
	}

	for _, n := range out.Notifications {
		data, err := json.Marshal(Message{
			Type:      n.Type,
			RoomCode:  out.RoomCode,
			Data:      n.Data,
			Timestamp: time.Now(),
		})
		if err != nil {
			h.logger.Error("failed to marshal message", "error", err)
			continue
		}

		switch n.Audience {
		case service.ToActor:
			if client, ok := h.allClients[out.ActorID]; ok {
				h.trySend(client, data)
			}
		case service.ToRoom, service.ToOthers:
			for client := range h.rooms[out.RoomCode] {
				if n.Audience == service.ToOthers && client.id == out.ActorID {
					continue
				}
				h.trySend(client, data)
			}
		}
	}

	if out.Closed {
		for client := range h.rooms[out.RoomCode] {
			delete(h.memberOf, client)
		}
		delete(h.rooms, out.RoomCode)
	}
}

func (h *Hub) trySend(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		// Client's buffer is full, skip
		h.logger.Warn("client buffer full, skipping", "client_id", client.id)
	}
}

// Register adds a client to the hub. It reports false once the hub is
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub and runs the engine's disconnect
// recovery for the room it was in. The recovery outcome is queued behind
// every outcome the room committed before it.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		return
	}

	if client.room == "" {
		return
	}
	if _, err := h.engine.Disconnect(client.room, client.id); err != nil {
		h.logger.Warn("disconnect recovery failed", "room_code", client.room, "client_id", client.id, "error", err)
	}
}

// GetRoomConnections returns the number of connections in a room
func (h *Hub) GetRoomConnections(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
