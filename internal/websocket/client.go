package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var errNoRoom = errors.New("you are not in a room")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client represents a WebSocket client connection. Its id doubles as the
// player id inside whatever room it joins.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// room is the code of the joined room; only the read pump touches it
	room   string
	logger *slog.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type       string `json:"type"`
	Username   string `json:"username,omitempty"`
	RoomCode   string `json:"roomCode,omitempty"`
	MaxPlayers *int   `json:"maxPlayers,omitempty"`
	ClaimType  string `json:"claimType,omitempty"`
	Number     int    `json:"number,omitempty"`
	IsMarked   bool   `json:"isMarked,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// readPump pumps messages from the WebSocket connection to the engine
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage runs one request against the engine. Successful outcomes
// reach the hub through the engine's deliverer.
func (c *Client) handleMessage(msg *ClientMessage) {
	engine := c.hub.engine
	code := c.room

	var (
		out *service.Outcome
		err error
	)

	switch msg.Type {
	case MessageTypePing:
		c.sendPong()
		return

	case MessageTypeCreateRoom, MessageTypeJoinRoom:
		if code != "" {
			c.reply(msg.Type, domain.ErrAlreadyInRoom)
			return
		}
		if msg.Type == MessageTypeCreateRoom {
			maxPlayers := engine.DefaultMaxPlayers()
			if msg.MaxPlayers != nil {
				maxPlayers = *msg.MaxPlayers
			}
			out, err = engine.CreateRoom(c.id, msg.Username, maxPlayers)
		} else {
			out, err = engine.JoinRoom(c.id, msg.Username, msg.RoomCode)
		}
		if err != nil {
			c.reply(msg.Type, err)
			return
		}
		c.room = out.RoomCode
		return
	}

	if code == "" {
		switch msg.Type {
		case MessageTypeStartGame, MessageTypeDrawNumber, MessageTypeMarkNumber, MessageTypeBingoClaim:
			c.sendError(errNoRoom.Error())
		default:
			c.rejectUnknown(msg.Type)
		}
		return
	}

	switch msg.Type {
	case MessageTypeStartGame:
		out, err = engine.StartGame(code, c.id)
	case MessageTypeDrawNumber:
		out, err = engine.DrawNumber(code, c.id)
	case MessageTypeMarkNumber:
		out, err = engine.MarkNumber(code, c.id, msg.Number, msg.IsMarked)
	case MessageTypeBingoClaim:
		out, err = engine.ValidateClaim(code, c.id, msg.ClaimType)
	default:
		c.rejectUnknown(msg.Type)
		return
	}
	if err != nil {
		c.reply(msg.Type, err)
		return
	}

	if out.StartAutoDraw && c.hub.autoDraw != nil {
		c.hub.autoDraw.Start(out.RoomCode)
	}
}

// reply relays a failed request to this connection only. Claim rejections
// are answered with a claim_result, everything else with an error frame.
func (c *Client) reply(msgType string, err error) {
	if !domain.IsRequestError(err) {
		c.logger.Error("request failed", "client_id", c.id, "type", msgType, "error", err)
		c.sendError(domain.ErrInternalError.Error())
		return
	}

	if msgType == MessageTypeBingoClaim &&
		(errors.Is(err, domain.ErrClaimRejected) || errors.Is(err, domain.ErrNotInProgress)) {
		c.sendMessage(Message{
			Type:      service.NotifyClaimResult,
			RoomCode:  c.room,
			Data:      service.ClaimResult{Valid: false, Message: err.Error()},
			Timestamp: time.Now(),
		})
		return
	}

	c.logger.Debug("request rejected", "client_id", c.id, "type", msgType, "error", err)
	c.sendError(err.Error())
}

func (c *Client) rejectUnknown(msgType string) {
	c.logger.Debug("unknown message type", "client_id", c.id, "type", msgType)
	c.sendError(domain.ErrInvalidRequest.Error())
}

// writePump pumps messages from the hub to the WebSocket connection
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message; clients decode each frame as a single JSON document
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

func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.sendMessage(Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": errMsg},
		Timestamp: time.Now(),
	})
}

// sendPong sends a pong response
func (c *Client) sendPong() {
	c.sendMessage(Message{
		Type:      MessageTypePong,
		Timestamp: time.Now(),
	})
}

// ServeWs handles WebSocket requests from peers
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	if !hub.Register(client) {
		logger.Warn("websocket hub stopped, closing connection")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
