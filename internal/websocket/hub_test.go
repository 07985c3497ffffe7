package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/registry"
	"github.com/bingo-rooms/internal/service"
)

type frame struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	Data     json.RawMessage `json:"data"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, cfg *config.GameConfig) *Hub {
	t.Helper()
	logger := testLogger()
	engine := service.NewEngine(registry.New(), cfg, logger)
	hub := NewHub(engine, logger)
	engine.SetDeliverer(hub)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := newTestHub(t, &config.DefaultConfig().Game)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, testLogger(), w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func capacity(n int) *int {
	return &n
}

// newQueueClient is a connection without a socket; its frames stay in send
func newQueueClient(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()
	c := &Client{id: id, hub: hub, send: make(chan []byte, 64), logger: testLogger()}
	require.True(t, hub.Register(c))
	return c
}

// readQueued collects a queued client's frames up to and including one of typ
func readQueued(t *testing.T, c *Client, typ string) []frame {
	t.Helper()
	var frames []frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for %s", typ)
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			frames = append(frames, f)
			if f.Type == typ {
				return frames
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// expect reads frames until one of the given type arrives
func expect(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func decode(t *testing.T, f frame, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v))
}

func TestGatewayPlaysThroughARoom(t *testing.T) {
	hub, srv := newTestServer(t)
	host := dial(t, srv)
	guest := dial(t, srv)

	send(t, host, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(4)})
	created := expect(t, host, service.NotifyRoomUpdate)
	var update struct {
		Status   string `json:"status"`
		RoomCode string `json:"roomCode"`
		IsHost   bool   `json:"isHost"`
		Board    [][]int
	}
	decode(t, created, &update)
	assert.Equal(t, "created", update.Status)
	assert.True(t, update.IsHost)
	assert.Len(t, update.Board, 7)
	code := created.RoomCode
	require.Len(t, code, 6)

	send(t, guest, ClientMessage{Type: MessageTypeJoinRoom, Username: "bob", RoomCode: strings.ToLower(code)})
	joined := expect(t, guest, service.NotifyRoomUpdate)
	decode(t, joined, &update)
	assert.Equal(t, "joined", update.Status)
	assert.False(t, update.IsHost)

	var pj service.PlayerJoined
	decode(t, expect(t, host, service.NotifyPlayerJoined), &pj)
	assert.Equal(t, "bob", pj.Player.Username)
	assert.Equal(t, 2, pj.CurrentPlayers)
	assert.Equal(t, 2, hub.GetRoomConnections(code))

	send(t, guest, ClientMessage{Type: MessageTypeStartGame})
	var errData map[string]string
	decode(t, expect(t, guest, MessageTypeError), &errData)
	assert.Equal(t, "only the host can start the game", errData["error"])

	send(t, host, ClientMessage{Type: MessageTypeStartGame})
	var started service.GameStarted
	decode(t, expect(t, host, service.NotifyGameStarted), &started)
	assert.Equal(t, "alice", started.CurrentTurnUsername)
	decode(t, expect(t, guest, service.NotifyGameStarted), &started)

	send(t, guest, ClientMessage{Type: MessageTypeDrawNumber})
	decode(t, expect(t, guest, MessageTypeError), &errData)
	assert.Equal(t, "it's not your turn to draw a number", errData["error"])

	send(t, host, ClientMessage{Type: MessageTypeDrawNumber})
	var drawn service.DrawResult
	decode(t, expect(t, guest, service.NotifyNumberDrawn), &drawn)
	assert.Equal(t, "bob", drawn.NextTurnUsername)
	assert.Len(t, drawn.DrawnNumbers, 1)
	decode(t, expect(t, host, service.NotifyNumberDrawn), &drawn)

	send(t, guest, ClientMessage{Type: MessageTypeMarkNumber, Number: drawn.Number, IsMarked: true})
	var marked service.NumberMarked
	decode(t, expect(t, host, service.NotifyNumberMarked), &marked)
	assert.Equal(t, "bob", marked.Username)
	assert.Equal(t, drawn.Number, marked.Number)

	send(t, guest, ClientMessage{Type: MessageTypeBingoClaim, ClaimType: "fullhouse"})
	var claim service.ClaimResult
	decode(t, expect(t, guest, service.NotifyClaimResult), &claim)
	assert.False(t, claim.Valid)
	assert.Equal(t, "invalid fullhouse claim", claim.Message)

	send(t, host, ClientMessage{Type: MessageTypePing})
	expect(t, host, MessageTypePong)

	require.NoError(t, guest.Close())
	var left service.PlayerLeft
	decode(t, expect(t, host, service.NotifyPlayerLeft), &left)
	assert.Equal(t, "bob", left.Username)
	assert.Equal(t, 1, left.CurrentPlayers)

	var turn service.TurnUpdate
	decode(t, expect(t, host, service.NotifyTurnUpdate), &turn)
	assert.Equal(t, "alice", turn.CurrentTurnUsername)
	assert.Equal(t, "bob disconnected during their turn", turn.Reason)

	assert.Eventually(t, func() bool { return hub.GetTotalConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGatewayRejectsRequestsOutsideARoom(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)

	var errData map[string]string

	send(t, conn, ClientMessage{Type: MessageTypeDrawNumber})
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "you are not in a room", errData["error"])

	send(t, conn, ClientMessage{Type: MessageTypeJoinRoom, Username: "carol", RoomCode: "NOPE00"})
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "room not found", errData["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "invalid message format", errData["error"])
}

func TestGatewayRejectsSecondRoomOnOneConnection(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(2)})
	expect(t, conn, service.NotifyRoomUpdate)

	send(t, conn, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(2)})
	var errData map[string]string
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "connection already belongs to a room", errData["error"])
}

func TestGatewayClosesEmptyRoom(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(2)})
	code := expect(t, conn, service.NotifyRoomUpdate).RoomCode

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return !hub.engine.Registry().Has(code) && hub.GetRoomConnections(code) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGatewayKeepsCommitOrderWhenTurnHolderLeaves(t *testing.T) {
	hub := newTestHub(t, &config.DefaultConfig().Game)
	engine := hub.engine
	newQueueClient(t, hub, "a")
	b := newQueueClient(t, hub, "b")
	c := newQueueClient(t, hub, "c")

	created, err := engine.CreateRoom("a", "A", 3)
	require.NoError(t, err)
	code := created.RoomCode
	_, err = engine.JoinRoom("b", "B", code)
	require.NoError(t, err)
	_, err = engine.JoinRoom("c", "C", code)
	require.NoError(t, err)
	b.room = code

	_, err = engine.StartGame(code, "a")
	require.NoError(t, err)
	drawn, err := engine.DrawNumber(code, "a")
	require.NoError(t, err)
	require.Equal(t, "b", drawn.Draw.NextTurn)

	// b drops while the draw may still be queued
	hub.Unregister(b)

	frames := readQueued(t, c, service.NotifyTurnUpdate)
	var types []string
	for _, f := range frames {
		types = append(types, f.Type)
	}
	assert.Equal(t, []string{
		service.NotifyRoomUpdate,
		service.NotifyGameStarted,
		service.NotifyNumberDrawn,
		service.NotifyPlayerLeft,
		service.NotifyTurnUpdate,
	}, types)

	var draw service.DrawResult
	decode(t, frames[2], &draw)
	assert.Equal(t, "B", draw.NextTurnUsername)

	var turn service.TurnUpdate
	decode(t, frames[4], &turn)
	assert.Equal(t, "c", turn.CurrentTurn)
	assert.Equal(t, "B disconnected during their turn", turn.Reason)
	assert.Equal(t, 2, hub.GetRoomConnections(code))
}

func TestGatewayCreateRoomCapacity(t *testing.T) {
	_, srv := newTestServer(t)

	omitted := dial(t, srv)
	send(t, omitted, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice"})
	var snap struct {
		MaxPlayers int `json:"maxPlayers"`
	}
	decode(t, expect(t, omitted, service.NotifyRoomUpdate), &snap)
	assert.Equal(t, 10, snap.MaxPlayers)

	zero := dial(t, srv)
	send(t, zero, ClientMessage{Type: MessageTypeCreateRoom, Username: "bob", MaxPlayers: capacity(0)})
	var errData map[string]string
	decode(t, expect(t, zero, MessageTypeError), &errData)
	assert.Equal(t, "max players must be between 2 and 10", errData["error"])
}

func TestGatewayRejectsUnknownMessageTypes(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)
	var errData map[string]string

	send(t, conn, ClientMessage{Type: "shuffle"})
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "invalid request", errData["error"])

	send(t, conn, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(2)})
	expect(t, conn, service.NotifyRoomUpdate)

	send(t, conn, ClientMessage{Type: "shuffle"})
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "invalid request", errData["error"])
}

func TestGatewayRejectsManualDrawInAutoMode(t *testing.T) {
	cfg := config.DefaultConfig().Game
	cfg.DrawMode = "auto"
	hub := newTestHub(t, &cfg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, testLogger(), w, r)
	}))
	t.Cleanup(srv.Close)
	conn := dial(t, srv)

	send(t, conn, ClientMessage{Type: MessageTypeCreateRoom, Username: "alice", MaxPlayers: capacity(2)})
	expect(t, conn, service.NotifyRoomUpdate)
	send(t, conn, ClientMessage{Type: MessageTypeStartGame})
	expect(t, conn, service.NotifyGameStarted)

	send(t, conn, ClientMessage{Type: MessageTypeDrawNumber})
	var errData map[string]string
	decode(t, expect(t, conn, MessageTypeError), &errData)
	assert.Equal(t, "numbers are drawn automatically in this room", errData["error"])
}

func TestRegisterAfterStopDoesNotBlock(t *testing.T) {
	engine := service.NewEngine(registry.New(), &config.DefaultConfig().Game, testLogger())
	hub := NewHub(engine, testLogger())
	hub.Stop()

	done := make(chan bool, 1)
	go func() {
		done <- hub.Register(&Client{id: "late", hub: hub, send: make(chan []byte, 1), logger: testLogger()})
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Register blocked after Stop")
	}
}
