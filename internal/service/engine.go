package service

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bingo-rooms/internal/bingo"
	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/registry"
)

// EventSink receives archival events after an operation commits.
// Publish must not block.
type EventSink interface {
	Publish(events ...domain.GameEvent)
}

// Deliverer fans an outcome out to connections. It is called while the
// room's lane is still held, so it must only queue the outcome.
type Deliverer interface {
	Deliver(out *Outcome)
}

// Engine runs the room state machine. Every operation executes inside the
// target room's registry lane and either commits fully or returns an error
// without touching the room.
type Engine struct {
	rooms    *registry.Registry
	config   *config.GameConfig
	logger   *slog.Logger
	rng      bingo.Rand
	sink     EventSink
	deliver  Deliverer
	drawMode domain.DrawMode
	now      func() time.Time
}

// NewEngine creates a new engine over the given registry
func NewEngine(rooms *registry.Registry, cfg *config.GameConfig, logger *slog.Logger) *Engine {
	drawMode := domain.DrawModeTurn
	if cfg.DrawMode == string(domain.DrawModeAuto) {
		drawMode = domain.DrawModeAuto
	}
	return &Engine{
		rooms:    rooms,
		config:   cfg,
		logger:   logger,
		rng:      bingo.DefaultRand,
		drawMode: drawMode,
		now:      time.Now,
	}
}

// SetEventSink sets where archival events are published
func (e *Engine) SetEventSink(sink EventSink) {
	e.sink = sink
}

// SetDeliverer sets where committed outcomes are queued for fan-out
func (e *Engine) SetDeliverer(d Deliverer) {
	e.deliver = d
}

// SetRand replaces the randomness used for boards and draws. The source
// must be safe for concurrent use when rooms run in parallel.
func (e *Engine) SetRand(rng bingo.Rand) {
	e.rng = rng
}

// DefaultMaxPlayers is the capacity used when a create request names none
func (e *Engine) DefaultMaxPlayers() int {
	return e.config.DefaultMaxPlayers
}

// Registry returns the registry the engine operates on
func (e *Engine) Registry() *registry.Registry {
	return e.rooms
}

// CreateRoom opens a new room in the lobby with the creator as host
func (e *Engine) CreateRoom(playerID, username string, maxPlayers int) (*Outcome, error) {
	username, err := validUsername(username)
	if err != nil {
		return nil, err
	}
	if maxPlayers < domain.MinPlayers || maxPlayers > domain.MaxPlayers {
		return nil, domain.ErrInvalidConfig
	}

	room := &domain.Room{
		MaxPlayers:       maxPlayers,
		DrawMode:         e.drawMode,
		State:            domain.StateLobby,
		DrawnNumbers:     []int{},
		RemainingNumbers: domain.Universe(),
		Leaderboard:      []domain.LeaderboardEntry{},
		CreatedAt:        e.now(),
		Players: []*domain.Player{{
			ID:       playerID,
			Username: username,
			IsHost:   true,
			Board:    bingo.NewBoard(e.rng),
		}},
	}

	code, err := e.rooms.Create(room)
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	out := &Outcome{RoomCode: code, ActorID: playerID, Joined: true}
	err = e.apply(code, out, func(room *domain.Room) error {
		snap := domain.NewSnapshot(room, playerID)
		out.Snapshot = &snap
		out.notify(ToActor, NotifyRoomUpdate, RoomUpdate{Status: "created", Snapshot: snap})
		out.Events = append(out.Events, e.event(room, domain.EventRoomCreated))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("room created", "room_code", code, "host", username, "max_players", maxPlayers)
	e.publish(out)
	return out, nil
}

// JoinRoom adds a non-host player with a fresh board
func (e *Engine) JoinRoom(playerID, username, code string) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: playerID, Joined: true}

	err := e.apply(code, out, func(room *domain.Room) error {
		name, err := validUsername(username)
		if err != nil {
			return err
		}
		if room.PlayerIndex(playerID) >= 0 {
			return domain.ErrAlreadyInRoom
		}
		if room.IsFull() {
			return domain.ErrRoomFull
		}
		if room.HasUsername(name) {
			return domain.ErrUsernameTaken
		}

		player := &domain.Player{
			ID:       playerID,
			Username: name,
			Board:    bingo.NewBoard(e.rng),
		}
		room.Players = append(room.Players, player)
		if room.State == domain.StateInProgress {
			room.Leaderboard = append(room.Leaderboard, domain.LeaderboardEntry{
				PlayerID: player.ID,
				Username: player.Username,
			})
		}

		snap := domain.NewSnapshot(room, playerID)
		out.Snapshot = &snap
		views := domain.PlayerViews(room)
		out.notify(ToActor, NotifyRoomUpdate, RoomUpdate{Status: "joined", Snapshot: snap})
		out.notify(ToOthers, NotifyPlayerJoined, PlayerJoined{
			Player:         views[len(views)-1],
			Players:        views,
			CurrentPlayers: len(room.Players),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("player joined", "room_code", out.RoomCode, "username", strings.TrimSpace(username))
	return out, nil
}

// StartGame moves a lobby into play. Only the host may start.
func (e *Engine) StartGame(code, requesterID string) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: requesterID}

	err := e.apply(code, out, func(room *domain.Room) error {
		host := room.Host()
		if host == nil || host.ID != requesterID {
			return domain.ErrNotHost
		}
		switch room.State {
		case domain.StateInProgress:
			return domain.ErrAlreadyInProgress
		case domain.StateOver:
			return domain.ErrGameOver
		}

		room.State = domain.StateInProgress
		room.GameID = uuid.New().String()
		room.StartedAt = e.now()
		room.DrawnNumbers = []int{}
		room.RemainingNumbers = domain.Universe()
		room.Claims = nil
		room.Leaderboard = make([]domain.LeaderboardEntry, len(room.Players))
		for i, p := range room.Players {
			p.Score = 0
			p.BingoCount = 0
			room.Leaderboard[i] = domain.LeaderboardEntry{PlayerID: p.ID, Username: p.Username}
		}
		room.CurrentTurnIndex = room.PlayerIndex(host.ID)

		first := room.CurrentTurn()
		snap := domain.NewSnapshot(room, requesterID)
		out.Snapshot = &snap
		out.StartAutoDraw = room.DrawMode == domain.DrawModeAuto
		out.notify(ToRoom, NotifyGameStarted, GameStarted{
			GameID:              room.GameID,
			DrawMode:            room.DrawMode,
			CurrentTurn:         first.ID,
			CurrentTurnUsername: first.Username,
			DrawnNumbers:        []int{},
			Leaderboard:         domain.CopyLeaderboard(room.Leaderboard),
		})
		out.Events = append(out.Events, e.event(room, domain.EventGameStarted))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("game started", "room_code", out.RoomCode, "first_turn", out.Snapshot.CurrentTurnUsername)
	e.publish(out)
	return out, nil
}

// DrawNumber draws for the requester, who must hold the current turn. When
// no numbers remain the room moves to OVER instead and no number is drawn.
func (e *Engine) DrawNumber(code, requesterID string) (*Outcome, error) {
	return e.drawWith(code, requesterID, true)
}

// DrawNext draws on behalf of whoever holds the current turn
func (e *Engine) DrawNext(code string) (*Outcome, error) {
	return e.drawWith(code, "", false)
}

func (e *Engine) drawWith(code, requesterID string, enforceTurn bool) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: requesterID}

	err := e.apply(code, out, func(room *domain.Room) error {
		switch room.State {
		case domain.StateLobby:
			return domain.ErrNotInProgress
		case domain.StateOver:
			return domain.ErrGameOver
		}
		if enforceTurn {
			if room.DrawMode == domain.DrawModeAuto {
				return domain.ErrAutoDraw
			}
			if room.CurrentTurn().ID != requesterID {
				return domain.ErrNotYourTurn
			}
		}

		if len(room.RemainingNumbers) == 0 {
			room.State = domain.StateOver
			leaderboard := domain.CopyLeaderboard(room.Leaderboard)
			out.Draw = &DrawResult{
				DrawnNumbers: append([]int{}, room.DrawnNumbers...),
				GameOver:     true,
				Leaderboard:  leaderboard,
			}
			out.notify(ToRoom, NotifyGameOver, GameOver{
				Message:     "All numbers have been drawn",
				Leaderboard: leaderboard,
			})
			out.Events = append(out.Events, e.event(room, domain.EventGameFinished))
			return nil
		}

		i := e.rng.IntN(len(room.RemainingNumbers))
		number := room.RemainingNumbers[i]
		room.RemainingNumbers = append(room.RemainingNumbers[:i], room.RemainingNumbers[i+1:]...)
		room.DrawnNumbers = append(room.DrawnNumbers, number)
		room.CurrentTurnIndex = (room.CurrentTurnIndex + 1) % len(room.Players)

		next := room.CurrentTurn()
		out.Draw = &DrawResult{
			Number:           number,
			DrawnNumbers:     append([]int{}, room.DrawnNumbers...),
			NextTurn:         next.ID,
			NextTurnUsername: next.Username,
			RemainingCount:   len(room.RemainingNumbers),
		}
		out.notify(ToRoom, NotifyNumberDrawn, *out.Draw)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Draw.GameOver {
		e.logger.Info("game over", "room_code", out.RoomCode, "reason", "all numbers drawn")
	} else {
		e.logger.Debug("number drawn", "room_code", out.RoomCode, "number", out.Draw.Number, "next_turn", out.Draw.NextTurnUsername)
	}
	e.publish(out)
	return out, nil
}

// MarkNumber relays a player's local marking to the rest of the room. It
// never affects claims or game state.
func (e *Engine) MarkNumber(code, requesterID string, number int, isMarked bool) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: requesterID}

	err := e.apply(code, out, func(room *domain.Room) error {
		player := room.Player(requesterID)
		if player == nil {
			return domain.ErrNotInRoom
		}
		out.notify(ToOthers, NotifyNumberMarked, NumberMarked{
			PlayerID: player.ID,
			Username: player.Username,
			Number:   number,
			IsMarked: isMarked,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateClaim checks and scores a claim. Rejections are returned as a
// *domain.ClaimRejection wrapping domain.ErrClaimRejected.
func (e *Engine) ValidateClaim(code, requesterID, claimType string) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: requesterID}

	err := e.apply(code, out, func(room *domain.Room) error {
		player := room.Player(requesterID)
		if player == nil {
			return domain.ErrNotInRoom
		}
		if room.State != domain.StateInProgress {
			return domain.ErrNotInProgress
		}
		ct, err := bingo.ParseClaimType(claimType)
		if err != nil {
			return err
		}
		if !bingo.Satisfied(player.Board, room.DrawnSet(), ct) {
			return domain.RejectInvalid(ct)
		}
		if room.HasClaimed(player.ID, ct) {
			return domain.RejectDuplicate(ct)
		}

		points := bingo.Points(room.ClaimsOfType(ct))
		room.Claims = append(room.Claims, domain.Claim{PlayerID: player.ID, ClaimType: ct, Points: points})
		player.Score += points
		player.BingoCount++

		i := room.LeaderboardIndex(player.ID)
		if i < 0 {
			room.Leaderboard = append(room.Leaderboard, domain.LeaderboardEntry{PlayerID: player.ID, Username: player.Username})
			i = len(room.Leaderboard) - 1
		}
		room.Leaderboard[i].Score += points
		room.Leaderboard[i].Bingos++
		sort.SliceStable(room.Leaderboard, func(a, b int) bool {
			return room.Leaderboard[a].Score > room.Leaderboard[b].Score
		})

		out.Claim = &ClaimResult{
			Valid:         true,
			PlayerID:      player.ID,
			Username:      player.Username,
			ClaimType:     ct,
			PointsAwarded: points,
			Message:       fmt.Sprintf("Valid %s claim!", ct),
		}
		leaderboard := domain.CopyLeaderboard(room.Leaderboard)
		out.notify(ToRoom, NotifyClaimResult, *out.Claim)
		out.notify(ToRoom, NotifyLeaderboardUpdate, LeaderboardUpdate{Leaderboard: leaderboard})

		ev := e.event(room, domain.EventClaimAccepted)
		ev.PlayerID = player.ID
		ev.Username = player.Username
		ev.ClaimType = ct
		ev.Points = points
		out.Events = append(out.Events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("claim accepted",
		"room_code", out.RoomCode,
		"username", out.Claim.Username,
		"claim_type", out.Claim.ClaimType,
		"points", out.Claim.PointsAwarded,
	)
	e.publish(out)
	return out, nil
}

// Disconnect removes a player and repairs host and turn ownership. A room
// left empty is deleted and produces no notifications.
func (e *Engine) Disconnect(code, playerID string) (*Outcome, error) {
	out := &Outcome{RoomCode: registry.NormalizeCode(code), ActorID: playerID}
	var leaver *domain.Player

	err := e.apply(code, out, func(room *domain.Room) error {
		idx := room.PlayerIndex(playerID)
		if idx < 0 {
			return domain.ErrNotInRoom
		}
		leaver = room.Players[idx]
		inProgress := room.State == domain.StateInProgress
		heldTurn := inProgress && room.CurrentTurnIndex == idx
		var turnOwner string
		if inProgress {
			turnOwner = room.Players[room.CurrentTurnIndex].ID
		}

		room.Players = append(room.Players[:idx:idx], room.Players[idx+1:]...)
		if i := room.LeaderboardIndex(playerID); i >= 0 {
			room.Leaderboard[i].Left = true
		}

		if len(room.Players) == 0 {
			out.Closed = true
			if inProgress {
				room.State = domain.StateOver
				finished := e.event(room, domain.EventGameFinished)
				finished.Abandoned = true
				out.Events = append(out.Events, finished)
			}
			out.Events = append(out.Events, e.event(room, domain.EventRoomClosed))
			return nil
		}

		out.notify(ToOthers, NotifyPlayerLeft, PlayerLeft{
			PlayerID:       leaver.ID,
			Username:       leaver.Username,
			Players:        domain.PlayerViews(room),
			CurrentPlayers: len(room.Players),
		})

		if leaver.IsHost {
			leaver.IsHost = false
			newHost := room.Players[0]
			newHost.IsHost = true
			out.notify(ToOthers, NotifyNewHost, NewHost{NewHostID: newHost.ID, NewHostName: newHost.Username})
		}

		if inProgress {
			if heldTurn {
				room.CurrentTurnIndex = idx % len(room.Players)
				next := room.CurrentTurn()
				out.notify(ToOthers, NotifyTurnUpdate, TurnUpdate{
					CurrentTurn:         next.ID,
					CurrentTurnUsername: next.Username,
					Reason:              fmt.Sprintf("%s disconnected during their turn", leaver.Username),
				})
			} else {
				room.CurrentTurnIndex = room.PlayerIndex(turnOwner)
			}
		}

		snap := domain.NewSnapshot(room, "")
		out.Snapshot = &snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Closed {
		e.logger.Info("room deleted", "room_code", out.RoomCode, "reason", "empty")
	} else {
		e.logger.Info("player left", "room_code", out.RoomCode, "username", leaver.Username)
	}
	e.publish(out)
	return out, nil
}

// apply runs fn under the room's lane. When fn succeeds the outcome is
// queued with the deliverer before the lane is released, so a room's
// outcomes are delivered in the order they were committed.
func (e *Engine) apply(code string, out *Outcome, fn func(room *domain.Room) error) error {
	return e.rooms.With(code, func(room *domain.Room) error {
		if err := fn(room); err != nil {
			return err
		}
		if e.deliver != nil && (len(out.Notifications) > 0 || out.Closed || out.Joined) {
			e.deliver.Deliver(out)
		}
		return nil
	})
}

// Snapshot returns the room as seen by viewerID; an empty viewer gets the
// public view without any board.
func (e *Engine) Snapshot(code, viewerID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := e.rooms.With(code, func(room *domain.Room) error {
		snap = domain.NewSnapshot(room, viewerID)
		return nil
	})
	return snap, err
}

// Rooms lists every live room
func (e *Engine) Rooms() []domain.RoomSummary {
	return e.rooms.List()
}

func (e *Engine) event(room *domain.Room, typ domain.EventType) domain.GameEvent {
	return domain.GameEvent{
		Type:        typ,
		RoomCode:    room.Code,
		GameID:      room.GameID,
		DrawnCount:  len(room.DrawnNumbers),
		PlayerCount: len(room.Players),
		Leaderboard: domain.CopyLeaderboard(room.Leaderboard),
		Timestamp:   e.now(),
	}
}

// publish hands events to the sink; called only after the lane is released
func (e *Engine) publish(out *Outcome) {
	if e.sink == nil || len(out.Events) == 0 {
		return
	}
	e.sink.Publish(out.Events...)
}

func validUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxUsernameLength {
		return "", domain.ErrInvalidUsername
	}
	return name, nil
}
