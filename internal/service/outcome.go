package service

import "github.com/bingo-rooms/internal/domain"

// Notification types sent to connections
const (
	NotifyRoomUpdate        = "room_update"
	NotifyPlayerJoined      = "player_joined"
	NotifyPlayerLeft        = "player_left"
	NotifyNewHost           = "new_host"
	NotifyGameStarted       = "game_started"
	NotifyNumberDrawn       = "number_drawn"
	NotifyTurnUpdate        = "turn_update"
	NotifyNumberMarked      = "number_marked"
	NotifyClaimResult       = "claim_result"
	NotifyLeaderboardUpdate = "leaderboard_update"
	NotifyGameOver          = "game_over"
)

// Audience selects who receives a notification
type Audience int

const (
	// ToActor reaches only the connection that issued the request
	ToActor Audience = iota
	// ToRoom reaches every member of the room
	ToRoom
	// ToOthers reaches every member except the actor
	ToOthers
)

// Notification is one outbound message produced by an engine operation
type Notification struct {
	Audience Audience
	Type     string
	Data     interface{}
}

// Outcome is everything an engine operation produced. It is detached from
// room state and safe to use after the room's lane is released.
type Outcome struct {
	RoomCode      string
	ActorID       string
	Snapshot      *domain.Snapshot
	Draw          *DrawResult
	Claim         *ClaimResult
	Notifications []Notification
	Events        []domain.GameEvent
	// Joined is set when the actor entered the room with this operation
	Joined bool
	// Closed is set when the operation left the room empty and it was deleted
	Closed bool
	// StartAutoDraw asks the gateway to begin interval draws for the room
	StartAutoDraw bool
}

func (o *Outcome) notify(audience Audience, typ string, data interface{}) {
	o.Notifications = append(o.Notifications, Notification{Audience: audience, Type: typ, Data: data})
}

// RoomUpdate carries a full snapshot with a status describing why it was sent
type RoomUpdate struct {
	Status string `json:"status"`
	domain.Snapshot
}

// PlayerJoined is sent to existing members when someone joins
type PlayerJoined struct {
	Player         domain.PlayerView   `json:"player"`
	Players        []domain.PlayerView `json:"players"`
	CurrentPlayers int                 `json:"currentPlayers"`
}

// PlayerLeft is sent to remaining members when someone disconnects
type PlayerLeft struct {
	PlayerID       string              `json:"playerId"`
	Username       string              `json:"username"`
	Players        []domain.PlayerView `json:"players"`
	CurrentPlayers int                 `json:"currentPlayers"`
}

// NewHost announces a host handoff
type NewHost struct {
	NewHostID   string `json:"newHostId"`
	NewHostName string `json:"newHostName"`
}

// GameStarted announces the first turn of a new game
type GameStarted struct {
	GameID              string                    `json:"gameId"`
	DrawMode            domain.DrawMode           `json:"drawMode"`
	CurrentTurn         string                    `json:"currentTurn"`
	CurrentTurnUsername string                    `json:"currentTurnUsername"`
	DrawnNumbers        []int                     `json:"drawnNumbers"`
	Leaderboard         []domain.LeaderboardEntry `json:"leaderboard"`
}

// DrawResult is the narrow delta of one draw
type DrawResult struct {
	Number           int                       `json:"number,omitempty"`
	DrawnNumbers     []int                     `json:"drawnNumbers"`
	NextTurn         string                    `json:"nextTurn,omitempty"`
	NextTurnUsername string                    `json:"nextTurnUsername,omitempty"`
	RemainingCount   int                       `json:"remainingCount"`
	GameOver         bool                      `json:"gameOver,omitempty"`
	Leaderboard      []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// TurnUpdate announces a turn change outside the normal draw rotation
type TurnUpdate struct {
	CurrentTurn         string `json:"currentTurn"`
	CurrentTurnUsername string `json:"currentTurnUsername"`
	Reason              string `json:"reason"`
}

// NumberMarked mirrors a player's local marking to the room
type NumberMarked struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Number   int    `json:"number"`
	IsMarked bool   `json:"isMarked"`
}

// ClaimResult is the outcome of one claim
type ClaimResult struct {
	Valid         bool             `json:"valid"`
	PlayerID      string           `json:"playerId,omitempty"`
	Username      string           `json:"username,omitempty"`
	ClaimType     domain.ClaimType `json:"claimType,omitempty"`
	PointsAwarded int              `json:"pointsAwarded,omitempty"`
	Message       string           `json:"message"`
}

// LeaderboardUpdate carries the re-sorted leaderboard
type LeaderboardUpdate struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// GameOver is broadcast once every number has been drawn
type GameOver struct {
	Message     string                    `json:"message"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}
