package domain

import "time"

// EventType identifies a game event kind
type EventType string

const (
	EventRoomCreated   EventType = "room_created"
	EventGameStarted   EventType = "game_started"
	EventClaimAccepted EventType = "claim_accepted"
	EventGameFinished  EventType = "game_finished"
	EventRoomClosed    EventType = "room_closed"
)

// GameEvent is an archival record emitted by the engine after an operation
// commits. Events never feed back into room state.
type GameEvent struct {
	Type        EventType          `json:"event_type"`
	RoomCode    string             `json:"room_code"`
	GameID      string             `json:"game_id,omitempty"`
	PlayerID    string             `json:"player_id,omitempty"`
	Username    string             `json:"username,omitempty"`
	ClaimType   ClaimType          `json:"claim_type,omitempty"`
	Points      int                `json:"points,omitempty"`
	DrawnCount  int                `json:"drawn_count,omitempty"`
	PlayerCount int                `json:"player_count,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	// Abandoned marks a game_finished event for a game everyone left
	Abandoned bool      `json:"abandoned,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GameResult is an archived finished game
type GameResult struct {
	GameID      string             `json:"game_id"`
	RoomCode    string             `json:"room_code"`
	PlayerCount int                `json:"player_count"`
	DrawnCount  int                `json:"drawn_count"`
	Winner      string             `json:"winner,omitempty"`
	TopScore    int                `json:"top_score"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Abandoned   bool               `json:"abandoned"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// AllTimeEntry is one row of the cross-game leaderboard
type AllTimeEntry struct {
	Rank     int64  `json:"rank"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// PlayerStats is a player's all-time standing plus lifetime counters
type PlayerStats struct {
	AllTimeEntry
	Bingos int64 `json:"bingos"`
	Games  int64 `json:"games"`
	Wins   int64 `json:"wins"`
}

// ResultFromEvent builds the archived result of a game_finished event. The
// winner is the leader, if anyone scored at all. Abandoned games have no
// winner.
func ResultFromEvent(ev GameEvent) GameResult {
	res := GameResult{
		GameID:      ev.GameID,
		RoomCode:    ev.RoomCode,
		PlayerCount: ev.PlayerCount,
		DrawnCount:  ev.DrawnCount,
		Leaderboard: CopyLeaderboard(ev.Leaderboard),
		Abandoned:   ev.Abandoned,
		FinishedAt:  ev.Timestamp,
	}
	if len(ev.Leaderboard) > 0 && ev.Leaderboard[0].Score > 0 {
		res.TopScore = ev.Leaderboard[0].Score
	}
	if res.TopScore > 0 && !ev.Abandoned {
		res.Winner = ev.Leaderboard[0].Username
	}
	return res
}

// ClaimRecord is one archived accepted claim
type ClaimRecord struct {
	GameID    string    `json:"game_id"`
	RoomCode  string    `json:"room_code"`
	PlayerID  string    `json:"player_id"`
	Username  string    `json:"username"`
	ClaimType ClaimType `json:"claim_type"`
	Points    int       `json:"points"`
	ClaimedAt time.Time `json:"claimed_at"`
}
