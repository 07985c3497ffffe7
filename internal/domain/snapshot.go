package domain

// PlayerView is the public projection of a player
type PlayerView struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	IsHost     bool   `json:"isHost"`
	HasBoard   bool   `json:"hasBoard"`
	Score      int    `json:"score"`
	BingoCount int    `json:"bingoCount"`
}

// Snapshot is the full state of a room as seen by one viewer. Board is
// only populated with the viewer's own board.
type Snapshot struct {
	Code                string             `json:"roomCode"`
	MaxPlayers          int                `json:"maxPlayers"`
	CurrentPlayers      int                `json:"currentPlayers"`
	Players             []PlayerView       `json:"players"`
	Board               Board              `json:"board,omitempty"`
	IsHost              bool               `json:"isHost"`
	State               RoomState          `json:"state"`
	GameInProgress      bool               `json:"gameInProgress"`
	GameOver            bool               `json:"gameOver"`
	DrawMode            DrawMode           `json:"drawMode"`
	CurrentTurn         string             `json:"currentTurn,omitempty"`
	CurrentTurnUsername string             `json:"currentTurnUsername,omitempty"`
	DrawnNumbers        []int              `json:"drawnNumbers"`
	RemainingCount      int                `json:"remainingCount"`
	Leaderboard         []LeaderboardEntry `json:"leaderboard"`
}

// NewSnapshot copies the room into a snapshot for viewerID. An empty
// viewerID yields a public snapshot without any board.
func NewSnapshot(r *Room, viewerID string) Snapshot {
	s := Snapshot{
		Code:           r.Code,
		MaxPlayers:     r.MaxPlayers,
		CurrentPlayers: len(r.Players),
		Players:        PlayerViews(r),
		State:          r.State,
		GameInProgress: r.State == StateInProgress,
		GameOver:       r.State == StateOver,
		DrawMode:       r.DrawMode,
		DrawnNumbers:   append([]int{}, r.DrawnNumbers...),
		RemainingCount: len(r.RemainingNumbers),
		Leaderboard:    CopyLeaderboard(r.Leaderboard),
	}
	if turn := r.CurrentTurn(); turn != nil {
		s.CurrentTurn = turn.ID
		s.CurrentTurnUsername = turn.Username
	}
	if viewer := r.Player(viewerID); viewer != nil {
		s.Board = CopyBoard(viewer.Board)
		s.IsHost = viewer.IsHost
	}
	return s
}

// PlayerViews projects every member in join order
func PlayerViews(r *Room) []PlayerView {
	views := make([]PlayerView, len(r.Players))
	for i, p := range r.Players {
		views[i] = PlayerView{
			ID:         p.ID,
			Username:   p.Username,
			IsHost:     p.IsHost,
			HasBoard:   len(p.Board) > 0,
			Score:      p.Score,
			BingoCount: p.BingoCount,
		}
	}
	return views
}

// CopyLeaderboard returns a detached copy safe to hand outside the lane
func CopyLeaderboard(entries []LeaderboardEntry) []LeaderboardEntry {
	return append([]LeaderboardEntry{}, entries...)
}

// CopyBoard returns a deep copy of a board
func CopyBoard(b Board) Board {
	if b == nil {
		return nil
	}
	out := make(Board, len(b))
	for i, row := range b {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// RoomSummary is a lightweight room listing entry
type RoomSummary struct {
	Code           string    `json:"roomCode"`
	State          RoomState `json:"state"`
	CurrentPlayers int       `json:"currentPlayers"`
	MaxPlayers     int       `json:"maxPlayers"`
	DrawnCount     int       `json:"drawnCount"`
	Host           string    `json:"host,omitempty"`
}
