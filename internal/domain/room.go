package domain

import "time"

const (
	// BoardSize is the width and height of a bingo board
	BoardSize = 7
	// MaxNumber is the largest number in the draw universe (1..MaxNumber)
	MaxNumber = BoardSize * BoardSize
	// RoomCodeLength is the number of characters in a room code
	RoomCodeLength = 6
	// MinPlayers and MaxPlayers bound a room's capacity
	MinPlayers = 2
	MaxPlayers = 10
	// MaxUsernameLength is measured in runes
	MaxUsernameLength = 15
)

// RoomState represents the lifecycle stage of a room
type RoomState string

const (
	StateLobby      RoomState = "lobby"
	StateInProgress RoomState = "in_progress"
	StateOver       RoomState = "over"
)

// DrawMode selects who triggers the next draw
type DrawMode string

const (
	// DrawModeTurn lets the current turn owner draw
	DrawModeTurn DrawMode = "turn"
	// DrawModeAuto draws on a fixed interval on behalf of the turn owner
	DrawModeAuto DrawMode = "auto"
)

// ClaimType is a line pattern a player can claim
type ClaimType string

const (
	ClaimRow       ClaimType = "row"
	ClaimColumn    ClaimType = "column"
	ClaimDiagonal  ClaimType = "diagonal"
	ClaimFullHouse ClaimType = "fullhouse"
)

// Board is a player's private grid, indexed [row][column]
type Board [][]int

// Player represents a member of a room
type Player struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	IsHost     bool   `json:"isHost"`
	Board      Board  `json:"-"`
	Score      int    `json:"score"`
	BingoCount int    `json:"bingoCount"`
}

// Claim is one accepted claim in a room's claim log
type Claim struct {
	PlayerID  string    `json:"playerId"`
	ClaimType ClaimType `json:"claimType"`
	Points    int       `json:"points"`
}

// LeaderboardEntry represents a single entry in a room's leaderboard
type LeaderboardEntry struct {
	PlayerID string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Bingos   int    `json:"bingos"`
	Left     bool   `json:"left,omitempty"`
}

// Room is the mutable state of one game session. It carries no behaviour;
// the engine mutates it while holding the room's lane.
type Room struct {
	Code             string
	MaxPlayers       int
	DrawMode         DrawMode
	Players          []*Player
	DrawnNumbers     []int
	RemainingNumbers []int
	Claims           []Claim
	State            RoomState
	CurrentTurnIndex int
	Leaderboard      []LeaderboardEntry
	GameID           string
	CreatedAt        time.Time
	StartedAt        time.Time
}

// PlayerIndex returns the position of a player in join order, or -1
func (r *Room) PlayerIndex(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Player returns the player with the given id, or nil
func (r *Room) Player(playerID string) *Player {
	if i := r.PlayerIndex(playerID); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// Host returns the current host, or nil for an empty room
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// HasUsername reports whether any member uses the given name (case-sensitive)
func (r *Room) HasUsername(username string) bool {
	for _, p := range r.Players {
		if p.Username == username {
			return true
		}
	}
	return false
}

// CurrentTurn returns the player allowed to draw, or nil outside a game
func (r *Room) CurrentTurn() *Player {
	if r.State != StateInProgress || len(r.Players) == 0 {
		return nil
	}
	return r.Players[r.CurrentTurnIndex]
}

// IsFull reports whether the room reached its capacity
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// DrawnSet returns the drawn numbers as a membership set
func (r *Room) DrawnSet() map[int]bool {
	set := make(map[int]bool, len(r.DrawnNumbers))
	for _, n := range r.DrawnNumbers {
		set[n] = true
	}
	return set
}

// ClaimsOfType counts accepted claims of one type across the whole room
func (r *Room) ClaimsOfType(t ClaimType) int {
	count := 0
	for _, c := range r.Claims {
		if c.ClaimType == t {
			count++
		}
	}
	return count
}

// HasClaimed reports whether the player already holds a claim of this type
func (r *Room) HasClaimed(playerID string, t ClaimType) bool {
	for _, c := range r.Claims {
		if c.PlayerID == playerID && c.ClaimType == t {
			return true
		}
	}
	return false
}

// LeaderboardIndex returns the position of a player's leaderboard entry, or -1
func (r *Room) LeaderboardIndex(playerID string) int {
	for i, e := range r.Leaderboard {
		if e.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Universe returns the ordered draw universe 1..MaxNumber
func Universe() []int {
	numbers := make([]int, MaxNumber)
	for i := range numbers {
		numbers[i] = i + 1
	}
	return numbers
}
