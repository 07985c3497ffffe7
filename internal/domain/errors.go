package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrUsernameTaken     = errors.New("username is already taken in this room")
	ErrInvalidUsername   = errors.New("username must be 1 to 15 characters")
	ErrInvalidConfig     = errors.New("max players must be between 2 and 10")
	ErrNotHost           = errors.New("only the host can start the game")
	ErrAlreadyInProgress = errors.New("game is already in progress")
	ErrNotInProgress     = errors.New("not in progress")
	ErrNotYourTurn       = errors.New("it's not your turn to draw a number")
	ErrGameOver          = errors.New("game is over")
	ErrAutoDraw          = errors.New("numbers are drawn automatically in this room")
	ErrInvalidClaimType  = errors.New("invalid claim type")
	ErrClaimRejected     = errors.New("claim rejected")
	ErrNotInRoom         = errors.New("player not found in room")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrAlreadyInRoom     = errors.New("connection already belongs to a room")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// ClaimRejection is returned when a claim is well-formed but not accepted.
type ClaimRejection struct {
	Type   ClaimType
	Reason string
}

func (e *ClaimRejection) Error() string {
	return e.Reason
}

func (e *ClaimRejection) Unwrap() error {
	return ErrClaimRejected
}

// RejectInvalid builds the rejection for a pattern that is not complete.
func RejectInvalid(t ClaimType) *ClaimRejection {
	return &ClaimRejection{Type: t, Reason: fmt.Sprintf("invalid %s claim", t)}
}

// RejectDuplicate builds the rejection for a claim type the player already holds.
func RejectDuplicate(t ClaimType) *ClaimRejection {
	return &ClaimRejection{Type: t, Reason: fmt.Sprintf("already claimed %s", t)}
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrNotInRoom) || errors.Is(err, ErrPlayerNotFound)
}

// IsRequestError reports whether err is an expected, per-request failure
// that should be relayed to the caller rather than logged as a fault.
func IsRequestError(err error) bool {
	for _, target := range []error{
		ErrRoomNotFound, ErrRoomFull, ErrUsernameTaken, ErrInvalidUsername,
		ErrInvalidConfig, ErrNotHost, ErrAlreadyInProgress, ErrNotInProgress,
		ErrNotYourTurn, ErrGameOver, ErrAutoDraw, ErrInvalidClaimType, ErrClaimRejected,
		ErrNotInRoom, ErrAlreadyInRoom, ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
