// Package bingo holds the pure board and claim algorithms.
package bingo

import (
	"errors"
	"math/rand/v2"

	"github.com/bingo-rooms/internal/domain"
)

// ErrInvalidDimensions is returned when a universe cannot fill a square grid
var ErrInvalidDimensions = errors.New("universe size must equal dim*dim")

// Rand is the randomness the generator and the engine draw from
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand is safe for concurrent use
var DefaultRand Rand = globalRand{}

// Shuffle permutes numbers in place with Fisher-Yates
func Shuffle(numbers []int, rng Rand) {
	for i := len(numbers) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		numbers[i], numbers[j] = numbers[j], numbers[i]
	}
}

// GenerateBoard lays a shuffled copy of universe out row-major in a dim x dim grid
func GenerateBoard(universe []int, dim int, rng Rand) (domain.Board, error) {
	if dim <= 0 || len(universe) != dim*dim {
		return nil, ErrInvalidDimensions
	}

	numbers := append([]int(nil), universe...)
	Shuffle(numbers, rng)

	board := make(domain.Board, dim)
	for i := range board {
		board[i] = numbers[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return board, nil
}

// NewBoard generates a standard 7x7 board over 1..49
func NewBoard(rng Rand) domain.Board {
	board, _ := GenerateBoard(domain.Universe(), domain.BoardSize, rng)
	return board
}
