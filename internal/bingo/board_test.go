package bingo

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingo-rooms/internal/domain"
)

func TestNewBoardIsPermutationOfUniverse(t *testing.T) {
	for i := 0; i < 50; i++ {
		board := NewBoard(DefaultRand)
		require.Len(t, board, domain.BoardSize)

		var seen []int
		for _, row := range board {
			require.Len(t, row, domain.BoardSize)
			seen = append(seen, row...)
		}
		sort.Ints(seen)
		assert.Equal(t, domain.Universe(), seen)
	}
}

func TestGenerateBoardRejectsBadDimensions(t *testing.T) {
	_, err := GenerateBoard([]int{1, 2, 3}, 2, DefaultRand)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = GenerateBoard(nil, 0, DefaultRand)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestGenerateBoardDoesNotMutateUniverse(t *testing.T) {
	universe := []int{1, 2, 3, 4}
	_, err := GenerateBoard(universe, 2, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, universe)
}

func TestGenerateBoardRowsDoNotAlias(t *testing.T) {
	board, err := GenerateBoard([]int{1, 2, 3, 4}, 2, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)

	board[0] = append(board[0], 99)
	assert.NotContains(t, board[1], 99)
}

func TestShuffleCoversAllPositions(t *testing.T) {
	// each of 3 values should reach the first slot over many shuffles
	rng := rand.New(rand.NewPCG(7, 11))
	firsts := map[int]int{}
	for i := 0; i < 3000; i++ {
		numbers := []int{1, 2, 3}
		Shuffle(numbers, rng)
		firsts[numbers[0]]++
	}
	for _, v := range []int{1, 2, 3} {
		assert.Greater(t, firsts[v], 800, "value %d", v)
	}
}
