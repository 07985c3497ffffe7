package bingo

import "github.com/bingo-rooms/internal/domain"

// ParseClaimType validates a claim type received from a client
func ParseClaimType(s string) (domain.ClaimType, error) {
	switch t := domain.ClaimType(s); t {
	case domain.ClaimRow, domain.ClaimColumn, domain.ClaimDiagonal, domain.ClaimFullHouse:
		return t, nil
	}
	return "", domain.ErrInvalidClaimType
}

// Satisfied reports whether the board completes the pattern given the drawn set
func Satisfied(board domain.Board, drawn map[int]bool, t domain.ClaimType) bool {
	n := len(board)
	if n == 0 {
		return false
	}

	switch t {
	case domain.ClaimRow:
		for _, row := range board {
			if allDrawn(row, drawn) {
				return true
			}
		}

	case domain.ClaimColumn:
		for col := 0; col < n; col++ {
			column := make([]int, n)
			for row := range board {
				column[row] = board[row][col]
			}
			if allDrawn(column, drawn) {
				return true
			}
		}

	case domain.ClaimDiagonal:
		primary := make([]int, n)
		anti := make([]int, n)
		for i := 0; i < n; i++ {
			primary[i] = board[i][i]
			anti[i] = board[i][n-1-i]
		}
		return allDrawn(primary, drawn) || allDrawn(anti, drawn)

	case domain.ClaimFullHouse:
		for _, row := range board {
			if !allDrawn(row, drawn) {
				return false
			}
		}
		return true
	}
	return false
}

func allDrawn(cells []int, drawn map[int]bool) bool {
	for _, c := range cells {
		if !drawn[c] {
			return false
		}
	}
	return true
}

// Points returns the award for a claim given how many claims of the same
// type the room already accepted.
func Points(priorOfType int) int {
	switch priorOfType {
	case 0:
		return 100
	case 1:
		return 75
	case 2:
		return 50
	default:
		return 25
	}
}
