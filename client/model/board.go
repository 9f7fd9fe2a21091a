package model

import "fmt"

const (
	Rows  = 6
	Cols  = 7
	Cells = Rows * Cols

	// EmptyCell marks an unoccupied cell in the flattened board.
	EmptyCell = '0'
)

// Board is the flattened 6x7 grid, row-major, top row first.
type Board string

// EmptyBoard returns a board with no discs.
func EmptyBoard() Board {
	b := make([]byte, Cells)
	for i := range b {
		b[i] = EmptyCell
	}
	return Board(b)
}

func (b Board) Validate() error {
	if len(b) != Cells {
		return fmt.Errorf("board has %d cells, want %d", len(b), Cells)
	}
	return nil
}

// Cell returns the marker at row r, column c, or EmptyCell when out of range.
func (b Board) Cell(r, c int) byte {
	if r < 0 || r >= Rows || c < 0 || c >= Cols || len(b) != Cells {
		return EmptyCell
	}
	return b[r*Cols+c]
}

// Grid splits the board into rows.
func (b Board) Grid() [][]byte {
	if len(b) != Cells {
		return nil
	}
	grid := make([][]byte, Rows)
	for r := 0; r < Rows; r++ {
		grid[r] = []byte(b[r*Cols : (r+1)*Cols])
	}
	return grid
}

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// PositionOf converts a flattened index.
func PositionOf(idx int) Position {
	return Position{Row: idx / Cols, Col: idx % Cols}
}

// LastMove diffs two consecutive boards. It returns the first cell that
// changed and is occupied in next. Without a previous board there is no
// last move.
func LastMove(prev, next Board) (Position, bool) {
	if prev == "" {
		return Position{}, false
	}
	n := min(len(prev), len(next))
	for i := 0; i < n; i++ {
		if next[i] != EmptyCell && prev[i] != next[i] {
			return PositionOf(i), true
		}
	}
	for i := n; i < len(next); i++ {
		if next[i] != EmptyCell {
			return PositionOf(i), true
		}
	}
	return Position{}, false
}
