// Package game implements the Connect-Four rules on the flattened board.
package game

import (
	"errors"

	"github.com/dupuishugo80/ranked4/client/model"
)

const winStreak = 4

var (
	ErrColumnOutOfRange = errors.New("column out of range")
	ErrColumnFull       = errors.New("column is full")
)

// Marker returns the cell value of a seat.
func Marker(seat model.Seat) byte {
	switch seat {
	case model.SeatPlayerOne:
		return '1'
	case model.SeatPlayerTwo:
		return '2'
	}
	return model.EmptyCell
}

// Drop lets a disc of seat fall into column and returns the new board and
// the row it landed on.
func Drop(b model.Board, column int, seat model.Seat) (model.Board, int, error) {
	if column < 0 || column >= model.Cols {
		return b, -1, ErrColumnOutOfRange
	}
	cells := []byte(b)
	for r := model.Rows - 1; r >= 0; r-- {
		idx := r*model.Cols + column
		if cells[idx] == model.EmptyCell {
			cells[idx] = Marker(seat)
			return model.Board(cells), r, nil
		}
	}
	return b, -1, ErrColumnFull
}

// ValidColumns lists the columns that still accept a disc.
func ValidColumns(b model.Board) []int {
	var cols []int
	for c := 0; c < model.Cols; c++ {
		if b.Cell(0, c) == model.EmptyCell {
			cols = append(cols, c)
		}
	}
	return cols
}

func Full(b model.Board) bool {
	return len(ValidColumns(b)) == 0
}

// Wins reports whether the disc at row, col completes a line of four.
func Wins(b model.Board, row, col int) bool {
	marker := b.Cell(row, col)
	if marker == model.EmptyCell {
		return false
	}
	for _, d := range [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}} {
		n := 1 + count(b, row, col, d[0], d[1], marker) + count(b, row, col, -d[0], -d[1], marker)
		if n >= winStreak {
			return true
		}
	}
	return false
}

func count(b model.Board, row, col, dr, dc int, marker byte) int {
	n := 0
	for r, c := row+dr, col+dc; r >= 0 && r < model.Rows && c >= 0 && c < model.Cols; r, c = r+dr, c+dc {
		if b.Cell(r, c) != marker {
			break
		}
		n++
	}
	return n
}

// Winner scans the whole board for a line of four.
func Winner(b model.Board) model.Seat {
	for r := 0; r < model.Rows; r++ {
		for c := 0; c < model.Cols; c++ {
			if !Wins(b, r, c) {
				continue
			}
			if b.Cell(r, c) == '1' {
				return model.SeatPlayerOne
			}
			return model.SeatPlayerTwo
		}
	}
	return model.SeatNone
}
