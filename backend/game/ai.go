package game

import (
	"math"
	"math/rand/v2"

	"github.com/dupuishugo80/ranked4/client/model"
)

const (
	maxScore = 1000000

	// easyRandomPercent of the easy AI moves are picked at random.
	easyRandomPercent = 80
)

var searchDepth = map[int]int{
	1: 4,
	2: 5,
	3: 6,
}

// AI picks moves for the computer opponent.
type AI struct {
	rnd *rand.Rand
}

// NewAI returns an AI seeded with seed, so tests are reproducible.
func NewAI(seed uint64) *AI {
	return &AI{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// BestMove returns the column to play for seat, or -1 when the board is full.
func (ai *AI) BestMove(b model.Board, difficulty int, seat model.Seat) int {
	valid := ValidColumns(b)
	if len(valid) == 0 {
		return -1
	}
	if difficulty == 1 && ai.rnd.IntN(100) < easyRandomPercent {
		return valid[ai.rnd.IntN(len(valid))]
	}
	depth, ok := searchDepth[difficulty]
	if !ok {
		depth = searchDepth[2]
	}

	opponent := seat.Opponent()
	best, bestScore := valid[0], math.MinInt
	for _, col := range centerFirst(valid) {
		next, _, _ := Drop(b, col, seat)
		score := minimax(next, depth-1, false, seat, opponent, math.MinInt, math.MaxInt)
		if score > bestScore {
			best, bestScore = col, score
		}
	}
	return best
}

func minimax(b model.Board, depth int, maximizing bool, me, opp model.Seat, alpha, beta int) int {
	switch Winner(b) {
	case me:
		return maxScore - (10 - depth)
	case opp:
		return -maxScore + (10 - depth)
	}
	valid := ValidColumns(b)
	if depth == 0 || len(valid) == 0 {
		return evaluate(b, me, opp)
	}

	if maximizing {
		score := math.MinInt
		for _, col := range centerFirst(valid) {
			next, _, _ := Drop(b, col, me)
			score = max(score, minimax(next, depth-1, false, me, opp, alpha, beta))
			alpha = max(alpha, score)
			if beta <= alpha {
				break
			}
		}
		return score
	}
	score := math.MaxInt
	for _, col := range centerFirst(valid) {
		next, _, _ := Drop(b, col, opp)
		score = min(score, minimax(next, depth-1, true, me, opp, alpha, beta))
		beta = min(beta, score)
		if beta <= alpha {
			break
		}
	}
	return score
}

// centerFirst orders columns by distance to the center, which prunes more.
func centerFirst(cols []int) []int {
	out := make([]int, 0, len(cols))
	center := model.Cols / 2
	for d := 0; d <= center; d++ {
		for _, c := range cols {
			if c == center-d || (d > 0 && c == center+d) {
				out = append(out, c)
			}
		}
	}
	return out
}

func evaluate(b model.Board, me, opp model.Seat) int {
	mine, theirs := Marker(me), Marker(opp)
	score := 0

	center := model.Cols / 2
	for r := 0; r < model.Rows; r++ {
		switch b.Cell(r, center) {
		case mine:
			score += 3
		case theirs:
			score -= 3
		}
	}

	for r := 0; r < model.Rows; r++ {
		for c := 0; c < model.Cols; c++ {
			for _, d := range [][2]int{{0, 1}, {1, 0}, {1, 1}, {-1, 1}} {
				er, ec := r+d[0]*(winStreak-1), c+d[1]*(winStreak-1)
				if er < 0 || er >= model.Rows || ec < 0 || ec >= model.Cols {
					continue
				}
				score += window(b, r, c, d[0], d[1], mine, theirs)
			}
		}
	}
	return score
}

func window(b model.Board, r, c, dr, dc int, mine, theirs byte) int {
	var own, other, empty int
	for i := 0; i < winStreak; i++ {
		switch b.Cell(r+i*dr, c+i*dc) {
		case mine:
			own++
		case theirs:
			other++
		default:
			empty++
		}
	}
	switch {
	case own == 4:
		return 100
	case other == 4:
		return -100
	case own == 3 && empty == 1:
		return 5
	case own == 2 && empty == 2:
		return 2
	case other == 3 && empty == 1:
		return -50
	case other == 2 && empty == 2:
		return -2
	}
	return 0
}
