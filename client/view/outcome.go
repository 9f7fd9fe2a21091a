package view

import (
	"github.com/dupuishugo80/ranked4/client/model"
)

const (
	MsgLoading      = "Loading the game..."
	MsgYourTurn     = "It's your turn!"
	MsgOpponentTurn = "Opponent's turn..."
	MsgWon          = "You won!"
	MsgDraw         = "It's a draw!"
	MsgLost         = "You lost..."
	MsgCancelled    = "Connection issues for the other player, the match is canceled."
	msgErrorPrefix  = "Error: "
)

type OutcomeKind int

const (
	OutcomeLoading OutcomeKind = iota
	OutcomeTurn
	OutcomeError
	OutcomeWin
	OutcomeDraw
	OutcomeLoss
	OutcomeCancelled
)

// Outcome is the message shown for a snapshot.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	// Gold is the reward, nil when the game grants none.
	Gold *int
	// Transient messages revert to the turn prompt.
	Transient bool
	Loser     bool
}

// Reward is the gold granted for a win or a draw. Losses grant nothing.
type Reward struct {
	Win  int
	Draw int
}

var (
	rewardRanked = Reward{Win: 100, Draw: 50}
	rewardCasual = Reward{Win: 50, Draw: 25}

	rewardPvE = map[int]Reward{
		1: {Win: 50, Draw: 25},
		2: {Win: 100, Draw: 50},
		3: {Win: 200, Draw: 100},
	}
)

// RewardFor looks the reward up by origin, and by AI difficulty for PvE
// games. Unknown difficulties count as medium.
func RewardFor(origin model.Origin, aiDifficulty *int) Reward {
	switch origin {
	case model.OriginRanked:
		return rewardRanked
	case model.OriginPvE:
		if aiDifficulty != nil {
			if r, ok := rewardPvE[*aiDifficulty]; ok {
				return r
			}
		}
		return rewardPvE[2]
	default:
		return rewardCasual
	}
}

// DeriveOutcome computes the message for snap as seen from seat.
func DeriveOutcome(snap *model.GameSnapshot, seat model.Seat, isMyTurn bool) Outcome {
	if snap == nil {
		return Outcome{Kind: OutcomeLoading, Message: MsgLoading}
	}
	if snap.Error != "" && seat != model.SeatNone && snap.NextPlayer == seat {
		return Outcome{Kind: OutcomeError, Message: msgErrorPrefix + snap.Error, Transient: true}
	}

	if snap.Status == model.GameFinished {
		if snap.Origin == model.OriginCancelledNoShow {
			return Outcome{Kind: OutcomeCancelled, Message: MsgCancelled}
		}
		reward := RewardFor(snap.Origin, snap.AIDifficulty)
		switch {
		case seat != model.SeatNone && snap.Winner == seat:
			return Outcome{Kind: OutcomeWin, Message: MsgWon, Gold: intPtr(reward.Win)}
		case snap.IsDraw():
			return Outcome{Kind: OutcomeDraw, Message: MsgDraw, Gold: intPtr(reward.Draw)}
		default:
			return Outcome{Kind: OutcomeLoss, Message: MsgLost, Gold: intPtr(0), Loser: true}
		}
	}

	if isMyTurn {
		return Outcome{Kind: OutcomeTurn, Message: MsgYourTurn}
	}
	return Outcome{Kind: OutcomeTurn, Message: MsgOpponentTurn}
}

func intPtr(v int) *int {
	return &v
}
