package view

import (
	"testing"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finished(origin model.Origin, winner model.Seat, difficulty *int) *model.GameSnapshot {
	return &model.GameSnapshot{
		GameID:       "g",
		BoardState:   model.EmptyBoard(),
		Status:       model.GameFinished,
		Winner:       winner,
		Origin:       origin,
		AIDifficulty: difficulty,
	}
}

func TestDeriveOutcome_Rewards(t *testing.T) {
	easy, hard, unknown := 1, 3, 7

	tests := []struct {
		name    string
		snap    *model.GameSnapshot
		seat    model.Seat
		kind    OutcomeKind
		message string
		gold    *int
	}{
		{
			name:    "pve hard win",
			snap:    finished(model.OriginPvE, model.SeatPlayerOne, &hard),
			seat:    model.SeatPlayerOne,
			kind:    OutcomeWin,
			message: MsgWon,
			gold:    intPtr(200),
		},
		{
			name:    "pve easy draw",
			snap:    finished(model.OriginPvE, model.SeatNone, &easy),
			seat:    model.SeatPlayerOne,
			kind:    OutcomeDraw,
			message: MsgDraw,
			gold:    intPtr(25),
		},
		{
			name:    "pve unknown difficulty counts as medium",
			snap:    finished(model.OriginPvE, model.SeatPlayerTwo, &unknown),
			seat:    model.SeatPlayerTwo,
			kind:    OutcomeWin,
			message: MsgWon,
			gold:    intPtr(100),
		},
		{
			name:    "ranked draw",
			snap:    finished(model.OriginRanked, model.SeatNone, nil),
			seat:    model.SeatPlayerTwo,
			kind:    OutcomeDraw,
			message: MsgDraw,
			gold:    intPtr(50),
		},
		{
			name:    "ranked draw sent as DRAW",
			snap:    finished(model.OriginRanked, model.Seat("DRAW"), nil),
			seat:    model.SeatPlayerOne,
			kind:    OutcomeDraw,
			message: MsgDraw,
			gold:    intPtr(50),
		},
		{
			name:    "casual win",
			snap:    finished(model.OriginCasual, model.SeatPlayerOne, nil),
			seat:    model.SeatPlayerOne,
			kind:    OutcomeWin,
			message: MsgWon,
			gold:    intPtr(50),
		},
		{
			name:    "loss",
			snap:    finished(model.OriginRanked, model.SeatPlayerOne, nil),
			seat:    model.SeatPlayerTwo,
			kind:    OutcomeLoss,
			message: MsgLost,
			gold:    intPtr(0),
		},
		{
			name:    "cancelled no show",
			snap:    finished(model.OriginCancelledNoShow, model.SeatNone, nil),
			seat:    model.SeatPlayerOne,
			kind:    OutcomeCancelled,
			message: MsgCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DeriveOutcome(tt.snap, tt.seat, false)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.message, out.Message)
			if tt.gold == nil {
				assert.Nil(t, out.Gold)
				return
			}
			require.NotNil(t, out.Gold)
			assert.Equal(t, *tt.gold, *out.Gold)
		})
	}
}

func TestDeriveOutcome_InProgress(t *testing.T) {
	assert.Equal(t, OutcomeLoading, DeriveOutcome(nil, model.SeatNone, false).Kind)

	snap := &model.GameSnapshot{
		GameID:     "g",
		BoardState: model.EmptyBoard(),
		Status:     model.GameInProgress,
		NextPlayer: model.SeatPlayerOne,
		Error:      "Column is full",
	}
	out := DeriveOutcome(snap, model.SeatPlayerOne, true)
	assert.Equal(t, "Error: Column is full", out.Message)
	assert.True(t, out.Transient)

	out = DeriveOutcome(snap, model.SeatNone, false)
	assert.Equal(t, MsgOpponentTurn, out.Message, "errors need a known seat")

	snap.Error = ""
	assert.Equal(t, MsgYourTurn, DeriveOutcome(snap, model.SeatPlayerOne, true).Message)
}

func TestDiscStyles(t *testing.T) {
	p1, p2 := DiscStyles(nil, nil)
	assert.Equal(t, DiscStyle{Color: DefaultPlayerOneColor}, p1)
	assert.Equal(t, DiscStyle{Color: DefaultPlayerTwoColor}, p2)

	red := &model.DiscCustomization{Type: "color", Value: "#ff0000"}
	same := &model.DiscCustomization{Type: "color", Value: "#ff0000"}
	p1, p2 = DiscStyles(red, same)
	assert.Equal(t, "#ff0000", p1.Color)
	assert.Equal(t, DefaultPlayerTwoColor, p1.Highlight)
	assert.Equal(t, DefaultPlayerOneColor, p2.Highlight)

	img := &model.DiscCustomization{Type: "image", Value: "/discs/star.png"}
	p1, p2 = DiscStyles(img, red)
	assert.Equal(t, DiscStyle{Image: "/discs/star.png"}, p1)
	assert.Empty(t, p2.Highlight)
}
