package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
	"gameId": "g-1",
	"playerOne": {"userId": "u-1", "displayName": "alice", "avatarUrl": "", "elo": 1200, "disc": null},
	"playerTwo": {"userId": "u-2", "displayName": "bob", "avatarUrl": "", "elo": 1180,
		"disc": {"type": "color", "value": "#00ff00"}},
	"boardState": "000000000000000000000000000000000000000000",
	"nextPlayer": "PLAYER_ONE",
	"status": "IN_PROGRESS",
	"winner": null,
	"error": null,
	"origin": "RANKED",
	"turnTimeRemainingSeconds": 45
}`

func TestDecodeSnapshot(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(snapshotJSON))
	require.NoError(t, err)

	assert.Equal(t, "g-1", snap.GameID)
	assert.Equal(t, SeatPlayerOne, snap.NextPlayer)
	assert.Equal(t, SeatNone, snap.Winner)
	assert.Equal(t, OriginRanked, snap.Origin)
	assert.Nil(t, snap.AIDifficulty)
	require.NotNil(t, snap.TurnTimeRemainingSeconds)
	assert.Equal(t, 45, *snap.TurnTimeRemainingSeconds)
	require.NotNil(t, snap.PlayerTwo.Disc)
	assert.Equal(t, "#00ff00", snap.PlayerTwo.Disc.Value)
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: "{", want: ErrMalformedPayload},
		{name: "no game id", body: `{"boardState":"` + string(EmptyBoard()) + `","status":"IN_PROGRESS"}`, want: ErrMissingField},
		{name: "short board", body: `{"gameId":"g","boardState":"000","status":"IN_PROGRESS"}`, want: ErrMalformedPayload},
		{name: "unknown status", body: `{"gameId":"g","boardState":"` + string(EmptyBoard()) + `","status":"PAUSED"}`, want: ErrMalformedPayload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSnapshot_SeatOf(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(snapshotJSON))
	require.NoError(t, err)

	assert.Equal(t, SeatPlayerOne, snap.SeatOf("u-1"))
	assert.Equal(t, SeatPlayerTwo, snap.SeatOf("u-2"))
	assert.Equal(t, SeatNone, snap.SeatOf("u-3"))
	assert.Equal(t, SeatNone, snap.SeatOf(""))
	assert.True(t, snap.Involves("u-2"))
	assert.False(t, snap.Involves("u-3"))

	var nilSnap *GameSnapshot
	assert.Equal(t, SeatNone, nilSnap.SeatOf("u-1"))
}

func TestSnapshot_IsDraw(t *testing.T) {
	snap := &GameSnapshot{Status: GameFinished}
	assert.True(t, snap.IsDraw())
	snap.Winner = "DRAW"
	assert.True(t, snap.IsDraw())
	snap.Winner = SeatPlayerOne
	assert.False(t, snap.IsDraw())
	snap = &GameSnapshot{Status: GameInProgress}
	assert.False(t, snap.IsDraw())
}

func TestDecodeReaction(t *testing.T) {
	ev, err := DecodeReaction([]byte(`{"gameId":"g","playerId":"u-1","gifCode":"gg","assetPath":"/gifs/gg.gif","timestamp":1700}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1700), ev.Timestamp)
	assert.Equal(t, "gg", ev.GifCode)

	_, err = DecodeReaction([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeReaction([]byte(`{"gameId":"g"}`))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLastMove(t *testing.T) {
	prev := EmptyBoard()
	next := []byte(prev)
	next[24] = 'X'

	pos, ok := LastMove(prev, Board(next))
	require.True(t, ok)
	assert.Equal(t, Position{Row: 3, Col: 3}, pos)

	_, ok = LastMove("", Board(next))
	assert.False(t, ok, "first render never highlights")

	_, ok = LastMove(Board(next), Board(next))
	assert.False(t, ok)
}

func TestLastMove_IgnoresCellsThatBecameEmpty(t *testing.T) {
	prev := []byte(EmptyBoard())
	prev[3] = '1'
	next := []byte(EmptyBoard())
	next[40] = '2'

	pos, ok := LastMove(Board(prev), Board(next))
	require.True(t, ok)
	assert.Equal(t, PositionOf(40), pos)
}

func TestBoard_Grid(t *testing.T) {
	b := Board(strings.Repeat("0", 35) + "1200000")
	grid := b.Grid()
	require.Len(t, grid, Rows)
	assert.Equal(t, []byte("1200000"), grid[5])
	assert.Equal(t, byte('2'), b.Cell(5, 1))
	assert.Equal(t, byte(EmptyCell), b.Cell(9, 9))
	assert.Nil(t, Board("short").Grid())
}
