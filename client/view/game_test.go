package view

import (
	"testing"
	"time"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gameFixture struct {
	*fixture
	view *GameView
	cues []Cue
}

func newGameFixture(t *testing.T, gameID string) *gameFixture {
	t.Helper()
	fx := newFixture(t)
	gx := &gameFixture{fixture: fx}
	gx.view = NewGameView(GameViewConfig{
		Logger:   &fx.logger,
		Loop:     fx.loop,
		Session:  fx.sess,
		Profiles: fx.profiles,
	})
	gx.view.Cues().Subscribe(func(c Cue) { gx.cues = append(gx.cues, c) })
	gx.view.Start(gameID)
	gx.flush()
	return gx
}

func (gx *gameFixture) state() GameState {
	return gx.view.State().Get()
}

func TestGameView_StartJoinsByID(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	assert.Equal(t, session.StatusInGame, gx.sess.Status().Get())
	assert.True(t, gx.ch.Subscribed(session.GameTopic("g-1")))
	assert.Len(t, gx.ch.PublishedTo(session.JoinDestination("g-1")), 1)
	assert.Equal(t, []Cue{CueMatchFound}, gx.cues)
	assert.Equal(t, MsgLoading, gx.state().Message)
}

func TestGameView_TurnCueOnRisingEdge(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	first := snapshot("g-1", me, other)
	gx.deliver(session.GameTopic("g-1"), first)

	st := gx.state()
	assert.Equal(t, model.SeatPlayerOne, st.Seat)
	assert.True(t, st.IsMyTurn)
	assert.Equal(t, MsgYourTurn, st.Message)
	assert.Nil(t, st.LastMove, "no last move on the first board")
	assert.Equal(t, []Cue{CueMatchFound}, gx.cues, "first board does not cue")

	second := snapshot("g-1", me, other)
	second.BoardState = play(first.BoardState, 3, '1')
	second.NextPlayer = model.SeatPlayerTwo
	gx.deliver(session.GameTopic("g-1"), second)

	st = gx.state()
	assert.False(t, st.IsMyTurn)
	assert.Equal(t, MsgOpponentTurn, st.Message)
	require.NotNil(t, st.LastMove)
	assert.Equal(t, model.Position{Row: 5, Col: 3}, *st.LastMove)

	third := snapshot("g-1", me, other)
	third.BoardState = play(second.BoardState, 3, '2')
	gx.deliver(session.GameTopic("g-1"), third)

	st = gx.state()
	assert.True(t, st.IsMyTurn)
	require.NotNil(t, st.LastMove)
	assert.Equal(t, model.Position{Row: 4, Col: 3}, *st.LastMove)
	assert.Equal(t, []Cue{CueMatchFound, CueYourTurn}, gx.cues)
	assert.Len(t, st.Board, model.Rows)
}

func TestGameView_TransientError(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	snap := snapshot("g-1", me, other)
	snap.Error = "Column is full"
	gx.deliver(session.GameTopic("g-1"), snap)

	assert.Equal(t, "Error: Column is full", gx.state().Message)
	assert.Equal(t, OutcomeError, gx.state().Outcome)

	gx.advance(ErrorMessageDuration)
	assert.Equal(t, MsgYourTurn, gx.state().Message)
}

func TestGameView_ErrorForOpponentIsNotShown(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	snap := snapshot("g-1", me, other)
	snap.NextPlayer = model.SeatPlayerTwo
	snap.Error = "Not your turn"
	gx.deliver(session.GameTopic("g-1"), snap)

	assert.Equal(t, MsgOpponentTurn, gx.state().Message)
}

func TestGameView_PveWinReward(t *testing.T) {
	gx := newGameFixture(t, "g-ai")

	final := snapshot("g-ai", me, model.AIUserID)
	final.Origin = model.OriginPvE
	hard := 3
	final.AIDifficulty = &hard
	final.Status = model.GameFinished
	final.Winner = model.SeatPlayerOne
	gx.deliver(session.GameTopic("g-ai"), final)

	st := gx.state()
	assert.Equal(t, MsgWon, st.Message)
	require.NotNil(t, st.Gold)
	assert.Equal(t, 200, *st.Gold)
	assert.Nil(t, st.EloChange)
	require.NotNil(t, st.Opponent)
	assert.Equal(t, AIDisplayName, st.Opponent.DisplayName)
	assert.Zero(t, st.Opponent.Elo)
}

func TestGameView_CancelledNoShow(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	final := snapshot("g-1", me, other)
	final.Status = model.GameFinished
	final.Origin = model.OriginCancelledNoShow
	gx.deliver(session.GameTopic("g-1"), final)

	st := gx.state()
	assert.Equal(t, MsgCancelled, st.Message)
	assert.Nil(t, st.Gold)
	assert.Nil(t, st.EloChange)

	gx.advance(EloSettleDelay)
	assert.Nil(t, gx.state().EloChange)
}

func TestGameView_RankedRatingChange(t *testing.T) {
	gx := newGameFixture(t, "g-1")
	gx.profiles.mx.Lock()
	gx.profiles.elos = []int{1216}
	gx.profiles.mx.Unlock()

	final := snapshot("g-1", me, other)
	final.Status = model.GameFinished
	final.Winner = model.SeatPlayerOne
	gx.deliver(session.GameTopic("g-1"), final)

	st := gx.state()
	require.NotNil(t, st.Gold)
	assert.Equal(t, 100, *st.Gold)
	assert.Nil(t, st.EloChange, "rating is refreshed a moment later")

	gx.advance(EloSettleDelay)
	require.NotNil(t, gx.state().EloChange)
	assert.Equal(t, 16, *gx.state().EloChange)
}

func TestGameView_RankedDraw(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	final := snapshot("g-1", other, me)
	final.Status = model.GameFinished
	gx.deliver(session.GameTopic("g-1"), final)

	st := gx.state()
	assert.Equal(t, MsgDraw, st.Message)
	require.NotNil(t, st.Gold)
	assert.Equal(t, 50, *st.Gold)
	assert.False(t, st.Loser)
}

func TestGameView_Countdown(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	snap := snapshot("g-1", me, other)
	remaining := 45
	snap.TurnTimeRemainingSeconds = &remaining
	gx.deliver(session.GameTopic("g-1"), snap)
	require.NotNil(t, gx.state().TurnTimeRemaining)
	assert.Equal(t, 45, *gx.state().TurnTimeRemaining)

	gx.advance(2 * countdownInterval)
	assert.Equal(t, 43, *gx.state().TurnTimeRemaining)

	reseed := snapshot("g-1", me, other)
	short := 1
	reseed.TurnTimeRemainingSeconds = &short
	gx.deliver(session.GameTopic("g-1"), reseed)
	assert.Equal(t, 1, *gx.state().TurnTimeRemaining)

	gx.advance(3 * countdownInterval)
	assert.Equal(t, 0, *gx.state().TurnTimeRemaining, "countdown floors at zero")

	gx.deliver(session.GameTopic("g-1"), snapshot("g-1", me, other))
	assert.Nil(t, gx.state().TurnTimeRemaining)
}

func TestGameView_CountdownStopsWhenFinished(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	snap := snapshot("g-1", me, other)
	remaining := 30
	snap.TurnTimeRemainingSeconds = &remaining
	gx.deliver(session.GameTopic("g-1"), snap)
	require.NotNil(t, gx.state().TurnTimeRemaining)

	final := snapshot("g-1", me, other)
	final.Origin = model.OriginCasual
	final.Status = model.GameFinished
	final.Winner = model.SeatPlayerOne
	left := 28
	final.TurnTimeRemainingSeconds = &left
	gx.deliver(session.GameTopic("g-1"), final)
	assert.Nil(t, gx.state().TurnTimeRemaining)
	assert.Nil(t, gx.view.countdown, "ticker released")

	gx.advance(3 * countdownInterval)
	assert.Nil(t, gx.state().TurnTimeRemaining)
	assert.Equal(t, MsgWon, gx.state().Message)
}

func TestGameView_ReactionExpiryKeepsNewerReaction(t *testing.T) {
	gx := newGameFixture(t, "g-1")
	topic := session.ReactionTopic("g-1")

	gx.deliver(topic, model.ReactionEvent{GameID: "g-1", PlayerID: other, GifCode: "gg", Timestamp: 1})
	assert.Equal(t, "gg", gx.state().Reactions[other].GifCode)

	gx.advance(ReactionDuration - time.Second)
	gx.deliver(topic, model.ReactionEvent{GameID: "g-1", PlayerID: other, GifCode: "wow", Timestamp: 2})

	// the first reaction expires now but must not clear the second one
	gx.advance(time.Second)
	ev, ok := gx.view.Reaction(other)
	require.True(t, ok)
	assert.Equal(t, "wow", ev.GifCode)
	assert.Equal(t, "wow", gx.state().Reactions[other].GifCode)

	gx.advance(ReactionDuration)
	_, ok = gx.view.Reaction(other)
	assert.False(t, ok)
	assert.Empty(t, gx.state().Reactions)
}

func TestGameView_MoveOnlyOnMyTurn(t *testing.T) {
	gx := newGameFixture(t, "g-1")
	dest := session.MoveDestination("g-1")

	gx.view.Move(2)
	gx.flush()
	assert.Empty(t, gx.ch.PublishedTo(dest), "no board yet")

	snap := snapshot("g-1", other, me)
	gx.deliver(session.GameTopic("g-1"), snap)
	gx.view.Move(2)
	gx.flush()
	assert.Empty(t, gx.ch.PublishedTo(dest), "opponent's turn")

	snap.NextPlayer = model.SeatPlayerTwo
	gx.deliver(session.GameTopic("g-1"), snap)
	gx.view.Move(2)
	gx.flush()

	moves := gx.ch.PublishedTo(dest)
	require.Len(t, moves, 1)
	var msg model.MoveMessage
	require.NoError(t, moves[0].Decode(&msg))
	assert.Equal(t, model.MoveMessage{GameID: "g-1", PlayerID: me, Column: 2}, msg)
}

func TestGameView_React(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	gx.view.React("gg")
	gx.flush()
	assert.Len(t, gx.ch.PublishedTo(session.ReactionDestination("g-1")), 1)
}

func TestGameView_StopLeavesGameInProgress(t *testing.T) {
	gx := newGameFixture(t, "g-1")
	gx.deliver(session.GameTopic("g-1"), snapshot("g-1", me, other))

	gx.view.Stop()
	gx.flush()

	assert.Equal(t, session.StatusIdle, gx.sess.Status().Get())
	assert.Equal(t, transport.StateDisconnected, gx.ch.State().Get())
	assert.Zero(t, gx.ch.Topics())
	assert.Zero(t, gx.sess.Snapshot().Subscribers())
	assert.Zero(t, gx.clock.Pending(), "view timers left")
}

func TestGameView_StopAfterFinishKeepsResult(t *testing.T) {
	gx := newGameFixture(t, "g-1")

	final := snapshot("g-1", me, other)
	final.Status = model.GameFinished
	final.Winner = model.SeatPlayerTwo
	gx.deliver(session.GameTopic("g-1"), final)
	assert.Equal(t, MsgLost, gx.state().Message)
	assert.True(t, gx.state().Loser)

	gx.view.Stop()
	gx.flush()

	assert.Equal(t, session.StatusFinished, gx.sess.Status().Get())
	assert.Zero(t, gx.clock.Pending())
}

func TestGameView_AttachesToMatchedGame(t *testing.T) {
	fx := newFixture(t)
	fx.sess.JoinQueue()
	fx.flush()
	fx.advance(session.DefaultJoinDelay)
	fx.deliver(session.TopicLobby, snapshot("g-9", other, me))
	require.Equal(t, session.StatusInGame, fx.sess.Status().Get())

	view := NewGameView(GameViewConfig{Logger: &fx.logger, Loop: fx.loop, Session: fx.sess, Profiles: fx.profiles})
	view.Start("g-9")
	fx.flush()

	assert.Len(t, fx.ch.PublishedTo(session.JoinDestination("g-9")), 1, "no second join")
	st := view.State().Get()
	assert.Equal(t, model.SeatPlayerTwo, st.Seat)
	assert.Equal(t, MsgOpponentTurn, st.Message)
	require.NotNil(t, st.Me)
	assert.Equal(t, me, st.Me.UserID)
}
