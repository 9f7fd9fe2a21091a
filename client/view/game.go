// Package view derives what the game screens display from the session
// coordinator. Views never touch the transport, they only read coordinator
// streams and call coordinator operations.
package view

import (
	"context"
	"time"

	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/storage/memory"
	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/rs/zerolog"
)

const (
	ErrorMessageDuration = 3 * time.Second
	ReactionDuration     = 3 * time.Second
	EloSettleDelay       = time.Second

	countdownInterval     = time.Second
	defaultProfileTimeout = 10 * time.Second
)

// Cue is a one-shot notification, e.g. a sound.
type Cue int

const (
	CueMatchFound Cue = iota
	CueYourTurn
)

type (
	// GameSession is the part of the coordinator the game screen uses.
	GameSession interface {
		Status() *stream.Value[session.Status]
		Snapshot() *stream.Value[*model.GameSnapshot]
		Reactions() *stream.Event[model.ReactionEvent]
		Seat() model.Seat
		UserID() string
		JoinGameByID(gameID string)
		MakeMove(column int)
		SendReaction(gifCode string)
		LeaveGame()
	}

	ProfileService interface {
		MyProfile(ctx context.Context) (*model.Profile, error)
	}

	GameState struct {
		GameID   string
		Seat     model.Seat
		Status   model.GameStatus
		Board    [][]byte
		IsMyTurn bool
		LastMove *model.Position

		Message string
		Outcome OutcomeKind
		Gold    *int
		// EloChange is only known for ranked games, a moment after the end.
		EloChange *int
		Loser     bool

		TurnTimeRemaining *int

		Me            *model.PlayerInfo
		Opponent      *model.PlayerInfo
		PlayerOneDisc DiscStyle
		PlayerTwoDisc DiscStyle

		// Reactions currently displayed, keyed by player id.
		Reactions map[string]model.ReactionEvent
	}

	GameViewConfig struct {
		Logger   *zerolog.Logger
		Loop     *loop.Loop
		Session  GameSession
		Profiles ProfileService
	}

	GameView struct {
		logger   zerolog.Logger
		loop     *loop.Loop
		sess     GameSession
		profiles ProfileService

		state     *stream.Value[GameState]
		cues      *stream.Event[Cue]
		reactions *memory.Reactions

		cur        GameState
		gameID     string
		seat       model.Seat
		board      model.Board
		rendered   bool
		initialElo *int
		epoch      uint64

		unsubs         []func()
		countdown      *loop.Timer
		revert         *loop.Timer
		eloRefresh     *loop.Timer
		reactionTimers []*loop.Timer
	}
)

func NewGameView(cfg GameViewConfig) *GameView {
	return &GameView{
		logger:    cfg.Logger.With().Str("component", "game-view").Logger(),
		loop:      cfg.Loop,
		sess:      cfg.Session,
		profiles:  cfg.Profiles,
		state:     stream.NewValue(GameState{Message: MsgLoading}),
		cues:      stream.NewEvent[Cue](),
		reactions: memory.NewReactions(),
	}
}

func (v *GameView) State() *stream.Value[GameState] { return v.state }

func (v *GameView) Cues() *stream.Event[Cue] { return v.cues }

// Start attaches the view to gameID, joining the game unless the session
// is already in it.
func (v *GameView) Start(gameID string) {
	v.loop.Post(func() { v.start(gameID) })
}

// Stop detaches the view. A game still in progress is left.
func (v *GameView) Stop() {
	v.loop.Post(v.stop)
}

// Move plays column when it is this client's turn.
func (v *GameView) Move(column int) {
	v.loop.Post(func() {
		if !v.cur.IsMyTurn || v.cur.Status == model.GameFinished {
			v.logger.Debug().Int("column", column).Msg("not my turn")
			return
		}
		v.sess.MakeMove(column)
	})
}

func (v *GameView) React(gifCode string) {
	v.loop.Post(func() { v.sess.SendReaction(gifCode) })
}

func (v *GameView) start(gameID string) {
	v.release()
	v.cur = GameState{GameID: gameID, Message: MsgLoading}
	v.gameID = gameID
	v.seat = v.sess.Seat()
	v.board = ""
	v.rendered = false
	v.initialElo = nil

	if gameID != "" && v.sess.Status().Get() != session.StatusInGame {
		v.sess.JoinGameByID(gameID)
	}

	v.fetchProfile(func(p *model.Profile) {
		elo := p.Elo
		v.initialElo = &elo
	})
	v.cues.Emit(CueMatchFound)

	v.unsubs = append(v.unsubs,
		v.sess.Reactions().Subscribe(v.onReaction),
		v.sess.Snapshot().Subscribe(v.onSnapshot),
	)
}

func (v *GameView) stop() {
	v.release()
	if v.cur.Status != model.GameFinished {
		v.sess.LeaveGame()
	}
}

// release drops every subscription and timer of the view.
func (v *GameView) release() {
	for _, unsub := range v.unsubs {
		unsub()
	}
	v.unsubs = nil
	v.countdown.Stop()
	v.countdown = nil
	v.revert.Stop()
	v.revert = nil
	v.eloRefresh.Stop()
	v.eloRefresh = nil
	for _, t := range v.reactionTimers {
		t.Stop()
	}
	v.reactionTimers = nil
	v.reactions.Reset()
	v.epoch++
}

func (v *GameView) onSnapshot(snap *model.GameSnapshot) {
	if snap == nil {
		return
	}
	if v.gameID != "" && snap.GameID != v.gameID {
		v.logger.Debug().Str("gameID", snap.GameID).Msg("snapshot of another game ignored")
		return
	}
	if v.seat == model.SeatNone {
		v.seat = v.sess.Seat()
	}
	if v.seat == model.SeatNone {
		v.seat = snap.SeatOf(v.sess.UserID())
	}

	s := &v.cur
	s.GameID = snap.GameID
	s.Seat = v.seat
	s.Status = snap.Status
	if v.seat == model.SeatPlayerOne {
		s.Me, s.Opponent = displayPlayer(snap.PlayerOne), displayPlayer(snap.PlayerTwo)
	} else {
		s.Me, s.Opponent = displayPlayer(snap.PlayerTwo), displayPlayer(snap.PlayerOne)
	}
	s.PlayerOneDisc, s.PlayerTwoDisc = DiscStyles(snap.PlayerOne.Disc, snap.PlayerTwo.Disc)

	isMyTurn := v.seat != model.SeatNone &&
		snap.NextPlayer == v.seat &&
		snap.Status == model.GameInProgress
	if isMyTurn && !s.IsMyTurn && v.rendered {
		v.cues.Emit(CueYourTurn)
	}
	s.IsMyTurn = isMyTurn

	if !v.rendered {
		s.LastMove = nil
	} else if v.board != snap.BoardState {
		if pos, ok := model.LastMove(v.board, snap.BoardState); ok {
			s.LastMove = &pos
		}
	}
	v.board = snap.BoardState
	v.rendered = true
	s.Board = snap.BoardState.Grid()

	v.applyOutcome(snap)

	if snap.TurnTimeRemainingSeconds != nil && snap.Status != model.GameFinished {
		v.seedCountdown(*snap.TurnTimeRemainingSeconds)
	} else {
		s.TurnTimeRemaining = nil
		v.countdown.Stop()
		v.countdown = nil
	}

	v.publish()
}

func (v *GameView) applyOutcome(snap *model.GameSnapshot) {
	s := &v.cur
	out := DeriveOutcome(snap, v.seat, s.IsMyTurn)
	s.Message = out.Message
	s.Outcome = out.Kind
	s.Loser = out.Loser

	switch out.Kind {
	case OutcomeError:
		v.revert.Stop()
		v.revert = v.loop.After(ErrorMessageDuration, func() {
			v.revert = nil
			if v.cur.Status == model.GameInProgress && v.cur.IsMyTurn {
				v.cur.Message = MsgYourTurn
				v.cur.Outcome = OutcomeTurn
				v.publish()
			}
		})
	case OutcomeCancelled:
		s.Gold = nil
		s.EloChange = nil
	case OutcomeWin, OutcomeDraw, OutcomeLoss:
		s.Gold = out.Gold
		if snap.Origin != model.OriginRanked {
			s.EloChange = nil
			return
		}
		if v.eloRefresh == nil {
			v.eloRefresh = v.loop.After(EloSettleDelay, v.refreshElo)
		}
	}
}

func (v *GameView) refreshElo() {
	v.fetchProfile(func(p *model.Profile) {
		if v.initialElo == nil {
			v.logger.Warn().Msg("initial rating unknown, no rating change")
			return
		}
		delta := p.Elo - *v.initialElo
		v.cur.EloChange = &delta
		v.publish()
	})
}

func (v *GameView) fetchProfile(done func(p *model.Profile)) {
	if v.profiles == nil {
		return
	}
	epoch := v.epoch
	profiles := v.profiles
	v.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultProfileTimeout)
		defer cancel()
		p, err := profiles.MyProfile(ctx)
		return func() {
			if epoch != v.epoch {
				return
			}
			if err != nil {
				v.logger.Error().Err(err).Msg("failed to load profile")
				return
			}
			done(p)
		}
	})
}

func (v *GameView) seedCountdown(seconds int) {
	v.countdown.Stop()
	if seconds < 0 {
		seconds = 0
	}
	v.cur.TurnTimeRemaining = intPtr(seconds)
	v.countdown = v.loop.Every(countdownInterval, func() {
		r := v.cur.TurnTimeRemaining
		if r == nil || *r <= 0 {
			return
		}
		v.cur.TurnTimeRemaining = intPtr(*r - 1)
		v.publish()
	})
}

func (v *GameView) onReaction(ev model.ReactionEvent) {
	v.reactions.Hold(ev)
	playerID, ts := ev.PlayerID, ev.Timestamp

	active := v.reactionTimers[:0]
	for _, t := range v.reactionTimers {
		if t.Active() {
			active = append(active, t)
		}
	}
	v.reactionTimers = append(active, v.loop.After(ReactionDuration, func() {
		if v.reactions.ClearIf(playerID, ts) {
			v.publish()
		}
	}))
	v.publish()
}

// Reaction returns the reaction displayed for playerID.
func (v *GameView) Reaction(playerID string) (model.ReactionEvent, bool) {
	return v.reactions.Get(playerID)
}

func (v *GameView) publish() {
	v.cur.Reactions = v.reactions.All()
	v.state.Set(v.cur)
}
