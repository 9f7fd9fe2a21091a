// Package session implements the session coordinator: the client side state
// machine driving matchmaking, private lobbies and live games.
//
// The coordinator is owned by the client loop. Public operations only post
// work onto the loop and may be called from any goroutine; stream
// subscribers and accessors run on the loop.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/dupuishugo80/ranked4/client/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultJoinDelay lets the presence registration and the lobby
	// subscription land before the server is able to match the player.
	DefaultJoinDelay          = 200 * time.Millisecond
	DefaultMatchmakingTimeout = 5 * time.Minute
	DefaultRequestTimeout     = 10 * time.Second
	DefaultAIDifficulty       = 2

	queueTimerInterval  = time.Second
	privatePollInterval = time.Second

	MsgMatchmakingTimedOut = "No opponent found. Matchmaking timed out."
)

var (
	ErrNoUserID           = errors.New("user id is unknown")
	ErrJoinQueue          = errors.New("failed to join the matchmaking queue")
	ErrLeaveQueue         = errors.New("failed to leave the matchmaking queue")
	ErrCreatePrivateMatch = errors.New("failed to create private match")
	ErrJoinPrivateMatch   = errors.New("failed to join private match")
	ErrStartPrivateMatch  = errors.New("failed to start private match")
	ErrPveGame            = errors.New("failed to create game against the AI")
)

type (
	// Channel is the realtime transport, see transport.Channel.
	Channel interface {
		Connect()
		Disconnect()
		State() *stream.Value[transport.ConnectionState]
		Subscribe(topic string, handler func(transport.Message)) func()
		Publish(destination string, payload any)
	}

	// MatchService is the REST side of matchmaking, see api.Client.
	MatchService interface {
		JoinMatchmaking(ctx context.Context) error
		LeaveMatchmaking(ctx context.Context) error
		CreatePrivateMatch(ctx context.Context) (*model.PrivateMatch, error)
		JoinPrivateMatch(ctx context.Context, code string) error
		StartPrivateMatch(ctx context.Context, code string) (*model.PrivateMatchStart, error)
		PrivateLobby(ctx context.Context, code string) (*model.PrivateLobby, error)
		CreatePveGame(ctx context.Context, difficulty int) (*model.PveGame, error)
	}

	Config struct {
		Logger  *zerolog.Logger
		Loop    *loop.Loop
		Channel Channel
		API     MatchService
		UserID  string

		JoinDelay          time.Duration
		MatchmakingTimeout time.Duration
		RequestTimeout     time.Duration
	}

	Coordinator struct {
		logger zerolog.Logger
		loop   *loop.Loop
		ch     Channel
		api    MatchService
		userID string

		joinDelay          time.Duration
		matchmakingTimeout time.Duration
		requestTimeout     time.Duration

		status      *stream.Value[Status]
		snapshot    *stream.Value[*model.GameSnapshot]
		queueTime   *stream.Value[int]
		privateCode *stream.Value[string]
		guestJoined *stream.Value[bool]
		errs        *stream.Event[string]
		reactions   *stream.Event[model.ReactionEvent]
		matched     *stream.Event[string]

		gameID string
		seat   model.Seat
		// bumped by cleanup, REST completions of an older epoch are ignored
		epoch uint64
		// set while a pve game creation request is in flight
		pveCreating bool

		joinDelayTimer   *loop.Timer
		matchmakingTimer *loop.Timer
		queueTicker      *loop.Timer
		privatePoller    *loop.Timer
		connWait         func()

		lobbyUnsub    func()
		gameUnsub     func()
		reactionUnsub func()
	}
)

func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		logger: cfg.Logger.With().
			Str("component", "session").
			Str("userID", cfg.UserID).
			Logger(),
		loop:               cfg.Loop,
		ch:                 cfg.Channel,
		api:                cfg.API,
		userID:             cfg.UserID,
		joinDelay:          cfg.JoinDelay,
		matchmakingTimeout: cfg.MatchmakingTimeout,
		requestTimeout:     cfg.RequestTimeout,

		status:      stream.NewValue(StatusIdle),
		snapshot:    stream.NewValue[*model.GameSnapshot](nil),
		queueTime:   stream.NewValue(0),
		privateCode: stream.NewValue(""),
		guestJoined: stream.NewValue(false),
		errs:        stream.NewEvent[string](),
		reactions:   stream.NewEvent[model.ReactionEvent](),
		matched:     stream.NewEvent[string](),
	}
	if c.joinDelay <= 0 {
		c.joinDelay = DefaultJoinDelay
	}
	if c.matchmakingTimeout <= 0 {
		c.matchmakingTimeout = DefaultMatchmakingTimeout
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	return c
}

func (c *Coordinator) Status() *stream.Value[Status] { return c.status }

// Snapshot is the latest game snapshot, nil outside of a game.
func (c *Coordinator) Snapshot() *stream.Value[*model.GameSnapshot] { return c.snapshot }

// QueueTime counts the seconds spent in the matchmaking queue.
func (c *Coordinator) QueueTime() *stream.Value[int] { return c.queueTime }

// PrivateCode is the join code of the private lobby hosted by this client.
func (c *Coordinator) PrivateCode() *stream.Value[string] { return c.privateCode }

func (c *Coordinator) GuestJoined() *stream.Value[bool] { return c.guestJoined }

// Errors carries user facing error messages.
func (c *Coordinator) Errors() *stream.Event[string] { return c.errs }

func (c *Coordinator) Reactions() *stream.Event[model.ReactionEvent] { return c.reactions }

// Matched emits the game id when the lobby paired this client.
func (c *Coordinator) Matched() *stream.Event[string] { return c.matched }

// Seat returns the seat of this client in the current game. Loop only.
func (c *Coordinator) Seat() model.Seat { return c.seat }

// GameID returns the current game id. Loop only.
func (c *Coordinator) GameID() string { return c.gameID }

func (c *Coordinator) UserID() string { return c.userID }

func (c *Coordinator) JoinQueue() { c.loop.Post(c.joinQueue) }

func (c *Coordinator) CreatePrivateMatch() { c.loop.Post(c.createPrivateMatch) }

func (c *Coordinator) JoinPrivateMatch(code string) {
	c.loop.Post(func() { c.joinPrivateMatch(code) })
}

func (c *Coordinator) StartPrivateMatch() { c.loop.Post(c.startPrivateMatch) }

func (c *Coordinator) CheckPrivateLobby() { c.loop.Post(c.checkPrivateLobby) }

func (c *Coordinator) PlayAgainstAI(difficulty int) {
	c.loop.Post(func() { c.playAgainstAI(difficulty) })
}

func (c *Coordinator) JoinGameByID(gameID string) {
	c.loop.Post(func() { c.joinGameByID(gameID) })
}

func (c *Coordinator) MakeMove(column int) {
	c.loop.Post(func() { c.makeMove(column) })
}

func (c *Coordinator) SendReaction(gifCode string) {
	c.loop.Post(func() { c.sendReaction(gifCode) })
}

func (c *Coordinator) LeaveGame() { c.loop.Post(c.leaveGame) }

func (c *Coordinator) ResetState() { c.loop.Post(c.resetState) }

// canStart guards the entry points of queueing and games.
func (c *Coordinator) canStart(action string) bool {
	if s := c.status.Get(); s != StatusIdle && s != StatusFinished {
		c.logger.Debug().Str("status", s.String()).Str("action", action).Msg("ignored, session is busy")
		return false
	}
	return true
}

func (c *Coordinator) setStatus(s Status) {
	if c.status.Get() == s {
		return
	}
	c.logger.Debug().Str("status", s.String()).Msg("status changed")
	c.status.Set(s)
}

// whenConnected runs fn once the channel is connected, right away if it
// already is. Cleanup cancels a pending wait.
func (c *Coordinator) whenConnected(fn func()) {
	c.cancelConnWait()

	fired := false
	var unsub func()
	unsub = c.ch.State().Subscribe(func(s transport.ConnectionState) {
		if fired || s != transport.StateConnected {
			return
		}
		fired = true
		if unsub != nil {
			unsub()
			c.connWait = nil
		}
		fn()
	})
	if fired {
		unsub()
		return
	}
	c.connWait = unsub
}

func (c *Coordinator) cancelConnWait() {
	if c.connWait != nil {
		c.connWait()
		c.connWait = nil
	}
}

// call runs a REST request off the loop. done runs on the loop unless the
// session was cleaned up in the meantime.
func (c *Coordinator) call(name string, req func(ctx context.Context) error, done func(err error)) {
	epoch := c.epoch
	timeout := c.requestTimeout
	c.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := req(ctx)
		return func() {
			if epoch != c.epoch {
				c.logger.Debug().Str("request", name).Msg("stale response ignored")
				return
			}
			done(err)
		}
	})
}

// abort ends a session that failed to start.
func (c *Coordinator) abort(sentinel, err error) {
	c.logger.Error().Err(errors.Join(sentinel, err)).Msg("session aborted")
	c.cleanup()
	c.setStatus(StatusIdle)
	c.errs.Emit(sentinel.Error())
}

func (c *Coordinator) leaveGame() {
	if c.status.Get() == StatusQueueing {
		logger := c.logger
		timeout := c.requestTimeout
		c.loop.Go(func() func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := c.api.LeaveMatchmaking(ctx); err != nil {
				logger.Error().Err(errors.Join(ErrLeaveQueue, err)).Msg("leave queue failed")
			}
			return nil
		})
	}
	c.cleanup()
	c.setStatus(StatusIdle)
	c.snapshot.Set(nil)
}

func (c *Coordinator) resetState() {
	c.cleanup()
	c.setStatus(StatusIdle)
	c.snapshot.Set(nil)
	c.privateCode.Set("")
	c.setGuestJoined(false)
}

// cleanup releases every timer, subscription and the connection. It is
// idempotent.
func (c *Coordinator) cleanup() {
	c.cancelConnWait()

	c.joinDelayTimer.Stop()
	c.joinDelayTimer = nil
	c.matchmakingTimer.Stop()
	c.matchmakingTimer = nil
	c.privatePoller.Stop()
	c.privatePoller = nil
	c.stopQueueTimer()
	if c.queueTime.Get() != 0 {
		c.queueTime.Set(0)
	}

	c.unsubscribeLobby()
	if c.gameUnsub != nil {
		c.gameUnsub()
		c.gameUnsub = nil
	}
	if c.reactionUnsub != nil {
		c.reactionUnsub()
		c.reactionUnsub = nil
	}

	c.ch.Disconnect()

	c.gameID = ""
	c.seat = model.SeatNone
	c.pveCreating = false
	c.epoch++
}
