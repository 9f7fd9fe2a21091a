package view

import (
	"fmt"

	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/rs/zerolog"
)

const (
	MsgConnecting    = "Connecting..."
	MsgInQueue       = "In queue. Searching for an opponent..."
	MsgOpponentFound = "Opponent found! Starting..."
	MsgCancelling    = "Cancelling..."
)

type (
	// QueueSession is the part of the coordinator the queue screens use.
	QueueSession interface {
		Status() *stream.Value[session.Status]
		QueueTime() *stream.Value[int]
		Errors() *stream.Event[string]
		Matched() *stream.Event[string]
		JoinQueue()
		LeaveGame()
	}

	MatchmakingState struct {
		Status  session.Status
		Phrase  string
		Seconds int
		Elapsed string
		// Error is the last error reported while queueing.
		Error string
		// GameID is set once an opponent was found.
		GameID string
	}

	MatchmakingViewConfig struct {
		Logger  *zerolog.Logger
		Loop    *loop.Loop
		Session QueueSession
	}

	MatchmakingView struct {
		logger zerolog.Logger
		loop   *loop.Loop
		sess   QueueSession

		state *stream.Value[MatchmakingState]
		cur   MatchmakingState

		cancelling bool
		unsubs     []func()
	}
)

func NewMatchmakingView(cfg MatchmakingViewConfig) *MatchmakingView {
	initial := MatchmakingState{Phrase: MsgConnecting, Elapsed: FormatElapsed(0)}
	return &MatchmakingView{
		logger: cfg.Logger.With().Str("component", "matchmaking-view").Logger(),
		loop:   cfg.Loop,
		sess:   cfg.Session,
		state:  stream.NewValue(initial),
		cur:    initial,
	}
}

func (v *MatchmakingView) State() *stream.Value[MatchmakingState] { return v.state }

// Enter shows the queue screen and joins the queue unless already in it.
func (v *MatchmakingView) Enter() {
	v.loop.Post(v.enter)
}

// Cancel leaves the queue.
func (v *MatchmakingView) Cancel() {
	v.loop.Post(func() {
		v.cancelling = true
		v.cur.Phrase = MsgCancelling
		v.publish()
		v.sess.LeaveGame()
	})
}

// Stop detaches the view, leaving the queue if still in it.
func (v *MatchmakingView) Stop() {
	v.loop.Post(func() {
		v.detach()
		if v.sess.Status().Get() == session.StatusQueueing {
			v.sess.LeaveGame()
		}
	})
}

func (v *MatchmakingView) enter() {
	v.detach()
	v.cancelling = false
	v.cur = MatchmakingState{Phrase: MsgConnecting, Elapsed: FormatElapsed(0)}

	if v.sess.Status().Get() != session.StatusQueueing {
		v.sess.LeaveGame()
		v.sess.JoinQueue()
	}

	v.unsubs = append(v.unsubs,
		v.sess.Status().Subscribe(v.onStatus),
		v.sess.QueueTime().Subscribe(v.onQueueTime),
		v.sess.Errors().Subscribe(v.onError),
		v.sess.Matched().Subscribe(v.onMatched),
	)
}

func (v *MatchmakingView) detach() {
	for _, unsub := range v.unsubs {
		unsub()
	}
	v.unsubs = nil
}

func (v *MatchmakingView) onStatus(s session.Status) {
	v.cur.Status = s
	if !v.cancelling || s != session.StatusIdle {
		v.cur.Phrase = StatusPhrase(s)
	}
	if s == session.StatusIdle {
		v.cancelling = false
	}
	v.publish()
}

func (v *MatchmakingView) onQueueTime(seconds int) {
	v.cur.Seconds = seconds
	v.cur.Elapsed = FormatElapsed(seconds)
	v.publish()
}

func (v *MatchmakingView) onError(msg string) {
	v.logger.Debug().Str("error", msg).Msg("queue error")
	v.cur.Error = msg
	v.publish()
}

func (v *MatchmakingView) onMatched(gameID string) {
	v.cur.GameID = gameID
	v.publish()
}

func (v *MatchmakingView) publish() {
	v.state.Set(v.cur)
}

// StatusPhrase is the queue screen message for a session status.
func StatusPhrase(s session.Status) string {
	switch s {
	case session.StatusQueueing:
		return MsgInQueue
	case session.StatusInGame:
		return MsgOpponentFound
	default:
		return MsgConnecting
	}
}

// FormatElapsed renders seconds as MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
