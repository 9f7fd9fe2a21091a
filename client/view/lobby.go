package view

import (
	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/rs/zerolog"
)

const (
	MsgPrivateIdle    = "Choose to create or join a private match."
	MsgPrivateHost    = "Waiting for a friend to join your code."
	MsgPrivateGuest   = "Waiting for the host to start the match."
	MsgPrivateMatched = "Match found! Redirecting to the game..."
)

type (
	// LobbySession is the part of the coordinator the private lobby uses.
	LobbySession interface {
		Status() *stream.Value[session.Status]
		PrivateCode() *stream.Value[string]
		GuestJoined() *stream.Value[bool]
		Errors() *stream.Event[string]
		Matched() *stream.Event[string]
		CreatePrivateMatch()
		JoinPrivateMatch(code string)
		StartPrivateMatch()
		ResetState()
		LeaveGame()
	}

	LobbyState struct {
		Status session.Status
		Phrase string
		IsHost bool
		// Code is the shareable join code, only known to the host.
		Code        string
		GuestJoined bool
		// CanStart reports the host may start the match.
		CanStart bool
		Error    string
		GameID   string
	}

	PrivateLobbyViewConfig struct {
		Logger  *zerolog.Logger
		Loop    *loop.Loop
		Session LobbySession
	}

	PrivateLobbyView struct {
		logger zerolog.Logger
		loop   *loop.Loop
		sess   LobbySession

		state *stream.Value[LobbyState]
		cur   LobbyState
		// role asked for by the last Create or Join, applied once the
		// session enters the lobby
		wantHost bool

		unsubs []func()
	}
)

func NewPrivateLobbyView(cfg PrivateLobbyViewConfig) *PrivateLobbyView {
	initial := LobbyState{Phrase: MsgPrivateIdle}
	return &PrivateLobbyView{
		logger: cfg.Logger.With().Str("component", "lobby-view").Logger(),
		loop:   cfg.Loop,
		sess:   cfg.Session,
		state:  stream.NewValue(initial),
		cur:    initial,
	}
}

func (v *PrivateLobbyView) State() *stream.Value[LobbyState] { return v.state }

// Open shows the lobby screen from a clean session.
func (v *PrivateLobbyView) Open() {
	v.loop.Post(v.open)
}

// Create hosts a new private match. The coordinator resets a finished
// session itself and drops the call when a session is still running.
func (v *PrivateLobbyView) Create() {
	v.loop.Post(func() {
		v.wantHost = true
		v.sess.CreatePrivateMatch()
	})
}

func (v *PrivateLobbyView) Join(code string) {
	v.loop.Post(func() {
		v.wantHost = false
		v.sess.JoinPrivateMatch(code)
	})
}

// Start asks the server to start the hosted match.
func (v *PrivateLobbyView) Start() {
	v.loop.Post(func() {
		if !v.cur.CanStart {
			v.logger.Debug().Msg("match cannot be started yet")
			return
		}
		v.sess.StartPrivateMatch()
	})
}

// Stop detaches the view, leaving a lobby still waiting for its match.
func (v *PrivateLobbyView) Stop() {
	v.loop.Post(func() {
		for _, unsub := range v.unsubs {
			unsub()
		}
		v.unsubs = nil
		if v.sess.Status().Get() == session.StatusQueueing {
			v.sess.LeaveGame()
		}
	})
}

func (v *PrivateLobbyView) open() {
	for _, unsub := range v.unsubs {
		unsub()
	}
	v.sess.ResetState()
	v.cur = LobbyState{Phrase: MsgPrivateIdle}
	v.wantHost = false

	v.unsubs = []func(){
		v.sess.Status().Subscribe(func(s session.Status) {
			if s == session.StatusQueueing && v.cur.Status != session.StatusQueueing {
				v.cur.IsHost = v.wantHost
				v.cur.Error = ""
			}
			if s == session.StatusIdle {
				v.cur.IsHost = false
			}
			v.cur.Status = s
			v.update()
		}),
		v.sess.PrivateCode().Subscribe(func(code string) {
			v.cur.Code = code
			v.update()
		}),
		v.sess.GuestJoined().Subscribe(func(joined bool) {
			v.cur.GuestJoined = joined
			v.update()
		}),
		v.sess.Errors().Subscribe(func(msg string) {
			v.cur.Error = msg
			v.publish()
		}),
		v.sess.Matched().Subscribe(func(gameID string) {
			v.cur.GameID = gameID
			v.publish()
		}),
	}
}

func (v *PrivateLobbyView) update() {
	v.cur.Phrase = LobbyPhrase(v.cur.Status, v.cur.IsHost)
	v.cur.CanStart = v.cur.IsHost &&
		v.cur.Status == session.StatusQueueing &&
		v.cur.Code != "" &&
		v.cur.GuestJoined
	v.publish()
}

func (v *PrivateLobbyView) publish() {
	v.state.Set(v.cur)
}

// LobbyPhrase is the private lobby message for a status and role.
func LobbyPhrase(s session.Status, isHost bool) string {
	switch s {
	case session.StatusQueueing:
		if isHost {
			return MsgPrivateHost
		}
		return MsgPrivateGuest
	case session.StatusInGame:
		return MsgPrivateMatched
	default:
		return MsgPrivateIdle
	}
}
