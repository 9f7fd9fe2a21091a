package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dupuishugo80/ranked4/client/clock"
	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/transport/transporttest"
	"github.com/rs/zerolog"
)

const (
	me    = "user-me"
	other = "user-other"
)

// stubAPI answers every matchmaking call successfully.
type stubAPI struct {
	mx    sync.Mutex
	calls map[string]int
	guest bool
}

func (s *stubAPI) record(call string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[call]++
}

func (s *stubAPI) count(call string) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.calls[call]
}

func (s *stubAPI) JoinMatchmaking(context.Context) error {
	s.record("join")
	return nil
}

func (s *stubAPI) LeaveMatchmaking(context.Context) error {
	s.record("leave")
	return nil
}

func (s *stubAPI) CreatePrivateMatch(context.Context) (*model.PrivateMatch, error) {
	s.record("create")
	return &model.PrivateMatch{Code: "ABC123", ExpiresInSeconds: 600}, nil
}

func (s *stubAPI) JoinPrivateMatch(context.Context, string) error {
	s.record("join-private")
	return nil
}

func (s *stubAPI) StartPrivateMatch(context.Context, string) (*model.PrivateMatchStart, error) {
	s.record("start")
	return &model.PrivateMatchStart{MatchID: "g-private"}, nil
}

func (s *stubAPI) PrivateLobby(context.Context, string) (*model.PrivateLobby, error) {
	s.record("lobby")
	s.mx.Lock()
	defer s.mx.Unlock()
	lobby := &model.PrivateLobby{HostUserID: me}
	if s.guest {
		guest := other
		lobby.GuestUserID = &guest
	}
	return lobby, nil
}

func (s *stubAPI) CreatePveGame(_ context.Context, difficulty int) (*model.PveGame, error) {
	s.record("pve")
	return &model.PveGame{GameID: "g-ai", PlayerID: me, Difficulty: difficulty}, nil
}

// profiles returns the queued ratings in order, repeating the last one.
type profiles struct {
	mx   sync.Mutex
	elos []int
	err  error
}

func (p *profiles) MyProfile(context.Context) (*model.Profile, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if len(p.elos) == 0 {
		return nil, errors.New("no profile")
	}
	elo := p.elos[0]
	if len(p.elos) > 1 {
		p.elos = p.elos[1:]
	}
	return &model.Profile{UserID: me, Elo: elo}, nil
}

type fixture struct {
	clock    *clock.Manual
	loop     *loop.Loop
	ch       *transporttest.FakeChannel
	api      *stubAPI
	profiles *profiles
	sess     *session.Coordinator
	logger   zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.NewManual(time.Unix(1700000000, 0))
	lp := loop.New(loop.Config{Logger: &logger, Clock: clk})

	ch := transporttest.NewFakeChannel()
	ch.AutoConnect = true
	api := &stubAPI{}

	return &fixture{
		clock:    clk,
		loop:     lp,
		ch:       ch,
		api:      api,
		profiles: &profiles{elos: []int{1200}},
		logger:   logger,
		sess: session.NewCoordinator(session.Config{
			Logger:  &logger,
			Loop:    lp,
			Channel: ch,
			API:     api,
			UserID:  me,
		}),
	}
}

func (fx *fixture) flush() {
	fx.loop.Flush()
}

func (fx *fixture) advance(d time.Duration) {
	fx.clock.Advance(d)
	fx.loop.Flush()
}

func (fx *fixture) deliver(topic string, payload any) {
	fx.ch.Deliver(topic, payload)
	fx.flush()
}

func snapshot(gameID, p1, p2 string) *model.GameSnapshot {
	return &model.GameSnapshot{
		GameID:     gameID,
		PlayerOne:  model.PlayerInfo{UserID: p1, DisplayName: p1, Elo: 1200},
		PlayerTwo:  model.PlayerInfo{UserID: p2, DisplayName: p2, Elo: 1200},
		BoardState: model.EmptyBoard(),
		NextPlayer: model.SeatPlayerOne,
		Status:     model.GameInProgress,
		Origin:     model.OriginRanked,
	}
}

// play drops a disc of seat marker into the lowest free cell of column.
func play(b model.Board, column int, marker byte) model.Board {
	cells := []byte(b)
	for r := model.Rows - 1; r >= 0; r-- {
		if cells[r*model.Cols+column] == model.EmptyCell {
			cells[r*model.Cols+column] = marker
			break
		}
	}
	return model.Board(cells)
}
