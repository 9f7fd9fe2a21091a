package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/model"
	store "github.com/dupuishugo80/ranked4/backend/storage/memory"
	cmodel "github.com/dupuishugo80/ranked4/client/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTurnTimeout   = 60 * time.Second
	DefaultNoShowGrace   = 10 * time.Second
	DefaultSweepInterval = 2 * time.Second

	privateCodeLength   = 6
	privateCodeAttempts = 5
	privateMatchTTL     = 10 * time.Minute
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid request")

	ErrConnect    = errors.New("unable to connect")
	ErrDisconnect = errors.New("unable to disconnect")
)

type (
	Store interface {
		Profile(userID string) cmodel.Profile
		UpdateProfile(userID string, fn func(p *cmodel.Profile)) cmodel.Profile

		Enqueue(userID string)
		Dequeue(userID string) bool
		PopPair() (string, string, bool)

		CreateLobby(code, host string) (model.PrivateLobby, error)
		JoinLobby(code, guest string) (model.PrivateLobby, error)
		Lobby(code string) (model.PrivateLobby, error)
		DeleteLobby(code string)
		DeleteLobbiesOf(userID string)

		SaveGame(g model.Game)
		Game(id string) (model.Game, error)
		UpdateGame(id string, fn func(g *model.Game) error) (model.Game, error)
		ActiveGames() []string
	}

	Switch interface {
		Connect(ctx context.Context, endpoint string, wire model.Wire) error
		Disconnect(endpoint string) error
		Subscribe(endpoint, subID, topic string) error
		Unsubscribe(endpoint, subID string) error
		Publish(ctx context.Context, topic string, body []byte) int
	}

	// Opponent picks the moves of the computer player.
	Opponent interface {
		BestMove(b cmodel.Board, difficulty int, seat cmodel.Seat) int
	}

	Service struct {
		store  Store
		sw     Switch
		ai     Opponent
		logger zerolog.Logger
		now    func() time.Time

		turnTimeout time.Duration
		noShowGrace time.Duration

		// serializes game mutations and their broadcasts
		mx *sync.Mutex
	}

	Config struct {
		Store       Store
		Switch      Switch
		AI          Opponent
		Logger      *zerolog.Logger
		TurnTimeout time.Duration
		NoShowGrace time.Duration
		// Now overrides the wall clock, e.g. in tests.
		Now func() time.Time
	}
)

func NewService(cfg Config) *Service {
	svc := &Service{
		store:       cfg.Store,
		sw:          cfg.Switch,
		ai:          cfg.AI,
		logger:      cfg.Logger.With().Str("component", "service").Logger(),
		now:         cfg.Now,
		turnTimeout: cfg.TurnTimeout,
		noShowGrace: cfg.NoShowGrace,
		mx:          &sync.Mutex{},
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.turnTimeout <= 0 {
		svc.turnTimeout = DefaultTurnTimeout
	}
	if svc.noShowGrace <= 0 {
		svc.noShowGrace = DefaultNoShowGrace
	}
	return svc
}

// CreateSession attaches a broker connection of userID to the switch.
func (svc *Service) CreateSession(ctx context.Context, endpoint, userID string, wire model.Wire) error {
	if err := svc.sw.Connect(ctx, endpoint, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("endpoint", endpoint).
		Msg("session connected")
	return nil
}

func (svc *Service) DeleteSession(_ context.Context, endpoint, userID string) error {
	if err := svc.sw.Disconnect(endpoint); err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("endpoint", endpoint).
		Msg("session deleted")
	return nil
}

func (svc *Service) Subscribe(endpoint, subID, topic string) error {
	return svc.sw.Subscribe(endpoint, subID, topic)
}

func (svc *Service) Unsubscribe(endpoint, subID string) error {
	return svc.sw.Unsubscribe(endpoint, subID)
}

// JoinMatchmaking queues userID and starts a ranked game as soon as two
// players wait.
func (svc *Service) JoinMatchmaking(ctx context.Context, userID string) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	svc.store.Enqueue(userID)
	svc.logger.Debug().Str("userID", userID).Msg("player queued")

	one, two, ok := svc.store.PopPair()
	if !ok {
		return nil
	}
	g := svc.newGame(one, two, cmodel.OriginRanked, nil)
	svc.logger.Info().
		Str("gameID", g.ID).
		Str("playerOne", one).
		Str("playerTwo", two).
		Msg("ranked match found")
	svc.announce(ctx, g)
	return nil
}

func (svc *Service) LeaveMatchmaking(_ context.Context, userID string) error {
	if svc.store.Dequeue(userID) {
		svc.logger.Debug().Str("userID", userID).Msg("player left the queue")
	}
	svc.store.DeleteLobbiesOf(userID)
	return nil
}

func (svc *Service) CreatePrivateMatch(_ context.Context, userID string) (*cmodel.PrivateMatch, error) {
	var err error
	for i := 0; i < privateCodeAttempts; i++ {
		var lobby model.PrivateLobby
		lobby, err = svc.store.CreateLobby(newPrivateCode(), userID)
		if err == nil {
			svc.logger.Debug().Str("userID", userID).Str("code", lobby.Code).Msg("private lobby created")
			return &cmodel.PrivateMatch{
				Code:             lobby.Code,
				ExpiresInSeconds: int(privateMatchTTL.Seconds()),
			}, nil
		}
	}
	return nil, errors.Join(ErrConflict, err)
}

func (svc *Service) JoinPrivateMatch(_ context.Context, userID, code string) error {
	lobby, err := svc.store.JoinLobby(normalizeCode(code), userID)
	if err != nil {
		return lobbyError(err)
	}
	svc.logger.Debug().Str("userID", userID).Str("code", lobby.Code).Msg("guest joined private lobby")
	return nil
}

func (svc *Service) PrivateLobby(_ context.Context, code string) (*cmodel.PrivateLobby, error) {
	lobby, err := svc.store.Lobby(normalizeCode(code))
	if err != nil {
		return nil, lobbyError(err)
	}
	out := &cmodel.PrivateLobby{HostUserID: lobby.Host}
	if lobby.Guest != "" {
		guest := lobby.Guest
		out.GuestUserID = &guest
	}
	return out, nil
}

// StartPrivateMatch turns a full lobby into a casual game, only the host can
// start it.
func (svc *Service) StartPrivateMatch(ctx context.Context, userID, code string) (*cmodel.PrivateMatchStart, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	lobby, err := svc.store.Lobby(normalizeCode(code))
	if err != nil {
		return nil, lobbyError(err)
	}
	if lobby.Host != userID {
		return nil, errors.Join(ErrForbidden, errors.New("only the host can start the match"))
	}
	if lobby.Guest == "" {
		return nil, errors.Join(ErrConflict, errors.New("nobody joined the lobby yet"))
	}
	svc.store.DeleteLobby(lobby.Code)

	g := svc.newGame(lobby.Host, lobby.Guest, cmodel.OriginCasual, nil)
	svc.logger.Info().Str("gameID", g.ID).Str("code", lobby.Code).Msg("private match started")
	svc.announce(ctx, g)
	return &cmodel.PrivateMatchStart{MatchID: g.ID}, nil
}

// CreatePveGame starts a game of userID against the computer, which always
// plays second.
func (svc *Service) CreatePveGame(_ context.Context, userID string, difficulty int) (*cmodel.PveGame, error) {
	if difficulty < 1 || difficulty > 3 {
		return nil, errors.Join(ErrInvalid, errors.New("difficulty must be between 1 and 3"))
	}
	svc.mx.Lock()
	g := svc.newGame(userID, cmodel.AIUserID, cmodel.OriginPvE, &difficulty)
	svc.mx.Unlock()

	svc.logger.Info().Str("gameID", g.ID).Str("userID", userID).Int("difficulty", difficulty).Msg("pve game created")
	return &cmodel.PveGame{GameID: g.ID, PlayerID: userID, Difficulty: difficulty}, nil
}

func (svc *Service) Profile(_ context.Context, userID string) cmodel.Profile {
	return svc.store.Profile(userID)
}

func (svc *Service) newGame(one, two string, origin cmodel.Origin, difficulty *int) model.Game {
	now := svc.now()
	g := model.Game{
		ID:           uuid.NewString(),
		PlayerOne:    one,
		PlayerTwo:    two,
		Board:        cmodel.EmptyBoard(),
		Next:         cmodel.SeatPlayerOne,
		Status:       cmodel.GameInProgress,
		Origin:       origin,
		AIDifficulty: difficulty,
		CreatedAt:    now,
		TurnStarted:  now,
	}
	if two == cmodel.AIUserID {
		g.MarkJoined(cmodel.SeatPlayerTwo)
	}
	svc.store.SaveGame(g)
	return g
}

func newPrivateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:privateCodeLength]
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func lobbyError(err error) error {
	switch {
	case errors.Is(err, store.ErrLobbyNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, store.ErrLobbyFull):
		return errors.Join(ErrConflict, err)
	}
	return err
}
