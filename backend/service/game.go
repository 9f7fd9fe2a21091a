package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/game"
	"github.com/dupuishugo80/ranked4/backend/model"
	store "github.com/dupuishugo80/ranked4/backend/storage/memory"
	cmodel "github.com/dupuishugo80/ranked4/client/model"
)

const (
	TopicLobby = "/topic/lobby"

	destLobbyRegister = "/app/lobby.register"
	destGameJoin      = "/app/game.join/"
	destGameMove      = "/app/game.move/"
	destGameGif       = "/app/game.gif/"
)

var (
	errGameOver    = errors.New("game is not in progress")
	errNotAPlayer  = errors.New("player is not part of this game")
	errNotYourTurn = errors.New("not the player's turn")
	errBadColumn   = errors.New("column does not accept a disc")
)

// gifs is the reaction catalog, codes outside of it are dropped.
var gifs = map[string]string{
	"thumbs_up": "https://media.giphy.com/media/111ebonMs90YLu/giphy.gif",
	"clap":      "https://media.giphy.com/media/fnK0jeA8vIh2QLq3IZ/giphy.gif",
	"fire":      "https://media.giphy.com/media/l0IyhLWvcoVWzIM5W/giphy.gif",
	"laugh":     "https://media.giphy.com/media/3oEjI6SIIHBdRxXI40/giphy.gif",
	"shocked":   "https://media.giphy.com/media/3o6Zt6KHxJTbXCnSvu/giphy.gif",
	"thinking":  "https://media.giphy.com/media/3o7btPCcdNniyf0ArS/giphy.gif",
	"victory":   "https://media.giphy.com/media/g9582DNuQppxC/giphy.gif",
	"facepalm":  "https://media.giphy.com/media/XsUtdIeJ0MWMo/giphy.gif",
}

func GameTopic(gameID string) string {
	return "/topic/game/" + gameID
}

func ReactionTopic(gameID string) string {
	return GameTopic(gameID) + "/gif"
}

// HandleMessage dispatches a SEND frame of a connected player.
func (svc *Service) HandleMessage(ctx context.Context, msg model.Inbound) {
	logger := svc.logger.With().
		Str("userID", msg.SRC).
		Str("destination", msg.Destination).
		Logger()

	switch dest := msg.Destination; {
	case dest == destLobbyRegister:
		logger.Debug().Msg("player registered in lobby")

	case strings.HasPrefix(dest, destGameJoin):
		svc.joinGame(ctx, strings.TrimPrefix(dest, destGameJoin), msg.SRC)

	case strings.HasPrefix(dest, destGameMove):
		var mv cmodel.MoveMessage
		if err := json.Unmarshal(msg.Body, &mv); err != nil {
			logger.Error().Err(err).Msg("malformed move dropped")
			return
		}
		svc.mx.Lock()
		svc.play(ctx, strings.TrimPrefix(dest, destGameMove), msg.SRC, mv.Column)
		svc.mx.Unlock()

	case strings.HasPrefix(dest, destGameGif):
		var r cmodel.ReactionMessage
		if err := json.Unmarshal(msg.Body, &r); err != nil {
			logger.Error().Err(err).Msg("malformed reaction dropped")
			return
		}
		svc.react(ctx, strings.TrimPrefix(dest, destGameGif), msg.SRC, r.GifCode)

	default:
		logger.Warn().Msg("message to unknown destination dropped")
	}
}

func (svc *Service) joinGame(ctx context.Context, gameID, userID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	g, err := svc.store.UpdateGame(gameID, func(g *model.Game) error {
		g.MarkJoined(g.SeatOf(userID))
		return nil
	})
	if err != nil {
		svc.logger.Warn().Err(err).Str("gameID", gameID).Str("userID", userID).Msg("join of unknown game")
		return
	}
	svc.logger.Debug().Str("gameID", gameID).Str("userID", userID).Msg("player joined game")
	svc.publishGame(ctx, g, "")
}

// play applies a move and broadcasts the outcome, then lets the computer
// answer in PvE games. Caller holds svc.mx.
func (svc *Service) play(ctx context.Context, gameID, userID string, column int) {
	logger := svc.logger.With().Str("gameID", gameID).Str("userID", userID).Logger()

	g, err := svc.store.UpdateGame(gameID, func(g *model.Game) error {
		return svc.applyMove(g, userID, column)
	})
	if errors.Is(err, store.ErrGameNotFound) {
		logger.Warn().Msg("move on unknown game dropped")
		return
	}
	if err != nil {
		logger.Debug().Err(err).Int("column", column).Msg("move rejected")
		svc.publishGame(ctx, g, moveErrorMessage(err, g, userID, column))
		return
	}
	logger.Trace().Int("column", column).Msg("move applied")

	if g.Status == cmodel.GameFinished {
		svc.settle(g)
	}
	svc.publishGame(ctx, g, "")

	if g.Status == cmodel.GameInProgress && g.PlayerOf(g.Next) == cmodel.AIUserID && svc.ai != nil {
		difficulty := 2
		if g.AIDifficulty != nil {
			difficulty = *g.AIDifficulty
		}
		svc.play(ctx, gameID, cmodel.AIUserID, svc.ai.BestMove(g.Board, difficulty, g.Next))
	}
}

func (svc *Service) applyMove(g *model.Game, userID string, column int) error {
	if g.Status != cmodel.GameInProgress {
		return errGameOver
	}
	seat := g.SeatOf(userID)
	if seat == cmodel.SeatNone {
		return errNotAPlayer
	}
	if seat != g.Next {
		return errNotYourTurn
	}
	board, row, err := game.Drop(g.Board, column, seat)
	if err != nil {
		return errors.Join(errBadColumn, err)
	}

	g.Board = board
	switch {
	case game.Wins(board, row, column):
		g.Status = cmodel.GameFinished
		g.Winner = seat
	case game.Full(board):
		g.Status = cmodel.GameFinished
		g.Winner = cmodel.SeatNone
	default:
		g.Next = seat.Opponent()
		g.TurnStarted = svc.now()
	}
	return nil
}

func moveErrorMessage(err error, g model.Game, userID string, column int) string {
	switch {
	case errors.Is(err, errGameOver):
		return "Game is not in progress."
	case errors.Is(err, errNotAPlayer):
		return fmt.Sprintf("Player %s is not part of this game.", userID)
	case errors.Is(err, errNotYourTurn):
		return fmt.Sprintf("It's not %s's turn.", g.SeatOf(userID))
	default:
		return fmt.Sprintf("Invalid move. Column %d may be full.", column)
	}
}

func (svc *Service) react(ctx context.Context, gameID, userID, gifCode string) {
	logger := svc.logger.With().Str("gameID", gameID).Str("userID", userID).Logger()

	g, err := svc.store.Game(gameID)
	if err != nil {
		logger.Warn().Err(err).Msg("reaction on unknown game dropped")
		return
	}
	if g.SeatOf(userID) == cmodel.SeatNone {
		logger.Warn().Msg("reaction of a non player dropped")
		return
	}
	asset, ok := gifs[gifCode]
	if !ok {
		logger.Warn().Str("gifCode", gifCode).Msg("unknown reaction dropped")
		return
	}
	b, err := json.Marshal(&cmodel.ReactionEvent{
		GameID:    gameID,
		PlayerID:  userID,
		GifCode:   gifCode,
		AssetPath: asset,
		Timestamp: svc.now().UnixMilli(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal reaction")
		return
	}
	svc.sw.Publish(ctx, ReactionTopic(gameID), b)
}

// Snapshot renders the public state of a game.
func (svc *Service) Snapshot(g model.Game, errMsg string) cmodel.GameSnapshot {
	snap := cmodel.GameSnapshot{
		GameID:       g.ID,
		PlayerOne:    svc.playerInfo(g.PlayerOne),
		PlayerTwo:    svc.playerInfo(g.PlayerTwo),
		BoardState:   g.Board,
		NextPlayer:   g.Next,
		Status:       g.Status,
		Winner:       g.Winner,
		Error:        errMsg,
		Origin:       g.Origin,
		AIDifficulty: g.AIDifficulty,
	}
	if g.Status == cmodel.GameInProgress {
		remaining := svc.turnTimeout - svc.now().Sub(g.TurnStarted)
		secs := max(0, int(math.Ceil(remaining.Seconds())))
		snap.TurnTimeRemainingSeconds = &secs
	}
	return snap
}

func (svc *Service) playerInfo(userID string) cmodel.PlayerInfo {
	if userID == cmodel.AIUserID {
		return cmodel.PlayerInfo{UserID: userID, DisplayName: "AI"}
	}
	p := svc.store.Profile(userID)
	return cmodel.PlayerInfo{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Elo:         p.Elo,
		Disc:        p.Disc,
	}
}

func (svc *Service) publishGame(ctx context.Context, g model.Game, errMsg string) {
	svc.publishSnapshot(ctx, GameTopic(g.ID), g, errMsg)
}

// announce tells the lobby about a new match.
func (svc *Service) announce(ctx context.Context, g model.Game) {
	svc.publishSnapshot(ctx, TopicLobby, g, "")
}

func (svc *Service) publishSnapshot(ctx context.Context, topic string, g model.Game, errMsg string) {
	snap := svc.Snapshot(g, errMsg)
	b, err := json.Marshal(&snap)
	if err != nil {
		svc.logger.Error().Err(err).Str("gameID", g.ID).Msg("failed to marshal snapshot")
		return
	}
	n := svc.sw.Publish(ctx, topic, b)
	svc.logger.Trace().Str("topic", topic).Int("receivers", n).Msg("snapshot published")
}

// Sweep cancels ranked games a player never joined and plays the first free
// column for players whose turn ran out.
func (svc *Service) Sweep(ctx context.Context) {
	for _, id := range svc.store.ActiveGames() {
		svc.sweepGame(ctx, id)
	}
}

func (svc *Service) sweepGame(ctx context.Context, gameID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	g, err := svc.store.Game(gameID)
	if err != nil || g.Status != cmodel.GameInProgress {
		return
	}
	now := svc.now()

	if g.Origin == cmodel.OriginRanked && !g.HasJoined() && now.Sub(g.CreatedAt) >= svc.noShowGrace {
		g, err = svc.store.UpdateGame(gameID, func(g *model.Game) error {
			g.Origin = cmodel.OriginCancelledNoShow
			g.Status = cmodel.GameFinished
			g.Winner = cmodel.SeatNone
			return nil
		})
		if err != nil {
			return
		}
		svc.logger.Warn().
			Str("gameID", gameID).
			Bool("playerOneJoined", g.JoinedOne).
			Bool("playerTwoJoined", g.JoinedTwo).
			Msg("ranked game cancelled, a player never joined")
		svc.publishGame(ctx, g, "")
		return
	}

	if now.Sub(g.TurnStarted) < svc.turnTimeout {
		return
	}
	cols := game.ValidColumns(g.Board)
	if len(cols) == 0 {
		return
	}
	player := g.PlayerOf(g.Next)
	svc.logger.Debug().Str("gameID", gameID).Str("userID", player).Int("column", cols[0]).Msg("turn timed out, playing for the player")
	svc.play(ctx, gameID, player, cols[0])
}

// RunSweeper calls Sweep every interval until ctx is done.
func (svc *Service) RunSweeper(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	defer wg.Done()
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep(ctx)
		}
	}
}
