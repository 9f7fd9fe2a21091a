package session

import (
	"context"
	"errors"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/transport"
)

func (c *Coordinator) joinGameByID(gameID string) {
	if c.userID == "" {
		c.logger.Error().Err(ErrNoUserID).Str("gameID", gameID).Msg("cannot join game")
		return
	}
	if gameID == "" {
		return
	}
	if c.status.Get() == StatusFinished {
		c.resetState()
	}
	if !c.canStart("join game") {
		return
	}

	c.gameID = gameID
	c.setStatus(StatusInGame)
	c.ch.Connect()
	c.whenConnected(func() {
		// the join makes the server push the first snapshot, subscribe first
		c.subscribeGame(gameID)
		c.sendJoin(gameID)
	})
}

func (c *Coordinator) playAgainstAI(difficulty int) {
	if c.userID == "" {
		c.logger.Error().Err(ErrNoUserID).Msg("cannot play against the AI")
		return
	}
	if c.pveCreating {
		c.logger.Debug().Msg("ignored, pve game creation in progress")
		return
	}
	if !c.canStart("play against AI") {
		return
	}
	if difficulty < 1 || difficulty > 3 {
		difficulty = DefaultAIDifficulty
	}

	var game *model.PveGame
	c.pveCreating = true
	c.call("create pve game", func(ctx context.Context) (err error) {
		game, err = c.api.CreatePveGame(ctx, difficulty)
		return err
	}, func(err error) {
		c.pveCreating = false
		if err != nil {
			c.logger.Error().Err(errors.Join(ErrPveGame, err)).Int("difficulty", difficulty).Msg("pve game failed")
			c.errs.Emit(ErrPveGame.Error())
			return
		}
		c.logger.Info().Str("gameID", game.GameID).Int("difficulty", game.Difficulty).Msg("pve game created")
		c.joinGameByID(game.GameID)
	})
}

func (c *Coordinator) subscribeGame(gameID string) {
	if c.gameUnsub != nil {
		return
	}
	c.gameUnsub = c.ch.Subscribe(GameTopic(gameID), c.onGameMessage)
	c.reactionUnsub = c.ch.Subscribe(ReactionTopic(gameID), c.onReactionMessage)
}

func (c *Coordinator) sendJoin(gameID string) {
	if gameID == "" || c.userID == "" {
		c.logger.Error().Str("gameID", gameID).Msg("cannot announce join, game or user id missing")
		return
	}
	c.ch.Publish(JoinDestination(gameID), model.PresenceMessage{PlayerID: c.userID})
}

func (c *Coordinator) onGameMessage(msg transport.Message) {
	snap, err := model.DecodeSnapshot(msg.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("topic", msg.Topic).Msg("malformed game message dropped")
		return
	}

	if c.seat == model.SeatNone && c.userID != "" {
		c.seat = snap.SeatOf(c.userID)
	}
	if snap.Error != "" {
		c.logger.Warn().Str("gameID", snap.GameID).Str("error", snap.Error).Msg("game error")
		c.errs.Emit(snap.Error)
	}

	if snap.Status == model.GameFinished {
		c.logger.Info().
			Str("gameID", snap.GameID).
			Str("winner", string(snap.Winner)).
			Str("origin", string(snap.Origin)).
			Msg("game finished")
		c.setStatus(StatusFinished)
		// the final snapshot stays available for display
		c.snapshot.Set(snap)
		c.cleanup()
		return
	}
	c.snapshot.Set(snap)
}

func (c *Coordinator) onReactionMessage(msg transport.Message) {
	ev, err := model.DecodeReaction(msg.Body)
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("invalid reaction dropped")
		return
	}
	c.reactions.Emit(ev)
}

func (c *Coordinator) makeMove(column int) {
	if c.status.Get() != StatusInGame || c.gameID == "" || c.userID == "" {
		c.logger.Warn().Int("column", column).Msg("cannot move, not in a game")
		return
	}
	c.ch.Publish(MoveDestination(c.gameID), model.MoveMessage{
		GameID:   c.gameID,
		PlayerID: c.userID,
		Column:   column,
	})
}

func (c *Coordinator) sendReaction(gifCode string) {
	if c.status.Get() != StatusInGame || c.gameID == "" || c.userID == "" {
		return
	}
	if c.ch.State().Get() != transport.StateConnected {
		c.logger.Warn().Str("gifCode", gifCode).Msg("not connected, reaction dropped")
		return
	}
	c.ch.Publish(ReactionDestination(c.gameID), model.ReactionMessage{
		GameID:   c.gameID,
		PlayerID: c.userID,
		GifCode:  gifCode,
	})
}
