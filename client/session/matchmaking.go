package session

import (
	"context"
	"errors"
	"strings"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/transport"
)

func (c *Coordinator) joinQueue() {
	if c.status.Get() == StatusFinished {
		c.resetState()
	}
	if !c.canStart("join queue") {
		return
	}

	c.setStatus(StatusQueueing)
	c.startQueueTimer()
	c.ch.Connect()
	c.whenConnected(func() {
		c.enterLobby()
		c.joinDelayTimer = c.loop.After(c.joinDelay, c.requestMatchmaking)
	})
}

func (c *Coordinator) requestMatchmaking() {
	c.joinDelayTimer = nil
	if c.status.Get() != StatusQueueing {
		return
	}
	c.call("join matchmaking", c.api.JoinMatchmaking, func(err error) {
		if err != nil {
			c.abort(ErrJoinQueue, err)
			return
		}
		c.logger.Debug().Msg("waiting for an opponent")
		c.matchmakingTimer = c.loop.After(c.matchmakingTimeout, c.onMatchmakingTimeout)
	})
}

func (c *Coordinator) onMatchmakingTimeout() {
	c.matchmakingTimer = nil
	if c.status.Get() != StatusQueueing {
		return
	}
	c.logger.Warn().Dur("after", c.matchmakingTimeout).Msg("matchmaking timed out")
	c.errs.Emit(MsgMatchmakingTimedOut)
	c.leaveGame()
}

func (c *Coordinator) createPrivateMatch() {
	if c.status.Get() == StatusFinished {
		c.resetState()
	}
	if !c.canStart("create private match") {
		return
	}

	c.setStatus(StatusQueueing)
	c.ch.Connect()
	c.whenConnected(func() {
		c.enterLobby()

		var pm *model.PrivateMatch
		c.call("create private match", func(ctx context.Context) (err error) {
			pm, err = c.api.CreatePrivateMatch(ctx)
			return err
		}, func(err error) {
			if err != nil {
				c.abort(ErrCreatePrivateMatch, err)
				return
			}
			c.logger.Info().Str("code", pm.Code).Msg("private match created")
			c.setGuestJoined(false)
			c.privateCode.Set(pm.Code)
			c.privatePoller = c.loop.Every(privatePollInterval, c.pollPrivateLobby)
		})
	})
}

func (c *Coordinator) joinPrivateMatch(code string) {
	if c.status.Get() == StatusFinished {
		c.resetState()
	}
	if !c.canStart("join private match") {
		return
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		c.logger.Debug().Msg("empty private code ignored")
		return
	}

	c.setStatus(StatusQueueing)
	c.ch.Connect()
	c.whenConnected(func() {
		c.enterLobby()
		c.call("join private match", func(ctx context.Context) error {
			return c.api.JoinPrivateMatch(ctx, code)
		}, func(err error) {
			if err != nil {
				c.abort(ErrJoinPrivateMatch, err)
				return
			}
			c.logger.Info().Str("code", code).Msg("joined private lobby")
		})
	})
}

func (c *Coordinator) startPrivateMatch() {
	code := c.privateCode.Get()
	if code == "" {
		c.logger.Warn().Msg("no private match to start")
		return
	}

	var started *model.PrivateMatchStart
	c.call("start private match", func(ctx context.Context) (err error) {
		started, err = c.api.StartPrivateMatch(ctx, code)
		return err
	}, func(err error) {
		if err != nil {
			c.logger.Error().Err(errors.Join(ErrStartPrivateMatch, err)).Str("code", code).Msg("start failed")
			c.errs.Emit(ErrStartPrivateMatch.Error())
			return
		}
		c.logger.Debug().Str("matchID", started.MatchID).Msg("private match started")
	})
}

func (c *Coordinator) pollPrivateLobby() {
	if c.status.Get() != StatusQueueing {
		c.privatePoller.Stop()
		c.privatePoller = nil
		return
	}
	c.checkPrivateLobby()
}

func (c *Coordinator) checkPrivateLobby() {
	code := c.privateCode.Get()
	if code == "" {
		return
	}

	var lobby *model.PrivateLobby
	c.call("check private lobby", func(ctx context.Context) (err error) {
		lobby, err = c.api.PrivateLobby(ctx, code)
		return err
	}, func(err error) {
		if err != nil {
			c.logger.Debug().Err(err).Str("code", code).Msg("private lobby check failed")
			c.setGuestJoined(false)
			return
		}
		c.setGuestJoined(lobby.HasGuest())
	})
}

func (c *Coordinator) setGuestJoined(joined bool) {
	if c.guestJoined.Get() != joined {
		c.guestJoined.Set(joined)
	}
}

// enterLobby registers presence and listens for the match announcement.
func (c *Coordinator) enterLobby() {
	c.ch.Publish(DestLobbyRegister, model.PresenceMessage{PlayerID: c.userID})
	if c.lobbyUnsub != nil {
		return
	}
	c.lobbyUnsub = c.ch.Subscribe(TopicLobby, c.onLobbyMessage)
}

func (c *Coordinator) unsubscribeLobby() {
	if c.lobbyUnsub != nil {
		c.lobbyUnsub()
		c.lobbyUnsub = nil
	}
}

func (c *Coordinator) onLobbyMessage(msg transport.Message) {
	snap, err := model.DecodeSnapshot(msg.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("topic", msg.Topic).Msg("malformed lobby message dropped")
		return
	}
	if c.userID == "" {
		c.logger.Error().Err(ErrNoUserID).Msg("cannot confirm match")
		return
	}
	if !snap.Involves(c.userID) {
		c.logger.Trace().Str("gameID", snap.GameID).Msg("match of other players")
		return
	}
	if c.status.Get() != StatusQueueing {
		c.logger.Debug().Str("gameID", snap.GameID).Msg("match ignored, not queueing")
		return
	}

	c.matchmakingTimer.Stop()
	c.matchmakingTimer = nil
	c.joinDelayTimer.Stop()
	c.joinDelayTimer = nil
	c.privatePoller.Stop()
	c.privatePoller = nil
	c.stopQueueTimer()

	c.gameID = snap.GameID
	c.seat = snap.SeatOf(c.userID)
	c.logger.Info().
		Str("gameID", snap.GameID).
		Str("seat", string(c.seat)).
		Str("origin", string(snap.Origin)).
		Msg("match found")

	c.setStatus(StatusInGame)
	c.snapshot.Set(snap)
	c.subscribeGame(snap.GameID)
	c.sendJoin(snap.GameID)
	c.unsubscribeLobby()
	c.matched.Emit(snap.GameID)
}

func (c *Coordinator) startQueueTimer() {
	c.stopQueueTimer()
	c.queueTime.Set(0)
	c.queueTicker = c.loop.Every(queueTimerInterval, func() {
		c.queueTime.Set(c.queueTime.Get() + 1)
	})
}

func (c *Coordinator) stopQueueTimer() {
	c.queueTicker.Stop()
	c.queueTicker = nil
}
