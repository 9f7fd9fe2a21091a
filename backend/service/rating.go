package service

import (
	"math"

	"github.com/dupuishugo80/ranked4/backend/model"
	cmodel "github.com/dupuishugo80/ranked4/client/model"
)

const eloK = 30

type reward struct {
	win  int
	draw int
}

var (
	rewardRanked = reward{win: 100, draw: 50}
	rewardCasual = reward{win: 50, draw: 25}

	rewardPvE = map[int]reward{
		1: {win: 50, draw: 25},
		2: {win: 100, draw: 50},
		3: {win: 200, draw: 100},
	}
)

func rewardFor(origin cmodel.Origin, difficulty *int) reward {
	switch origin {
	case cmodel.OriginRanked:
		return rewardRanked
	case cmodel.OriginPvE:
		if difficulty != nil {
			if r, ok := rewardPvE[*difficulty]; ok {
				return r
			}
		}
		return rewardPvE[2]
	}
	return rewardCasual
}

// EloDelta is the rating change of a player rated elo against opponent for
// score 1 (win), 0.5 (draw) or 0 (loss).
func EloDelta(elo, opponent int, score float64) int {
	expected := 1 / (1 + math.Pow(10, float64(opponent-elo)/400))
	return int(math.Round(eloK * (score - expected)))
}

// settle books the result of a finished game on the players' profiles.
func (svc *Service) settle(g model.Game) {
	if g.Origin == cmodel.OriginCancelledNoShow {
		return
	}
	r := rewardFor(g.Origin, g.AIDifficulty)

	var eloOne, eloTwo int
	if g.Origin == cmodel.OriginRanked {
		one, two := svc.store.Profile(g.PlayerOne), svc.store.Profile(g.PlayerTwo)
		scoreOne := 0.5
		switch g.Winner {
		case cmodel.SeatPlayerOne:
			scoreOne = 1
		case cmodel.SeatPlayerTwo:
			scoreOne = 0
		}
		eloOne = EloDelta(one.Elo, two.Elo, scoreOne)
		eloTwo = EloDelta(two.Elo, one.Elo, 1-scoreOne)
	}

	for seat, delta := range map[cmodel.Seat]int{cmodel.SeatPlayerOne: eloOne, cmodel.SeatPlayerTwo: eloTwo} {
		userID := g.PlayerOf(seat)
		if userID == cmodel.AIUserID {
			continue
		}
		p := svc.store.UpdateProfile(userID, func(p *cmodel.Profile) {
			p.GamesPlayed++
			p.Elo += delta
			switch g.Winner {
			case seat:
				p.Wins++
				p.Gold += r.win
			case cmodel.SeatNone:
				p.Draws++
				p.Gold += r.draw
			default:
				p.Losses++
			}
		})
		svc.logger.Debug().
			Str("gameID", g.ID).
			Str("userID", userID).
			Int("elo", p.Elo).
			Int("gold", p.Gold).
			Msg("result booked")
	}
}
