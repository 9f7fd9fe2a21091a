package model

import (
	"time"

	"github.com/dupuishugo80/ranked4/client/model"
)

// Game is the server side record of a match.
type Game struct {
	ID           string
	PlayerOne    string
	PlayerTwo    string
	Board        model.Board
	Next         model.Seat
	Status       model.GameStatus
	Winner       model.Seat
	Origin       model.Origin
	AIDifficulty *int
	CreatedAt    time.Time
	TurnStarted  time.Time
	// set once the seat sent a join for this game
	JoinedOne bool
	JoinedTwo bool
}

// PlayerOf returns the user id sitting on seat.
func (g *Game) PlayerOf(seat model.Seat) string {
	switch seat {
	case model.SeatPlayerOne:
		return g.PlayerOne
	case model.SeatPlayerTwo:
		return g.PlayerTwo
	}
	return ""
}

// SeatOf returns the seat of userID, or SeatNone.
func (g *Game) SeatOf(userID string) model.Seat {
	switch userID {
	case g.PlayerOne:
		return model.SeatPlayerOne
	case g.PlayerTwo:
		return model.SeatPlayerTwo
	}
	return model.SeatNone
}

// HasJoined reports whether both seats announced themselves.
func (g *Game) HasJoined() bool {
	return g.JoinedOne && g.JoinedTwo
}

// MarkJoined records the join of seat.
func (g *Game) MarkJoined(seat model.Seat) {
	switch seat {
	case model.SeatPlayerOne:
		g.JoinedOne = true
	case model.SeatPlayerTwo:
		g.JoinedTwo = true
	}
}

type PrivateLobby struct {
	Code      string
	Host      string
	Guest     string
	CreatedAt time.Time
}

// Inbound is a SEND frame received from a connection, SRC is assigned by
// the server from the authenticated session.
type Inbound struct {
	SRC         string
	Destination string
	Body        []byte
}

// Delivery is a MESSAGE frame bound to one subscription of a connection.
type Delivery struct {
	Subscription string
	Destination  string
	MessageID    string
	Body         []byte
}

type Wire struct {
	RX chan Inbound
	TX chan Delivery
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Inbound),
		TX: make(chan Delivery),
	}
}
