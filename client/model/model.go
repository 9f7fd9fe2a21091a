package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Seat string

const (
	SeatNone      Seat = ""
	SeatPlayerOne Seat = "PLAYER_ONE"
	SeatPlayerTwo Seat = "PLAYER_TWO"
)

type GameStatus string

const (
	GameInProgress GameStatus = "IN_PROGRESS"
	GameFinished   GameStatus = "FINISHED"
)

// Origin is how a game was created.
type Origin string

const (
	OriginRanked          Origin = "RANKED"
	OriginCasual          Origin = "CASUAL"
	OriginPvE             Origin = "PVE"
	OriginCancelledNoShow Origin = "CANCELLED_NO_SHOW"
)

// Winner value some server revisions send instead of null on a draw.
const winnerDraw = "DRAW"

// AIUserID is the user id the server assigns to the computer opponent.
const AIUserID = "00000000-0000-0000-0000-000000000001"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
)

type DiscCustomization struct {
	ItemCode    string `json:"itemCode,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Type        string `json:"type"` // "color" | "image"
	Value       string `json:"value"`
}

type PlayerInfo struct {
	UserID      string             `json:"userId"`
	DisplayName string             `json:"displayName"`
	AvatarURL   string             `json:"avatarUrl"`
	Elo         int                `json:"elo"`
	Disc        *DiscCustomization `json:"disc"`
}

// GameSnapshot is the authoritative game state pushed by the server.
type GameSnapshot struct {
	GameID                   string     `json:"gameId"`
	PlayerOne                PlayerInfo `json:"playerOne"`
	PlayerTwo                PlayerInfo `json:"playerTwo"`
	BoardState               Board      `json:"boardState"`
	NextPlayer               Seat       `json:"nextPlayer"`
	Status                   GameStatus `json:"status"`
	Winner                   Seat       `json:"winner"`
	Error                    string     `json:"error"`
	Origin                   Origin     `json:"origin"`
	AIDifficulty             *int       `json:"aiDifficulty,omitempty"`
	TurnTimeRemainingSeconds *int       `json:"turnTimeRemainingSeconds,omitempty"`
}

// SeatOf returns the seat userID occupies, or SeatNone.
func (s *GameSnapshot) SeatOf(userID string) Seat {
	if s == nil || userID == "" {
		return SeatNone
	}
	switch userID {
	case s.PlayerOne.UserID:
		return SeatPlayerOne
	case s.PlayerTwo.UserID:
		return SeatPlayerTwo
	}
	return SeatNone
}

func (s *GameSnapshot) Involves(userID string) bool {
	return s.SeatOf(userID) != SeatNone
}

// Player returns the info of the given seat.
func (s *GameSnapshot) Player(seat Seat) *PlayerInfo {
	switch seat {
	case SeatPlayerOne:
		return &s.PlayerOne
	case SeatPlayerTwo:
		return &s.PlayerTwo
	}
	return nil
}

// IsDraw reports a finished game without winner.
func (s *GameSnapshot) IsDraw() bool {
	return s.Status == GameFinished && (s.Winner == SeatNone || s.Winner == winnerDraw)
}

// Opponent returns the other seat.
func (seat Seat) Opponent() Seat {
	switch seat {
	case SeatPlayerOne:
		return SeatPlayerTwo
	case SeatPlayerTwo:
		return SeatPlayerOne
	}
	return SeatNone
}

// DecodeSnapshot parses a snapshot frame body.
func DecodeSnapshot(b []byte) (*GameSnapshot, error) {
	var snap GameSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if snap.GameID == "" {
		return nil, errors.Join(ErrMissingField, errors.New("gameId"))
	}
	if err := snap.BoardState.Validate(); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	switch snap.Status {
	case GameInProgress, GameFinished:
	default:
		return nil, errors.Join(ErrMalformedPayload, fmt.Errorf("unknown status %q", snap.Status))
	}
	return &snap, nil
}

// ReactionEvent is an ephemeral emote sent by a player during a game.
type ReactionEvent struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	GifCode   string `json:"gifCode"`
	AssetPath string `json:"assetPath"`
	Timestamp int64  `json:"timestamp"`
}

func DecodeReaction(b []byte) (ReactionEvent, error) {
	var ev ReactionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ReactionEvent{}, errors.Join(ErrMalformedPayload, err)
	}
	if ev.PlayerID == "" {
		return ReactionEvent{}, errors.Join(ErrMissingField, errors.New("playerId"))
	}
	return ev, nil
}

// Outbound message bodies.
type (
	PresenceMessage struct {
		PlayerID string `json:"playerId"`
	}

	MoveMessage struct {
		GameID   string `json:"gameId"`
		PlayerID string `json:"playerId"`
		Column   int    `json:"column"`
	}

	ReactionMessage struct {
		GameID   string `json:"gameId"`
		PlayerID string `json:"playerId"`
		GifCode  string `json:"gifCode"`
	}
)
