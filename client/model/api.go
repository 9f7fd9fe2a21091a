package model

// REST response bodies.
type (
	PrivateMatch struct {
		Code             string `json:"code"`
		ExpiresInSeconds int    `json:"expiresInSeconds"`
	}

	PrivateMatchStart struct {
		MatchID string `json:"matchId"`
	}

	PrivateLobby struct {
		HostUserID  string  `json:"hostUserId"`
		GuestUserID *string `json:"guestUserId"`
	}

	PveGame struct {
		GameID     string `json:"gameId"`
		PlayerID   string `json:"playerId"`
		Difficulty int    `json:"difficulty"`
	}

	Profile struct {
		UserID      string             `json:"userId"`
		DisplayName string             `json:"displayName"`
		AvatarURL   string             `json:"avatarUrl"`
		Elo         int                `json:"elo"`
		Gold        int                `json:"gold"`
		GamesPlayed int                `json:"gamesPlayed"`
		Wins        int                `json:"wins"`
		Losses      int                `json:"losses"`
		Draws       int                `json:"draws"`
		Disc        *DiscCustomization `json:"disc"`
	}
)

// PrivateCodeRequest is the body of private-match join/start calls.
type PrivateCodeRequest struct {
	Code string `json:"code"`
}

// HasGuest reports whether a guest joined the lobby.
func (l *PrivateLobby) HasGuest() bool {
	return l != nil && l.GuestUserID != nil && *l.GuestUserID != ""
}
