package view

import "github.com/dupuishugo80/ranked4/client/model"

const (
	AIDisplayName = "AI"

	DefaultPlayerOneColor = "#dc3545"
	DefaultPlayerTwoColor = "#ffc107"
)

// DiscStyle says how to draw the discs of one player.
type DiscStyle struct {
	Color string
	Image string
	// Highlight is a border color, set when both players picked the same disc.
	Highlight string
}

// DiscStyles derives the disc styles of both seats.
func DiscStyles(one, two *model.DiscCustomization) (DiscStyle, DiscStyle) {
	p1 := discStyle(one, DefaultPlayerOneColor)
	p2 := discStyle(two, DefaultPlayerTwoColor)
	if one != nil && two != nil && one.Type == two.Type && one.Value == two.Value {
		p1.Highlight = DefaultPlayerTwoColor
		p2.Highlight = DefaultPlayerOneColor
	}
	return p1, p2
}

func discStyle(disc *model.DiscCustomization, fallback string) DiscStyle {
	if disc == nil {
		return DiscStyle{Color: fallback}
	}
	switch disc.Type {
	case "color":
		return DiscStyle{Color: disc.Value}
	case "image":
		return DiscStyle{Image: disc.Value}
	default:
		return DiscStyle{Color: fallback}
	}
}

// displayPlayer hides the rating of the computer opponent.
func displayPlayer(p model.PlayerInfo) *model.PlayerInfo {
	if p.UserID == model.AIUserID {
		p.DisplayName = AIDisplayName
		p.Elo = 0
	}
	return &p
}
