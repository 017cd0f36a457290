// Package presets names the classic Minesweeper board layouts so clients
// can create games without hardcoding dimensions.
package presets

import (
	"strings"

	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// Preset couples a difficulty name with its board parameters.
type Preset struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bombs  int    `json:"bombs"`
}

// Params converts the preset into board parameters.
func (p Preset) Params() protocol.GameParams {
	return protocol.GameParams{Width: p.Width, Height: p.Height, Bombs: p.Bombs}
}

var builtin = []Preset{
	{Name: "beginner", Width: 9, Height: 9, Bombs: 10},
	{Name: "intermediate", Width: 16, Height: 16, Bombs: 40},
	{Name: "expert", Width: 30, Height: 16, Bombs: 99},
}

// List returns the built-in presets in difficulty order.
func List() []Preset {
	out := make([]Preset, len(builtin))
	copy(out, builtin)
	return out
}

// Get looks up a preset by name, case-insensitively.
func Get(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range builtin {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
