// Command analyze prints quick, human-readable statistics about board
// generation: bomb densities per preset and observed first-click outcomes
// (immediate losses, flood sizes, one-click wins) over a number of sampled
// boards.
package main

import (
	"flag"
	"fmt"

	"github.com/opensweeper/minesweeper-server/game/field"
	"github.com/opensweeper/minesweeper-server/game/presets"
	"github.com/opensweeper/minesweeper-server/game/protocol"
)

var trials = flag.Int("trials", 1000, "Boards sampled per preset")

func main() {
	flag.Parse()

	for _, preset := range presets.List() {
		fmt.Printf("\n=== %s (%dx%d, %d bombs) ===\n",
			preset.Name, preset.Width, preset.Height, preset.Bombs)
		analyzeBoards(preset.Params(), *trials)
	}
}

func analyzeBoards(params protocol.GameParams, trials int) {
	area := params.Width * params.Height
	density := float64(params.Bombs) / float64(area)
	fmt.Printf("Cells: %d, bomb density: %.1f%%\n", area, density*100)

	center := protocol.Pos{X: params.Width / 2, Y: params.Height / 2}

	var losses, wins, floodTotal int
	minFlood, maxFlood := area+1, 0

	for i := 0; i < trials; i++ {
		board := field.New(params)
		updates, won, lost := board.Reveal(center)
		if lost {
			losses++
			continue
		}

		flood := len(updates)
		floodTotal += flood
		if flood < minFlood {
			minFlood = flood
		}
		if flood > maxFlood {
			maxFlood = flood
		}
		if won {
			wins++
		}
	}

	survived := trials - losses
	fmt.Printf("First click at %s over %d boards:\n", center, trials)
	fmt.Printf("  Immediate losses: %d (%.1f%%, density predicts %.1f%%)\n",
		losses, pct(losses, trials), density*100)
	if survived > 0 {
		fmt.Printf("  Flood size: avg %.1f cells, min %d, max %d\n",
			float64(floodTotal)/float64(survived), minFlood, maxFlood)
	}
	if wins > 0 {
		fmt.Printf("  One-click wins: %d\n", wins)
	}

	if losses == trials {
		fmt.Printf("⚠️  WARNING: every sampled board lost on the first click\n")
	}
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
