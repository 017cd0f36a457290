package main

import (
	"math/rand"

	"github.com/opensweeper/minesweeper-server/client"
	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// Move is one decision derived from a board position.
type Move struct {
	Action string
	Pos    protocol.Pos

	// Sure is false when the move is a guess rather than a deduction.
	Sure bool
}

// Strategy plays single-point Minesweeper: a revealed number satisfied by
// its flags frees the remaining unknown neighbours, and a number equal to
// flags plus unknowns condemns them all. When neither rule fires anywhere
// it falls back to a random guess among the unknown cells.
type Strategy struct {
	rng *rand.Rand
}

func NewStrategy(seed int64) *Strategy {
	return &Strategy{rng: rand.New(rand.NewSource(seed))}
}

// NextMove picks the next action for the given position. The second return
// is false when the board offers nothing left to do.
func (s *Strategy) NextMove(board client.Board) (Move, bool) {
	if board.Finished() {
		return Move{}, false
	}

	// Nothing open yet: start in the middle, where floods run widest.
	if countRevealed(board) == 0 {
		return Move{
			Action: protocol.ActionReveal,
			Pos:    protocol.Pos{X: board.Width / 2, Y: board.Height / 2},
		}, true
	}

	for y := 0; y < board.Height; y++ {
		for x := 0; x < board.Width; x++ {
			cell := board.At(x, y)
			if cell.State != protocol.StateRevealed || cell.Adjacent == nil || *cell.Adjacent == 0 {
				continue
			}

			unknown, flagged := neighbours(board, x, y)
			if len(unknown) == 0 {
				continue
			}

			// All bombs accounted for: the rest are safe.
			if *cell.Adjacent == flagged {
				return Move{Action: protocol.ActionReveal, Pos: unknown[0], Sure: true}, true
			}

			// Every unknown neighbour must be a bomb.
			if *cell.Adjacent == flagged+len(unknown) {
				for _, pos := range unknown {
					if board.At(pos.X, pos.Y).State == protocol.StateHidden {
						return Move{Action: protocol.ActionFlag, Pos: pos, Sure: true}, true
					}
				}
			}
		}
	}

	candidates := unknownCells(board)
	if len(candidates) == 0 {
		return Move{}, false
	}
	return Move{
		Action: protocol.ActionReveal,
		Pos:    candidates[s.rng.Intn(len(candidates))],
	}, true
}

// neighbours splits the eight cells around (x,y) into unknowns (hidden or
// marked) and a count of flags.
func neighbours(board client.Board, x, y int) (unknown []protocol.Pos, flagged int) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= board.Width || ny < 0 || ny >= board.Height {
				continue
			}
			switch board.At(nx, ny).State {
			case protocol.StateFlagged:
				flagged++
			case protocol.StateHidden, protocol.StateMarked:
				unknown = append(unknown, protocol.Pos{X: nx, Y: ny})
			}
		}
	}
	return unknown, flagged
}

func countRevealed(board client.Board) int {
	count := 0
	for _, row := range board.Cells {
		for _, cell := range row {
			if cell.State == protocol.StateRevealed {
				count++
			}
		}
	}
	return count
}

func unknownCells(board client.Board) []protocol.Pos {
	var out []protocol.Pos
	for y, row := range board.Cells {
		for x, cell := range row {
			if cell.State == protocol.StateHidden || cell.State == protocol.StateMarked {
				out = append(out, protocol.Pos{X: x, Y: y})
			}
		}
	}
	return out
}
