package field

import (
	"math/rand"

	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// revealState tracks what the players have done to a cell.
type revealState uint8

const (
	hidden revealState = iota
	marked
	flagged
	revealed
)

// cell is the server-side truth about one square. Clients only ever see the
// projection produced by view.
type cell struct {
	bomb     bool
	adjacent int
	state    revealState
}

// view projects the cell for the wire. A bomb stays indistinguishable from
// any other cell until it has been revealed, which only a loss does.
func (c *cell) view() protocol.CellView {
	switch {
	case c.state == revealed && c.bomb:
		return protocol.BombCell()
	case c.state == revealed:
		return protocol.RevealedCell(c.adjacent)
	case c.state == flagged:
		return protocol.FlaggedCell()
	case c.state == marked:
		return protocol.MarkedCell()
	default:
		return protocol.HiddenCell()
	}
}

// Field is one Minesweeper board. It is not safe for concurrent use; the
// owning session serializes access.
type Field struct {
	width    int
	height   int
	bombs    int
	revealed int
	finished bool
	cells    []cell
}

// New builds a board from params, placing exactly params.Bombs bombs
// (clamped to the board area) uniformly at random. Dimensions are assumed
// validated by the caller.
func New(params protocol.GameParams) *Field {
	return newWithRand(params, rand.New(rand.NewSource(rand.Int63())))
}

func newWithRand(params protocol.GameParams, rng *rand.Rand) *Field {
	area := params.Width * params.Height
	bombs := params.Bombs
	if bombs > area {
		bombs = area
	}
	if bombs < 0 {
		bombs = 0
	}

	f := &Field{
		width:  params.Width,
		height: params.Height,
		bombs:  bombs,
		cells:  make([]cell, area),
	}
	f.placeBombs(rng)
	f.computeAdjacency()
	return f
}

// placeBombs streams over the cells once, marking each one a bomb with
// probability bombsLeft/cellsLeft. This yields exactly f.bombs bombs and
// every arrangement is equally likely.
func (f *Field) placeBombs(rng *rand.Rand) {
	bombsLeft := f.bombs
	for i := range f.cells {
		if bombsLeft == 0 {
			break
		}
		cellsLeft := len(f.cells) - i
		if rng.Intn(cellsLeft) < bombsLeft {
			f.cells[i].bomb = true
			bombsLeft--
		}
	}
}

// computeAdjacency stores each cell's count of bombs among its 8 neighbours.
func (f *Field) computeAdjacency() {
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			f.cells[x+y*f.width].adjacent = f.countAdjacentBombs(protocol.Pos{X: x, Y: y})
		}
	}
}

func (f *Field) countAdjacentBombs(pos protocol.Pos) int {
	count := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := protocol.Pos{X: pos.X + dx, Y: pos.Y + dy}
			if f.inBounds(n) && f.cells[f.index(n)].bomb {
				count++
			}
		}
	}
	return count
}

func (f *Field) inBounds(pos protocol.Pos) bool {
	return pos.X >= 0 && pos.X < f.width && pos.Y >= 0 && pos.Y < f.height
}

func (f *Field) index(pos protocol.Pos) int {
	return pos.X + pos.Y*f.width
}

// Width returns the number of columns.
func (f *Field) Width() int { return f.width }

// Height returns the number of rows.
func (f *Field) Height() int { return f.height }

// Bombs returns the placed bomb count.
func (f *Field) Bombs() int { return f.bombs }

// Revealed returns how many safe cells have been revealed.
func (f *Field) Revealed() int { return f.revealed }

// Finished reports whether the game has ended in a win or a loss.
func (f *Field) Finished() bool { return f.finished }

// Reveal opens the cell at pos. It returns the cells that changed, in
// discovery order, plus the game outcome this action produced. Finished
// boards, out-of-bounds positions, already-revealed cells and flagged
// cells return no updates at all; a flagged cell cannot be revealed until
// the flag is cycled off, so a placed flag never detonates a bomb.
//
// Revealing a bomb finishes the board and returns every bomb cell in
// row-major order. Revealing a safe cell flood-fills: a cell with zero
// adjacent bombs recursively opens its neighbours, overwriting flags and
// marks on the way. A flag only protects the cell the reveal targets.
func (f *Field) Reveal(pos protocol.Pos) (updates []protocol.CellUpdate, won, lost bool) {
	if f.finished || !f.inBounds(pos) {
		return nil, false, false
	}
	c := &f.cells[f.index(pos)]
	if c.state == revealed || c.state == flagged {
		return nil, false, false
	}

	if c.bomb {
		f.finished = true
		return f.revealBombs(), false, true
	}

	f.floodReveal(pos, &updates)
	won = f.hasWon()
	f.finished = won
	return updates, won, false
}

// revealBombs opens every bomb on the board, row-major.
func (f *Field) revealBombs() []protocol.CellUpdate {
	updates := make([]protocol.CellUpdate, 0, f.bombs)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			pos := protocol.Pos{X: x, Y: y}
			c := &f.cells[f.index(pos)]
			if !c.bomb {
				continue
			}
			c.state = revealed
			updates = append(updates, protocol.CellUpdate{Pos: pos, Value: c.view()})
		}
	}
	return updates
}

func (f *Field) floodReveal(pos protocol.Pos, updates *[]protocol.CellUpdate) {
	if !f.inBounds(pos) {
		return
	}
	c := &f.cells[f.index(pos)]
	if c.state == revealed {
		return
	}

	c.state = revealed
	f.revealed++
	*updates = append(*updates, protocol.CellUpdate{Pos: pos, Value: c.view()})

	if c.adjacent != 0 {
		return
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			f.floodReveal(protocol.Pos{X: pos.X + dx, Y: pos.Y + dy}, updates)
		}
	}
}

func (f *Field) hasWon() bool {
	return f.width*f.height == f.bombs+f.revealed
}

// Flag cycles the cell at pos through hidden, flagged and marked, returning
// the single resulting update. Finished boards, out-of-bounds positions and
// revealed cells return nil.
func (f *Field) Flag(pos protocol.Pos) []protocol.CellUpdate {
	if f.finished || !f.inBounds(pos) {
		return nil
	}
	c := &f.cells[f.index(pos)]
	switch c.state {
	case revealed:
		return nil
	case hidden:
		c.state = flagged
	case flagged:
		c.state = marked
	case marked:
		c.state = hidden
	}
	return []protocol.CellUpdate{{Pos: pos, Value: c.view()}}
}

// InitMessage builds the full-board snapshot sent to newly attached clients:
// Height rows of Width cell projections.
func (f *Field) InitMessage() protocol.InitMessage {
	rows := make([][]protocol.CellView, f.height)
	for y := 0; y < f.height; y++ {
		row := make([]protocol.CellView, f.width)
		for x := 0; x < f.width; x++ {
			row[x] = f.cells[x+y*f.width].view()
		}
		rows[y] = row
	}
	return protocol.InitMessage{
		Type:   protocol.TypeInit,
		Width:  f.width,
		Height: f.height,
		Bombs:  f.bombs,
		Field:  rows,
	}
}
