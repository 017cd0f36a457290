// Package protocol defines the JSON message types exchanged between the
// server and its clients: the actions clients send over the WebSocket, the
// frames the server pushes back, and the board parameters accepted on
// creation and restart. Both the server packages and the Go client build on
// these types, so the wire format is defined exactly once.
package protocol

import (
	"encoding/json"
	"fmt"
)

// CellState is what a client is allowed to know about a single cell.
type CellState string

const (
	StateHidden   CellState = "hidden"
	StateMarked   CellState = "marked"
	StateFlagged  CellState = "flagged"
	StateRevealed CellState = "revealed"
	StateBomb     CellState = "bomb"
)

// Actions accepted from clients.
const (
	ActionReveal  = "reveal"
	ActionFlag    = "flag"
	ActionRestart = "restart"
)

// Frame types pushed by the server.
const (
	TypeInit   = "init"
	TypeUpdate = "update"
)

// Board parameter bounds. Requests omitting a parameter get the default;
// boards larger than MaxDimension per side are rejected outright.
const (
	DefaultWidth  = 9
	DefaultHeight = 9
	DefaultBombs  = 10

	MaxDimension = 128
)

// Pos addresses a cell by column (x, 0-based from the left) and row (y,
// 0-based from the top).
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// CellView is the wire projection of one cell. Adjacent is present only for
// revealed safe cells and always carries a value there, including zero.
type CellView struct {
	State    CellState `json:"state"`
	Adjacent *int      `json:"adjacent,omitempty"`
}

// HiddenCell projects an untouched cell.
func HiddenCell() CellView { return CellView{State: StateHidden} }

// MarkedCell projects a cell the players marked as uncertain.
func MarkedCell() CellView { return CellView{State: StateMarked} }

// FlaggedCell projects a cell the players flagged as a suspected bomb.
func FlaggedCell() CellView { return CellView{State: StateFlagged} }

// RevealedCell projects a revealed safe cell and its adjacent bomb count.
func RevealedCell(adjacent int) CellView {
	return CellView{State: StateRevealed, Adjacent: &adjacent}
}

// BombCell projects a revealed bomb. Only a lost game produces these.
func BombCell() CellView { return CellView{State: StateBomb} }

// CellUpdate pairs a position with the new projection of its cell.
type CellUpdate struct {
	Pos   Pos      `json:"pos"`
	Value CellView `json:"value"`
}

// GameParams sizes a board. Fields omitted from a JSON body decode to the
// defaults, so a bare {} means the classic beginner board.
type GameParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Bombs  int `json:"bombs"`
}

// DefaultParams returns the classic beginner board.
func DefaultParams() GameParams {
	return GameParams{Width: DefaultWidth, Height: DefaultHeight, Bombs: DefaultBombs}
}

// UnmarshalJSON fills absent fields with the defaults before decoding, so
// each parameter defaults independently. An explicit zero is kept as zero.
func (p *GameParams) UnmarshalJSON(data []byte) error {
	type plain GameParams
	decoded := plain(DefaultParams())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = GameParams(decoded)
	return nil
}

// Validate rejects unusable dimensions and clamps the bomb count into the
// board. It mutates the receiver only by clamping.
func (p *GameParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("board dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	if p.Width > MaxDimension || p.Height > MaxDimension {
		return fmt.Errorf("board dimensions may not exceed %d, got %dx%d", MaxDimension, p.Width, p.Height)
	}
	if p.Bombs < 0 {
		p.Bombs = 0
	}
	if area := p.Width * p.Height; p.Bombs > area {
		p.Bombs = area
	}
	return nil
}

// ClientMessage is one inbound action frame. Pos accompanies reveal and
// flag; Params optionally accompanies restart.
type ClientMessage struct {
	Action string      `json:"action"`
	Pos    *Pos        `json:"pos,omitempty"`
	Params *GameParams `json:"params,omitempty"`
}

// InitMessage snapshots the whole board for a newly attached client. Field
// holds Height rows of Width cells.
type InitMessage struct {
	Type   string       `json:"type"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Bombs  int          `json:"bombs"`
	Field  [][]CellView `json:"field"`
}

// UpdateMessage carries the cells changed by one accepted action. Exactly
// one of Won and Lost may be true, and once either is, the board is final.
type UpdateMessage struct {
	Type    string       `json:"type"`
	Updates []CellUpdate `json:"updates"`
	Won     bool         `json:"won"`
	Lost    bool         `json:"lost"`
}

// NewUpdate builds an update frame.
func NewUpdate(updates []CellUpdate, won, lost bool) UpdateMessage {
	return UpdateMessage{Type: TypeUpdate, Updates: updates, Won: won, Lost: lost}
}

// CreateRequest is the POST /create body. Preset, when set, seeds the
// parameters; explicitly present fields override the preset (or the
// defaults when no preset is named).
type CreateRequest struct {
	Preset string `json:"preset,omitempty"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
	Bombs  *int   `json:"bombs,omitempty"`
}

// Params layers the request's explicit fields over base.
func (r CreateRequest) Params(base GameParams) GameParams {
	if r.Width != nil {
		base.Width = *r.Width
	}
	if r.Height != nil {
		base.Height = *r.Height
	}
	if r.Bombs != nil {
		base.Bombs = *r.Bombs
	}
	return base
}

// CreateResponse is the POST /create reply.
type CreateResponse struct {
	ID string `json:"id"`
}
