package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// Events the readLoop could not hand over in time are dropped; the board
// mirror is applied first, so Snapshot never misses anything.
const eventBuffer = 64

// Event is one server frame, already applied to the local board. Exactly
// one of Init and Update is set.
type Event struct {
	Init   *protocol.InitMessage
	Update *protocol.UpdateMessage

	frameType string
}

// Board is the client's view of the field, as far as the server has shown
// it. Cells holds Height rows of Width cells.
type Board struct {
	Width  int
	Height int
	Bombs  int
	Won    bool
	Lost   bool
	Cells  [][]protocol.CellView
}

// At returns the cell at column x, row y.
func (b Board) At(x, y int) protocol.CellView {
	return b.Cells[y][x]
}

// Finished reports whether the game has been decided.
func (b Board) Finished() bool {
	return b.Won || b.Lost
}

// Render draws the board as text, one row per line. Hidden cells are dots,
// marks '?', flags 'F', bombs '*', open cells their adjacency count (blank
// for zero).
func (b Board) Render() string {
	var sb strings.Builder
	for _, row := range b.Cells {
		for _, cell := range row {
			switch cell.State {
			case protocol.StateHidden:
				sb.WriteByte('.')
			case protocol.StateMarked:
				sb.WriteByte('?')
			case protocol.StateFlagged:
				sb.WriteByte('F')
			case protocol.StateBomb:
				sb.WriteByte('*')
			case protocol.StateRevealed:
				if cell.Adjacent != nil && *cell.Adjacent > 0 {
					sb.WriteString(strconv.Itoa(*cell.Adjacent))
				} else {
					sb.WriteByte(' ')
				}
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Game is one live WebSocket attachment to a running game.
type Game struct {
	id     string
	conn   *websocket.Conn
	log    zerolog.Logger
	events chan Event

	mu     sync.Mutex
	board  Board
	err    error
	closed bool

	writeMu sync.Mutex
}

// ID returns the joined game's identifier.
func (g *Game) ID() string { return g.id }

// Events exposes the applied frames in arrival order. The channel closes
// when the connection ends; check Err afterwards.
func (g *Game) Events() <-chan Event { return g.events }

// Err returns the read error that ended the connection, nil after Close.
func (g *Game) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Snapshot copies the current board mirror.
func (g *Game) Snapshot() Board {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.board
	out.Cells = make([][]protocol.CellView, len(g.board.Cells))
	for i, row := range g.board.Cells {
		out.Cells[i] = append([]protocol.CellView(nil), row...)
	}
	return out
}

// Reveal asks the server to open a cell.
func (g *Game) Reveal(pos protocol.Pos) error {
	return g.send(protocol.ClientMessage{Action: protocol.ActionReveal, Pos: &pos})
}

// Flag cycles the marker on a cell.
func (g *Game) Flag(pos protocol.Pos) error {
	return g.send(protocol.ClientMessage{Action: protocol.ActionFlag, Pos: &pos})
}

// Restart replaces the board for every attached client.
func (g *Game) Restart(params protocol.GameParams) error {
	return g.send(protocol.ClientMessage{Action: protocol.ActionRestart, Params: &params})
}

// Close ends the attachment. The server keeps the game alive for other
// clients.
func (g *Game) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.writeMu.Lock()
	g.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	g.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	g.writeMu.Unlock()

	return g.conn.Close()
}

func (g *Game) send(msg protocol.ClientMessage) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return g.conn.WriteJSON(msg)
}

// readLoop applies every frame to the board mirror and forwards it to the
// events channel. It exits when the connection dies or Close is called.
func (g *Game) readLoop() {
	defer close(g.events)

	for {
		_, data, err := g.conn.ReadMessage()
		if err != nil {
			g.mu.Lock()
			if !g.closed {
				g.err = err
			}
			g.mu.Unlock()
			return
		}

		ev, err := g.apply(data)
		if err != nil {
			g.log.Debug().Err(err).Msg("ignoring unreadable frame")
			continue
		}

		select {
		case g.events <- ev:
		default:
			g.log.Debug().Msg("event buffer full, dropping")
		}
	}
}

// apply folds one wire frame into the board mirror.
func (g *Game) apply(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, err
	}

	switch head.Type {
	case protocol.TypeInit:
		var msg protocol.InitMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, err
		}
		g.mu.Lock()
		g.board = Board{
			Width:  msg.Width,
			Height: msg.Height,
			Bombs:  msg.Bombs,
			Cells:  msg.Field,
		}
		g.mu.Unlock()
		return Event{Init: &msg, frameType: head.Type}, nil

	case protocol.TypeUpdate:
		var msg protocol.UpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, err
		}
		g.mu.Lock()
		for _, u := range msg.Updates {
			if u.Pos.Y < 0 || u.Pos.Y >= g.board.Height || u.Pos.X < 0 || u.Pos.X >= g.board.Width {
				continue
			}
			g.board.Cells[u.Pos.Y][u.Pos.X] = u.Value
		}
		g.board.Won = msg.Won
		g.board.Lost = msg.Lost
		g.mu.Unlock()
		return Event{Update: &msg, frameType: head.Type}, nil
	}

	return Event{frameType: head.Type}, fmt.Errorf("unknown frame type %q", head.Type)
}
