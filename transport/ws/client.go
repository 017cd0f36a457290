// Package ws is the WebSocket transport: it upgrades joining clients,
// attaches them to their session and pumps frames in both directions.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/protocol"
	"github.com/opensweeper/minesweeper-server/game/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Action frames are tiny.
	maxMessageSize = 512

	// Outbound queue per client. Filling it up gets the client dropped.
	sendQueueSize = 256
)

// Client is one WebSocket participant attached to a session. Its buffered
// send channel is the sink the session broadcasts into; closing the channel
// is what ends writePump.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	sess *session.Session
	log  zerolog.Logger

	closeOnce sync.Once
}

// TrySend enqueues one frame without blocking. False means the queue is
// full and the caller should give up on this client.
func (c *Client) TrySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close ends outbound delivery. Safe to call from any goroutine and more
// than once; every call after the first is a no-op.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump reads action frames until the connection dies, then detaches
// from the session. One readPump per connection.
func (c *Client) readPump(id uuid.UUID) {
	defer func() {
		c.sess.RemoveConn(id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame to the session. Malformed frames and
// unknown actions are dropped; the connection stays open.
func (c *Client) dispatch(data []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch msg.Action {
	case protocol.ActionReveal:
		if msg.Pos == nil {
			c.log.Debug().Msg("ignoring reveal without pos")
			return
		}
		c.sess.Reveal(*msg.Pos)
	case protocol.ActionFlag:
		if msg.Pos == nil {
			c.log.Debug().Msg("ignoring flag without pos")
			return
		}
		c.sess.Flag(*msg.Pos)
	case protocol.ActionRestart:
		params := protocol.DefaultParams()
		if msg.Params != nil {
			params = *msg.Params
		}
		c.sess.Restart(params)
	default:
		c.log.Debug().Str("action", msg.Action).Msg("ignoring unknown action")
	}
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings. One writePump per connection; it owns all writes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session closed this sink.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
