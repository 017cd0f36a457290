package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/session"
)

// Handler upgrades HTTP requests into game connections.
type Handler struct {
	origins  []string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler builds a handler admitting browsers from the given origins.
func NewHandler(allowedOrigins []string, logger zerolog.Logger) *Handler {
	h := &Handler{
		origins: allowedOrigins,
		log:     logger.With().Str("component", "ws").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.allowOrigin,
	}
	return h
}

// allowOrigin admits browser clients from the configured origins and any
// client that sends no Origin header at all (bots, CLIs, tests).
func (h *Handler) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("rejected origin")
	return false
}

// ServeWS upgrades the request and attaches the new client to sess. The
// caller has already resolved the session; unknown IDs never get here.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		sess: sess,
		log:  h.log.With().Str("session", sess.ID()).Logger(),
	}

	id, err := sess.AddConn(client)
	if err != nil {
		h.log.Error().Err(err).Msg("could not attach client")
		conn.Close()
		return
	}
	client.log = client.log.With().Str("conn", id.String()).Logger()

	go client.writePump()
	go client.readPump(id)
}
