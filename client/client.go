// Package client is a Go client for the Minesweeper server. It creates
// games over REST, joins them over WebSocket and keeps a local mirror of
// the board by applying the server's init and update frames.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/presets"
	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// ErrGameNotFound reports a join against an ID the server does not know.
var ErrGameNotFound = errors.New("game not found")

const (
	httpTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	// How long a joining client waits for the board snapshot.
	initTimeout = 10 * time.Second
)

// Client talks to one Minesweeper server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

// New builds a client for the server at baseURL (e.g. http://localhost:8000).
func New(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
		dialer: websocket.DefaultDialer,
		log:    logger.With().Str("component", "client").Logger(),
	}
}

// CreateGame asks the server for a new game and returns its ID.
func (c *Client) CreateGame(ctx context.Context, req protocol.CreateRequest) (string, error) {
	var resp protocol.CreateResponse
	if err := c.apiCall(ctx, "POST", "/create", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Presets fetches the server's named difficulty presets.
func (c *Client) Presets(ctx context.Context) ([]presets.Preset, error) {
	var out []presets.Preset
	if err := c.apiCall(ctx, "GET", "/api/presets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Join attaches to a running game. It returns once the server's board
// snapshot has been applied, so the returned game is immediately readable.
func (c *Client) Join(ctx context.Context, id string) (*Game, error) {
	endpoint, err := c.wsEndpoint(id)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	g := &Game{
		id:     id,
		conn:   conn,
		log:    c.log.With().Str("game", id).Logger(),
		events: make(chan Event, eventBuffer),
	}

	conn.SetReadDeadline(time.Now().Add(initTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read board snapshot: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	ev, err := g.apply(data)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode board snapshot: %w", err)
	}
	if ev.Init == nil {
		conn.Close()
		return nil, fmt.Errorf("expected an init frame, got %q", ev.frameType)
	}

	go g.readLoop()
	return g, nil
}

// apiCall performs one JSON request against the REST surface.
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// wsEndpoint converts the base URL into the join endpoint for one game.
func (c *Client) wsEndpoint(id string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"id": {id}}.Encode()
	return u.String(), nil
}
