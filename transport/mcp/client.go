package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/client"
	"github.com/opensweeper/minesweeper-server/game/presets"
	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// How long a game tool waits for the server's answer frame before assuming
// the action changed nothing.
const frameWait = time.Second

// Client is a thin MCP bridge to the REST and WebSocket APIs. Every joined
// game is a live connection, so the agent plays alongside any humans or
// bots attached to the same board.
type Client struct {
	api       *client.Client
	mcpServer *server.MCPServer
	log       zerolog.Logger

	mu    sync.Mutex
	games map[string]*client.Game
}

// NewClient creates an MCP client that plays against the server at baseURL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	c := &Client{
		api:   client.New(baseURL, logger),
		log:   logger.With().Str("component", "mcp").Logger(),
		games: make(map[string]*client.Game),
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Minesweeper",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Multiplayer Minesweeper - MCP Interface

This is a thin client for a shared Minesweeper server. Boards live on the
server; everyone who joins a game sees the same cells, and updates from
other players arrive between your moves.

BOARD LEGEND:
  .    hidden cell
  ?    soft mark (player suspects a bomb)
  F    flag (player is sure there is a bomb)
  1-8  revealed cell with that many adjacent bombs
  ' '  revealed cell with no adjacent bombs
  *    bomb (only shown after the game is lost)

HOW TO PLAY:
- create_game, then join_game with the returned ID
- reveal opens a cell; hitting a bomb loses, opening every safe cell wins
- a flagged (F) cell will not reveal; cycle the flag off first
- flag cycles a hidden cell: hidden -> F -> ? -> hidden
- restart rebuilds the board for every connected player
- coordinates are 0-based: x counts columns from the left, y counts rows
  from the top

AVAILABLE TOOLS:
- create_game: Create a new game (preset or explicit dimensions)
- join_game: Attach to a game and see its board
- reveal: Open a cell
- flag: Cycle the marker on a cell
- restart: Replace the board
- game_state: Re-read the current board
- list_presets: Show the named difficulty levels`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	sizeProperties := func() map[string]interface{} {
		return map[string]interface{}{
			"preset": map[string]interface{}{
				"type":        "string",
				"description": "Difficulty preset: beginner, intermediate or expert (optional)",
			},
			"width": map[string]interface{}{
				"type":        "number",
				"description": "Board width in cells (optional, overrides the preset)",
			},
			"height": map[string]interface{}{
				"type":        "number",
				"description": "Board height in cells (optional, overrides the preset)",
			},
			"bombs": map[string]interface{}{
				"type":        "number",
				"description": "Number of bombs (optional, overrides the preset)",
			},
		}
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_game",
		Description: "Create a new Minesweeper game and return its ID",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sizeProperties(),
		},
	}, c.handleCreateGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_game",
		Description: "Join a running game and show its board",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"game_id": map[string]interface{}{
					"type":        "string",
					"description": "ID returned by create_game (or shared by another player)",
				},
			},
			Required: []string{"game_id"},
		},
	}, c.handleJoinGame)

	cellProperties := map[string]interface{}{
		"game_id": map[string]interface{}{
			"type":        "string",
			"description": "ID of a joined game",
		},
		"x": map[string]interface{}{
			"type":        "number",
			"description": "Column, 0-based from the left",
		},
		"y": map[string]interface{}{
			"type":        "number",
			"description": "Row, 0-based from the top",
		},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reveal",
		Description: "Open a cell. Opening a bomb loses the game; flagged cells do not open",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: cellProperties,
			Required:   []string{"game_id", "x", "y"},
		},
	}, c.handleReveal)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "flag",
		Description: "Cycle the marker on a hidden cell (flag, question mark, clear)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: cellProperties,
			Required:   []string{"game_id", "x", "y"},
		},
	}, c.handleFlag)

	restartProperties := sizeProperties()
	restartProperties["game_id"] = map[string]interface{}{
		"type":        "string",
		"description": "ID of a joined game",
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart",
		Description: "Replace the board with a fresh one for every connected player",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: restartProperties,
			Required:   []string{"game_id"},
		},
	}, c.handleRestart)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Show the current board of a joined game",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"game_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of a joined game",
				},
			},
			Required: []string{"game_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List the named difficulty presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)
}

// GetMCPServer exposes the underlying MCP server for stdio or HTTP serving.
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Close detaches from every joined game.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, g := range c.games {
		g.Close()
		delete(c.games, id)
	}
}

// Helpers

func toolArgs(request mcp.CallToolRequest) map[string]interface{} {
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		return args
	}
	return map[string]interface{}{}
}

// sizeParams folds preset and explicit dimension arguments into a create
// request, leaving absent fields nil.
func sizeParams(args map[string]interface{}) protocol.CreateRequest {
	var req protocol.CreateRequest
	if preset, _ := args["preset"].(string); preset != "" {
		req.Preset = preset
	}
	if w, ok := args["width"].(float64); ok {
		v := int(w)
		req.Width = &v
	}
	if h, ok := args["height"].(float64); ok {
		v := int(h)
		req.Height = &v
	}
	if b, ok := args["bombs"].(float64); ok {
		v := int(b)
		req.Bombs = &v
	}
	return req
}

func (c *Client) joined(gameID string) (*client.Game, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[gameID]
	return g, ok
}

// awaitFrame blocks until the game delivers one frame or the wait elapses.
func awaitFrame(g *client.Game, wait time.Duration) bool {
	select {
	case _, ok := <-g.Events():
		return ok
	case <-time.After(wait):
		return false
	}
}

// drainFrames discards buffered frames so the next awaitFrame call sees
// only what happens after the pending action.
func drainFrames(g *client.Game) {
	for {
		select {
		case _, ok := <-g.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func boardText(g *client.Game) string {
	board := g.Snapshot()

	status := "playing"
	switch {
	case board.Won:
		status = "won"
	case board.Lost:
		status = "lost"
	}

	return fmt.Sprintf("Game %s (%dx%d, %d bombs)\nStatus: %s\n\n%s",
		g.ID(), board.Width, board.Height, board.Bombs, status, board.Render())
}

// Tool handlers

func (c *Client) handleCreateGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := sizeParams(toolArgs(request))

	id, err := c.api.CreateGame(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created game %s. Use join_game to start playing.", id)), nil
}

func (c *Client) handleJoinGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	gameID, _ := args["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	if g, ok := c.joined(gameID); ok {
		return mcp.NewToolResultText("Already joined.\n\n" + boardText(g)), nil
	}

	g, err := c.api.Join(ctx, gameID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c.mu.Lock()
	c.games[gameID] = g
	c.mu.Unlock()

	return mcp.NewToolResultText("Joined.\n\n" + boardText(g)), nil
}

func (c *Client) handleReveal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.cellAction(request, func(g *client.Game, pos protocol.Pos) error {
		return g.Reveal(pos)
	})
}

func (c *Client) handleFlag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.cellAction(request, func(g *client.Game, pos protocol.Pos) error {
		return g.Flag(pos)
	})
}

// cellAction runs one position-taking action and reports the board after
// the server has answered.
func (c *Client) cellAction(request mcp.CallToolRequest, action func(*client.Game, protocol.Pos) error) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	gameID, _ := args["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	x, okX := args["x"].(float64)
	y, okY := args["y"].(float64)
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required"), nil
	}

	g, ok := c.joined(gameID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not joined to game %s, call join_game first", gameID)), nil
	}

	drainFrames(g)
	if err := action(g, protocol.Pos{X: int(x), Y: int(y)}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answered := awaitFrame(g, frameWait)
	drainFrames(g)

	text := boardText(g)
	if !answered {
		text += "\nNothing changed (cell already open or flagged, out of bounds, or the game is finished)."
	}
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	gameID, _ := args["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	g, ok := c.joined(gameID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not joined to game %s, call join_game first", gameID)), nil
	}

	params := protocol.DefaultParams()
	req := sizeParams(args)
	if req.Preset != "" {
		preset, ok := presets.Get(req.Preset)
		if !ok {
			return mcp.NewToolResultError("unknown preset: " + req.Preset), nil
		}
		params = preset.Params()
	}
	params = req.Params(params)
	if err := params.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	drainFrames(g)
	if err := g.Restart(params); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	awaitFrame(g, frameWait)
	drainFrames(g)

	return mcp.NewToolResultText("Restarted.\n\n" + boardText(g)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	gameID, _ := args["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	g, ok := c.joined(gameID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not joined to game %s, call join_game first", gameID)), nil
	}

	drainFrames(g)
	return mcp.NewToolResultText(boardText(g)), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := c.api.Presets(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Available Presets:\n\n"
	for _, p := range list {
		result += fmt.Sprintf("• %s: %dx%d, %d bombs\n", p.Name, p.Width, p.Height, p.Bombs)
	}

	return mcp.NewToolResultText(result), nil
}
