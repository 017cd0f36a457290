// Package mcp provides the Model Context Protocol bridge to the
// Minesweeper server.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions for creating, joining and playing games
//   - One live WebSocket attachment per joined game
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - create_game: Create a game from a preset or explicit dimensions
//   - join_game: Attach to a running game and render its board
//   - reveal: Open a cell
//   - flag: Cycle the marker on a hidden cell
//   - restart: Replace the board for every connected player
//   - game_state: Re-read the current board
//   - list_presets: List the named difficulty levels
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: Direct stdio communication for local MCP clients
//   - HTTP: POST endpoint mounted by the main server at /mcp
//
// Shared Boards:
//
// Game tools act through the same WebSocket protocol as every other
// client, so an agent shares its boards with humans and bots. Frames
// produced by other players are folded into the local mirror between tool
// calls; game_state always shows the latest known board.
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:8000", logger)
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	response := client.GetMCPServer().HandleMessage(ctx, body)
package mcp
