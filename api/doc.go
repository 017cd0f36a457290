// Package api provides the HTTP surface of the Minesweeper server.
//
// The api package implements:
//   - Game creation with per-IP rate limiting
//   - WebSocket upgrade for joining running games
//   - Health, metrics and operational listings
//
// Endpoints:
//
// Game Lifecycle:
//   - POST /create - Create a game, optionally sized by preset or explicit
//     width/height/bombs; responds with the game ID
//   - GET /ws?id=<game> - Join a game over WebSocket; 404 before the
//     upgrade when the ID is unknown
//
// Operations:
//   - GET /healthz - Liveness plus the live session count
//   - GET /metrics - Prometheus exposition
//   - GET /api/presets - Built-in difficulty presets
//   - GET /api/sessions - Snapshot of all running games
//
// Request/Response Format:
//
// All REST endpoints accept and return JSON. Create accepts:
//
//	{
//	  "preset": "beginner|intermediate|expert", // optional
//	  "width": 9, "height": 9, "bombs": 10      // optional, override preset
//	}
//
// Error Handling:
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "error message"
//	}
package api
