// Package session manages shared Minesweeper games and their lifecycles.
//
// The package implements:
//   - Session: one board plus the WebSocket sinks attached to it
//   - Registry: concurrent storage of live sessions under minted short IDs
//   - Reaper: periodic eviction of sessions nobody is playing
//
// Ordering:
//
// A session serializes everything under a single lock, and broadcasts happen
// while that lock is held. A client attached via AddConn therefore gets the
// init snapshot enqueued before any later update frame, and all clients see
// updates in the same order. Delivery never blocks the lock: sinks expose a
// non-blocking TrySend, and a sink that cannot keep up is closed and dropped.
//
// Session Identifiers:
//
// Sessions are addressed by short URL-safe IDs (nanoid alphabet), starting
// at 5 characters. The registry retries on collision and grows the length
// once a burst of collisions suggests the current space is too dense.
//
// Eviction:
//
// The reaper ticks on a fixed interval and removes sessions that have had no
// connections and no activity for the configured timeout. Disconnecting
// refreshes the activity timestamp, so an abandoned game stays joinable for
// one full timeout window. Sessions busy enough to hold their lock during a
// sweep are skipped until the next tick. An optional age cap evicts very old
// sessions regardless of attached players.
//
// Usage:
//
//	registry := session.NewRegistry(logger)
//	sess, err := registry.Create(protocol.DefaultParams())
//	if err != nil {
//		log.Fatal().Err(err).Msg("create session")
//	}
//
//	id, err := sess.AddConn(sink)
//	sess.Reveal(protocol.Pos{X: 4, Y: 4})
//	sess.RemoveConn(id)
package session
