// Package field implements the Minesweeper board rules.
//
// A Field holds the cells of one board: bomb placement, the precomputed
// adjacent-bomb counts, and each cell's reveal state. The package covers:
//   - Uniform placement of an exact bomb count
//   - Revealing with recursive flood fill through zero-adjacent cells
//   - The hidden/flagged/marked flag cycle
//   - Win and loss detection, latching the board once finished
//   - Projection of cells into their wire form, never leaking bombs early
//
// Mutating operations return the list of changed cells so callers can relay
// exactly what happened; an operation that changes nothing returns no
// updates. A Field carries no locking. The session owning it serializes all
// access, so methods here stay simple and synchronous.
//
// Usage:
//
//	f := field.New(protocol.GameParams{Width: 9, Height: 9, Bombs: 10})
//	updates, won, lost := f.Reveal(protocol.Pos{X: 4, Y: 4})
package field
