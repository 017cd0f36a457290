// Command bot plays Minesweeper against a running server. It deduces what
// it can, guesses the rest, and restarts the board until it wins or runs
// out of attempts. Point several bots at the same game ID to watch
// multiplayer updates interleave.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/client"
	"github.com/opensweeper/minesweeper-server/game/protocol"
)

var (
	serverURL = flag.String("url", "http://localhost:8000", "Game server URL")
	gameID    = flag.String("game", "", "Join an existing game instead of creating one")
	preset    = flag.String("preset", "beginner", "Difficulty preset for new games")
	width     = flag.Int("width", 0, "Board width (overrides the preset when > 0)")
	height    = flag.Int("height", 0, "Board height (overrides the preset when > 0)")
	bombs     = flag.Int("bombs", -1, "Bomb count (overrides the preset when >= 0)")
	attempts  = flag.Int("max-attempts", 100, "Restarts before giving up")
	delay     = flag.Duration("delay", 0, "Pause between moves")
	seed      = flag.Int64("seed", 0, "Guess seed (0 = time-based)")
	verbose   = flag.Bool("v", false, "Log every move")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	guessSeed := *seed
	if guessSeed == 0 {
		guessSeed = time.Now().UnixNano()
	}

	ctx := context.Background()
	c := client.New(*serverURL, logger)

	id := *gameID
	if id == "" {
		created, err := c.CreateGame(ctx, createRequest())
		if err != nil {
			logger.Fatal().Err(err).Msg("could not create game")
		}
		id = created
		logger.Info().Str("game", id).Msg("created game")
	}

	game, err := c.Join(ctx, id)
	if err != nil {
		logger.Fatal().Err(err).Str("game", id).Msg("could not join game")
	}
	defer game.Close()

	board := game.Snapshot()
	logger.Info().
		Str("game", id).
		Int("width", board.Width).
		Int("height", board.Height).
		Int("bombs", board.Bombs).
		Msg("joined game")

	restartParams := protocol.GameParams{
		Width:  board.Width,
		Height: board.Height,
		Bombs:  board.Bombs,
	}
	strategy := NewStrategy(guessSeed)

	for attempt := 1; attempt <= *attempts; attempt++ {
		if attempt > 1 || game.Snapshot().Finished() {
			if err := game.Restart(restartParams); err != nil {
				logger.Fatal().Err(err).Msg("restart failed")
			}
			awaitFrame(game, 2*time.Second)
		}

		won, moves := playOne(game, strategy, logger)
		logger.Info().
			Int("attempt", attempt).
			Int("moves", moves).
			Bool("won", won).
			Msg("attempt finished")

		if won {
			fmt.Printf("Won game %s in attempt %d with %d moves\n", id, attempt, moves)
			os.Exit(0)
		}
	}

	fmt.Printf("No win for game %s after %d attempts\n", id, *attempts)
	os.Exit(1)
}

func createRequest() protocol.CreateRequest {
	req := protocol.CreateRequest{Preset: *preset}
	if *width > 0 {
		req.Width = width
	}
	if *height > 0 {
		req.Height = height
	}
	if *bombs >= 0 {
		req.Bombs = bombs
	}
	return req
}

// playOne drives the board until it is decided or the strategy runs dry.
func playOne(game *client.Game, strategy *Strategy, logger zerolog.Logger) (won bool, moves int) {
	board := game.Snapshot()

	// Cap on stalled boards, e.g. when every remaining cell is flagged.
	maxMoves := board.Width * board.Height * 4

	for moves < maxMoves {
		board = game.Snapshot()
		if board.Won {
			return true, moves
		}
		if board.Lost {
			return false, moves
		}

		move, ok := strategy.NextMove(board)
		if !ok {
			logger.Warn().Msg("no moves left to play")
			return false, moves
		}

		var err error
		switch move.Action {
		case protocol.ActionReveal:
			err = game.Reveal(move.Pos)
		case protocol.ActionFlag:
			err = game.Flag(move.Pos)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("send failed")
		}
		moves++

		logger.Debug().
			Str("action", move.Action).
			Str("pos", move.Pos.String()).
			Bool("deduced", move.Sure).
			Msg("move")

		awaitFrame(game, time.Second)
		if *delay > 0 {
			time.Sleep(*delay)
		}
	}

	return false, moves
}

// awaitFrame blocks until one frame arrives or the wait elapses. The board
// mirror is already updated by the time the frame is readable.
func awaitFrame(game *client.Game, wait time.Duration) bool {
	select {
	case _, ok := <-game.Events():
		return ok
	case <-time.After(wait):
		return false
	}
}
