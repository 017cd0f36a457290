package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/protocol"
	"github.com/opensweeper/minesweeper-server/metrics"
)

// Session IDs start short so they stay link-friendly; the length only grows
// when the current space gets crowded enough to collide repeatedly.
const (
	initialIDLength      = 5
	maxAttemptsPerLength = 10
)

// Registry holds every live session. Lookups and inserts go through a
// concurrent map, so sessions operate independently and no global lock is
// held during game operations.
type Registry struct {
	sessions sync.Map // string -> *Session
	count    atomic.Int64
	log      zerolog.Logger

	// mint generates candidate IDs of the given length. Swapped in tests.
	mint func(length int) (string, error)
}

// NewRegistry builds an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		log: logger.With().Str("component", "registry").Logger(),
		mint: func(length int) (string, error) {
			return gonanoid.New(length)
		},
	}
}

// Create builds a session with a freshly minted ID and inserts it. Insertion
// is an optimistic insert-if-vacant: on a collision a new ID is minted, and
// after maxAttemptsPerLength collisions the ID length grows by one.
func (r *Registry) Create(params protocol.GameParams) (*Session, error) {
	for length := initialIDLength; ; length++ {
		for attempt := 0; attempt < maxAttemptsPerLength; attempt++ {
			id, err := r.mint(length)
			if err != nil {
				return nil, fmt.Errorf("mint session id: %w", err)
			}
			sess := New(id, params, r.log)
			if _, collided := r.sessions.LoadOrStore(id, sess); collided {
				continue
			}
			r.count.Add(1)
			metrics.GamesCreated.Inc()
			metrics.SessionsActive.Inc()
			r.log.Info().
				Str("session", id).
				Int("width", params.Width).
				Int("height", params.Height).
				Int("bombs", params.Bombs).
				Msg("session created")
			return sess, nil
		}
		r.log.Warn().Int("length", length+1).Msg("session id space crowded, growing id length")
	}
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Remove evicts a session, closing any connections still attached. Removing
// an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	r.count.Add(-1)
	metrics.SessionsActive.Dec()
	v.(*Session).Close()
	r.log.Info().Str("session", id).Msg("session removed")
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Range calls fn for every live session until fn returns false.
func (r *Registry) Range(fn func(id string, s *Session) bool) {
	r.sessions.Range(func(k, v any) bool {
		return fn(k.(string), v.(*Session))
	})
}
