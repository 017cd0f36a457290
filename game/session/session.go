package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/field"
	"github.com/opensweeper/minesweeper-server/game/protocol"
	"github.com/opensweeper/minesweeper-server/metrics"
)

// Sink is the outbound half of one attached client. TrySend must never
// block: implementations enqueue onto a bounded buffer and report false when
// it is full. Close must be safe to call more than once and from any
// goroutine.
type Sink interface {
	TrySend(data []byte) bool
	Close()
}

// Session is one shared game: a board plus the clients attached to it.
// Every operation runs entirely inside the session lock, including the
// broadcast, so all sinks observe the init snapshot and the update stream in
// one total order. Delivery itself is asynchronous: broadcasting only
// enqueues onto each sink's bounded buffer, so a slow client cannot stall
// the game.
type Session struct {
	id  string
	log zerolog.Logger

	mu           sync.Mutex
	field        *field.Field
	conns        map[uuid.UUID]Sink
	lastActivity time.Time
	createdAt    time.Time
}

// Info is a point-in-time snapshot of a session for listings.
type Info struct {
	ID          string    `json:"id"`
	Connections int       `json:"connections"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Bombs       int       `json:"bombs"`
	Revealed    int       `json:"revealed"`
	Finished    bool      `json:"finished"`
	CreatedAt   time.Time `json:"created_at"`
}

// New builds a session with a fresh board. Params are assumed validated.
func New(id string, params protocol.GameParams, logger zerolog.Logger) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		log:          logger.With().Str("session", id).Logger(),
		field:        field.New(params),
		conns:        make(map[uuid.UUID]Sink),
		lastActivity: now,
		createdAt:    now,
	}
}

// ID returns the public session identifier.
func (s *Session) ID() string { return s.id }

// Reveal opens the cell at pos and broadcasts whatever changed. Reveals
// that change nothing (finished board, out of bounds, already revealed,
// flagged target) produce no frame.
func (s *Session) Reveal(pos protocol.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	updates, won, lost := s.field.Reveal(pos)
	if len(updates) == 0 {
		s.log.Debug().Stringer("pos", pos).Msg("reveal changed nothing")
		return
	}
	s.broadcast(protocol.NewUpdate(updates, won, lost))
	switch {
	case lost:
		s.log.Info().Stringer("pos", pos).Msg("bomb revealed, game lost")
	case won:
		s.log.Info().Msg("all safe cells revealed, game won")
	}
}

// Flag cycles the flag state of the cell at pos and broadcasts the change.
// Flag frames never report an outcome.
func (s *Session) Flag(pos protocol.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	updates := s.field.Flag(pos)
	if len(updates) == 0 {
		s.log.Debug().Stringer("pos", pos).Msg("flag changed nothing")
		return
	}
	s.broadcast(protocol.NewUpdate(updates, false, false))
}

// Restart replaces the board and broadcasts a fresh init snapshot to every
// attached client. Invalid params are ignored and the old board stays.
func (s *Session) Restart(params protocol.GameParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	if err := params.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("ignoring restart with invalid parameters")
		return
	}
	s.field = field.New(params)
	s.broadcast(s.field.InitMessage())
	s.log.Info().
		Int("width", params.Width).
		Int("height", params.Height).
		Int("bombs", s.field.Bombs()).
		Msg("game restarted")
}

// AddConn attaches a sink. The init snapshot is queued on the new sink
// before it joins the broadcast set, so it sees init strictly before any
// update. Returns the connection ID used to detach later.
func (s *Session) AddConn(sink Sink) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	data, err := json.Marshal(s.field.InitMessage())
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal init frame: %w", err)
	}
	if !sink.TrySend(data) {
		sink.Close()
		return uuid.Nil, fmt.Errorf("sink rejected init frame")
	}

	id := uuid.New()
	s.conns[id] = sink
	metrics.ConnectionsActive.Inc()
	s.log.Info().
		Str("conn", id.String()).
		Int("connections", len(s.conns)).
		Msg("connection attached")
	return id, nil
}

// RemoveConn detaches and closes a sink. It also refreshes the activity
// timestamp, so an emptied session survives one full inactivity window
// before the reaper may take it.
func (s *Session) RemoveConn(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	sink, ok := s.conns[id]
	if !ok {
		s.log.Debug().Str("conn", id.String()).Msg("connection already detached")
		return
	}
	delete(s.conns, id)
	sink.Close()
	metrics.ConnectionsActive.Dec()
	s.log.Info().
		Str("conn", id.String()).
		Int("connections", len(s.conns)).
		Msg("connection detached")
}

// Close detaches and closes every remaining sink. Used on eviction; the
// session must not be handed out afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sink := range s.conns {
		delete(s.conns, id)
		sink.Close()
		metrics.ConnectionsActive.Dec()
	}
}

// ConnCount returns the number of attached sinks.
func (s *Session) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Snapshot captures the session for listings.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.id,
		Connections: len(s.conns),
		Width:       s.field.Width(),
		Height:      s.field.Height(),
		Bombs:       s.field.Bombs(),
		Revealed:    s.field.Revealed(),
		Finished:    s.field.Finished(),
		CreatedAt:   s.createdAt,
	}
}

// Evictable reports whether the reaper may take this session: nobody is
// attached and the last activity is older than idleLimit, or the session
// itself is older than activeLimit (0 disables the age cap, which applies
// even with live connections). A contended lock reports false so the reaper
// never waits on a busy game.
func (s *Session) Evictable(now time.Time, idleLimit, activeLimit time.Duration) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	if activeLimit > 0 && now.Sub(s.createdAt) > activeLimit {
		return true
	}
	return len(s.conns) == 0 && now.Sub(s.lastActivity) > idleLimit
}

// broadcast marshals msg once and enqueues it on every sink. A sink that
// cannot take the frame is closed and dropped immediately; its read loop
// will notice the closed connection and detach through RemoveConn.
func (s *Session) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal broadcast frame")
		return
	}
	for id, sink := range s.conns {
		if sink.TrySend(data) {
			continue
		}
		delete(s.conns, id)
		sink.Close()
		metrics.ConnectionsActive.Dec()
		metrics.FramesDropped.Inc()
		s.log.Warn().
			Str("conn", id.String()).
			Msg("send queue full, connection dropped")
	}
	metrics.BroadcastsTotal.Inc()
}
