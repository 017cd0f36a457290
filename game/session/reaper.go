package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/metrics"
)

// Reaper periodically evicts sessions nobody is playing. Sessions whose
// lock cannot be taken without waiting are skipped and get another look on
// the next tick.
type Reaper struct {
	registry    *Registry
	interval    time.Duration
	idleLimit   time.Duration
	activeLimit time.Duration
	log         zerolog.Logger
}

// NewReaper builds a reaper over the registry. activeLimit of 0 disables
// the hard age cap.
func NewReaper(registry *Registry, interval, idleLimit, activeLimit time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		registry:    registry,
		interval:    interval,
		idleLimit:   idleLimit,
		activeLimit: activeLimit,
		log:         logger.With().Str("component", "reaper").Logger(),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info().
		Dur("interval", r.interval).
		Dur("idle_limit", r.idleLimit).
		Dur("active_limit", r.activeLimit).
		Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep runs one eviction pass and returns how many sessions were removed.
// Candidates are collected first and removed second, so the registry is not
// mutated while it is being walked.
func (r *Reaper) Sweep(now time.Time) int {
	var victims []string
	r.registry.Range(func(id string, s *Session) bool {
		if s.Evictable(now, r.idleLimit, r.activeLimit) {
			victims = append(victims, id)
		}
		return true
	})

	for _, id := range victims {
		r.registry.Remove(id)
		metrics.GamesEvicted.Inc()
	}
	if len(victims) > 0 {
		r.log.Info().
			Int("evicted", len(victims)).
			Int("remaining", r.registry.Len()).
			Msg("evicted inactive sessions")
	}
	return len(victims)
}
