// Package metrics exposes the server's Prometheus collectors and a small
// process sampler feeding the runtime gauges.
package metrics

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	GamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minesweeper_games_created_total",
		Help: "Total number of game sessions created",
	})
	GamesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minesweeper_games_evicted_total",
		Help: "Total number of game sessions evicted by the reaper",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minesweeper_sessions_active",
		Help: "Number of live game sessions",
	})
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minesweeper_connections_active",
		Help: "Number of attached WebSocket connections",
	})
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minesweeper_broadcasts_total",
		Help: "Total number of frames broadcast to sessions",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minesweeper_frames_dropped_total",
		Help: "Total number of connections dropped for not draining their send queue",
	})
	CreatesRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minesweeper_creates_rate_limited_total",
		Help: "Total number of session creations rejected by the per-IP rate limit",
	})

	processRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minesweeper_process_resident_memory_bytes",
		Help: "Resident memory of the server process",
	})
	processCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minesweeper_process_cpu_percent",
		Help: "CPU usage of the server process since the previous sample",
	})
	goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minesweeper_goroutines",
		Help: "Number of live goroutines",
	})
)

// Handler returns the HTTP handler serving the Prometheus exposition.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Sampler periodically refreshes the process gauges from gopsutil.
type Sampler struct {
	interval time.Duration
	log      zerolog.Logger
}

// NewSampler builds a sampler ticking at the given interval.
func NewSampler(interval time.Duration, logger zerolog.Logger) *Sampler {
	return &Sampler{
		interval: interval,
		log:      logger.With().Str("component", "metrics").Logger(),
	}
}

// Run samples until ctx is cancelled. It never returns a non-nil error; the
// signature matches errgroup.
func (s *Sampler) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Warn().Err(err).Msg("process stats unavailable, sampler disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sample(proc)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sample(proc)
		}
	}
}

func (s *Sampler) sample(proc *process.Process) {
	goroutines.Set(float64(runtime.NumGoroutine()))
	if mem, err := proc.MemoryInfo(); err == nil {
		processRSS.Set(float64(mem.RSS))
	}
	if cpu, err := proc.Percent(0); err == nil {
		processCPU.Set(cpu)
	}
}
