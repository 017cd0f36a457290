package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestHandlerServesExposition(t *testing.T) {
	GamesCreated.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, metric := range []string{
		"minesweeper_games_created_total",
		"minesweeper_sessions_active",
		"minesweeper_connections_active",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("Exposition missing %s", metric)
		}
	}
}

func TestSamplerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sampler := NewSampler(10*time.Millisecond, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- sampler.Run(ctx)
	}()

	// Let it take at least the immediate sample before cancelling.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Sampler did not stop after cancel")
	}

	if testutil.ToFloat64(goroutines) <= 0 {
		t.Error("Expected goroutine gauge to be set after sampling")
	}
}
