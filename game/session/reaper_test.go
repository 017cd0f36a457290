package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/protocol"
)

func backdateActivity(s *Session, d time.Duration) {
	s.mu.Lock()
	s.lastActivity = time.Now().Add(-d)
	s.mu.Unlock()
}

func backdateCreation(s *Session, d time.Duration) {
	s.mu.Lock()
	s.createdAt = time.Now().Add(-d)
	s.mu.Unlock()
}

func TestEvictable(t *testing.T) {
	idle, active := 10*time.Minute, 24*time.Hour
	now := time.Now()

	t.Run("fresh empty session stays", func(t *testing.T) {
		sess := New("r1", protocol.DefaultParams(), zerolog.Nop())
		if sess.Evictable(now, idle, active) {
			t.Error("fresh session reported evictable")
		}
	})

	t.Run("stale empty session goes", func(t *testing.T) {
		sess := New("r2", protocol.DefaultParams(), zerolog.Nop())
		backdateActivity(sess, time.Hour)
		if !sess.Evictable(time.Now(), idle, active) {
			t.Error("stale empty session not evictable")
		}
	})

	t.Run("stale but connected session stays", func(t *testing.T) {
		sess := New("r3", protocol.DefaultParams(), zerolog.Nop())
		if _, err := sess.AddConn(newFakeSink(8)); err != nil {
			t.Fatalf("AddConn: %v", err)
		}
		backdateActivity(sess, time.Hour)
		if sess.Evictable(time.Now(), idle, active) {
			t.Error("connected session reported evictable")
		}
	})

	t.Run("age cap overrides connections", func(t *testing.T) {
		sess := New("r4", protocol.DefaultParams(), zerolog.Nop())
		if _, err := sess.AddConn(newFakeSink(8)); err != nil {
			t.Fatalf("AddConn: %v", err)
		}
		backdateCreation(sess, 48*time.Hour)
		if !sess.Evictable(time.Now(), idle, active) {
			t.Error("over-age session not evictable")
		}
	})

	t.Run("zero age cap disables it", func(t *testing.T) {
		sess := New("r5", protocol.DefaultParams(), zerolog.Nop())
		if _, err := sess.AddConn(newFakeSink(8)); err != nil {
			t.Fatalf("AddConn: %v", err)
		}
		backdateCreation(sess, 48*time.Hour)
		if sess.Evictable(time.Now(), idle, 0) {
			t.Error("age cap applied despite being disabled")
		}
	})

	t.Run("contended lock skips", func(t *testing.T) {
		sess := New("r6", protocol.DefaultParams(), zerolog.Nop())
		backdateActivity(sess, time.Hour)
		sess.mu.Lock()
		if sess.Evictable(time.Now(), idle, active) {
			t.Error("locked session reported evictable")
		}
		sess.mu.Unlock()
		if !sess.Evictable(time.Now(), idle, active) {
			t.Error("unlocked stale session not evictable")
		}
	})
}

// Disconnecting refreshes the activity timestamp, so a session whose last
// player just left survives one full idle window before eviction.
func TestRemoveConnRefreshesActivity(t *testing.T) {
	sess := New("r7", protocol.DefaultParams(), zerolog.Nop())
	id, err := sess.AddConn(newFakeSink(8))
	if err != nil {
		t.Fatalf("AddConn: %v", err)
	}
	backdateActivity(sess, time.Hour)

	sess.RemoveConn(id)

	if sess.Evictable(time.Now(), 10*time.Minute, 0) {
		t.Error("session evictable immediately after the last disconnect")
	}
}

func TestSweepEvictsOnlyStaleEmptySessions(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	params := protocol.DefaultParams()

	connected, err := reg.Create(params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := connected.AddConn(newFakeSink(8)); err != nil {
		t.Fatalf("AddConn: %v", err)
	}
	backdateActivity(connected, time.Hour)

	stale, err := reg.Create(params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	backdateActivity(stale, time.Hour)

	fresh, err := reg.Create(params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reaper := NewReaper(reg, time.Minute, 10*time.Minute, 0, zerolog.Nop())
	if got := reaper.Sweep(time.Now()); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}

	if _, ok := reg.Get(stale.ID()); ok {
		t.Error("stale session survived the sweep")
	}
	for _, sess := range []*Session{connected, fresh} {
		if _, ok := reg.Get(sess.ID()); !ok {
			t.Errorf("session %q was wrongly evicted", sess.ID())
		}
	}
}

func TestSweepSkipsLockedSessions(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	sess, err := reg.Create(protocol.DefaultParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	backdateActivity(sess, time.Hour)
	reaper := NewReaper(reg, time.Minute, 10*time.Minute, 0, zerolog.Nop())

	sess.mu.Lock()
	if got := reaper.Sweep(time.Now()); got != 0 {
		t.Errorf("Sweep() = %d while locked, want 0", got)
	}
	sess.mu.Unlock()

	if got := reaper.Sweep(time.Now()); got != 1 {
		t.Errorf("Sweep() = %d after unlock, want 1", got)
	}
}

func TestSweepAgeCapClosesLiveConnections(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	sess, err := reg.Create(protocol.DefaultParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sink := newFakeSink(8)
	if _, err := sess.AddConn(sink); err != nil {
		t.Fatalf("AddConn: %v", err)
	}
	backdateCreation(sess, 48*time.Hour)

	reaper := NewReaper(reg, time.Minute, 10*time.Minute, 24*time.Hour, zerolog.Nop())
	if got := reaper.Sweep(time.Now()); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}
	if !sink.isClosed() {
		t.Error("live sink survived the age-cap eviction")
	}
}

func TestReaperRunEvictsAndStops(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	sess, err := reg.Create(protocol.DefaultParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	backdateActivity(sess, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	reaper := NewReaper(reg, 5*time.Millisecond, 10*time.Minute, 0, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for reg.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("reaper never evicted the stale session")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
