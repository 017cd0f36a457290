package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/protocol"
)

// fakeSink records delivered frames and mimics a bounded send queue.
type fakeSink struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	closed   bool
}

func newFakeSink(capacity int) *fakeSink {
	return &fakeSink{capacity: capacity}
}

func (f *fakeSink) TrySend(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.frames) >= f.capacity {
		return false
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return true
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSink) frame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[i]
}

func frameType(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode frame envelope: %v", err)
	}
	return env.Type
}

func decodeInit(t *testing.T, data []byte) protocol.InitMessage {
	t.Helper()
	var msg protocol.InitMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode init frame: %v", err)
	}
	return msg
}

func decodeUpdate(t *testing.T, data []byte) protocol.UpdateMessage {
	t.Helper()
	var msg protocol.UpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode update frame: %v", err)
	}
	return msg
}

func TestAddConnSendsInitFirst(t *testing.T) {
	sess := New("t1", protocol.GameParams{Width: 4, Height: 3, Bombs: 2}, zerolog.Nop())
	sink := newFakeSink(16)

	id, err := sess.AddConn(sink)
	if err != nil {
		t.Fatalf("AddConn: %v", err)
	}
	if id == uuid.Nil {
		t.Error("got nil connection id")
	}
	if sess.ConnCount() != 1 {
		t.Errorf("ConnCount() = %d, want 1", sess.ConnCount())
	}
	if sink.frameCount() != 1 {
		t.Fatalf("got %d frames, want the init snapshot", sink.frameCount())
	}

	msg := decodeInit(t, sink.frame(0))
	if msg.Type != protocol.TypeInit || msg.Width != 4 || msg.Height != 3 || msg.Bombs != 2 {
		t.Errorf("init frame = %+v", msg)
	}
	if len(msg.Field) != 3 || len(msg.Field[0]) != 4 {
		t.Errorf("init field shape %dx%d, want 3 rows of 4", len(msg.Field), len(msg.Field[0]))
	}
}

func TestAddConnRejectsDeadSink(t *testing.T) {
	sess := New("t2", protocol.DefaultParams(), zerolog.Nop())
	sink := newFakeSink(0)

	if _, err := sess.AddConn(sink); err == nil {
		t.Fatal("AddConn accepted a sink that cannot take the init frame")
	}
	if !sink.isClosed() {
		t.Error("rejected sink was not closed")
	}
	if sess.ConnCount() != 0 {
		t.Errorf("ConnCount() = %d, want 0", sess.ConnCount())
	}
}

func TestRevealBroadcastsToAllConns(t *testing.T) {
	// A board without bombs floods completely on the first reveal and wins.
	sess := New("t3", protocol.GameParams{Width: 2, Height: 2, Bombs: 0}, zerolog.Nop())
	a, b := newFakeSink(16), newFakeSink(16)
	sess.AddConn(a)
	sess.AddConn(b)

	sess.Reveal(protocol.Pos{X: 0, Y: 0})

	for name, sink := range map[string]*fakeSink{"a": a, "b": b} {
		if sink.frameCount() != 2 {
			t.Fatalf("sink %s got %d frames, want init+update", name, sink.frameCount())
		}
		msg := decodeUpdate(t, sink.frame(1))
		if !msg.Won || msg.Lost {
			t.Errorf("sink %s: won=%v lost=%v, want a win", name, msg.Won, msg.Lost)
		}
		if len(msg.Updates) != 4 {
			t.Errorf("sink %s: %d updates, want 4", name, len(msg.Updates))
		}
	}
}

func TestRevealWithoutChangeSendsNothing(t *testing.T) {
	sess := New("t4", protocol.GameParams{Width: 2, Height: 2, Bombs: 0}, zerolog.Nop())
	sink := newFakeSink(16)
	sess.AddConn(sink)

	sess.Flag(protocol.Pos{X: 0, Y: 0})   // flag frame
	sess.Reveal(protocol.Pos{X: 0, Y: 0}) // blocked by the flag
	if sink.frameCount() != 2 {
		t.Fatalf("flagged reveal produced a frame: got %d, want init+flag", sink.frameCount())
	}

	sess.Flag(protocol.Pos{X: 0, Y: 0})   // cycles to marked
	sess.Reveal(protocol.Pos{X: 0, Y: 0}) // wins, finishes the board
	if sink.frameCount() != 4 {
		t.Fatalf("setup: got %d frames", sink.frameCount())
	}

	sess.Reveal(protocol.Pos{X: 0, Y: 0}) // finished board
	sess.Reveal(protocol.Pos{X: 9, Y: 9}) // out of bounds
	if sink.frameCount() != 4 {
		t.Errorf("no-op reveals produced frames: got %d, want 4", sink.frameCount())
	}
}

func TestRevealBombBroadcastsLoss(t *testing.T) {
	// Every cell is a bomb, so any reveal loses immediately.
	sess := New("t5", protocol.GameParams{Width: 2, Height: 2, Bombs: 4}, zerolog.Nop())
	sink := newFakeSink(16)
	sess.AddConn(sink)

	sess.Reveal(protocol.Pos{X: 1, Y: 0})

	msg := decodeUpdate(t, sink.frame(1))
	if !msg.Lost || msg.Won {
		t.Fatalf("won=%v lost=%v, want a loss", msg.Won, msg.Lost)
	}
	if len(msg.Updates) != 4 {
		t.Errorf("%d updates, want every bomb", len(msg.Updates))
	}
	for _, u := range msg.Updates {
		if u.Value.State != protocol.StateBomb {
			t.Errorf("update at %v has state %q, want bomb", u.Pos, u.Value.State)
		}
	}
}

func TestFlagBroadcastsWithoutOutcome(t *testing.T) {
	sess := New("t6", protocol.GameParams{Width: 3, Height: 3, Bombs: 9}, zerolog.Nop())
	sink := newFakeSink(16)
	sess.AddConn(sink)

	sess.Flag(protocol.Pos{X: 1, Y: 1})

	if sink.frameCount() != 2 {
		t.Fatalf("got %d frames, want init+update", sink.frameCount())
	}
	msg := decodeUpdate(t, sink.frame(1))
	if msg.Won || msg.Lost {
		t.Errorf("flag frame carries outcome: won=%v lost=%v", msg.Won, msg.Lost)
	}
	if len(msg.Updates) != 1 || msg.Updates[0].Value.State != protocol.StateFlagged {
		t.Errorf("updates = %+v, want one flagged cell", msg.Updates)
	}
}

func TestRestartBroadcastsFreshInit(t *testing.T) {
	sess := New("t7", protocol.GameParams{Width: 2, Height: 2, Bombs: 4}, zerolog.Nop())
	sink := newFakeSink(16)
	sess.AddConn(sink)
	sess.Reveal(protocol.Pos{X: 0, Y: 0}) // lose

	sess.Restart(protocol.GameParams{Width: 5, Height: 4, Bombs: 3})

	if sink.frameCount() != 3 {
		t.Fatalf("got %d frames, want init+update+init", sink.frameCount())
	}
	msg := decodeInit(t, sink.frame(2))
	if msg.Type != protocol.TypeInit || msg.Width != 5 || msg.Height != 4 || msg.Bombs != 3 {
		t.Errorf("restart init = %+v", msg)
	}
	for _, row := range msg.Field {
		for _, cell := range row {
			if cell.State != protocol.StateHidden {
				t.Fatalf("fresh board leaks state %q", cell.State)
			}
		}
	}
	if snap := sess.Snapshot(); snap.Finished {
		t.Error("session still finished after restart")
	}
}

func TestRestartWithInvalidParamsIsIgnored(t *testing.T) {
	sess := New("t8", protocol.GameParams{Width: 4, Height: 3, Bombs: 2}, zerolog.Nop())
	sink := newFakeSink(16)
	sess.AddConn(sink)

	sess.Restart(protocol.GameParams{Width: -1, Height: 3, Bombs: 2})

	if sink.frameCount() != 1 {
		t.Errorf("invalid restart produced frames: got %d, want 1", sink.frameCount())
	}
	if snap := sess.Snapshot(); snap.Width != 4 || snap.Height != 3 {
		t.Errorf("board changed to %dx%d", snap.Width, snap.Height)
	}
}

func TestRemoveConnStopsDeliveryAndCloses(t *testing.T) {
	sess := New("t9", protocol.GameParams{Width: 3, Height: 3, Bombs: 0}, zerolog.Nop())
	sink := newFakeSink(16)
	id, err := sess.AddConn(sink)
	if err != nil {
		t.Fatalf("AddConn: %v", err)
	}

	sess.RemoveConn(id)

	if !sink.isClosed() {
		t.Error("sink not closed on detach")
	}
	if sess.ConnCount() != 0 {
		t.Errorf("ConnCount() = %d, want 0", sess.ConnCount())
	}
	sess.Flag(protocol.Pos{X: 0, Y: 0})
	if sink.frameCount() != 1 {
		t.Errorf("detached sink still received frames: %d", sink.frameCount())
	}

	// Detaching twice must be harmless.
	sess.RemoveConn(id)
	sess.RemoveConn(uuid.New())
}

func TestBroadcastDropsSlowConsumer(t *testing.T) {
	sess := New("t10", protocol.GameParams{Width: 3, Height: 3, Bombs: 9}, zerolog.Nop())
	slow := newFakeSink(1) // room for the init frame only
	fast := newFakeSink(16)
	sess.AddConn(slow)
	sess.AddConn(fast)

	sess.Flag(protocol.Pos{X: 0, Y: 0})

	if !slow.isClosed() {
		t.Error("overflowing sink was not closed")
	}
	if sess.ConnCount() != 1 {
		t.Errorf("ConnCount() = %d, want 1 after drop", sess.ConnCount())
	}

	sess.Flag(protocol.Pos{X: 0, Y: 0})
	if fast.frameCount() != 3 {
		t.Errorf("fast sink got %d frames, want 3", fast.frameCount())
	}
	if slow.frameCount() != 1 {
		t.Errorf("slow sink got %d frames after drop, want 1", slow.frameCount())
	}
}

func TestCloseDetachesEverything(t *testing.T) {
	sess := New("t11", protocol.DefaultParams(), zerolog.Nop())
	sinks := []*fakeSink{newFakeSink(8), newFakeSink(8), newFakeSink(8)}
	for _, sink := range sinks {
		if _, err := sess.AddConn(sink); err != nil {
			t.Fatalf("AddConn: %v", err)
		}
	}

	sess.Close()

	if sess.ConnCount() != 0 {
		t.Errorf("ConnCount() = %d, want 0", sess.ConnCount())
	}
	for i, sink := range sinks {
		if !sink.isClosed() {
			t.Errorf("sink %d not closed", i)
		}
	}
}

func TestSnapshot(t *testing.T) {
	sess := New("t12", protocol.GameParams{Width: 4, Height: 3, Bombs: 2}, zerolog.Nop())
	sink := newFakeSink(8)
	sess.AddConn(sink)

	snap := sess.Snapshot()
	if snap.ID != "t12" || snap.Connections != 1 || snap.Width != 4 || snap.Height != 3 || snap.Bombs != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Finished || snap.Revealed != 0 {
		t.Errorf("fresh snapshot reports progress: %+v", snap)
	}
	if snap.CreatedAt.IsZero() {
		t.Error("snapshot missing creation time")
	}
}

// Clients attaching while the game is being played must still observe the
// init snapshot strictly before any update frame.
func TestJoinDuringPlaySeesInitFirst(t *testing.T) {
	sess := New("t13", protocol.GameParams{Width: 9, Height: 9, Bombs: 10}, zerolog.Nop())

	const moves = 400
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < moves; i++ {
			sess.Flag(protocol.Pos{X: i % 9, Y: (i / 9) % 9})
		}
	}()

	sinks := make([]*fakeSink, 16)
	for i := range sinks {
		sinks[i] = newFakeSink(moves + 2)
		if _, err := sess.AddConn(sinks[i]); err != nil {
			t.Fatalf("AddConn %d: %v", i, err)
		}
	}
	wg.Wait()

	for i, sink := range sinks {
		if sink.frameCount() == 0 {
			t.Fatalf("sink %d received nothing", i)
		}
		if typ := frameType(t, sink.frame(0)); typ != protocol.TypeInit {
			t.Errorf("sink %d first frame is %q, want init", i, typ)
		}
		for j := 1; j < sink.frameCount(); j++ {
			if typ := frameType(t, sink.frame(j)); typ != protocol.TypeUpdate {
				t.Errorf("sink %d frame %d is %q, want update", i, j, typ)
			}
		}
	}
}
