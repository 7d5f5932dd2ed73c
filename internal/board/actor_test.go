package board

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/corkboardapp/corkboard/internal/boardstore"
	"github.com/corkboardapp/corkboard/internal/config"
	"github.com/corkboardapp/corkboard/internal/generate"
	"github.com/corkboardapp/corkboard/internal/protocol"
)

// fakeGen records executions and returns a canned result.
type fakeGen struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *fakeGen) Execute(ctx context.Context, payload string) (*generate.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, payload)
	if g.err != nil {
		return nil, g.err
	}
	return &generate.Result{Output: "generated", ModelUsed: "model-a"}, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newTestActor(t *testing.T, batch config.BatchConfig) (*Actor, *fakeGen) {
	t.Helper()

	store, err := boardstore.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	gen := &fakeGen{}
	a := New(Config{
		BoardID:   "b1",
		Store:     store,
		Generator: gen,
		Batch:     batch,
	})
	t.Cleanup(func() { a.Close() })
	return a, gen
}

func TestApply_Immediate(t *testing.T) {
	a, _ := newTestActor(t, config.BatchConfig{})

	res, queued, err := a.Apply(
		`INSERT INTO lists (id, board_id, title, position) VALUES (?, ?, ?, ?)`,
		[]any{"l1", "b1", "Todo", 0}, "origin")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if queued {
		t.Error("single write below threshold should not be queued")
	}
	if res.RowsAffected != 1 {
		t.Errorf("got rowsAffected=%d, want 1", res.RowsAffected)
	}

	lists, _, err := a.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(lists) != 1 || lists[0].Title != "Todo" {
		t.Errorf("got lists=%v", lists)
	}
}

func TestApply_MalformedWrite(t *testing.T) {
	a, _ := newTestActor(t, config.BatchConfig{})

	if _, _, err := a.Apply("INSERT INTO nowhere VALUES (1)", nil, "origin"); err == nil {
		t.Error("expected error for write against unknown table")
	}
}

func TestBatchingThreshold(t *testing.T) {
	// Threshold 50, window 1000ms: a burst of 60 coalesces writes 51-60
	// into one transaction and one BATCH broadcast with affected == 10.
	a, _ := newTestActor(t, config.BatchConfig{Threshold: 50, WindowMs: 1000, FlushMs: 20})

	origin := &fakeConn{}
	other := &fakeConn{}
	sessOrigin := &Session{ID: "origin", Conn: origin}
	a.sessions.Register(sessOrigin)
	a.sessions.Register(&Session{ID: "other", Conn: other})

	for i := 0; i < 60; i++ {
		frame := protocol.NewExecuteSQL(
			`INSERT INTO lists (id, board_id, title, position) VALUES (?, ?, ?, ?)`,
			[]any{fmt.Sprintf("l%02d", i), "b1", "List", i}, "origin")
		a.handleWrite(sessOrigin, frame)
	}

	// Wait for the flush timer.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(other.framesOfType(t, protocol.TypeSQLResult)) >= 51 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	results := other.framesOfType(t, protocol.TypeSQLResult)
	if len(results) != 51 {
		t.Fatalf("other session got %d SQL_RESULT frames, want 51 (50 singles + 1 batch)", len(results))
	}

	var batches int
	for _, r := range results {
		if r["sql"] == protocol.BatchSQL {
			batches++
			result := r["result"].(map[string]any)
			if got := result["affected"].(float64); got != 10 {
				t.Errorf("got batch affected=%v, want 10", got)
			}
		}
	}
	if batches != 1 {
		t.Errorf("got %d BATCH broadcasts, want exactly 1", batches)
	}

	// The origin session never receives its own echo, but does receive
	// the batch broadcast (batches have mixed origins).
	originResults := origin.framesOfType(t, protocol.TypeSQLResult)
	if len(originResults) != 1 || originResults[0]["sql"] != protocol.BatchSQL {
		t.Errorf("origin got %d frames, want only the batch broadcast", len(originResults))
	}

	// All 60 writes landed.
	lists, _, err := a.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(lists) != 60 {
		t.Errorf("got %d lists, want 60", len(lists))
	}
}

func TestBatchRollback_RequeuesOnceThenDrops(t *testing.T) {
	a, _ := newTestActor(t, config.BatchConfig{Threshold: 1, WindowMs: 60_000, FlushMs: 10})

	// First write passes the threshold check, the rest queue up.
	if _, queued, err := a.Apply(
		`INSERT INTO lists (id, board_id, title, position) VALUES (?, ?, ?, ?)`,
		[]any{"l1", "b1", "Todo", 0}, "o"); err != nil || queued {
		t.Fatalf("first write: queued=%v err=%v", queued, err)
	}

	// Queue one good and one malformed write; the whole batch must roll back.
	if _, queued, _ := a.Apply(
		`INSERT INTO lists (id, board_id, title, position) VALUES (?, ?, ?, ?)`,
		[]any{"l2", "b1", "Doing", 1}, "o"); !queued {
		t.Fatal("second write should be queued")
	}
	if _, queued, _ := a.Apply("INSERT INTO nowhere VALUES (1)", nil, "o"); !queued {
		t.Fatal("third write should be queued")
	}

	// Wait through the initial flush and the single requeue attempt.
	time.Sleep(300 * time.Millisecond)

	a.mu.Lock()
	remaining := a.batcher.Len()
	a.mu.Unlock()
	if remaining != 0 {
		t.Errorf("got %d writes still queued after requeue exhausted, want 0", remaining)
	}

	// Rollback is all-or-nothing: the good queued write was dropped too.
	lists, _, err := a.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(lists) != 1 {
		t.Errorf("got %d lists, want 1 (only the immediate write)", len(lists))
	}
}

func TestHandleWrite_ErrorGoesToOriginOnly(t *testing.T) {
	a, _ := newTestActor(t, config.BatchConfig{})

	origin := &fakeConn{}
	other := &fakeConn{}
	sessOrigin := &Session{ID: "origin", Conn: origin}
	a.sessions.Register(sessOrigin)
	a.sessions.Register(&Session{ID: "other", Conn: other})

	a.handleWrite(sessOrigin, protocol.NewExecuteSQL("INSERT INTO nowhere VALUES (1)", nil, "origin"))

	if got := len(origin.framesOfType(t, protocol.TypeError)); got != 1 {
		t.Errorf("origin got %d ERROR frames, want 1", got)
	}
	if got := len(other.framesOfType(t, protocol.TypeError)); got != 0 {
		t.Errorf("other session got %d ERROR frames, want 0", got)
	}
	if got := len(other.framesOfType(t, protocol.TypeSQLResult)); got != 0 {
		t.Errorf("other session got %d SQL_RESULT frames, want 0", got)
	}
}

func TestHandleWrite_EmptySQL(t *testing.T) {
	a, _ := newTestActor(t, config.BatchConfig{})

	origin := &fakeConn{}
	sessOrigin := &Session{ID: "origin", Conn: origin}
	a.sessions.Register(sessOrigin)

	a.handleWrite(sessOrigin, protocol.NewExecuteSQL("   ", nil, "origin"))

	if got := len(origin.framesOfType(t, protocol.TypeError)); got != 1 {
		t.Errorf("got %d ERROR frames, want 1", got)
	}
}
