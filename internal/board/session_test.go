package board

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/corkboardapp/corkboard/internal/protocol"
)

// fakeConn captures frames written to a session.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// framesOfType decodes captured frames and returns those with the given type.
func (c *fakeConn) framesOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("captured frame is not JSON: %v", err)
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestSessionRegistry_RegisterUnregister(t *testing.T) {
	reg := NewSessionRegistry()

	s := &Session{ID: "session-1", Conn: &fakeConn{}}
	reg.Register(s)

	if got := reg.Count(); got != 1 {
		t.Errorf("got count=%d, want 1", got)
	}
	if reg.Get("session-1") == nil {
		t.Fatal("session not found")
	}
	if s.JoinedAt.IsZero() {
		t.Error("JoinedAt should be set on register")
	}

	reg.Unregister("session-1")
	if got := reg.Count(); got != 0 {
		t.Errorf("got count=%d, want 0", got)
	}
}

func TestSessionRegistry_BroadcastExcludesOrigin(t *testing.T) {
	reg := NewSessionRegistry()

	origin := &fakeConn{}
	other1 := &fakeConn{}
	other2 := &fakeConn{}
	reg.Register(&Session{ID: "origin", Conn: origin})
	reg.Register(&Session{ID: "other-1", Conn: other1})
	reg.Register(&Session{ID: "other-2", Conn: other2})

	reg.Broadcast(protocol.NewSQLResult("UPDATE cards SET title = ?", []any{"x"}, protocol.ExecResult{RowsAffected: 1}), "origin")

	if got := len(origin.framesOfType(t, protocol.TypeSQLResult)); got != 0 {
		t.Errorf("origin received %d SQL_RESULT frames, want 0", got)
	}
	for name, conn := range map[string]*fakeConn{"other-1": other1, "other-2": other2} {
		if got := len(conn.framesOfType(t, protocol.TypeSQLResult)); got != 1 {
			t.Errorf("%s received %d SQL_RESULT frames, want 1", name, got)
		}
	}
}
