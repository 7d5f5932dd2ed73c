package protocol

import (
	"encoding/json"
	"testing"
)

func TestFrameType(t *testing.T) {
	data, err := json.Marshal(NewClientID("client-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	typ, err := FrameType(data)
	if err != nil {
		t.Fatalf("frame type: %v", err)
	}
	if typ != TypeClientID {
		t.Errorf("got type %q, want %q", typ, TypeClientID)
	}
}

func TestFrameType_Invalid(t *testing.T) {
	if _, err := FrameType([]byte("{not json")); err == nil {
		t.Error("expected error for invalid frame")
	}
}

func TestNewSyncState_EmptyBoard(t *testing.T) {
	data, err := json.Marshal(NewSyncState(nil, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// An empty board must still serialize both keys as arrays, not null.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["lists"]) != "[]" {
		t.Errorf("got lists=%s, want []", raw["lists"])
	}
	if string(raw["cards"]) != "[]" {
		t.Errorf("got cards=%s, want []", raw["cards"])
	}
}

func TestExecuteSQLRoundTrip(t *testing.T) {
	frame := NewExecuteSQL("UPDATE cards SET list_id = ? WHERE id = ?", []any{"l2", "c1"}, "client-9")
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ExecuteSQLFrame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SQL != frame.SQL {
		t.Errorf("got sql %q, want %q", got.SQL, frame.SQL)
	}
	if got.ClientID != "client-9" {
		t.Errorf("got clientId %q, want client-9", got.ClientID)
	}
	if len(got.Params) != 2 {
		t.Errorf("got %d params, want 2", len(got.Params))
	}
}

func TestNewBatchResult(t *testing.T) {
	frame := NewBatchResult(10)
	if frame.SQL != BatchSQL {
		t.Errorf("got sql %q, want %q", frame.SQL, BatchSQL)
	}
	if frame.Result.Affected != 10 {
		t.Errorf("got affected=%d, want 10", frame.Result.Affected)
	}
}
