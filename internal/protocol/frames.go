// Package protocol defines the JSON frames exchanged between board clients
// and the board actor. Frames flow over WebSocket connections and carry a
// "type" discriminator as the first field.
package protocol

import "encoding/json"

// Frame type constants
const (
	TypeClientID   = "CLIENT_ID"
	TypeSyncState  = "SYNC_STATE"
	TypeExecuteSQL = "EXECUTE_SQL"
	TypeSQLResult  = "SQL_RESULT"
	TypeError      = "ERROR"
)

// BatchSQL is the sentinel reported in SQL_RESULT frames for coalesced writes.
const BatchSQL = "BATCH"

// Head is used for receiving frames where the rest of the frame
// needs to be unmarshaled based on the type.
type Head struct {
	Type string `json:"type"`
}

// ClientIDFrame is sent once to a session on connect.
type ClientIDFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SyncStateFrame carries the full board snapshot sent on connect.
type SyncStateFrame struct {
	Type  string `json:"type"`
	Lists []List `json:"lists"`
	Cards []Card `json:"cards"`
}

// ExecuteSQLFrame is a client -> actor mutation request.
type ExecuteSQLFrame struct {
	Type     string `json:"type"`
	SQL      string `json:"sql"`
	Params   []any  `json:"params,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// SQLResultFrame is broadcast to the other sessions after a write applies.
// Coalesced batches report SQL == BatchSQL and Result.Affected set to the
// number of writes in the batch.
type SQLResultFrame struct {
	Type   string     `json:"type"`
	SQL    string     `json:"sql"`
	Params []any      `json:"params,omitempty"`
	Result ExecResult `json:"result"`
}

// ErrorFrame is sent to the originating session only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExecResult reports the storage-level outcome of an applied write.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId,omitempty"`
	Affected     int   `json:"affected,omitempty"`
}

// List is the snapshot model for a board list (column).
type List struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// Card is the snapshot model for a card on a board list.
type Card struct {
	ID       string `json:"id"`
	ListID   string `json:"listId"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Position int    `json:"position"`
}

// NewClientID builds a CLIENT_ID frame.
func NewClientID(id string) ClientIDFrame {
	return ClientIDFrame{Type: TypeClientID, ID: id}
}

// NewSyncState builds a SYNC_STATE frame. Nil slices marshal as empty
// arrays so reconnecting clients always receive both keys.
func NewSyncState(lists []List, cards []Card) SyncStateFrame {
	if lists == nil {
		lists = []List{}
	}
	if cards == nil {
		cards = []Card{}
	}
	return SyncStateFrame{Type: TypeSyncState, Lists: lists, Cards: cards}
}

// NewExecuteSQL builds an EXECUTE_SQL frame.
func NewExecuteSQL(sql string, params []any, clientID string) ExecuteSQLFrame {
	return ExecuteSQLFrame{Type: TypeExecuteSQL, SQL: sql, Params: params, ClientID: clientID}
}

// NewSQLResult builds a SQL_RESULT frame.
func NewSQLResult(sql string, params []any, result ExecResult) SQLResultFrame {
	return SQLResultFrame{Type: TypeSQLResult, SQL: sql, Params: params, Result: result}
}

// NewBatchResult builds the SQL_RESULT frame for a coalesced batch.
func NewBatchResult(affected int) SQLResultFrame {
	return SQLResultFrame{Type: TypeSQLResult, SQL: BatchSQL, Result: ExecResult{Affected: affected}}
}

// NewError builds an ERROR frame.
func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}

// FrameType returns the type discriminator of a raw frame.
func FrameType(data []byte) (string, error) {
	var h Head
	if err := json.Unmarshal(data, &h); err != nil {
		return "", err
	}
	return h.Type, nil
}
