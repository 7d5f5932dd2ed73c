// Package outbox implements the client-side durable mutation queue.
// Every local edit is persisted before any delivery attempt, so an app
// crash or offline period loses nothing. Delivery is at-least-once;
// the server-side store applies mutations idempotently by primary key.
package outbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS mutations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    sql_text TEXT NOT NULL,
    params TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    synced BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Mutation is one pending local edit awaiting delivery.
type Mutation struct {
	ID        string
	SQL       string
	Params    []any
	CreatedAt time.Time
}

// Outbox persists mutations in a local SQLite database.
type Outbox struct {
	db *sql.DB
}

// Open creates or opens the outbox database at the given path.
func Open(path string) (*Outbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(outboxSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox schema: %w", err)
	}
	return &Outbox{db: db}, nil
}

// Close closes the underlying database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Enqueue durably records a mutation. It must be called before any
// delivery attempt.
func (o *Outbox) Enqueue(sqlText string, params []any) (*Mutation, error) {
	if params == nil {
		params = []any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}

	m := &Mutation{
		ID:        uuid.New().String(),
		SQL:       sqlText,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	_, err = o.db.Exec(`
		INSERT INTO mutations (id, sql_text, params, created_at) VALUES (?, ?, ?, ?)
	`, m.ID, m.SQL, string(encoded), m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Pending returns up to limit unsynced mutations in creation order.
func (o *Outbox) Pending(limit int) ([]*Mutation, error) {
	rows, err := o.db.Query(`
		SELECT id, sql_text, params, created_at
		FROM mutations WHERE NOT synced
		ORDER BY seq LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*Mutation
	for rows.Next() {
		var m Mutation
		var encoded string
		if err := rows.Scan(&m.ID, &m.SQL, &encoded, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(encoded), &m.Params); err != nil {
			return nil, fmt.Errorf("decoding params for %s: %w", m.ID, err)
		}
		pending = append(pending, &m)
	}
	return pending, rows.Err()
}

// MarkSynced removes a mutation once the transport confirmed the send.
func (o *Outbox) MarkSynced(id string) error {
	_, err := o.db.Exec(`DELETE FROM mutations WHERE id = ?`, id)
	return err
}

// PendingCount reports how many mutations still await delivery.
func (o *Outbox) PendingCount() (int, error) {
	var n int
	err := o.db.QueryRow(`SELECT COUNT(*) FROM mutations WHERE NOT synced`).Scan(&n)
	return n, err
}
