// Package boardstore provides the SQLite-backed canonical store for a
// single board. One Store instance is owned by exactly one board actor;
// all cross-client consistency reduces to serializing writes there.
package boardstore

import (
	"database/sql"
	"fmt"

	"github.com/corkboardapp/corkboard/internal/protocol"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed board persistence
type Store struct {
	db *sql.DB
}

// Write is a single SQL write with its parameters.
type Write struct {
	SQL    string
	Params []any
}

// Open creates a Store backed by the database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only queries by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec applies a single write and reports the storage-level result.
func (s *Store) Exec(sqlText string, params []any) (protocol.ExecResult, error) {
	res, err := s.db.Exec(sqlText, params...)
	if err != nil {
		return protocol.ExecResult{}, err
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return protocol.ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

// ExecBatch applies all writes inside one transaction. On any failure the
// whole transaction rolls back and no write is applied.
func (s *Store) ExecBatch(writes []Write) (int, error) {
	if len(writes) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}

	for _, w := range writes {
		if _, err := tx.Exec(w.SQL, w.Params...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("batch write %q: %w", w.SQL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(writes), nil
}

// Snapshot returns the full lists/cards state for a connecting session.
func (s *Store) Snapshot() ([]protocol.List, []protocol.Card, error) {
	rows, err := s.db.Query(`SELECT id, board_id, title, position FROM lists ORDER BY position, id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var lists []protocol.List
	for rows.Next() {
		var l protocol.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position); err != nil {
			return nil, nil, err
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	cardRows, err := s.db.Query(`SELECT id, list_id, title, body, tags, position FROM cards ORDER BY list_id, position, id`)
	if err != nil {
		return nil, nil, err
	}
	defer cardRows.Close()

	var cards []protocol.Card
	for cardRows.Next() {
		var c protocol.Card
		var body, tags sql.NullString
		if err := cardRows.Scan(&c.ID, &c.ListID, &c.Title, &body, &tags, &c.Position); err != nil {
			return nil, nil, err
		}
		c.Body = body.String
		c.Tags = tags.String
		cards = append(cards, c)
	}
	return lists, cards, cardRows.Err()
}

// GetUserRole returns the stored role for a user name, or "" if unknown.
func (s *Store) GetUserRole(name string) (string, error) {
	var role string
	err := s.db.QueryRow(`SELECT role FROM users WHERE name = ?`, name).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// UpsertUser inserts or updates a user's role.
func (s *Store) UpsertUser(id, name, role string) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, role) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET role = excluded.role
	`, id, name, role)
	return err
}
