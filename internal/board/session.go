// Package board implements the per-board coordination actor: it owns the
// canonical store, serializes concurrent writes from connected sessions,
// coalesces bursts, broadcasts results, and runs the board's scheduler.
package board

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn the registry needs. Tests
// substitute a capture implementation.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session represents one connected client on a board. Created on socket
// upgrade, destroyed on disconnect, never persisted.
type Session struct {
	ID       string
	Conn     wsConn
	JoinedAt time.Time

	writeMu sync.Mutex // protects Conn writes
}

// WriteJSON marshals v and sends it on the session's connection (thread-safe).
func (s *Session) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Write sends a text frame on the session's connection (thread-safe).
func (s *Session) Write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// SessionRegistry tracks the connected sessions of one board.
type SessionRegistry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session to the registry
func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.JoinedAt = time.Now()
	r.sessions[s.ID] = s
}

// Unregister removes a session from the registry
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns a session by ID
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Count returns the number of connected sessions
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns all connected sessions
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result
}

// Broadcast sends a frame to every session except the one named by
// excludeID. A failed send only affects that session.
func (r *SessionRegistry) Broadcast(v any, excludeID string) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	for _, s := range r.All() {
		if s.ID == excludeID {
			continue
		}
		if err := s.Write(data); err != nil {
			// The read loop notices the broken connection and cleans up.
			s.Conn.Close()
		}
	}
}
