// Package httpapi exposes the REST surface and the WebSocket endpoint
// for board clients and external triggers.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/corkboardapp/corkboard/internal/board"
)

// DefaultBoard is used when a request names no board.
const DefaultBoard = "default"

// Server is the HTTP API server.
type Server struct {
	boards *board.Registry
	addr   string
	mux    *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(boards *board.Registry, addr string) *Server {
	s := &Server{
		boards: boards,
		addr:   addr,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/ws", s.wsHandler())
	s.mux.HandleFunc("/api/state", s.stateHandler())
	s.mux.HandleFunc("/api/sql", s.execSQLHandler())
	s.mux.HandleFunc("/api/run", s.runPromptHandler())
	s.mux.HandleFunc("/api/scheduler/schedule", s.scheduleHandler())
	s.mux.HandleFunc("/api/scheduler/tick", s.tickHandler())
	s.mux.HandleFunc("/api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("/api/logs", s.taskLogsHandler())
}

// Handler returns the routing mux, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// actorFor resolves the board named by the request, falling back to the
// default board.
func (s *Server) actorFor(r *http.Request) (*board.Actor, error) {
	boardID := r.URL.Query().Get("board")
	if boardID == "" {
		boardID = DefaultBoard
	}
	return s.boards.Get(boardID)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
