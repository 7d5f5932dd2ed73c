package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/corkboardapp/corkboard/internal/boardstore"
	"github.com/corkboardapp/corkboard/internal/protocol"
)

// StateResponse is the full board snapshot.
type StateResponse struct {
	Lists []protocol.List `json:"lists"`
	Cards []protocol.Card `json:"cards"`
}

// ExecSQLRequest is the body of POST /api/sql.
type ExecSQLRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
	User   string `json:"user"`
}

// ExecSQLResponse reports the outcome of a direct SQL execution.
type ExecSQLResponse struct {
	Queued bool                 `json:"queued"`
	Result *protocol.ExecResult `json:"result,omitempty"`
}

// RunRequest is the body of POST /api/run.
type RunRequest struct {
	PromptID string `json:"promptId"`
}

// ScheduleRequest is the body of POST /api/scheduler/schedule.
type ScheduleRequest struct {
	ID       string `json:"id"`
	PromptID string `json:"promptId"`
	Payload  string `json:"payload,omitempty"`
	CronSpec string `json:"cronSpec,omitempty"`
	Enabled  bool   `json:"enabled"`
	NextRun  string `json:"nextRun,omitempty"`
}

// TaskResponse is the API view of a scheduled task.
type TaskResponse struct {
	ID       string `json:"id"`
	PromptID string `json:"promptId"`
	CronSpec string `json:"cronSpec,omitempty"`
	Enabled  bool   `json:"enabled"`
	LastRun  string `json:"lastRun,omitempty"`
	NextRun  string `json:"nextRun,omitempty"`
}

// TaskLogResponse is one audit-trail row.
type TaskLogResponse struct {
	ID         int64  `json:"id"`
	TaskID     string `json:"taskId"`
	Output     string `json:"output,omitempty"`
	ExecutedAt string `json:"executedAt"`
	DurationMs int64  `json:"durationMs"`
	Status     string `json:"status"`
}

func taskToResponse(t *boardstore.ScheduledTask) TaskResponse {
	resp := TaskResponse{
		ID:       t.ID,
		PromptID: t.PromptID,
		CronSpec: t.CronSpec,
		Enabled:  t.Enabled,
	}
	if t.LastRun != nil {
		resp.LastRun = t.LastRun.Format(time.RFC3339)
	}
	if t.NextRun != nil {
		resp.NextRun = t.NextRun.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		actor.HandleWebSocket(w, r)
	}
}

func (s *Server) stateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		lists, cards, err := actor.State()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if lists == nil {
			lists = []protocol.List{}
		}
		if cards == nil {
			cards = []protocol.Card{}
		}

		writeJSON(w, StateResponse{Lists: lists, Cards: cards})
	}
}

// execSQLHandler runs a write directly against a board. Callers must
// identify as a user with write access; viewers and unknown users are
// rejected before the write reaches the actor.
func (s *Server) execSQLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req ExecSQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SQL == "" {
			writeError(w, http.StatusBadRequest, "sql is required")
			return
		}
		if req.User == "" {
			writeError(w, http.StatusUnauthorized, "user is required")
			return
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		role, err := actor.Store().GetUserRole(req.User)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if role != "admin" && role != "editor" {
			writeError(w, http.StatusForbidden, "write access denied")
			return
		}

		result, queued, err := actor.ApplyExternal(req.SQL, req.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if queued {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(ExecSQLResponse{Queued: true})
			return
		}
		writeJSON(w, ExecSQLResponse{Result: &result})
	}
}

// runPromptHandler fires one generation asynchronously and returns 202.
func (s *Server) runPromptHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PromptID == "" {
			writeError(w, http.StatusBadRequest, "promptId is required")
			return
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		actor.RunPrompt(req.PromptID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "running"})
	}
}

func (s *Server) scheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ID == "" || req.PromptID == "" {
			writeError(w, http.StatusBadRequest, "id and promptId are required")
			return
		}

		task := &boardstore.ScheduledTask{
			ID:       req.ID,
			PromptID: req.PromptID,
			Payload:  req.Payload,
			CronSpec: req.CronSpec,
			Enabled:  req.Enabled,
		}
		if req.NextRun != "" {
			next, err := time.Parse(time.RFC3339, req.NextRun)
			if err != nil {
				writeError(w, http.StatusBadRequest, "nextRun must be RFC3339")
				return
			}
			task.NextRun = &next
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := actor.Store().UpsertScheduledTask(task); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, taskToResponse(task))
	}
}

// tickHandler forces a scheduler pass, used by an external cron trigger.
func (s *Server) tickHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		actor.RunSchedulerPass(context.Background())
		writeJSON(w, map[string]string{"status": "ticked"})
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		tasks, err := actor.Store().ListScheduledTasks()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]TaskResponse, len(tasks))
		for i, t := range tasks {
			responses[i] = taskToResponse(t)
		}
		writeJSON(w, responses)
	}
}

func (s *Server) taskLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		taskID := r.URL.Query().Get("task")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "task query param required")
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		actor, err := s.actorFor(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		entries, err := actor.Store().ListTaskLogs(taskID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]TaskLogResponse, len(entries))
		for i, e := range entries {
			responses[i] = TaskLogResponse{
				ID:         e.ID,
				TaskID:     e.TaskID,
				Output:     e.Output,
				ExecutedAt: e.ExecutedAt.Format(time.RFC3339),
				DurationMs: e.DurationMs,
				Status:     e.Status,
			}
		}
		writeJSON(w, responses)
	}
}
