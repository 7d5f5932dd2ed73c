package boardstore

import (
	"database/sql"
	"time"
)

// TaskStatus values recorded in the task_log audit trail and on prompts.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusDeployed = "deployed"
)

// ScheduledTask is a background task owned by a prompt. Tasks are never
// hard-deleted automatically; they are disabled instead.
type ScheduledTask struct {
	ID       string
	PromptID string
	Payload  string
	CronSpec string
	Enabled  bool
	LastRun  *time.Time
	NextRun  *time.Time
}

// TaskLogEntry is one row of the append-only execution audit trail.
type TaskLogEntry struct {
	ID         int64
	TaskID     string
	Output     string
	ExecutedAt time.Time
	DurationMs int64
	Status     string
}

// UpsertScheduledTask inserts or updates a scheduled task.
func (s *Store) UpsertScheduledTask(t *ScheduledTask) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_tasks (id, prompt_id, payload, cron_spec, enabled, last_run, next_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			prompt_id = excluded.prompt_id,
			payload = excluded.payload,
			cron_spec = excluded.cron_spec,
			enabled = excluded.enabled,
			next_run = excluded.next_run
	`, t.ID, t.PromptID, t.Payload, t.CronSpec, t.Enabled, t.LastRun, t.NextRun)
	return err
}

// GetScheduledTask retrieves a task by ID.
func (s *Store) GetScheduledTask(id string) (*ScheduledTask, error) {
	row := s.db.QueryRow(`
		SELECT id, prompt_id, payload, cron_spec, enabled, last_run, next_run
		FROM scheduled_tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListScheduledTasks returns all tasks ordered by id.
func (s *Store) ListScheduledTasks() ([]*ScheduledTask, error) {
	rows, err := s.db.Query(`
		SELECT id, prompt_id, payload, cron_spec, enabled, last_run, next_run
		FROM scheduled_tasks ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*ScheduledTask
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListDueTasks returns enabled tasks whose next_run is at or before now.
func (s *Store) ListDueTasks(now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.Query(`
		SELECT id, prompt_id, payload, cron_spec, enabled, last_run, next_run
		FROM scheduled_tasks
		WHERE enabled AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*ScheduledTask
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskRun records the outcome of a run and the next due time.
func (s *Store) UpdateTaskRun(id string, lastRun, nextRun time.Time) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET last_run = ?, next_run = ? WHERE id = ?`,
		lastRun, nextRun, id)
	return err
}

// SetTaskEnabled enables or disables a task.
func (s *Store) SetTaskEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET enabled = ? WHERE id = ?`, enabled, id)
	return err
}

// AppendTaskLog appends one execution outcome to the audit trail.
func (s *Store) AppendTaskLog(e *TaskLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO task_log (task_id, output, executed_at, duration_ms, status)
		VALUES (?, ?, ?, ?, ?)
	`, e.TaskID, e.Output, e.ExecutedAt, e.DurationMs, e.Status)
	return err
}

// ListTaskLogs returns up to limit newest log entries for a task.
func (s *Store) ListTaskLogs(taskID string, limit int) ([]*TaskLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, output, executed_at, duration_ms, status
		FROM task_log WHERE task_id = ?
		ORDER BY id DESC LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*TaskLogEntry
	for rows.Next() {
		var e TaskLogEntry
		var output sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &output, &e.ExecutedAt, &e.DurationMs, &e.Status); err != nil {
			return nil, err
		}
		e.Output = output.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SetPromptStatus updates the status of the owning prompt entity.
func (s *Store) SetPromptStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE prompts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	return err
}

// SavePromptOutput persists a generation result and marks the prompt deployed.
func (s *Store) SavePromptOutput(id, output, model string) error {
	_, err := s.db.Exec(`
		UPDATE prompts SET output = ?, model = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, output, model, StatusDeployed, id)
	return err
}

// GetPromptBody returns the prompt body used as the generation input.
func (s *Store) GetPromptBody(id string) (string, error) {
	var body sql.NullString
	err := s.db.QueryRow(`SELECT body FROM prompts WHERE id = ?`, id).Scan(&body)
	if err != nil {
		return "", err
	}
	return body.String, nil
}

func scanTask(row *sql.Row) (*ScheduledTask, error) {
	var t ScheduledTask
	var payload, cronSpec sql.NullString
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&t.ID, &t.PromptID, &payload, &cronSpec, &t.Enabled, &lastRun, &nextRun)
	if err != nil {
		return nil, err
	}

	t.Payload = payload.String
	t.CronSpec = cronSpec.String
	if lastRun.Valid {
		t.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		t.NextRun = &nextRun.Time
	}
	return &t, nil
}

func scanTaskRows(rows *sql.Rows) (*ScheduledTask, error) {
	var t ScheduledTask
	var payload, cronSpec sql.NullString
	var lastRun, nextRun sql.NullTime

	err := rows.Scan(&t.ID, &t.PromptID, &payload, &cronSpec, &t.Enabled, &lastRun, &nextRun)
	if err != nil {
		return nil, err
	}

	t.Payload = payload.String
	t.CronSpec = cronSpec.String
	if lastRun.Valid {
		t.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		t.NextRun = &nextRun.Time
	}
	return &t, nil
}
