package boardstore

import (
	"encoding/json"

	"github.com/corkboardapp/corkboard/internal/workflow"
)

// UpsertRule inserts or updates an automation rule.
func (s *Store) UpsertRule(r *workflow.Rule) error {
	triggers, err := json.Marshal(r.Triggers)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO workflow_rules (id, owner_id, task_id, enabled, triggers)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			task_id = excluded.task_id,
			enabled = excluded.enabled,
			triggers = excluded.triggers
	`, r.ID, r.OwnerID, r.TaskID, r.Enabled, string(triggers))
	return err
}

// ListEnabledRules returns all enabled automation rules.
func (s *Store) ListEnabledRules() ([]*workflow.Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, task_id, enabled, triggers
		FROM workflow_rules WHERE enabled
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*workflow.Rule
	for rows.Next() {
		var r workflow.Rule
		var triggersJSON string
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.TaskID, &r.Enabled, &triggersJSON); err != nil {
			return nil, err
		}
		if triggersJSON != "" && triggersJSON != "null" {
			if err := json.Unmarshal([]byte(triggersJSON), &r.Triggers); err != nil {
				return nil, err
			}
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}
