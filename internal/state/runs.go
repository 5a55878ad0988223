package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// SaveRunRecord persists the terminal result record for a finished task.
// Saving twice for the same task replaces the record; terminal results are
// idempotent.
func (db *DB) SaveRunRecord(rec models.RunRecord) error {
	if !rec.FinalStatus.Terminal() {
		return fmt.Errorf("run record for task %s has non-terminal status %s", rec.TaskID, rec.FinalStatus)
	}

	artifacts, err := json.Marshal(rec.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	phases, err := json.Marshal(rec.PhaseHistory)
	if err != nil {
		return fmt.Errorf("marshal phase history: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.conn.Exec(`
		INSERT INTO run_records (task_id, final_status, failure_reason, artifacts, total_cost, escalation_count, phase_history, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			final_status = excluded.final_status,
			failure_reason = excluded.failure_reason,
			artifacts = excluded.artifacts,
			total_cost = excluded.total_cost,
			escalation_count = excluded.escalation_count,
			phase_history = excluded.phase_history,
			finished_at = excluded.finished_at`,
		rec.TaskID, string(rec.FinalStatus), rec.FailureReason, string(artifacts),
		rec.TotalCost, rec.EscalationCount, string(phases), rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run record for task %s: %w", rec.TaskID, err)
	}
	return nil
}

// GetRunRecord returns the terminal record for a task, or nil if the task
// has not finished.
func (db *DB) GetRunRecord(taskID string) (*models.RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT task_id, final_status, failure_reason, artifacts, total_cost, escalation_count, phase_history, finished_at
		FROM run_records WHERE task_id = ?`, taskID)

	var rec models.RunRecord
	var status, artifacts, phases string
	err := row.Scan(&rec.TaskID, &status, &rec.FailureReason, &artifacts,
		&rec.TotalCost, &rec.EscalationCount, &phases, &rec.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run record for task %s: %w", taskID, err)
	}

	rec.FinalStatus = models.TaskStatus(status)
	if artifacts != "" {
		if err := json.Unmarshal([]byte(artifacts), &rec.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts for task %s: %w", taskID, err)
		}
	}
	if phases != "" {
		if err := json.Unmarshal([]byte(phases), &rec.PhaseHistory); err != nil {
			return nil, fmt.Errorf("unmarshal phase history for task %s: %w", taskID, err)
		}
	}
	return &rec, nil
}
