package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// TaskRow pairs an immutable task with its mutable routing status.
type TaskRow struct {
	Task   models.Task
	Status models.TaskStatus
}

// CreateTask persists a newly submitted task in pending status.
func (db *DB) CreateTask(task models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	hints, err := json.Marshal(task.RiskHints)
	if err != nil {
		return fmt.Errorf("marshal risk hints: %w", err)
	}

	now := time.Now().UTC()
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = db.conn.Exec(`
		INSERT INTO tasks (id, description, urgency, risk_hints, budget_cap, override_mode, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Description, string(task.Urgency), string(hints),
		task.BudgetCap, string(task.Override), string(models.TaskStatusPending),
		createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask returns a task row by id.
func (db *DB) GetTask(id string) (*TaskRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, description, urgency, risk_hints, budget_cap, override_mode, status, created_at
		FROM tasks WHERE id = ?`, id)

	var t TaskRow
	var urgency, hints, override, status string
	err := row.Scan(&t.Task.ID, &t.Task.Description, &urgency, &hints,
		&t.Task.BudgetCap, &override, &status, &t.Task.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	t.Task.Urgency = models.Urgency(urgency)
	t.Task.Override = models.ExecutionMode(override)
	t.Status = models.TaskStatus(status)
	if hints != "" {
		if err := json.Unmarshal([]byte(hints), &t.Task.RiskHints); err != nil {
			return nil, fmt.Errorf("unmarshal risk hints for task %s: %w", id, err)
		}
	}
	return &t, nil
}

// UpdateTaskStatus moves a task to a new routing status.
func (db *DB) UpdateTaskStatus(id string, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid task status %q", status)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// ListTasksByStatus returns tasks in the given status, oldest first.
func (db *DB) ListTasksByStatus(status models.TaskStatus) ([]TaskRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, description, urgency, risk_hints, budget_cap, override_mode, status, created_at
		FROM tasks WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	var tasks []TaskRow
	for rows.Next() {
		var t TaskRow
		var urgency, hints, override, st string
		if err := rows.Scan(&t.Task.ID, &t.Task.Description, &urgency, &hints,
			&t.Task.BudgetCap, &override, &st, &t.Task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		t.Task.Urgency = models.Urgency(urgency)
		t.Task.Override = models.ExecutionMode(override)
		t.Status = models.TaskStatus(st)
		if hints != "" {
			if err := json.Unmarshal([]byte(hints), &t.Task.RiskHints); err != nil {
				return nil, fmt.Errorf("unmarshal risk hints: %w", err)
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
