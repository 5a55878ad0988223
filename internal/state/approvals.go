package state

import (
	"database/sql"
	"fmt"
	"time"
)

// ApprovalDecision is the human verdict for a suspended task.
type ApprovalDecision string

const (
	// ApprovalApproved resumes the task at the reviewed tier.
	ApprovalApproved ApprovalDecision = "approved"
	// ApprovalRejected fails the task terminally.
	ApprovalRejected ApprovalDecision = "rejected"
)

// PendingApproval is a task parked in the durable approval queue. Parking in
// a table rather than a blocked goroutine means suspended tasks survive
// process restarts.
type PendingApproval struct {
	TaskID      string
	PlanSummary string
	RiskScore   float64
	CreatedAt   time.Time
}

// EnqueueApproval parks a task pending a human decision. Re-enqueueing an
// already pending task refreshes its summary.
func (db *DB) EnqueueApproval(p PendingApproval) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.conn.Exec(`
		INSERT INTO pending_approvals (task_id, plan_summary, risk_score, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			plan_summary = excluded.plan_summary,
			risk_score = excluded.risk_score,
			resolved_at = NULL,
			decision = NULL`,
		p.TaskID, p.PlanSummary, p.RiskScore, createdAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue approval for task %s: %w", p.TaskID, err)
	}
	return nil
}

// ResolveApproval records the human decision for a pending task. It fails if
// the task is not pending approval.
func (db *DB) ResolveApproval(taskID string, decision ApprovalDecision) error {
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return fmt.Errorf("invalid approval decision %q", decision)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`
		UPDATE pending_approvals SET resolved_at = ?, decision = ?
		WHERE task_id = ? AND resolved_at IS NULL`,
		time.Now().UTC(), string(decision), taskID)
	if err != nil {
		return fmt.Errorf("resolve approval for task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s has no pending approval", taskID)
	}
	return nil
}

// GetPendingApproval returns the unresolved approval for a task, or nil.
func (db *DB) GetPendingApproval(taskID string) (*PendingApproval, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT task_id, plan_summary, risk_score, created_at
		FROM pending_approvals WHERE task_id = ? AND resolved_at IS NULL`, taskID)

	var p PendingApproval
	err := row.Scan(&p.TaskID, &p.PlanSummary, &p.RiskScore, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending approval for task %s: %w", taskID, err)
	}
	return &p, nil
}

// ListPendingApprovals returns all unresolved approvals, oldest first.
func (db *DB) ListPendingApprovals() ([]PendingApproval, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, plan_summary, risk_score, created_at
		FROM pending_approvals WHERE resolved_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var pending []PendingApproval
	for rows.Next() {
		var p PendingApproval
		if err := rows.Scan(&p.TaskID, &p.PlanSummary, &p.RiskScore, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending approval: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}
