package models

import "time"

// TaskStatus represents the current state of a task in the router.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not routed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRouting indicates a strategy decision is being made.
	TaskStatusRouting TaskStatus = "routing"
	// TaskStatusExecuting indicates a strategy handler is running.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusRequiresApproval indicates the task is suspended pending a human decision.
	TaskStatusRequiresApproval TaskStatus = "requires_approval"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRouting, TaskStatusExecuting,
		TaskStatusRequiresApproval, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final and the task cannot be reprocessed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Urgency is the caller-declared urgency of a task.
type Urgency string

const (
	// UrgencyNormal is the default urgency.
	UrgencyNormal Urgency = "normal"
	// UrgencyImmediate downgrades the execution mode by one tier where safe.
	UrgencyImmediate Urgency = "immediate"
)

// Valid returns true if the urgency is a known value.
func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyImmediate
}

// Task represents a unit of work submitted for execution.
// A Task is immutable once submitted; status lives in the router's run state.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the natural-language description of the work.
	Description string `json:"description"`
	// Urgency is the caller-declared urgency.
	Urgency Urgency `json:"urgency"`
	// RiskHints are caller-supplied risk signals (e.g. "production", "irreversible").
	RiskHints []string `json:"risk_hints,omitempty"`
	// BudgetCap is the maximum spend allowed for this task.
	BudgetCap float64 `json:"budget_cap"`
	// Override forces an execution mode, bypassing the computed decision.
	// Empty means no override.
	Override ExecutionMode `json:"override,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// RunRecord is the terminal result record emitted when a task reaches a final
// status. Persistence of the record is owned by the state store.
type RunRecord struct {
	// TaskID is the ID of the finished task.
	TaskID string `json:"task_id"`
	// FinalStatus is the terminal status (completed or failed).
	FinalStatus TaskStatus `json:"final_status"`
	// FailureReason names the failure type for failed runs.
	FailureReason string `json:"failure_reason,omitempty"`
	// Artifacts lists everything produced, including partial results from
	// phases that passed before a later failure.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// TotalCost is the cumulative spend charged against the budget.
	TotalCost float64 `json:"total_cost"`
	// EscalationCount is how many times the task escalated tiers.
	EscalationCount int `json:"escalation_count"`
	// PhaseHistory records per-phase outcomes for full-loop runs.
	PhaseHistory []PhaseRecord `json:"phase_history,omitempty"`
	// FinishedAt is when the terminal status was reached.
	FinishedAt time.Time `json:"finished_at"`
}

// PhaseRecord summarizes one phase's outcome for the run record.
type PhaseRecord struct {
	// Name is the phase name.
	Name string `json:"name"`
	// Status is the final phase status.
	Status PhaseStatus `json:"status"`
	// Rounds is how many rounds the phase consumed.
	Rounds int `json:"rounds"`
}
