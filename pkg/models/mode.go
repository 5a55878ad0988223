package models

// ExecutionMode is the process tier a task executes under.
type ExecutionMode string

const (
	// ModeDirect executes the task with a single worker call and no review.
	ModeDirect ExecutionMode = "direct"
	// ModeReviewed executes the task with one worker call followed by one
	// review gate pass.
	ModeReviewed ExecutionMode = "reviewed"
	// ModeFullLoop runs the full plan/execute/audit loop.
	ModeFullLoop ExecutionMode = "full_loop"
	// ModeHumanApproval suspends the task until a human approves or rejects it.
	ModeHumanApproval ExecutionMode = "human_approval"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeDirect, ModeReviewed, ModeFullLoop, ModeHumanApproval:
		return true
	default:
		return false
	}
}

// Heavier returns the next tier up the escalation ladder. FullLoop is the top
// of the ladder; HumanApproval sits outside it and is never escalated into
// or out of automatically.
func (m ExecutionMode) Heavier() ExecutionMode {
	switch m {
	case ModeDirect:
		return ModeReviewed
	case ModeReviewed:
		return ModeFullLoop
	default:
		return m
	}
}

// Lighter returns the next tier down the escalation ladder. Direct is the
// bottom; HumanApproval is never downgraded.
func (m ExecutionMode) Lighter() ExecutionMode {
	switch m {
	case ModeFullLoop:
		return ModeReviewed
	case ModeReviewed:
		return ModeDirect
	default:
		return m
	}
}

// Decision is the strategy decider's verdict for a task. It is produced once
// per task (and once more per escalation) and consumed immediately.
type Decision struct {
	// Mode is the chosen execution mode.
	Mode ExecutionMode `json:"mode"`
	// ComplexityScore is the estimated task complexity, 0-10.
	ComplexityScore float64 `json:"complexity_score"`
	// RiskScore is the estimated task risk, 0-10.
	RiskScore float64 `json:"risk_score"`
	// EstimatedCost is the projected spend for executing at this mode.
	EstimatedCost float64 `json:"estimated_cost"`
	// Rationale explains how the mode was chosen.
	Rationale string `json:"rationale"`
}
