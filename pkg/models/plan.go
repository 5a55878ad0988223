package models

// Plan is an ordered breakdown of a task into steps with acceptance criteria.
// A Plan is read-only after the planning pass produces it.
type Plan struct {
	// TaskID is the task this plan belongs to.
	TaskID string `json:"task_id"`
	// Steps are the ordered plan steps.
	Steps []PlanStep `json:"steps"`
}

// PlanStep is one unit of a plan.
type PlanStep struct {
	// ID is the step identifier, unique within the plan.
	ID string `json:"id"`
	// Title is a short description of the step.
	Title string `json:"title"`
	// Description provides detail on what the step produces.
	Description string `json:"description,omitempty"`
	// AcceptanceCriteria defines what done means for this step.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Specialty is the worker specialty this step calls for.
	Specialty Specialty `json:"specialty"`
	// DependsOn lists step IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
}

// PhaseStatus represents the state of a phase.
type PhaseStatus string

const (
	// PhasePending indicates the phase has not started.
	PhasePending PhaseStatus = "pending"
	// PhaseInProgress indicates the phase is executing rounds.
	PhaseInProgress PhaseStatus = "in_progress"
	// PhasePassed indicates the phase passed review.
	PhasePassed PhaseStatus = "passed"
	// PhaseFailed indicates the phase exhausted its round budget or was aborted.
	PhaseFailed PhaseStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhasePending, PhaseInProgress, PhasePassed, PhaseFailed:
		return true
	default:
		return false
	}
}

// Phase is a dependency-ordered group of plan steps executed and reviewed
// together. A plan is partitioned into 2-5 phases preserving step order.
type Phase struct {
	// Name is the phase name, unique within the plan.
	Name string `json:"name"`
	// Categories are descriptive tags (e.g. "research", "implementation").
	Categories []string `json:"categories,omitempty"`
	// StepIDs are the plan step IDs belonging to this phase, in plan order.
	StepIDs []string `json:"step_ids"`
	// DependsOn lists phase names that must be passed before this phase starts.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current phase status.
	Status PhaseStatus `json:"status"`
}

// RoundStatus represents the state of one execute-then-review attempt.
type RoundStatus string

const (
	// RoundPending indicates the round has not been submitted.
	RoundPending RoundStatus = "pending"
	// RoundInProgress indicates the round's work item is in flight.
	RoundInProgress RoundStatus = "in_progress"
	// RoundPassed indicates the round's output passed review.
	RoundPassed RoundStatus = "passed"
	// RoundFailed indicates the round failed execution or review.
	RoundFailed RoundStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RoundStatus) Valid() bool {
	switch s {
	case RoundPending, RoundInProgress, RoundPassed, RoundFailed:
		return true
	default:
		return false
	}
}

// Round is one attempt at executing a phase. Round counts per phase are
// bounded by the orchestrator's max audits per stage.
type Round struct {
	// Phase is the name of the phase this round belongs to.
	Phase string `json:"phase"`
	// Cycle is the 1-based audit cycle index within the phase.
	Cycle int `json:"cycle"`
	// Status is the round's status.
	Status RoundStatus `json:"status"`
	// Artifacts are the outputs produced by this round.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Feedback is the reviewer feedback recorded when the round fails review.
	Feedback string `json:"feedback,omitempty"`
	// Cost is the spend charged for this round.
	Cost float64 `json:"cost"`
}

// Artifact is a named piece of produced output, typically a file.
type Artifact struct {
	// Name is the artifact name or relative path.
	Name string `json:"name"`
	// Content is the artifact body.
	Content string `json:"content,omitempty"`
	// Summary is a short description used when passing prior-phase context
	// forward without the full content.
	Summary string `json:"summary,omitempty"`
}
