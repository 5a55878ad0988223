package models

import "time"

// Specialty tags a worker with the kind of work it handles.
type Specialty string

const (
	// SpecialtyGeneral marks a generalist worker, used as the fallback when
	// no worker of the requested specialty exists.
	SpecialtyGeneral Specialty = "general"
	// SpecialtyResearch handles investigation and analysis steps.
	SpecialtyResearch Specialty = "research"
	// SpecialtyEngineering handles code and build steps.
	SpecialtyEngineering Specialty = "engineering"
	// SpecialtyWriting handles documentation and prose steps.
	SpecialtyWriting Specialty = "writing"
	// SpecialtyReview handles audit and review steps.
	SpecialtyReview Specialty = "review"
)

// Valid returns true if the specialty is a known value.
func (s Specialty) Valid() bool {
	switch s {
	case SpecialtyGeneral, SpecialtyResearch, SpecialtyEngineering,
		SpecialtyWriting, SpecialtyReview:
		return true
	default:
		return false
	}
}

// WorkerStatus represents the state of a pooled worker.
type WorkerStatus string

const (
	// WorkerIdle indicates the worker is available for assignment.
	WorkerIdle WorkerStatus = "idle"
	// WorkerBusy indicates the worker is executing a work item.
	WorkerBusy WorkerStatus = "busy"
	// WorkerErrored indicates the worker raised an unexpected error and has
	// been removed from the assignment rotation.
	WorkerErrored WorkerStatus = "errored"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerIdle, WorkerBusy, WorkerErrored:
		return true
	default:
		return false
	}
}

// WorkerStats holds per-worker execution metrics.
type WorkerStats struct {
	// ItemsCompleted is the number of work items finished successfully.
	ItemsCompleted int `json:"items_completed"`
	// ItemsFailed is the number of work items that failed or timed out.
	ItemsFailed int `json:"items_failed"`
	// TotalCost is the cumulative cost reported by this worker's results.
	TotalCost float64 `json:"total_cost"`
	// BusyTime is the cumulative wall-clock time spent executing.
	BusyTime time.Duration `json:"busy_time"`
}

// Worker is a pooled execution slot tagged with a specialty. The pool owns
// all workers; a worker never outlives the pool.
type Worker struct {
	// ID is the worker's unique identifier.
	ID string `json:"id"`
	// Specialty is the kind of work this worker handles.
	Specialty Specialty `json:"specialty"`
	// Status is the worker's current state.
	Status WorkerStatus `json:"status"`
	// Stats are the worker's execution metrics.
	Stats WorkerStats `json:"stats"`
}

// WorkPayload carries the business content of a work item. The pool treats
// it as opaque.
type WorkPayload struct {
	// TaskID is the task the work belongs to.
	TaskID string `json:"task_id"`
	// Phase is the phase name for full-loop work, empty otherwise.
	Phase string `json:"phase,omitempty"`
	// Instructions is the prompt or directive for the worker.
	Instructions string `json:"instructions"`
	// Steps are the plan steps to execute, if any.
	Steps []PlanStep `json:"steps,omitempty"`
	// PriorArtifacts are summaries of artifacts from completed phases.
	PriorArtifacts []string `json:"prior_artifacts,omitempty"`
	// Feedback is reviewer feedback from a previous round, injected into
	// retry rounds.
	Feedback string `json:"feedback,omitempty"`
	// AcceptanceCriteria defines what the output must satisfy.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// WorkItem is the unit submitted to the worker pool. It is owned exclusively
// by the component that submitted it.
type WorkItem struct {
	// ID is the work item identifier.
	ID string `json:"id"`
	// Specialty is the worker specialty required to execute this item.
	Specialty Specialty `json:"specialty"`
	// Payload is the work content.
	Payload WorkPayload `json:"payload"`
	// Timeout bounds the execution time. Zero means the pool default.
	Timeout time.Duration `json:"timeout"`
}

// ErrorKind classifies a work result failure.
type ErrorKind string

const (
	// ErrorNone indicates no error.
	ErrorNone ErrorKind = ""
	// ErrorTimeout indicates the work item exceeded its timeout.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorWorker indicates the worker raised an unexpected error.
	ErrorWorker ErrorKind = "worker_error"
	// ErrorExecution indicates the work itself reported failure.
	ErrorExecution ErrorKind = "execution_error"
)

// WorkResult is the outcome of executing a work item. The pool reports
// failures without interpreting them.
type WorkResult struct {
	// WorkerID is the worker that produced this result.
	WorkerID string `json:"worker_id"`
	// Success indicates the work completed successfully.
	Success bool `json:"success"`
	// Artifacts are the outputs produced.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// CostDelta is the spend incurred by this execution.
	CostDelta float64 `json:"cost_delta"`
	// ErrorKind classifies the failure, if any.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
}
