package router

import (
	"errors"
	"fmt"

	"github.com/tbaxter-dev/foreman/internal/budget"
	"github.com/tbaxter-dev/foreman/internal/phase"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Failure reason names carried on terminal run records.
const (
	ReasonBudgetExceeded   = "budget_exceeded"
	ReasonWorkerTimeout    = "worker_timeout"
	ReasonWorkerError      = "worker_error"
	ReasonExecutionFailed  = "execution_failed"
	ReasonReviewFailure    = "review_failure"
	ReasonReviewEscalation = "review_escalation"
	ReasonRoundsExhausted  = "rounds_exhausted"
	ReasonApprovalRejected = "approval_rejected"
	ReasonPlanningFailure  = "planning_failure"
)

// ErrTaskExists is returned when a submitted task id collides with a live
// task.
var ErrTaskExists = errors.New("task already exists")

// TerminalTaskError is returned when a task id that already reached a
// terminal state is resubmitted. Terminal states are final, not reprocessed.
type TerminalTaskError struct {
	TaskID string
	Status models.TaskStatus
}

func (e *TerminalTaskError) Error() string {
	return fmt.Sprintf("task %s already finished with status %s", e.TaskID, e.Status)
}

// ApprovalRejectedError is the terminal failure for a human-rejected task.
type ApprovalRejectedError struct {
	TaskID string
}

func (e *ApprovalRejectedError) Error() string {
	return fmt.Sprintf("task %s was rejected by human approval", e.TaskID)
}

// executionError classifies a strategy handler failure for escalation and
// for the terminal failure reason.
type executionError struct {
	reason string
	err    error
	// terminal failures never escalate, whatever tier they happen at.
	terminal bool
}

func (e *executionError) Error() string { return e.err.Error() }
func (e *executionError) Unwrap() error { return e.err }

// classify maps an error from a strategy handler onto the failure taxonomy.
func classify(err error) *executionError {
	var exceeded *budget.ExceededError
	if errors.As(err, &exceeded) {
		return &executionError{reason: ReasonBudgetExceeded, err: err, terminal: true}
	}
	var planErr *phase.PlanningError
	if errors.As(err, &planErr) {
		return &executionError{reason: ReasonPlanningFailure, err: err, terminal: true}
	}
	var rejected *ApprovalRejectedError
	if errors.As(err, &rejected) {
		return &executionError{reason: ReasonApprovalRejected, err: err, terminal: true}
	}
	var esc *phase.EscalateError
	if errors.As(err, &esc) {
		return &executionError{reason: ReasonReviewEscalation, err: err}
	}
	var exhausted *phase.RoundsExhaustedError
	if errors.As(err, &exhausted) {
		return &executionError{reason: ReasonRoundsExhausted, err: err}
	}
	var execErr *executionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return &executionError{reason: ReasonExecutionFailed, err: err}
}
