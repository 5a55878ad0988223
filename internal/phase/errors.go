package phase

import "fmt"

// PlanningError indicates no valid plan or phase partition could be
// produced. It is terminal at full-loop entry; the router does not retry it
// at this tier.
type PlanningError struct {
	TaskID string
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed for task %s: %s: %v", e.TaskID, e.Reason, e.Err)
	}
	return fmt.Sprintf("planning failed for task %s: %s", e.TaskID, e.Reason)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// EscalateError indicates the review gate demanded escalation; the router
// decides whether a heavier tier or terminal failure follows.
type EscalateError struct {
	Phase    string
	Feedback string
}

func (e *EscalateError) Error() string {
	return fmt.Sprintf("phase %s escalated by review: %s", e.Phase, e.Feedback)
}

// RoundsExhaustedError indicates a phase used up its audit rounds without
// passing review.
type RoundsExhaustedError struct {
	Phase  string
	Rounds int
}

func (e *RoundsExhaustedError) Error() string {
	return fmt.Sprintf("phase %s failed after %d rounds", e.Phase, e.Rounds)
}
