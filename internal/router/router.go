// Package router is the top-level task state machine. It consumes submitted
// tasks, asks the strategy decider for an execution mode, dispatches to the
// matching strategy handler, and manages bounded escalation between modes.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbaxter-dev/foreman/internal/budget"
	"github.com/tbaxter-dev/foreman/internal/phase"
	"github.com/tbaxter-dev/foreman/internal/review"
	"github.com/tbaxter-dev/foreman/internal/state"
	"github.com/tbaxter-dev/foreman/internal/strategy"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// maxEscalations bounds how many times a task may move up a tier before
// failing terminally.
const maxEscalations = 2

// Config contains configuration for the Service.
type Config struct {
	// Decider maps tasks to execution decisions. Defaults to the heuristic
	// decider.
	Decider *strategy.Decider
	// Pool executes work items. Required.
	Pool phase.Submitter
	// Gate reviews completed work. Required.
	Gate phase.Reviewer
	// Planner produces full-loop plans. Defaults to the heuristic planner.
	Planner phase.Planner
	// Store persists tasks, run records, and the approval queue. Required.
	Store state.Store
	// MaxAuditsPerStage bounds full-loop rounds per phase.
	MaxAuditsPerStage int
	// RoundEstimate is the spend pre-charged before each unit of paid work.
	RoundEstimate float64
	// WorkTimeout bounds each work item.
	WorkTimeout time.Duration
	// EventBuffer sizes the status event channel.
	EventBuffer int
	// DefaultBudgetCap applies to tasks submitted without a cap. Zero
	// means unlimited.
	DefaultBudgetCap float64
}

// Service runs the task state machine:
// PENDING -> ROUTING -> EXECUTING -> {COMPLETED | FAILED | REQUIRES_APPROVAL}.
// Multiple tasks may be in flight at once, each driving its own state
// machine, all sharing one pool; every task gets its own budget guard.
type Service struct {
	cfg       Config
	approvals *approvalManager
	events    *eventBus
	wg        sync.WaitGroup
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Decider == nil {
		cfg.Decider = strategy.NewDecider(nil, nil)
	}
	if cfg.Planner == nil {
		cfg.Planner = phase.NewHeuristicPlanner()
	}
	if cfg.RoundEstimate <= 0 {
		cfg.RoundEstimate = 1
	}
	return &Service{
		cfg:       cfg,
		approvals: newApprovalManager(cfg.Store),
		events:    newEventBus(cfg.EventBuffer),
	}, nil
}

// Events returns the per-task status event stream.
func (s *Service) Events() <-chan Event {
	return s.events.Events()
}

// DroppedEvents returns how many events were discarded because no consumer
// kept up.
func (s *Service) DroppedEvents() uint64 {
	return s.events.Dropped()
}

// ApprovalNotices returns the pending-approval notification stream.
func (s *Service) ApprovalNotices() <-chan ApprovalNotice {
	return s.approvals.Notices()
}

// Wait blocks until all asynchronously submitted tasks finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Submit accepts a task and runs it asynchronously, returning its id.
// Resubmitting a terminal task id is rejected; terminal states are final.
func (s *Service) Submit(ctx context.Context, task models.Task) (string, error) {
	accepted, err := s.accept(task)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(ctx, accepted); err != nil {
			log.Printf("[router] task %s stopped: %v", accepted.ID, err)
		}
	}()
	return accepted.ID, nil
}

// Run accepts a task and runs it to completion, returning the terminal run
// record. A task suspended for approval blocks until the decision arrives.
func (s *Service) Run(ctx context.Context, task models.Task) (models.RunRecord, error) {
	accepted, err := s.accept(task)
	if err != nil {
		return models.RunRecord{}, err
	}
	return s.run(ctx, accepted)
}

// accept validates a submission and persists it in pending status.
func (s *Service) accept(task models.Task) (models.Task, error) {
	if strings.TrimSpace(task.Description) == "" {
		return task, fmt.Errorf("task description is required")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()[:8]
	}
	if task.Urgency == "" {
		task.Urgency = models.UrgencyNormal
	}
	if !task.Urgency.Valid() {
		return task, fmt.Errorf("invalid urgency %q", task.Urgency)
	}
	if task.Override != "" && !task.Override.Valid() {
		return task, fmt.Errorf("invalid override mode %q", task.Override)
	}
	if task.BudgetCap <= 0 {
		task.BudgetCap = s.cfg.DefaultBudgetCap
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	existing, err := s.cfg.Store.GetTask(task.ID)
	if err != nil {
		return task, err
	}
	if existing != nil {
		if existing.Status.Terminal() {
			return task, &TerminalTaskError{TaskID: task.ID, Status: existing.Status}
		}
		return task, fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}

	if err := s.cfg.Store.CreateTask(task); err != nil {
		return task, err
	}
	s.events.emit(Event{TaskID: task.ID, Status: models.TaskStatusPending})
	return task, nil
}

// run drives one task from pending to a terminal status.
func (s *Service) run(ctx context.Context, task models.Task) (models.RunRecord, error) {
	if err := s.setStatus(task.ID, models.TaskStatusRouting); err != nil {
		return models.RunRecord{}, err
	}
	s.events.emit(Event{TaskID: task.ID, Status: models.TaskStatusRouting})

	decision, err := s.cfg.Decider.Decide(ctx, task)
	if err != nil {
		return s.finalize(task, models.TaskStatusFailed, ReasonExecutionFailed,
			fmt.Sprintf("strategy decision failed: %v", err), nil, nil, 0, 0)
	}
	log.Printf("[router] task %s: mode %s (complexity %.1f, risk %.1f)",
		task.ID, decision.Mode, decision.ComplexityScore, decision.RiskScore)

	guard := budget.NewGuard(task.BudgetCap)
	return s.executeLoop(ctx, task, decision, guard, 0)
}

// executeLoop dispatches to strategy handlers and applies the escalation
// rule: a failed strategy below the full loop escalates one tier, at most
// twice; failures at the top tier or terminal failure types end the task.
func (s *Service) executeLoop(ctx context.Context, task models.Task, decision models.Decision, guard *budget.Guard, escalations int) (models.RunRecord, error) {
	mode := decision.Mode
	var artifacts []models.Artifact
	var history []models.PhaseRecord

	for {
		if mode == models.ModeHumanApproval {
			rec, resumed, err := s.suspendForApproval(ctx, task, decision, guard, escalations, artifacts, history)
			if !resumed {
				return rec, err
			}
			// Approval resumes the same task at the reviewed tier.
			mode = models.ModeReviewed
			continue
		}

		if err := s.setStatus(task.ID, models.TaskStatusExecuting); err != nil {
			return models.RunRecord{}, err
		}
		s.events.emit(Event{
			TaskID: task.ID, Status: models.TaskStatusExecuting,
			Mode: mode, CostSoFar: guard.Spent(),
		})

		res, err := s.executeMode(ctx, task, decision, mode, guard)
		artifacts = append(artifacts, res.Artifacts...)
		history = append(history, res.PhaseHistory...)

		if err == nil {
			return s.finalize(task, models.TaskStatusCompleted, "", "",
				artifacts, history, guard.Spent(), escalations)
		}
		if ctx.Err() != nil {
			return models.RunRecord{}, ctx.Err()
		}

		ce := classify(err)
		log.Printf("[router] task %s failed at %s: %s (%v)", task.ID, mode, ce.reason, err)

		if ce.terminal || mode == models.ModeFullLoop || escalations >= maxEscalations {
			return s.finalize(task, models.TaskStatusFailed, ce.reason, err.Error(),
				artifacts, history, guard.Spent(), escalations)
		}

		// Escalation replaces the live decision; it never downgrades.
		escalations++
		mode = mode.Heavier()
		decision.Mode = mode
		if err := s.setStatus(task.ID, models.TaskStatusRouting); err != nil {
			return models.RunRecord{}, err
		}
		s.events.emit(Event{
			TaskID: task.ID, Status: models.TaskStatusRouting,
			Mode: mode, CostSoFar: guard.Spent(),
			Detail: fmt.Sprintf("escalation %d after %s", escalations, ce.reason),
		})
	}
}

// suspendForApproval parks the task durably and waits for the human
// decision. The wait has no timeout; the approval UX collaborator owns it.
func (s *Service) suspendForApproval(ctx context.Context, task models.Task, decision models.Decision, guard *budget.Guard, escalations int, artifacts []models.Artifact, history []models.PhaseRecord) (models.RunRecord, bool, error) {
	if err := s.setStatus(task.ID, models.TaskStatusRequiresApproval); err != nil {
		return models.RunRecord{}, false, err
	}
	s.events.emit(Event{
		TaskID: task.ID, Status: models.TaskStatusRequiresApproval,
		Mode: models.ModeHumanApproval, CostSoFar: guard.Spent(),
	})

	notice := ApprovalNotice{
		TaskID:      task.ID,
		PlanSummary: planSummary(task, decision),
		RiskScore:   decision.RiskScore,
	}
	wake := s.approvals.register(task.ID)
	defer s.approvals.unregister(task.ID)
	if err := s.approvals.park(notice); err != nil {
		return models.RunRecord{}, false, err
	}
	log.Printf("[router] task %s suspended pending human approval", task.ID)

	verdict, err := s.approvals.wait(ctx, wake)
	if err != nil {
		// The task stays parked in the durable queue; it can resume in a
		// later process.
		return models.RunRecord{}, false, err
	}

	if verdict == state.ApprovalRejected {
		rejErr := &ApprovalRejectedError{TaskID: task.ID}
		rec, err := s.finalize(task, models.TaskStatusFailed, ReasonApprovalRejected,
			rejErr.Error(), artifacts, history, guard.Spent(), escalations)
		return rec, false, err
	}
	return models.RunRecord{}, true, nil
}

// executeMode runs one strategy attempt at the given mode.
func (s *Service) executeMode(ctx context.Context, task models.Task, decision models.Decision, mode models.ExecutionMode, guard *budget.Guard) (phase.Result, error) {
	switch mode {
	case models.ModeDirect:
		return s.runSingle(ctx, task, decision, guard, false)
	case models.ModeReviewed:
		return s.runSingle(ctx, task, decision, guard, true)
	case models.ModeFullLoop:
		orch, err := phase.New(phase.Config{
			Planner:           s.cfg.Planner,
			Pool:              s.cfg.Pool,
			Gate:              s.cfg.Gate,
			Guard:             guard,
			MaxAuditsPerStage: s.cfg.MaxAuditsPerStage,
			RoundEstimate:     s.cfg.RoundEstimate,
			WorkTimeout:       s.cfg.WorkTimeout,
			OnRound: func(name string, cycle int, spent float64) {
				s.events.emit(Event{
					TaskID: task.ID, Status: models.TaskStatusExecuting,
					Mode: models.ModeFullLoop, CurrentPhase: name,
					RoundIndex: cycle, CostSoFar: spent,
				})
			},
		})
		if err != nil {
			return phase.Result{}, err
		}
		return orch.Execute(ctx, task, decision)
	default:
		return phase.Result{}, fmt.Errorf("no strategy handler for mode %s", mode)
	}
}

// runSingle is the direct strategy: one worker call, with one review gate
// pass appended for the reviewed tier.
func (s *Service) runSingle(ctx context.Context, task models.Task, decision models.Decision, guard *budget.Guard, reviewed bool) (phase.Result, error) {
	var res phase.Result

	estimate := s.cfg.RoundEstimate
	if err := guard.Charge(estimate); err != nil {
		return res, fmt.Errorf("task %s: %w", task.ID, err)
	}

	item := models.WorkItem{
		Specialty: models.SpecialtyGeneral,
		Timeout:   s.cfg.WorkTimeout,
		Payload: models.WorkPayload{
			TaskID:       task.ID,
			Instructions: task.Description,
		},
	}

	started := time.Now()
	fut, err := s.cfg.Pool.Submit(item)
	if err != nil {
		return res, fmt.Errorf("task %s: submit: %w", task.ID, err)
	}
	wres, err := fut.Wait(ctx)
	if err != nil {
		return res, fmt.Errorf("task %s: %w", task.ID, err)
	}

	if extra := wres.CostDelta - estimate; extra > 0 {
		if err := guard.Charge(extra); err != nil {
			return res, fmt.Errorf("task %s: settle spend: %w", task.ID, err)
		}
	}

	if !wres.Success {
		reason := ReasonExecutionFailed
		switch wres.ErrorKind {
		case models.ErrorTimeout:
			reason = ReasonWorkerTimeout
		case models.ErrorWorker:
			reason = ReasonWorkerError
		}
		return res, &executionError{reason: reason, err: errors.New(wres.Error)}
	}
	res.Artifacts = wres.Artifacts
	res.Cost = guard.Spent()

	if !reviewed {
		return res, nil
	}

	outcome, err := s.cfg.Gate.Review(ctx, review.Input{
		TaskID:    task.ID,
		Artifacts: wres.Artifacts,
		RiskScore: decision.RiskScore,
		Duration:  time.Since(started),
	})
	if err != nil {
		return res, fmt.Errorf("task %s: review: %w", task.ID, err)
	}
	switch outcome.Verdict {
	case review.VerdictApprove:
		return res, nil
	case review.VerdictEscalate:
		return res, &executionError{reason: ReasonReviewEscalation, err: errors.New(outcome.Feedback)}
	default:
		return res, &executionError{reason: ReasonReviewFailure, err: errors.New(outcome.Feedback)}
	}
}

// finalize persists the terminal record, updates the task status, and emits
// the terminal event.
func (s *Service) finalize(task models.Task, status models.TaskStatus, reason, detail string, artifacts []models.Artifact, history []models.PhaseRecord, cost float64, escalations int) (models.RunRecord, error) {
	rec := models.RunRecord{
		TaskID:          task.ID,
		FinalStatus:     status,
		FailureReason:   reason,
		Artifacts:       artifacts,
		TotalCost:       cost,
		EscalationCount: escalations,
		PhaseHistory:    history,
		FinishedAt:      time.Now().UTC(),
	}
	if err := s.cfg.Store.SaveRunRecord(rec); err != nil {
		return rec, err
	}
	if err := s.setStatus(task.ID, status); err != nil {
		return rec, err
	}
	s.events.emit(Event{
		TaskID: task.ID, Status: status, CostSoFar: cost, Detail: detail,
	})
	log.Printf("[router] task %s finished: %s (cost %.2f, escalations %d)",
		task.ID, status, cost, escalations)
	return rec, nil
}

func (s *Service) setStatus(taskID string, status models.TaskStatus) error {
	return s.cfg.Store.UpdateTaskStatus(taskID, status)
}

// ResumeApproval delivers the human decision for a suspended task. If the
// task is waiting in this process it continues in place; otherwise (after a
// restart) an approved task is re-run at the reviewed tier and a rejected
// one is finalized.
func (s *Service) ResumeApproval(ctx context.Context, taskID string, approve bool) error {
	decision := state.ApprovalRejected
	if approve {
		decision = state.ApprovalApproved
	}

	delivered, err := s.approvals.resolve(taskID, decision)
	if err != nil {
		return err
	}
	if delivered {
		return nil
	}

	// No in-process waiter: the task was parked by an earlier process.
	row, err := s.cfg.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("task %s not found", taskID)
	}
	if row.Status != models.TaskStatusRequiresApproval {
		return fmt.Errorf("task %s is not awaiting approval (status %s)", taskID, row.Status)
	}

	if !approve {
		rejErr := &ApprovalRejectedError{TaskID: taskID}
		_, err := s.finalize(row.Task, models.TaskStatusFailed, ReasonApprovalRejected,
			rejErr.Error(), nil, nil, 0, 0)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tmpDecision, err := s.cfg.Decider.Decide(ctx, row.Task)
		if err != nil {
			tmpDecision = models.Decision{}
		}
		tmpDecision.Mode = models.ModeReviewed
		guard := budget.NewGuard(row.Task.BudgetCap)
		if _, err := s.executeLoop(ctx, row.Task, tmpDecision, guard, 0); err != nil {
			log.Printf("[router] task %s resume stopped: %v", taskID, err)
		}
	}()
	return nil
}

// Status reports a task's current status and, for finished tasks, its run
// record.
func (s *Service) Status(taskID string) (models.TaskStatus, *models.RunRecord, error) {
	row, err := s.cfg.Store.GetTask(taskID)
	if err != nil {
		return "", nil, err
	}
	if row == nil {
		return "", nil, fmt.Errorf("task %s not found", taskID)
	}
	if !row.Status.Terminal() {
		return row.Status, nil, nil
	}
	rec, err := s.cfg.Store.GetRunRecord(taskID)
	if err != nil {
		return row.Status, nil, err
	}
	return row.Status, rec, nil
}

// planSummary builds the short description sent with approval notices.
func planSummary(task models.Task, decision models.Decision) string {
	desc := task.Description
	if len(desc) > 200 {
		desc = desc[:200] + "..."
	}
	if decision.Rationale == "" {
		return desc
	}
	return fmt.Sprintf("%s (%s)", desc, decision.Rationale)
}
