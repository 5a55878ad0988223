package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tbaxter-dev/foreman/internal/phase"
	"github.com/tbaxter-dev/foreman/internal/pool"
	"github.com/tbaxter-dev/foreman/internal/review"
	"github.com/tbaxter-dev/foreman/internal/state"
	"github.com/tbaxter-dev/foreman/internal/strategy"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// stubScorer returns fixed scores so tests pick their tier.
type stubScorer struct {
	complexity float64
	risk       float64
}

func (s *stubScorer) Score(context.Context, models.Task) (strategy.Scores, error) {
	return strategy.Scores{Complexity: s.complexity, Risk: s.risk}, nil
}

// scriptGate returns verdicts per phase name in call order, approving once a
// script runs out. An empty map approves everything.
type scriptGate struct {
	mu      sync.Mutex
	scripts map[string][]review.Verdict
}

func (g *scriptGate) Review(_ context.Context, in review.Input) (review.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ""
	if len(in.Artifacts) > 0 {
		key = in.Artifacts[0].Name
	}
	script := g.scripts[key]
	if len(script) == 0 {
		return review.Outcome{Verdict: review.VerdictApprove}, nil
	}
	v := script[0]
	g.scripts[key] = script[1:]
	out := review.Outcome{Verdict: v}
	if v != review.VerdictApprove {
		out.Feedback = "fix " + key
	}
	return out, nil
}

// countingRunner succeeds every item and counts executions.
type countingRunner struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (r *countingRunner) Run(_ context.Context, item models.WorkItem) (models.WorkResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.fail {
		return models.WorkResult{
			Success:   false,
			ErrorKind: models.ErrorExecution,
			Error:     "worker could not complete the assignment",
		}, nil
	}
	name := item.Payload.Phase
	if name == "" {
		name = "result.md"
	}
	return models.WorkResult{
		Success:   true,
		CostDelta: 0.2,
		Artifacts: []models.Artifact{{Name: name, Content: "output", Summary: "summary"}},
	}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type countingFactory struct{ runner *countingRunner }

func (f *countingFactory) NewRunner() pool.Runner { return f.runner }

type serviceOpts struct {
	scorer  strategy.Scorer
	gate    phase.Reviewer
	planner phase.Planner
	runner  *countingRunner
}

func newTestService(t *testing.T, opts serviceOpts) *Service {
	t.Helper()

	if opts.runner == nil {
		opts.runner = &countingRunner{}
	}
	if opts.gate == nil {
		opts.gate = &scriptGate{scripts: map[string][]review.Verdict{}}
	}

	p, err := pool.New(pool.Config{
		Roster: []models.Specialty{
			models.SpecialtyGeneral, models.SpecialtyGeneral,
			models.SpecialtyResearch, models.SpecialtyEngineering, models.SpecialtyWriting,
		},
		Factory: &countingFactory{runner: opts.runner},
	})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var decider *strategy.Decider
	if opts.scorer != nil {
		decider = strategy.NewDecider(opts.scorer, nil)
	}

	svc, err := New(Config{
		Decider:          decider,
		Pool:             p,
		Gate:             opts.gate,
		Planner:          opts.planner,
		Store:            db,
		RoundEstimate:    1,
		DefaultBudgetCap: 100,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func threePhasePlanner() phase.Planner {
	return &fixedPlanner{plan: models.Plan{Steps: []models.PlanStep{
		{ID: "s1", Title: "research", Specialty: models.SpecialtyResearch},
		{ID: "s2", Title: "build", Specialty: models.SpecialtyEngineering, DependsOn: []string{"s1"}},
		{ID: "s3", Title: "write up", Specialty: models.SpecialtyWriting, DependsOn: []string{"s2"}},
	}}}
}

type fixedPlanner struct{ plan models.Plan }

func (p *fixedPlanner) BuildPlan(_ context.Context, task models.Task) (models.Plan, error) {
	plan := p.plan
	plan.TaskID = task.ID
	return plan, nil
}

func TestService_DirectExecution(t *testing.T) {
	// A trivial read-only task routes direct and executes exactly once.
	runner := &countingRunner{}
	svc := newTestService(t, serviceOpts{runner: runner})

	rec, err := svc.Run(context.Background(), models.Task{
		ID:          "t-direct",
		Description: "list all rows in table X",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FinalStatus != models.TaskStatusCompleted {
		t.Fatalf("FinalStatus = %s, want completed (%s)", rec.FinalStatus, rec.FailureReason)
	}
	if runner.count() != 1 {
		t.Errorf("worker executions = %d, want exactly 1", runner.count())
	}
	if rec.EscalationCount != 0 {
		t.Errorf("EscalationCount = %d, want 0", rec.EscalationCount)
	}
	if len(rec.Artifacts) == 0 {
		t.Error("completed run should carry artifacts")
	}
}

func TestService_ManualOverrideSuspendsAndRejects(t *testing.T) {
	svc := newTestService(t, serviceOpts{})

	id, err := svc.Submit(context.Background(), models.Task{
		Description: "deploy to production",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case notice := <-svc.ApprovalNotices():
		if notice.TaskID != id {
			t.Fatalf("notice for task %s, want %s", notice.TaskID, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no approval notice emitted")
	}

	status, _, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != models.TaskStatusRequiresApproval {
		t.Fatalf("status = %s, want requires_approval", status)
	}

	if err := svc.ResumeApproval(context.Background(), id, false); err != nil {
		t.Fatalf("ResumeApproval: %v", err)
	}
	svc.Wait()

	status, rec, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if rec == nil || rec.FailureReason != ReasonApprovalRejected {
		t.Errorf("run record = %+v, want approval_rejected", rec)
	}
}

func TestService_ApprovalResumeExecutesReviewed(t *testing.T) {
	runner := &countingRunner{}
	svc := newTestService(t, serviceOpts{runner: runner})

	id, err := svc.Submit(context.Background(), models.Task{
		Description: "deploy to production",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-svc.ApprovalNotices()

	if err := svc.ResumeApproval(context.Background(), id, true); err != nil {
		t.Fatalf("ResumeApproval: %v", err)
	}
	svc.Wait()

	status, rec, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed (%+v)", status, rec)
	}
	if runner.count() != 1 {
		t.Errorf("worker executions = %d, want 1 (single reviewed pass)", runner.count())
	}
}

func TestService_FullLoopFixThenPass(t *testing.T) {
	// Complexity 7 maps to the full loop; phase 2 fails review twice and
	// passes on round 3.
	svc := newTestService(t, serviceOpts{
		scorer:  &stubScorer{complexity: 7, risk: 4},
		planner: threePhasePlanner(),
		gate: &scriptGate{scripts: map[string][]review.Verdict{
			"phase-2": {review.VerdictRequestFix, review.VerdictRequestFix, review.VerdictApprove},
		}},
	})

	rec, err := svc.Run(context.Background(), models.Task{
		ID:          "t-loop",
		Description: "do the thing",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FinalStatus != models.TaskStatusCompleted {
		t.Fatalf("FinalStatus = %s (%s), want completed", rec.FinalStatus, rec.FailureReason)
	}
	if len(rec.PhaseHistory) != 3 {
		t.Fatalf("PhaseHistory = %+v, want 3 phases", rec.PhaseHistory)
	}
	for _, ph := range rec.PhaseHistory {
		if ph.Status != models.PhasePassed {
			t.Errorf("phase %s = %s, want passed", ph.Name, ph.Status)
		}
		if ph.Name == "phase-2" && ph.Rounds != 3 {
			t.Errorf("phase-2 rounds = %d, want 3", ph.Rounds)
		}
	}

	// The event stream reports every audit cycle with its phase and round.
	type roundEvent struct {
		phase string
		round int
	}
	var rounds []roundEvent
	for {
		var ev Event
		select {
		case ev = <-svc.Events():
		default:
			ev = Event{}
		}
		if ev.TaskID == "" {
			break
		}
		if ev.CurrentPhase == "" {
			continue
		}
		if ev.Mode != models.ModeFullLoop {
			t.Errorf("round event %+v mode = %s, want full_loop", ev, ev.Mode)
		}
		if ev.CostSoFar <= 0 {
			t.Errorf("round event %+v has no spend", ev)
		}
		rounds = append(rounds, roundEvent{ev.CurrentPhase, ev.RoundIndex})
	}
	want := []roundEvent{
		{"phase-1", 1}, {"phase-2", 1}, {"phase-2", 2}, {"phase-2", 3}, {"phase-3", 1},
	}
	if len(rounds) != len(want) {
		t.Fatalf("round events = %+v, want %+v", rounds, want)
	}
	for i, w := range want {
		if rounds[i] != w {
			t.Errorf("round event %d = %+v, want %+v", i, rounds[i], w)
		}
	}
}

func TestService_BudgetExhaustionReturnsPartialResults(t *testing.T) {
	// The cap covers two full-loop rounds; phase 3's charge is rejected and
	// the earlier phases' artifacts come back as partial results.
	svc := newTestService(t, serviceOpts{
		scorer:  &stubScorer{complexity: 7, risk: 4},
		planner: threePhasePlanner(),
	})

	rec, err := svc.Run(context.Background(), models.Task{
		ID:          "t-budget",
		Description: "do the thing",
		BudgetCap:   2.5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FinalStatus != models.TaskStatusFailed {
		t.Fatalf("FinalStatus = %s, want failed", rec.FinalStatus)
	}
	if rec.FailureReason != ReasonBudgetExceeded {
		t.Errorf("FailureReason = %s, want budget_exceeded", rec.FailureReason)
	}
	if len(rec.Artifacts) != 2 {
		t.Errorf("partial artifacts = %+v, want the two passed phases'", rec.Artifacts)
	}
	if rec.TotalCost > 2.5 {
		t.Errorf("TotalCost = %v exceeds the cap", rec.TotalCost)
	}
}

func TestService_EscalationIsBoundedAndMonotonic(t *testing.T) {
	// A worker that never succeeds walks the task up the ladder:
	// direct fails, reviewed fails, full loop fails, then terminal failure
	// with exactly two escalations.
	runner := &countingRunner{fail: true}
	svc := newTestService(t, serviceOpts{
		scorer: &stubScorer{complexity: 1, risk: 1},
		runner: runner,
	})

	rec, err := svc.Run(context.Background(), models.Task{
		ID:          "t-esc",
		Description: "do the thing",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FinalStatus != models.TaskStatusFailed {
		t.Fatalf("FinalStatus = %s, want failed", rec.FinalStatus)
	}
	if rec.EscalationCount != maxEscalations {
		t.Errorf("EscalationCount = %d, want %d", rec.EscalationCount, maxEscalations)
	}

	// The buffered event stream has everything the run emitted; modes on
	// executing events may only ever move up the ladder.
	var modes []models.ExecutionMode
	for {
		select {
		case ev := <-svc.Events():
			if ev.TaskID == "t-esc" && ev.Status == models.TaskStatusExecuting {
				modes = append(modes, ev.Mode)
			}
			continue
		default:
		}
		break
	}
	if len(modes) != 3 {
		t.Fatalf("executing events = %v, want one per tier", modes)
	}
	for i := 1; i < len(modes); i++ {
		if modes[i] != modes[i-1].Heavier() {
			t.Errorf("mode went %s then %s, want a one-tier escalation", modes[i-1], modes[i])
		}
	}
}

func TestService_ReviewEscalationMovesUpOneTier(t *testing.T) {
	// Reviewed tier's gate escalates; the task retries at the full loop and
	// completes there.
	svc := newTestService(t, serviceOpts{
		scorer:  &stubScorer{complexity: 4, risk: 4},
		planner: threePhasePlanner(),
		gate: &scriptGate{scripts: map[string][]review.Verdict{
			"result.md": {review.VerdictEscalate},
		}},
	})

	rec, err := svc.Run(context.Background(), models.Task{
		ID:          "t-gate-esc",
		Description: "do the thing",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FinalStatus != models.TaskStatusCompleted {
		t.Fatalf("FinalStatus = %s (%s), want completed after escalating", rec.FinalStatus, rec.FailureReason)
	}
	if rec.EscalationCount != 1 {
		t.Errorf("EscalationCount = %d, want 1", rec.EscalationCount)
	}
	if len(rec.PhaseHistory) != 3 {
		t.Errorf("full loop should have run: PhaseHistory = %+v", rec.PhaseHistory)
	}
}

func TestService_TerminalTaskIDsAreFinal(t *testing.T) {
	svc := newTestService(t, serviceOpts{})

	task := models.Task{ID: "t-final", Description: "list the rows in table X"}
	if _, err := svc.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, err := svc.Run(context.Background(), task)
	var terminal *TerminalTaskError
	if !errors.As(err, &terminal) {
		t.Fatalf("resubmit error = %v, want TerminalTaskError", err)
	}
}

func TestService_DuplicateLiveTaskRejected(t *testing.T) {
	svc := newTestService(t, serviceOpts{})

	id, err := svc.Submit(context.Background(), models.Task{
		Description: "deploy to production",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-svc.ApprovalNotices()

	if _, err := svc.Submit(context.Background(), models.Task{ID: id, Description: "anything"}); !errors.Is(err, ErrTaskExists) {
		t.Errorf("duplicate submit error = %v, want ErrTaskExists", err)
	}

	if err := svc.ResumeApproval(context.Background(), id, false); err != nil {
		t.Fatalf("ResumeApproval: %v", err)
	}
	svc.Wait()
}

func TestService_RejectsInvalidSubmissions(t *testing.T) {
	svc := newTestService(t, serviceOpts{})

	if _, err := svc.Submit(context.Background(), models.Task{Description: "  "}); err == nil {
		t.Error("empty description should be rejected")
	}
	if _, err := svc.Submit(context.Background(), models.Task{Description: "x", Urgency: "soonish"}); err == nil {
		t.Error("invalid urgency should be rejected")
	}
	if _, err := svc.Submit(context.Background(), models.Task{Description: "x", Override: "warp"}); err == nil {
		t.Error("invalid override should be rejected")
	}
}

func TestApprovalWatcher_SignalFileResumesTask(t *testing.T) {
	svc := newTestService(t, serviceOpts{})
	root := t.TempDir()

	watcher, err := NewApprovalWatcher(svc, root)
	if err != nil {
		t.Fatalf("NewApprovalWatcher: %v", err)
	}
	defer watcher.Close()
	watcher.Start(context.Background())

	id, err := svc.Submit(context.Background(), models.Task{
		Description: "deploy to production",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-svc.ApprovalNotices()

	signal := filepath.Join(root, ".foreman", "approvals", id+".approve")
	if err := os.WriteFile(signal, nil, 0o644); err != nil {
		t.Fatalf("write signal file: %v", err)
	}
	svc.Wait()

	status, _, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed after approval signal", status)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(signal); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Error("signal file should be consumed after handling")
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}
