package phase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbaxter-dev/foreman/internal/budget"
	"github.com/tbaxter-dev/foreman/internal/pool"
	"github.com/tbaxter-dev/foreman/internal/review"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Submitter is the pool surface the orchestrator uses.
type Submitter interface {
	Submit(item models.WorkItem) (*pool.Future, error)
}

// Reviewer is the gate surface the orchestrator uses.
type Reviewer interface {
	Review(ctx context.Context, in review.Input) (review.Outcome, error)
}

// DefaultMaxAuditsPerStage bounds rounds per phase when the config does not
// set its own limit.
const DefaultMaxAuditsPerStage = 3

// defaultRoundEstimate is the per-round budget pre-charge when no estimate
// is configured.
const defaultRoundEstimate = 1.0

// Config contains configuration for the orchestrator.
type Config struct {
	// Planner produces plans. Required.
	Planner Planner
	// Pool executes work items. Required.
	Pool Submitter
	// Gate reviews round outputs. Required.
	Gate Reviewer
	// Guard enforces the spend cap. Required.
	Guard *budget.Guard
	// MaxAuditsPerStage bounds rounds per phase.
	MaxAuditsPerStage int
	// RoundEstimate is the spend pre-charged before each round. Actual
	// spend above the estimate is charged when the round's result arrives.
	RoundEstimate float64
	// WorkTimeout bounds each round's work item. Zero means the pool
	// default.
	WorkTimeout time.Duration
	// OnRound, when set, is called as each round starts with the phase
	// name, the 1-based cycle index, and the spend charged so far. Phases
	// in one wave run concurrently, so the callback must be safe for
	// concurrent use.
	OnRound func(phase string, cycle int, spent float64)
}

// Result is the full-loop outcome. On failure it still carries everything
// produced so far; artifacts from passed phases are returned as partial
// results.
type Result struct {
	Artifacts    []models.Artifact
	PhaseHistory []models.PhaseRecord
	Rounds       []models.Round
	Cost         float64
}

// Orchestrator drives the full-loop strategy: one planning pass, then a
// bounded execute-then-review loop per phase. Phases whose dependencies have
// all passed run concurrently in waves.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("budget guard is required")
	}
	if cfg.MaxAuditsPerStage <= 0 {
		cfg.MaxAuditsPerStage = DefaultMaxAuditsPerStage
	}
	if cfg.RoundEstimate <= 0 {
		cfg.RoundEstimate = defaultRoundEstimate
	}
	return &Orchestrator{cfg: cfg}, nil
}

// phaseOutcome collects what one phase produced.
type phaseOutcome struct {
	artifacts []models.Artifact
	rounds    []models.Round
	cost      float64
}

// Execute runs the full loop for one task.
func (o *Orchestrator) Execute(ctx context.Context, task models.Task, decision models.Decision) (Result, error) {
	var res Result

	plan, err := o.cfg.Planner.BuildPlan(ctx, task)
	if err != nil {
		return res, &PlanningError{TaskID: task.ID, Reason: "no valid plan", Err: err}
	}

	phases, err := Partition(plan)
	if err != nil {
		return res, &PlanningError{TaskID: task.ID, Reason: "no valid phase partition", Err: err}
	}
	log.Printf("[phase] task %s: %d steps across %d phases", task.ID, len(plan.Steps), len(phases))

	stepsByID := make(map[string]models.PlanStep, len(plan.Steps))
	for _, s := range plan.Steps {
		stepsByID[s.ID] = s
	}

	status := make(map[string]models.PhaseStatus, len(phases))
	for _, p := range phases {
		status[p.Name] = models.PhasePending
	}
	outcomes := make(map[string]*phaseOutcome, len(phases))
	roundsUsed := make(map[string]int, len(phases))

	finish := func(runErr error) (Result, error) {
		for _, p := range phases {
			st := status[p.Name]
			if out := outcomes[p.Name]; out != nil {
				res.Rounds = append(res.Rounds, out.rounds...)
				res.Cost += out.cost
				if st == models.PhasePassed {
					res.Artifacts = append(res.Artifacts, out.artifacts...)
				}
			}
			res.PhaseHistory = append(res.PhaseHistory, models.PhaseRecord{
				Name:   p.Name,
				Status: st,
				Rounds: roundsUsed[p.Name],
			})
		}
		return res, runErr
	}

	for {
		var wave []models.Phase
		for _, p := range phases {
			if status[p.Name] != models.PhasePending {
				continue
			}
			ready := true
			for _, dep := range p.DependsOn {
				if status[dep] != models.PhasePassed {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, p)
			}
		}
		if len(wave) == 0 {
			break
		}

		// Summaries from every phase passed so far, in phase order.
		var prior []string
		for _, p := range phases {
			if status[p.Name] != models.PhasePassed {
				continue
			}
			for _, a := range outcomes[p.Name].artifacts {
				prior = append(prior, summarizeArtifact(a))
			}
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range wave {
			p := p
			status[p.Name] = models.PhaseInProgress

			var steps []models.PlanStep
			for _, id := range p.StepIDs {
				steps = append(steps, stepsByID[id])
			}

			g.Go(func() error {
				out, runErr := o.runPhase(gctx, task, decision, p, steps, prior)

				mu.Lock()
				defer mu.Unlock()
				outcomes[p.Name] = out
				roundsUsed[p.Name] = len(out.rounds)
				if runErr != nil {
					status[p.Name] = models.PhaseFailed
					return runErr
				}
				status[p.Name] = models.PhasePassed
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return finish(err)
		}
	}

	// Backward-only dependencies mean every phase has run by now.
	return finish(nil)
}

// runPhase executes up to MaxAuditsPerStage rounds for one phase.
func (o *Orchestrator) runPhase(ctx context.Context, task models.Task, decision models.Decision, p models.Phase, steps []models.PlanStep, prior []string) (*phaseOutcome, error) {
	out := &phaseOutcome{}

	criteria := collectCriteria(steps)
	feedback := ""

	for cycle := 1; cycle <= o.cfg.MaxAuditsPerStage; cycle++ {
		round := models.Round{Phase: p.Name, Cycle: cycle, Status: models.RoundInProgress}

		// Every round submission is preceded by a budget charge; a
		// rejected charge aborts the whole loop regardless of audit state.
		estimate := o.cfg.RoundEstimate
		if err := o.cfg.Guard.Charge(estimate); err != nil {
			round.Status = models.RoundFailed
			out.rounds = append(out.rounds, round)
			return out, fmt.Errorf("phase %s round %d: %w", p.Name, cycle, err)
		}
		out.cost += estimate
		round.Cost = estimate

		if o.cfg.OnRound != nil {
			o.cfg.OnRound(p.Name, cycle, o.cfg.Guard.Spent())
		}

		item := models.WorkItem{
			Specialty: phaseSpecialty(steps),
			Timeout:   o.cfg.WorkTimeout,
			Payload: models.WorkPayload{
				TaskID:             task.ID,
				Phase:              p.Name,
				Instructions:       task.Description,
				Steps:              steps,
				PriorArtifacts:     prior,
				Feedback:           feedback,
				AcceptanceCriteria: criteria,
			},
		}

		started := time.Now()
		fut, err := o.cfg.Pool.Submit(item)
		if err != nil {
			round.Status = models.RoundFailed
			out.rounds = append(out.rounds, round)
			return out, fmt.Errorf("phase %s round %d: submit: %w", p.Name, cycle, err)
		}
		wres, err := fut.Wait(ctx)
		if err != nil {
			round.Status = models.RoundFailed
			out.rounds = append(out.rounds, round)
			return out, fmt.Errorf("phase %s round %d: %w", p.Name, cycle, err)
		}
		elapsed := time.Since(started)

		// Settle spend above the pre-charged estimate.
		if extra := wres.CostDelta - estimate; extra > 0 {
			if err := o.cfg.Guard.Charge(extra); err != nil {
				round.Status = models.RoundFailed
				out.rounds = append(out.rounds, round)
				return out, fmt.Errorf("phase %s round %d: settle spend: %w", p.Name, cycle, err)
			}
			out.cost += extra
			round.Cost += extra
		}

		if !wres.Success {
			feedback = fmt.Sprintf("execution failed (%s): %s", wres.ErrorKind, wres.Error)
			round.Status = models.RoundFailed
			round.Feedback = feedback
			out.rounds = append(out.rounds, round)
			log.Printf("[phase] task %s phase %s round %d failed: %s", task.ID, p.Name, cycle, feedback)
			continue
		}

		verdict, err := o.cfg.Gate.Review(ctx, review.Input{
			TaskID:    task.ID,
			Artifacts: wres.Artifacts,
			Criteria:  criteria,
			RiskScore: decision.RiskScore,
			Duration:  elapsed,
		})
		if err != nil {
			round.Status = models.RoundFailed
			out.rounds = append(out.rounds, round)
			return out, fmt.Errorf("phase %s round %d: review: %w", p.Name, cycle, err)
		}

		round.Artifacts = wres.Artifacts
		switch verdict.Verdict {
		case review.VerdictApprove:
			round.Status = models.RoundPassed
			out.rounds = append(out.rounds, round)
			out.artifacts = wres.Artifacts
			log.Printf("[phase] task %s phase %s passed on round %d", task.ID, p.Name, cycle)
			return out, nil

		case review.VerdictRequestFix:
			feedback = verdict.Feedback
			round.Status = models.RoundFailed
			round.Feedback = feedback
			out.rounds = append(out.rounds, round)
			log.Printf("[phase] task %s phase %s round %d needs fixes: %s", task.ID, p.Name, cycle, feedback)

		case review.VerdictEscalate:
			round.Status = models.RoundFailed
			round.Feedback = verdict.Feedback
			out.rounds = append(out.rounds, round)
			return out, &EscalateError{Phase: p.Name, Feedback: verdict.Feedback}
		}
	}

	return out, &RoundsExhaustedError{Phase: p.Name, Rounds: o.cfg.MaxAuditsPerStage}
}

// phaseSpecialty picks the most common specialty among the phase's steps,
// first occurrence winning ties.
func phaseSpecialty(steps []models.PlanStep) models.Specialty {
	if len(steps) == 0 {
		return models.SpecialtyGeneral
	}
	counts := make(map[models.Specialty]int, len(steps))
	best := steps[0].Specialty
	for _, s := range steps {
		counts[s.Specialty]++
		if counts[s.Specialty] > counts[best] {
			best = s.Specialty
		}
	}
	return best
}

// collectCriteria flattens the steps' acceptance criteria in order.
func collectCriteria(steps []models.PlanStep) []string {
	var criteria []string
	for _, s := range steps {
		criteria = append(criteria, s.AcceptanceCriteria...)
	}
	return criteria
}

// summarizeArtifact produces the short form passed to later phases.
func summarizeArtifact(a models.Artifact) string {
	if a.Summary != "" {
		return fmt.Sprintf("%s: %s", a.Name, a.Summary)
	}
	content := a.Content
	if len(content) > 200 {
		content = content[:200] + "..."
	}
	return fmt.Sprintf("%s: %s", a.Name, strings.ReplaceAll(content, "\n", " "))
}
