package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Scores holds the raw scoring output for a task.
type Scores struct {
	// Complexity is the estimated task complexity, 0-10.
	Complexity float64
	// Risk is the estimated task risk, 0-10.
	Risk float64
	// Rationale explains the scoring.
	Rationale string
}

// Scorer computes complexity and risk scores for a task. A model-backed
// scorer may sit behind this interface; the decider's routing logic stays
// deterministic and testable against fakes either way.
type Scorer interface {
	Score(ctx context.Context, task models.Task) (Scores, error)
}

// costUnit is the baseline cost per complexity point at the direct tier.
const costUnit = 0.5

// modeCostFactor approximates how much extra spend each tier's process
// overhead adds.
var modeCostFactor = map[models.ExecutionMode]float64{
	models.ModeDirect:        1,
	models.ModeReviewed:      2,
	models.ModeFullLoop:      5,
	models.ModeHumanApproval: 2,
}

// Decider maps a task to an execution decision. It is side-effect free:
// identical inputs and an identical scorer produce identical decisions.
type Decider struct {
	scorer    Scorer
	overrides *OverrideTable
}

// NewDecider creates a Decider. A nil scorer defaults to the heuristic
// scorer; a nil override table defaults to the built-in rules.
func NewDecider(scorer Scorer, overrides *OverrideTable) *Decider {
	if scorer == nil {
		scorer = NewHeuristicScorer()
	}
	if overrides == nil {
		overrides = DefaultOverrides()
	}
	return &Decider{scorer: scorer, overrides: overrides}
}

// Decide produces the execution decision for a task.
//
// Precedence: an explicit task override, then the override rule table, then
// the score-derived decision table. Fractional scores round half-up so ties
// land on the heavier-process option. Immediate urgency downgrades the
// score-derived mode by one tier, except when risk demands human approval.
func (d *Decider) Decide(ctx context.Context, task models.Task) (models.Decision, error) {
	scores, err := d.scorer.Score(ctx, task)
	if err != nil {
		return models.Decision{}, fmt.Errorf("score task %s: %w", task.ID, err)
	}

	complexity := clampScore(scores.Complexity)
	risk := clampScore(scores.Risk)

	decision := models.Decision{
		ComplexityScore: complexity,
		RiskScore:       risk,
	}

	// Explicit caller override wins over everything.
	if task.Override != "" {
		if !task.Override.Valid() {
			return models.Decision{}, fmt.Errorf("task %s: invalid override mode %q", task.ID, task.Override)
		}
		decision.Mode = task.Override
		decision.Rationale = fmt.Sprintf("caller override to %s", task.Override)
		decision.EstimatedCost = estimateCost(decision.Mode, complexity)
		return decision, nil
	}

	// Override rule table takes precedence over the computed scores.
	if rule, ok := d.overrides.Match(task.Description); ok {
		decision.Mode = rule.Mode
		decision.Rationale = fmt.Sprintf("override rule %q forces %s", rule.Name, rule.Mode)
		decision.EstimatedCost = estimateCost(decision.Mode, complexity)
		return decision, nil
	}

	mode, reason := modeFromScores(complexity, risk)

	// Immediate urgency trades process for speed, one tier at most. A risk
	// score that demands human approval is never downgraded.
	if task.Urgency == models.UrgencyImmediate && mode != models.ModeHumanApproval {
		if lighter := mode.Lighter(); lighter != mode {
			reason += fmt.Sprintf("; immediate urgency downgraded %s to %s", mode, lighter)
			mode = lighter
		}
	}

	decision.Mode = mode
	decision.Rationale = joinRationale(reason, scores.Rationale)
	decision.EstimatedCost = estimateCost(mode, complexity)
	return decision, nil
}

// modeFromScores applies the decision table. Rounding has already pushed
// ties toward the heavier option.
func modeFromScores(complexity, risk float64) (models.ExecutionMode, string) {
	c := math.Round(complexity)
	r := math.Round(risk)

	switch {
	case r >= 8:
		return models.ModeHumanApproval,
			fmt.Sprintf("risk %.0f >= 8 requires human approval", r)
	case c <= 2 && r <= 3:
		return models.ModeDirect,
			fmt.Sprintf("low complexity %.0f and risk %.0f allow direct execution", c, r)
	case c <= 6 && r <= 6:
		return models.ModeReviewed,
			fmt.Sprintf("moderate complexity %.0f and risk %.0f require review", c, r)
	default:
		return models.ModeFullLoop,
			fmt.Sprintf("complexity %.0f or risk %.0f require the full loop", c, r)
	}
}

// estimateCost projects the spend for executing at the given mode.
func estimateCost(mode models.ExecutionMode, complexity float64) float64 {
	factor := modeCostFactor[mode]
	if factor == 0 {
		factor = 1
	}
	return (1 + complexity) * costUnit * factor
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func joinRationale(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
