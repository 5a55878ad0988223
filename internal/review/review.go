// Package review decides whether completed work is accepted, sent back for
// fixes, or escalated.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Verdict is the gate's decision about a piece of completed work.
type Verdict string

const (
	// VerdictApprove accepts the work as-is.
	VerdictApprove Verdict = "approve"
	// VerdictRequestFix sends the work back with feedback for another round.
	VerdictRequestFix Verdict = "request_fix"
	// VerdictEscalate hands the work up to a heavier process tier.
	VerdictEscalate Verdict = "escalate"
)

// Check names, used in outcomes and feedback.
const (
	CheckCorrectness = "correctness"
	CheckSafety      = "safety"
	CheckPerformance = "performance"
	CheckStructural  = "structural"
)

// Input carries everything the gate needs to judge a piece of work.
type Input struct {
	// TaskID identifies the task the work belongs to.
	TaskID string
	// Artifacts are the outputs to judge.
	Artifacts []models.Artifact
	// Criteria are the acceptance criteria the work must satisfy.
	Criteria []string
	// RiskScore is the task's risk score, 0-10.
	RiskScore float64
	// Duration is how long producing the artifacts took.
	Duration time.Duration
	// AllowedScopes restricts which artifact names the work may touch.
	// Empty means unrestricted.
	AllowedScopes []string
}

// CheckResult records one check's outcome.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
}

// Outcome is the gate's combined decision.
type Outcome struct {
	Verdict Verdict
	Checks  []CheckResult
	// Feedback summarizes what to fix; empty on approval.
	Feedback string
}

// Config tunes the gate thresholds.
type Config struct {
	// AutoApproveRiskMax is the highest risk score the gate may approve on
	// its own. Work above it escalates even when every check passes.
	AutoApproveRiskMax float64
	// CriticalRiskMin marks work as critical. Critical work always
	// escalates, whatever the checks say.
	CriticalRiskMin float64
	// MaxDuration is the performance ceiling for producing the artifacts.
	MaxDuration time.Duration
}

// DefaultConfig returns the gate's default thresholds.
func DefaultConfig() Config {
	return Config{
		AutoApproveRiskMax: 7,
		CriticalRiskMin:    9,
		MaxDuration:        15 * time.Minute,
	}
}

// CriteriaChecker judges artifacts against acceptance criteria. A
// model-backed checker may sit behind this interface; the gate's combining
// logic stays deterministic either way.
type CriteriaChecker interface {
	CheckCriteria(ctx context.Context, artifacts []models.Artifact, criteria []string) (bool, string, error)
}

// Gate runs four independent checks and combines them. Correctness,
// performance, and structural failures are fixable; a safety failure or
// critical risk escalates unconditionally.
type Gate struct {
	cfg      Config
	criteria CriteriaChecker
	safety   *SafetyChecker
}

// New creates a Gate. A nil criteria checker defaults to the keyword
// checker; zero config fields take their defaults.
func New(cfg Config, criteria CriteriaChecker) *Gate {
	def := DefaultConfig()
	if cfg.AutoApproveRiskMax == 0 {
		cfg.AutoApproveRiskMax = def.AutoApproveRiskMax
	}
	if cfg.CriticalRiskMin == 0 {
		cfg.CriticalRiskMin = def.CriticalRiskMin
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	if criteria == nil {
		criteria = NewKeywordCriteriaChecker()
	}
	return &Gate{cfg: cfg, criteria: criteria, safety: NewSafetyChecker()}
}

// Review judges the given work. The four checks always all run so the
// feedback covers everything wrong at once, not just the first failure.
func (g *Gate) Review(ctx context.Context, in Input) (Outcome, error) {
	checks := make([]CheckResult, 0, 4)

	correct, detail, err := g.criteria.CheckCriteria(ctx, in.Artifacts, in.Criteria)
	if err != nil {
		return Outcome{}, fmt.Errorf("criteria check for task %s: %w", in.TaskID, err)
	}
	checks = append(checks, CheckResult{Name: CheckCorrectness, Passed: correct, Detail: detail})

	safe, safeDetail := g.safety.Check(in.Artifacts, in.AllowedScopes)
	checks = append(checks, CheckResult{Name: CheckSafety, Passed: safe, Detail: safeDetail})

	fast := in.Duration <= g.cfg.MaxDuration
	perfDetail := ""
	if !fast {
		perfDetail = fmt.Sprintf("took %s, ceiling is %s", in.Duration, g.cfg.MaxDuration)
	}
	checks = append(checks, CheckResult{Name: CheckPerformance, Passed: fast, Detail: perfDetail})

	sound, structDetail := checkStructure(in.Artifacts)
	checks = append(checks, CheckResult{Name: CheckStructural, Passed: sound, Detail: structDetail})

	out := Outcome{Checks: checks}

	// Hard overrides: safety failure or critical risk always escalates.
	if !safe {
		out.Verdict = VerdictEscalate
		out.Feedback = "safety check failed: " + safeDetail
		return out, nil
	}
	if in.RiskScore >= g.cfg.CriticalRiskMin {
		out.Verdict = VerdictEscalate
		out.Feedback = fmt.Sprintf("risk score %.1f is critical", in.RiskScore)
		return out, nil
	}

	if allPassed(checks) {
		if in.RiskScore <= g.cfg.AutoApproveRiskMax {
			out.Verdict = VerdictApprove
			return out, nil
		}
		// Clean work above the auto-approve line still needs a human.
		out.Verdict = VerdictEscalate
		out.Feedback = fmt.Sprintf("risk score %.1f exceeds the auto-approve ceiling", in.RiskScore)
		return out, nil
	}

	out.Verdict = VerdictRequestFix
	out.Feedback = buildFeedback(checks)
	return out, nil
}

// checkStructure verifies the artifacts are non-empty and well formed.
func checkStructure(artifacts []models.Artifact) (bool, string) {
	if len(artifacts) == 0 {
		return false, "no artifacts produced"
	}
	for i, a := range artifacts {
		if strings.TrimSpace(a.Name) == "" {
			return false, fmt.Sprintf("artifact %d has no name", i)
		}
		if strings.TrimSpace(a.Content) == "" {
			return false, fmt.Sprintf("artifact %q is empty", a.Name)
		}
	}
	return true, ""
}

func allPassed(checks []CheckResult) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// buildFeedback turns failed checks into reviewer feedback for the next
// round.
func buildFeedback(checks []CheckResult) string {
	var sb strings.Builder
	for _, c := range checks {
		if c.Passed {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Name)
		if c.Detail != "" {
			sb.WriteString(": ")
			sb.WriteString(c.Detail)
		}
	}
	return sb.String()
}
