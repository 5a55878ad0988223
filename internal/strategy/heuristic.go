package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// HeuristicScorer scores tasks from surface features of the description and
// the caller's risk hints. It is deterministic and needs no model access.
type HeuristicScorer struct {
	keywords FeatureKeywords
}

// NewHeuristicScorer creates a HeuristicScorer with the default keywords.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{keywords: DefaultFeatureKeywords}
}

// Score implements Scorer.
func (s *HeuristicScorer) Score(_ context.Context, task models.Task) (Scores, error) {
	desc := strings.ToLower(task.Description)

	complexity, cReasons := s.scoreComplexity(desc)
	risk, rReasons := s.scoreRisk(desc, task.RiskHints)

	rationale := fmt.Sprintf("complexity: %s; risk: %s",
		strings.Join(cReasons, ", "), strings.Join(rReasons, ", "))

	return Scores{
		Complexity: clampScore(complexity),
		Risk:       clampScore(risk),
		Rationale:  rationale,
	}, nil
}

// scoreComplexity estimates step count, capability breadth, and novelty.
func (s *HeuristicScorer) scoreComplexity(desc string) (float64, []string) {
	score := 1.0
	reasons := []string{"base 1"}

	// Estimated step count: multi-step connectives each suggest an extra step.
	steps := 0
	for _, kw := range s.keywords.MultiStep {
		if strings.Contains(desc, kw) {
			steps++
		}
	}
	if steps > 3 {
		steps = 3
	}
	if steps > 0 {
		score += float64(steps) * 1.5
		reasons = append(reasons, fmt.Sprintf("%d multi-step signals", steps))
	}

	// Breadth of required capabilities: each distinct group beyond the first
	// adds coordination overhead.
	names := make([]string, 0, len(s.keywords.Capabilities))
	for name := range s.keywords.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := 0
	for _, name := range names {
		for _, kw := range s.keywords.Capabilities[name] {
			if strings.Contains(desc, kw) {
				groups++
				reasons = append(reasons, "capability "+name)
				break
			}
		}
	}
	if groups > 1 {
		score += float64(groups-1) * 1.5
	}

	// Novelty versus known patterns.
	for _, kw := range s.keywords.Novel {
		if strings.Contains(desc, kw) {
			score += 2
			reasons = append(reasons, "novel work")
			break
		}
	}

	// Long descriptions tend to hide extra requirements.
	if len(desc) > 400 {
		score += 1
		reasons = append(reasons, "long description")
	}

	return score, reasons
}

// scoreRisk estimates impact: production exposure, reversibility, and
// security sensitivity. Caller risk hints count the same as description
// matches.
func (s *HeuristicScorer) scoreRisk(desc string, hints []string) (float64, []string) {
	signal := desc
	for _, h := range hints {
		signal += " " + strings.ToLower(h)
	}

	score := 1.0
	reasons := []string{"base 1"}

	if containsAny(signal, s.keywords.Production) {
		score += 4
		reasons = append(reasons, "production exposure")
	}
	if containsAny(signal, s.keywords.Irreversible) {
		score += 3
		reasons = append(reasons, "irreversible operation")
	}
	if containsAny(signal, s.keywords.Sensitive) {
		score += 4
		reasons = append(reasons, "security sensitive")
	}

	// Pure reads carry almost no impact.
	if containsAny(signal, readOnlyKeywords) && score <= 1 {
		score = 0
		reasons = append(reasons, "read-only")
	}

	return score, reasons
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
