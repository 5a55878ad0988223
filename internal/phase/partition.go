package phase

import (
	"fmt"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

const (
	minPhases = 2
	maxPhases = 5
)

// Partition splits a plan into 2-5 phases. Steps keep their plan order;
// consecutive steps sharing a specialty land in the same phase. Phase
// dependencies are derived from step dependencies, so phases with no mutual
// dependency may execute concurrently.
func Partition(plan models.Plan) ([]models.Phase, error) {
	if len(plan.Steps) < minPhases {
		return nil, fmt.Errorf("plan for task %s has %d steps, need at least %d to partition", plan.TaskID, len(plan.Steps), minPhases)
	}

	// Dependencies must point at earlier steps or the phase ordering
	// deadlocks.
	indexOf := make(map[string]int, len(plan.Steps))
	for i, s := range plan.Steps {
		if _, dup := indexOf[s.ID]; dup {
			return nil, fmt.Errorf("plan for task %s has duplicate step id %q", plan.TaskID, s.ID)
		}
		indexOf[s.ID] = i
	}
	for i, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			j, ok := indexOf[dep]
			if !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %q", s.ID, dep)
			}
			if j >= i {
				return nil, fmt.Errorf("step %s depends on later step %q", s.ID, dep)
			}
		}
	}

	groups := groupBySpecialty(plan.Steps)

	// A single group still needs two phases; split it down the middle.
	if len(groups) == 1 {
		mid := (len(groups[0]) + 1) / 2
		groups = [][]models.PlanStep{groups[0][:mid], groups[0][mid:]}
	}

	// Merge the smallest adjacent pair until the phase count fits.
	for len(groups) > maxPhases {
		best := 0
		bestSize := len(groups[0]) + len(groups[1])
		for i := 1; i < len(groups)-1; i++ {
			if size := len(groups[i]) + len(groups[i+1]); size < bestSize {
				best, bestSize = i, size
			}
		}
		merged := append(groups[best], groups[best+1]...)
		groups = append(groups[:best], append([][]models.PlanStep{merged}, groups[best+2:]...)...)
	}

	// Build phases and derive phase-level dependencies.
	phaseOf := make(map[string]int, len(plan.Steps))
	for gi, g := range groups {
		for _, s := range g {
			phaseOf[s.ID] = gi
		}
	}

	phases := make([]models.Phase, 0, len(groups))
	for gi, g := range groups {
		p := models.Phase{
			Name:   fmt.Sprintf("phase-%d", gi+1),
			Status: models.PhasePending,
		}

		seenCat := map[string]bool{}
		seenDep := map[int]bool{}
		for _, s := range g {
			if cat := string(s.Specialty); !seenCat[cat] {
				seenCat[cat] = true
				p.Categories = append(p.Categories, cat)
			}
			p.StepIDs = append(p.StepIDs, s.ID)
			for _, dep := range s.DependsOn {
				if dp := phaseOf[dep]; dp != gi && !seenDep[dp] {
					seenDep[dp] = true
					p.DependsOn = append(p.DependsOn, fmt.Sprintf("phase-%d", dp+1))
				}
			}
		}
		phases = append(phases, p)
	}
	return phases, nil
}

// groupBySpecialty splits steps into runs of consecutive same-specialty
// steps.
func groupBySpecialty(steps []models.PlanStep) [][]models.PlanStep {
	var groups [][]models.PlanStep
	for _, s := range steps {
		if n := len(groups); n > 0 && groups[n-1][0].Specialty == s.Specialty {
			groups[n-1] = append(groups[n-1], s)
			continue
		}
		groups = append(groups, []models.PlanStep{s})
	}
	return groups
}
