// Package phase implements the full-loop strategy: plan a task, partition
// the plan into ordered phases, and drive each phase through bounded
// execute-then-review rounds.
package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Planner produces an ordered plan for a task. The model-backed planner
// sits behind this interface in production; tests use deterministic ones.
type Planner interface {
	BuildPlan(ctx context.Context, task models.Task) (models.Plan, error)
}

// HeuristicPlanner is the deterministic fallback planner. It produces a
// fixed three-step shape: gather context, execute, summarize. Coarse, but it
// keeps the full loop functional without model access.
type HeuristicPlanner struct{}

// NewHeuristicPlanner creates a HeuristicPlanner.
func NewHeuristicPlanner() *HeuristicPlanner {
	return &HeuristicPlanner{}
}

var _ Planner = (*HeuristicPlanner)(nil)

// BuildPlan implements Planner.
func (p *HeuristicPlanner) BuildPlan(_ context.Context, task models.Task) (models.Plan, error) {
	desc := strings.TrimSpace(task.Description)
	if desc == "" {
		return models.Plan{}, fmt.Errorf("task %s has no description", task.ID)
	}

	execSpecialty := models.SpecialtyGeneral
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "implement") || strings.Contains(lower, "build") ||
		strings.Contains(lower, "code") || strings.Contains(lower, "fix"):
		execSpecialty = models.SpecialtyEngineering
	case strings.Contains(lower, "write") || strings.Contains(lower, "document") ||
		strings.Contains(lower, "report"):
		execSpecialty = models.SpecialtyWriting
	}

	return models.Plan{
		TaskID: task.ID,
		Steps: []models.PlanStep{
			{
				ID:                 "s1",
				Title:              "Gather context",
				Description:        "Collect the information needed to carry out: " + desc,
				AcceptanceCriteria: []string{"relevant context collected and noted"},
				Specialty:          models.SpecialtyResearch,
			},
			{
				ID:                 "s2",
				Title:              "Execute the task",
				Description:        desc,
				AcceptanceCriteria: []string{"the described work is complete"},
				Specialty:          execSpecialty,
				DependsOn:          []string{"s1"},
			},
			{
				ID:                 "s3",
				Title:              "Summarize results",
				Description:        "Summarize what was produced and any follow-ups.",
				AcceptanceCriteria: []string{"summary covers all produced outputs"},
				Specialty:          models.SpecialtyWriting,
				DependsOn:          []string{"s2"},
			},
		},
	}, nil
}
