package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Planner turns a task into an ordered plan with a model call.
type Planner struct {
	client completer
}

// NewPlanner creates a model-backed planner.
func NewPlanner(client *Client) *Planner {
	return &Planner{client: client}
}

const plannerSystemPrompt = `You break tasks into ordered, executable steps. Each step has a title, a description, acceptance criteria, a specialty, and optional dependencies on earlier steps.

Specialties: general, research, engineering, writing, review.

Respond with only a JSON object:
{"steps": [{"id": "s1", "title": "...", "description": "...", "acceptance_criteria": ["..."], "specialty": "engineering", "depends_on": []}]}

Produce between 2 and 10 steps. Dependencies may only reference earlier step ids.`

// planResponse is the JSON shape the model is asked to produce.
type planResponse struct {
	Steps []struct {
		ID                 string   `json:"id"`
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
		Specialty          string   `json:"specialty"`
		DependsOn          []string `json:"depends_on"`
	} `json:"steps"`
}

// BuildPlan produces an ordered plan for the task.
func (p *Planner) BuildPlan(ctx context.Context, task models.Task) (models.Plan, error) {
	text, _, err := p.client.Complete(ctx, plannerSystemPrompt, "Task:\n"+task.Description)
	if err != nil {
		return models.Plan{}, fmt.Errorf("plan task %s: %w", task.ID, err)
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return models.Plan{}, fmt.Errorf("parse plan for task %s: %w", task.ID, err)
	}
	if len(parsed.Steps) == 0 {
		return models.Plan{}, fmt.Errorf("plan for task %s has no steps", task.ID)
	}

	plan := models.Plan{TaskID: task.ID}
	seen := make(map[string]bool, len(parsed.Steps))
	for i, s := range parsed.Steps {
		id := s.ID
		if id == "" || seen[id] {
			id = fmt.Sprintf("s%d", i+1)
		}
		seen[id] = true

		specialty := models.Specialty(s.Specialty)
		if !specialty.Valid() {
			specialty = models.SpecialtyGeneral
		}

		// Forward references would deadlock the phase ordering.
		var deps []string
		for _, d := range s.DependsOn {
			if d != id && seen[d] {
				deps = append(deps, d)
			}
		}

		plan.Steps = append(plan.Steps, models.PlanStep{
			ID:                 id,
			Title:              s.Title,
			Description:        s.Description,
			AcceptanceCriteria: s.AcceptanceCriteria,
			Specialty:          specialty,
			DependsOn:          deps,
		})
	}
	return plan, nil
}
