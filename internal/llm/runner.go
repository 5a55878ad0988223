package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tbaxter-dev/foreman/internal/pool"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Runner is the model-backed execution backend for pooled workers. One
// Runner serves one worker slot.
type Runner struct {
	client completer
}

// NewRunner creates a model-backed runner.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

var _ pool.Runner = (*Runner)(nil)

// Factory creates Runners sharing one client, one per worker slot.
type Factory struct {
	client *Client
}

// NewFactory creates a runner factory backed by the given client.
func NewFactory(client *Client) *Factory {
	return &Factory{client: client}
}

// NewRunner implements pool.RunnerFactory.
func (f *Factory) NewRunner() pool.Runner {
	return NewRunner(f.client)
}

var _ pool.RunnerFactory = (*Factory)(nil)

// specialtyPrompts sets the worker's register per specialty.
var specialtyPrompts = map[models.Specialty]string{
	models.SpecialtyGeneral:     "You are a capable generalist executor. Complete the work exactly as instructed.",
	models.SpecialtyResearch:    "You are a research specialist. Investigate thoroughly and cite what you find.",
	models.SpecialtyEngineering: "You are an engineering specialist. Produce working, complete code.",
	models.SpecialtyWriting:     "You are a writing specialist. Produce clear, well-structured prose.",
	models.SpecialtyReview:      "You are a review specialist. Assess the work critically and concretely.",
}

const runnerOutputInstructions = `

Respond with only a JSON object listing the artifacts you produced:
{"artifacts": [{"name": "<file name>", "content": "<full content>", "summary": "<one sentence>"}]}`

// runnerResponse is the JSON shape the model is asked to produce.
type runnerResponse struct {
	Artifacts []struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		Summary string `json:"summary"`
	} `json:"artifacts"`
}

// Run implements pool.Runner. Transport errors propagate so the pool can
// mark the worker errored and retry elsewhere; an empty or unparseable
// response is an execution failure, not a worker failure.
func (r *Runner) Run(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
	system, ok := specialtyPrompts[item.Specialty]
	if !ok {
		system = specialtyPrompts[models.SpecialtyGeneral]
	}

	text, cost, err := r.client.Complete(ctx, system, buildWorkPrompt(item.Payload))
	if err != nil {
		return models.WorkResult{}, fmt.Errorf("execute work item %s: %w", item.ID, err)
	}

	result := models.WorkResult{CostDelta: cost}

	var parsed runnerResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil || len(parsed.Artifacts) == 0 {
		// Fall back to treating the whole response as a single artifact.
		if strings.TrimSpace(text) == "" {
			result.ErrorKind = models.ErrorExecution
			result.Error = "empty response"
			return result, nil
		}
		result.Success = true
		result.Artifacts = []models.Artifact{{Name: "response.md", Content: text}}
		return result, nil
	}

	for _, a := range parsed.Artifacts {
		result.Artifacts = append(result.Artifacts, models.Artifact{
			Name:    a.Name,
			Content: a.Content,
			Summary: a.Summary,
		})
	}
	result.Success = true
	return result, nil
}

// buildWorkPrompt assembles the user prompt from the payload: instructions,
// steps, prior-phase context, and any reviewer feedback to address.
func buildWorkPrompt(p models.WorkPayload) string {
	var sb strings.Builder

	sb.WriteString("# Work Assignment\n\n")
	if p.Phase != "" {
		sb.WriteString(fmt.Sprintf("**Phase**: %s\n\n", p.Phase))
	}
	sb.WriteString(p.Instructions)
	sb.WriteString("\n")

	if len(p.Steps) > 0 {
		sb.WriteString("\n## Steps\n\n")
		for i, s := range p.Steps {
			sb.WriteString(fmt.Sprintf("%d. **%s**", i+1, s.Title))
			if s.Description != "" {
				sb.WriteString(": " + s.Description)
			}
			sb.WriteString("\n")
			for _, c := range s.AcceptanceCriteria {
				sb.WriteString("   - " + c + "\n")
			}
		}
	}

	if len(p.AcceptanceCriteria) > 0 {
		sb.WriteString("\n## Acceptance Criteria\n\n")
		for _, c := range p.AcceptanceCriteria {
			sb.WriteString("- " + c + "\n")
		}
	}

	if len(p.PriorArtifacts) > 0 {
		sb.WriteString("\n## Prior Phase Outputs\n\n")
		for _, a := range p.PriorArtifacts {
			sb.WriteString("- " + a + "\n")
		}
	}

	if p.Feedback != "" {
		sb.WriteString("\n## Reviewer Feedback To Address\n\n")
		sb.WriteString(p.Feedback)
		sb.WriteString("\n")
	}

	sb.WriteString(runnerOutputInstructions)
	return sb.String()
}
