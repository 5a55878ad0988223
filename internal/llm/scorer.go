package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tbaxter-dev/foreman/internal/strategy"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Scorer scores tasks with a model call, falling back to the heuristic
// scorer when the model is unreachable or returns garbage. Routing decisions
// should degrade, not fail, when the model misbehaves.
type Scorer struct {
	client   completer
	fallback *strategy.HeuristicScorer
}

// NewScorer creates a model-backed scorer.
func NewScorer(client *Client) *Scorer {
	return &Scorer{client: client, fallback: strategy.NewHeuristicScorer()}
}

var _ strategy.Scorer = (*Scorer)(nil)

const scorerSystemPrompt = `You assess tasks before execution. Given a task description, estimate:
- complexity (0-10): step count, breadth of required capabilities, novelty
- risk (0-10): production exposure, reversibility, security sensitivity

Respond with only a JSON object:
{"complexity": <number>, "risk": <number>, "rationale": "<one sentence>"}`

// scoreResponse is the JSON shape the model is asked to produce.
type scoreResponse struct {
	Complexity float64 `json:"complexity"`
	Risk       float64 `json:"risk"`
	Rationale  string  `json:"rationale"`
}

// Score implements strategy.Scorer.
func (s *Scorer) Score(ctx context.Context, task models.Task) (strategy.Scores, error) {
	prompt := fmt.Sprintf("Task:\n%s", task.Description)
	if len(task.RiskHints) > 0 {
		prompt += fmt.Sprintf("\n\nCaller risk hints: %v", task.RiskHints)
	}

	text, _, err := s.client.Complete(ctx, scorerSystemPrompt, prompt)
	if err != nil {
		log.Printf("[scorer] model scoring failed, using heuristics: %v", err)
		return s.fallback.Score(ctx, task)
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		log.Printf("[scorer] unparseable scoring response, using heuristics: %v", err)
		return s.fallback.Score(ctx, task)
	}

	return strategy.Scores{
		Complexity: clamp(parsed.Complexity),
		Risk:       clamp(parsed.Risk),
		Rationale:  parsed.Rationale,
	}, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
