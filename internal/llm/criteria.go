package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/tbaxter-dev/foreman/internal/review"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

// CriteriaChecker judges artifacts against acceptance criteria with a model
// call, falling back to the keyword checker on failure.
type CriteriaChecker struct {
	client   completer
	fallback *review.KeywordCriteriaChecker
}

// NewCriteriaChecker creates a model-backed criteria checker.
func NewCriteriaChecker(client *Client) *CriteriaChecker {
	return &CriteriaChecker{client: client, fallback: review.NewKeywordCriteriaChecker()}
}

var _ review.CriteriaChecker = (*CriteriaChecker)(nil)

const criteriaSystemPrompt = `You verify whether produced artifacts satisfy acceptance criteria. Be strict: a criterion counts as met only when the artifacts actually evidence it.

Respond with only a JSON object:
{"met": <bool>, "unmet_criteria": ["..."], "detail": "<one sentence>"}`

type criteriaResponse struct {
	Met           bool     `json:"met"`
	UnmetCriteria []string `json:"unmet_criteria"`
	Detail        string   `json:"detail"`
}

// CheckCriteria implements review.CriteriaChecker.
func (c *CriteriaChecker) CheckCriteria(ctx context.Context, artifacts []models.Artifact, criteria []string) (bool, string, error) {
	if len(criteria) == 0 {
		return true, "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Acceptance Criteria\n\n")
	for _, crit := range criteria {
		sb.WriteString("- " + crit + "\n")
	}
	sb.WriteString("\n## Artifacts\n\n")
	for _, a := range artifacts {
		sb.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", a.Name, a.Content))
	}

	text, _, err := c.client.Complete(ctx, criteriaSystemPrompt, sb.String())
	if err != nil {
		log.Printf("[review] model criteria check failed, using keyword fallback: %v", err)
		return c.fallback.CheckCriteria(ctx, artifacts, criteria)
	}

	var parsed criteriaResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		log.Printf("[review] unparseable criteria response, using keyword fallback: %v", err)
		return c.fallback.CheckCriteria(ctx, artifacts, criteria)
	}

	detail := parsed.Detail
	if !parsed.Met && len(parsed.UnmetCriteria) > 0 {
		detail = fmt.Sprintf("criteria not met: %s", strings.Join(parsed.UnmetCriteria, "; "))
	}
	return parsed.Met, detail, nil
}
