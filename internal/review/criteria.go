package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// KeywordCriteriaChecker is the deterministic fallback correctness check: a
// criterion counts as met when enough of its significant words appear in the
// combined artifact text. Crude, but it never needs model access and its
// failures read sensibly in feedback.
type KeywordCriteriaChecker struct {
	// minCoverage is the fraction of a criterion's keywords that must
	// appear for the criterion to count as met.
	minCoverage float64
}

// NewKeywordCriteriaChecker creates a checker requiring half of each
// criterion's keywords to appear.
func NewKeywordCriteriaChecker() *KeywordCriteriaChecker {
	return &KeywordCriteriaChecker{minCoverage: 0.5}
}

var criteriaStopWords = map[string]bool{
	"the": true, "and": true, "that": true, "with": true, "must": true,
	"should": true, "have": true, "from": true, "this": true, "each": true,
	"been": true, "will": true, "when": true, "into": true, "them": true,
	"there": true, "their": true, "every": true, "which": true, "where": true,
	"does": true, "needs": true,
}

// CheckCriteria implements CriteriaChecker.
func (c *KeywordCriteriaChecker) CheckCriteria(_ context.Context, artifacts []models.Artifact, criteria []string) (bool, string, error) {
	if len(criteria) == 0 {
		return true, "", nil
	}

	var body strings.Builder
	for _, a := range artifacts {
		body.WriteString(strings.ToLower(a.Name))
		body.WriteString("\n")
		body.WriteString(strings.ToLower(a.Content))
		body.WriteString("\n")
		body.WriteString(strings.ToLower(a.Summary))
		body.WriteString("\n")
	}
	text := body.String()

	var unmet []string
	for _, criterion := range criteria {
		keywords := significantWords(criterion)
		if len(keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if float64(hits)/float64(len(keywords)) < c.minCoverage {
			unmet = append(unmet, criterion)
		}
	}

	if len(unmet) > 0 {
		return false, fmt.Sprintf("criteria not evidenced in artifacts: %s", strings.Join(unmet, "; ")), nil
	}
	return true, "", nil
}

// significantWords extracts the lowercase words worth matching on.
func significantWords(s string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) <= 3 || criteriaStopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}
