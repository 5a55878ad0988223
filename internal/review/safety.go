package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// SafetyChecker scans artifacts for destructive operations and for writes
// outside the declared scope. Uses 2 detection strategies:
// 1. Destructive-operation patterns in artifact content
// 2. Artifact names outside the allowed scopes
type SafetyChecker struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

// defaultSafetyPatterns flag operations that destroy data or reach beyond
// the workspace. Matched case-insensitively against artifact content.
var defaultSafetyPatterns = map[string]string{
	"recursive delete":    `\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`,
	"drop table":          `\bdrop\s+(table|database|schema)\b`,
	"truncate table":      `\btruncate\s+table\b`,
	"unfiltered delete":   `\bdelete\s+from\s+\w+\s*;`,
	"force push":          `\bgit\s+push\s+[^\n]*--force\b`,
	"disk overwrite":      `\bdd\s+[^\n]*of=/dev/`,
	"permissions blowout": `\bchmod\s+(-[a-z]+\s+)?777\b`,
	"pipe to shell":       `\bcurl\s+[^\n]*\|\s*(ba)?sh\b`,
}

// NewSafetyChecker creates a checker with the default patterns.
func NewSafetyChecker() *SafetyChecker {
	c := &SafetyChecker{}
	for name, pattern := range defaultSafetyPatterns {
		c.patterns = append(c.patterns, compiledPattern{
			name: name,
			re:   regexp.MustCompile("(?i)" + pattern),
		})
	}
	return c
}

// Check scans all artifacts. It returns false with a reason on the first
// violation found.
func (c *SafetyChecker) Check(artifacts []models.Artifact, allowedScopes []string) (bool, string) {
	for _, a := range artifacts {
		if len(allowedScopes) > 0 && !inScope(a.Name, allowedScopes) {
			return false, fmt.Sprintf("artifact %q is outside the declared scope", a.Name)
		}
		for _, p := range c.patterns {
			if p.re.MatchString(a.Content) {
				return false, fmt.Sprintf("artifact %q contains a destructive operation (%s)", a.Name, p.name)
			}
		}
	}
	return true, ""
}

// inScope reports whether the artifact name sits under one of the allowed
// scope prefixes.
func inScope(name string, scopes []string) bool {
	for _, s := range scopes {
		if s == "" {
			continue
		}
		if name == s || strings.HasPrefix(name, strings.TrimSuffix(s, "/")+"/") {
			return true
		}
	}
	return false
}
