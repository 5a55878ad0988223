package strategy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// OverrideRule maps a task description pattern to a forced execution mode.
// Rules take precedence over the computed scores.
type OverrideRule struct {
	// Name identifies the rule in rationales and logs.
	Name string `yaml:"name"`
	// Pattern is a case-insensitive regular expression matched against the
	// task description.
	Pattern string `yaml:"pattern"`
	// Mode is the execution mode the rule forces.
	Mode models.ExecutionMode `yaml:"mode"`
}

// overrideConfig represents the override rules file structure.
type overrideConfig struct {
	Overrides []OverrideRule `yaml:"overrides"`
}

// compiledRule pairs a rule with its compiled pattern.
type compiledRule struct {
	rule OverrideRule
	re   *regexp.Regexp
}

// OverrideTable holds compiled override rules, checked in order.
type OverrideTable struct {
	rules []compiledRule
}

// defaultOverrideRules are the built-in rules: deployment always requires a
// human, pure read-only queries always run direct.
var defaultOverrideRules = []OverrideRule{
	{
		Name:    "deploy",
		Pattern: `\b(deploy|rollout|roll out|ship to prod)\b`,
		Mode:    models.ModeHumanApproval,
	},
	{
		Name:    "read-only query",
		Pattern: `^\s*(list|show|count|read|view|look up)\b`,
		Mode:    models.ModeDirect,
	},
}

// DefaultOverrides returns a table containing the built-in rules.
func DefaultOverrides() *OverrideTable {
	t, err := NewOverrideTable(defaultOverrideRules)
	if err != nil {
		// Built-in patterns are compile-checked by tests.
		panic(fmt.Sprintf("default override rules: %v", err))
	}
	return t
}

// NewOverrideTable compiles the given rules into a table.
func NewOverrideTable(rules []OverrideRule) (*OverrideTable, error) {
	t := &OverrideTable{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if !r.Mode.Valid() {
			return nil, fmt.Errorf("rule %q: invalid mode %q", r.Name, r.Mode)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		t.rules = append(t.rules, compiledRule{rule: r, re: re})
	}
	return t, nil
}

// LoadOverrides reads an override rules file and appends its rules after the
// built-in defaults, so user rules extend rather than replace them.
func LoadOverrides(path string) (*OverrideTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read override rules: %w", err)
	}

	var cfg overrideConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse override rules: %w", err)
	}

	return NewOverrideTable(append(append([]OverrideRule{}, defaultOverrideRules...), cfg.Overrides...))
}

// Match returns the first rule whose pattern matches the description.
func (t *OverrideTable) Match(description string) (OverrideRule, bool) {
	desc := strings.TrimSpace(description)
	for _, c := range t.rules {
		if c.re.MatchString(desc) {
			return c.rule, true
		}
	}
	return OverrideRule{}, false
}
