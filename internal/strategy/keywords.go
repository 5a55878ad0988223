// Package strategy decides how much process overhead a task deserves.
package strategy

// FeatureKeywords is the single source of truth for the surface signals the
// heuristic scorer extracts from task descriptions.
type FeatureKeywords struct {
	// MultiStep keywords indicate tasks that decompose into several steps.
	MultiStep []string

	// Capability keyword groups; the number of distinct groups matched
	// approximates the breadth of capabilities a task requires.
	Capabilities map[string][]string

	// Novel keywords indicate work outside known patterns.
	Novel []string

	// Production keywords indicate exposure to live systems.
	Production []string

	// Irreversible keywords indicate operations that cannot be undone.
	Irreversible []string

	// Sensitive keywords indicate security or compliance sensitivity.
	Sensitive []string
}

// DefaultFeatureKeywords returns the authoritative keyword mappings used by
// the heuristic scorer.
var DefaultFeatureKeywords = FeatureKeywords{
	MultiStep: []string{
		"and then",
		"after that",
		"followed by",
		"pipeline",
		"end to end",
		"multi",
		"several",
		"each",
		"all of",
		"workflow",
	},

	Capabilities: map[string][]string{
		"research":    {"research", "investigate", "analyze", "compare", "survey", "find", "search"},
		"engineering": {"implement", "build", "code", "refactor", "fix", "integrate", "script"},
		"writing":     {"write", "draft", "document", "summarize", "report", "readme"},
		"data":        {"database", "schema", "query", "table", "export", "import"},
		"design":      {"design", "architect", "plan", "structure", "model"},
	},

	Novel: []string{
		"novel",
		"new approach",
		"from scratch",
		"greenfield",
		"prototype",
		"experiment",
	},

	Production: []string{
		"production",
		"prod",
		"deploy",
		"release",
		"live",
		"customer-facing",
	},

	Irreversible: []string{
		"delete",
		"drop",
		"remove",
		"purge",
		"truncate",
		"overwrite",
		"migrate",
		"migration",
	},

	Sensitive: []string{
		"auth",
		"authentication",
		"security",
		"credential",
		"secret",
		"payment",
		"billing",
		"compliance",
		"pii",
		"personal data",
	},
}

// readOnlyKeywords indicate tasks that only read state. They pull the risk
// score down since nothing is mutated.
var readOnlyKeywords = []string{
	"list",
	"show",
	"read",
	"view",
	"count",
	"check",
	"look up",
	"what",
	"where",
	"which",
}
