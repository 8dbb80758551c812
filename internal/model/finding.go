package model

// Category classifies a rule and its findings
type Category string

const (
	CategoryMetadata         Category = "metadata"
	CategoryContentStructure Category = "content_structure"
	CategoryMedia            Category = "media"
	CategoryLinks            Category = "links"
	CategoryStructuredData   Category = "structured_data"

	// CategoryRuleEngineFault is reserved for findings that record an
	// internal failure of a rule rather than a result about the page.
	CategoryRuleEngineFault Category = "rule_engine_fault"
)

// ScoredCategories lists the categories that participate in scoring, in the
// fixed order used everywhere a deterministic iteration is required.
var ScoredCategories = []Category{
	CategoryMetadata,
	CategoryContentStructure,
	CategoryMedia,
	CategoryLinks,
	CategoryStructuredData,
}

// Finding is a single rule observation against a Document.
// Severity is copied from the rule at evaluation time so that later
// rule-set changes never retroactively alter a stored finding.
type Finding struct {
	RuleID      string   `json:"ruleId"`
	Category    Category `json:"category"`
	Severity    float64  `json:"severity"`
	Message     string   `json:"message"`
	Span        *Span    `json:"position,omitempty"`
	FixEligible bool     `json:"fixEligible,omitempty"`
}

// Score is the deterministic result of scoring a finding list under one
// rule-set version. It carries the exact findings that produced it so the
// value is reproducible without re-running rules, and the version tag so
// scores from different rule sets are never compared.
type Score struct {
	Overall           float64              `json:"score"`
	CategorySubscores map[Category]float64 `json:"categorySubscores"`
	Findings          []Finding            `json:"findings"`
	RuleSetVersion    string               `json:"ruleSetVersion"`
}
