package rules

import (
	"fmt"

	"github.com/ppiankov/seomancer/internal/model"
)

// Engine evaluates a rule set against documents
type Engine struct {
	ruleset *RuleSet
}

// NewEngine creates an engine bound to one immutable rule-set version.
func NewEngine(ruleset *RuleSet) *Engine {
	return &Engine{ruleset: ruleset}
}

// RuleSet returns the active rule set.
func (e *Engine) RuleSet() *RuleSet {
	return e.ruleset
}

// Evaluate runs every rule against the document in ascending rule-id order,
// so output order is reproducible across runs. A rule that panics is
// captured as a finding in the reserved rule-engine-fault category and
// evaluation continues with the remaining rules.
func (e *Engine) Evaluate(doc *model.Document) []model.Finding {
	findings := make([]model.Finding, 0)

	for _, rule := range e.ruleset.Rules {
		findings = append(findings, evaluateRule(rule, doc)...)
	}

	return findings
}

// evaluateRule runs one rule and stamps rule identity onto its findings.
// Severity is copied here, at evaluation time: a stored finding keeps the
// weight of the rule-set version that produced it.
func evaluateRule(rule Rule, doc *model.Document) (findings []model.Finding) {
	defer func() {
		if r := recover(); r != nil {
			findings = []model.Finding{{
				RuleID:   rule.ID,
				Category: model.CategoryRuleEngineFault,
				Message:  fmt.Sprintf("rule %s failed: %v", rule.ID, r),
			}}
		}
	}()

	raw := rule.Check(doc)
	findings = make([]model.Finding, 0, len(raw))
	for _, f := range raw {
		f.RuleID = rule.ID
		f.Category = rule.Category
		f.Severity = rule.Severity
		// A patch needs a concrete target range, so findings without a
		// span are never fix-eligible even when the rule allows fixes.
		f.FixEligible = rule.FixEligible && f.Span != nil
		findings = append(findings, f)
	}
	return findings
}
