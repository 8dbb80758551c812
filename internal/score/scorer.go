package score

import (
	"github.com/ppiankov/seomancer/internal/model"
	"github.com/ppiankov/seomancer/internal/rules"
)

// Scorer turns a finding list into a 0-100 score under one rule-set
// version. It is a pure function: identical findings and version always
// yield a bit-identical Score, which means a stored Score can be reproduced
// from its findings without re-running any rules.
type Scorer struct {
	ruleset *rules.RuleSet
}

// NewScorer creates a scorer bound to one rule-set version.
func NewScorer(ruleset *rules.RuleSet) *Scorer {
	return &Scorer{ruleset: ruleset}
}

// Calculate computes per-category subscores and the weighted overall score.
//
// subscore = 100 * max(0, 1 - sum(severities in category) / normalization)
// overall  = weighted mean of subscores using the rule set's category
// weights, which sum to 1.
//
// Findings in the reserved rule-engine-fault category never change the
// score; they are diagnostics, not page defects. Normalization constants
// and weights belong to the rule-set version, so the result always carries
// the version tag: comparing scores across versions is invalid.
func (s *Scorer) Calculate(findings []model.Finding) model.Score {
	perCategory := make(map[model.Category]float64, len(model.ScoredCategories))
	for _, f := range findings {
		if f.Category == model.CategoryRuleEngineFault {
			continue
		}
		perCategory[f.Category] += f.Severity
	}

	subscores := make(map[model.Category]float64, len(model.ScoredCategories))
	var overall float64

	// Fixed iteration order keeps the float accumulation deterministic.
	for _, cat := range model.ScoredCategories {
		sub := subscore(perCategory[cat], s.ruleset.Normalization[cat])
		subscores[cat] = sub
		overall += sub * s.ruleset.CategoryWeights[cat]
	}

	stored := make([]model.Finding, len(findings))
	copy(stored, findings)

	return model.Score{
		Overall:           clamp(overall),
		CategorySubscores: subscores,
		Findings:          stored,
		RuleSetVersion:    s.ruleset.Version,
	}
}

func subscore(weightSum, normalization float64) float64 {
	if normalization <= 0 {
		return 0
	}
	return clamp(100 * (1 - weightSum/normalization))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
