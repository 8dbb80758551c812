package score

import (
	"reflect"
	"testing"

	"github.com/ppiankov/seomancer/internal/model"
	"github.com/ppiankov/seomancer/internal/rules"
)

func TestScorer_Calculate_NoFindingsIsPerfect(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	result := scorer.Calculate(nil)

	if result.Overall != 100 {
		t.Errorf("Expected overall 100 for no findings, got %v", result.Overall)
	}
	for _, cat := range model.ScoredCategories {
		if result.CategorySubscores[cat] != 100 {
			t.Errorf("Expected subscore 100 for %s, got %v", cat, result.CategorySubscores[cat])
		}
	}
	if result.RuleSetVersion == "" {
		t.Error("Expected score to carry the rule-set version")
	}
}

func TestScorer_Calculate_MetadataFindingsLowerMetadataSubscore(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	findings := []model.Finding{
		{RuleID: "missing-title-text", Category: model.CategoryMetadata, Severity: 3, Message: "no title"},
		{RuleID: "missing-meta-description", Category: model.CategoryMetadata, Severity: 3, Message: "no description"},
	}

	result := scorer.Calculate(findings)

	if result.CategorySubscores[model.CategoryMetadata] >= 100 {
		t.Errorf("Expected metadata subscore < 100, got %v", result.CategorySubscores[model.CategoryMetadata])
	}
	if result.CategorySubscores[model.CategoryMedia] != 100 {
		t.Errorf("Expected untouched category to stay at 100, got %v", result.CategorySubscores[model.CategoryMedia])
	}
	if result.Overall >= 100 {
		t.Errorf("Expected overall < 100, got %v", result.Overall)
	}
}

func TestScorer_Calculate_SubscoreClampedAtZero(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	// Severity far above the normalization constant must clamp, not go
	// negative.
	findings := []model.Finding{
		{RuleID: "img-missing-alt", Category: model.CategoryMedia, Severity: 1000},
	}

	result := scorer.Calculate(findings)

	if result.CategorySubscores[model.CategoryMedia] != 0 {
		t.Errorf("Expected media subscore clamped to 0, got %v", result.CategorySubscores[model.CategoryMedia])
	}
	if result.Overall < 0 || result.Overall > 100 {
		t.Errorf("Expected overall within [0,100], got %v", result.Overall)
	}
}

func TestScorer_Calculate_Deterministic(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	findings := []model.Finding{
		{RuleID: "missing-h1", Category: model.CategoryContentStructure, Severity: 3},
		{RuleID: "img-missing-alt", Category: model.CategoryMedia, Severity: 1},
		{RuleID: "link-generic-anchor", Category: model.CategoryLinks, Severity: 0.5},
		{RuleID: "structured-data-invalid-json", Category: model.CategoryStructuredData, Severity: 2},
	}

	first := scorer.Calculate(findings)
	second := scorer.Calculate(findings)

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected bit-identical scores for identical findings and rule-set version")
	}
}

func TestScorer_Calculate_FaultFindingsDoNotAffectScore(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	clean := scorer.Calculate(nil)
	withFault := scorer.Calculate([]model.Finding{
		{RuleID: "some-rule", Category: model.CategoryRuleEngineFault, Message: "rule some-rule failed"},
	})

	if clean.Overall != withFault.Overall {
		t.Errorf("Expected fault findings to leave score unchanged: %v vs %v", clean.Overall, withFault.Overall)
	}
	if len(withFault.Findings) != 1 {
		t.Error("Expected fault finding to remain in the stored finding list")
	}
}

func TestScorer_Calculate_StoresFindingsForTraceability(t *testing.T) {
	scorer := NewScorer(rules.DefaultRuleSet())

	findings := []model.Finding{
		{RuleID: "missing-canonical", Category: model.CategoryMetadata, Severity: 1},
	}

	result := scorer.Calculate(findings)

	if len(result.Findings) != 1 || result.Findings[0].RuleID != "missing-canonical" {
		t.Errorf("Expected score to carry the exact findings that produced it, got %+v", result.Findings)
	}

	// Mutating the caller's slice must not change the stored copy.
	findings[0].RuleID = "mutated"
	if result.Findings[0].RuleID != "missing-canonical" {
		t.Error("Expected stored findings to be an independent copy")
	}
}
