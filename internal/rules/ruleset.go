package rules

import (
	"fmt"
	"os"
	"sort"

	"github.com/ppiankov/seomancer/internal/model"
	"gopkg.in/yaml.v3"
)

// Predicate inspects a Document and reports zero or more findings. It must
// be pure: no I/O, no dependence on other rules' output. The engine stamps
// rule identity (id, category, severity) onto whatever it returns.
type Predicate func(doc *model.Document) []model.Finding

// Rule is one immutable rule definition. Identifiers are stable strings and
// are never reused across rule-set versions.
type Rule struct {
	ID          string
	Category    model.Category
	Severity    float64
	FixEligible bool // whether findings may request a generated patch
	Check       Predicate
}

// RuleSet is the immutable, versioned table of rules plus the scoring
// constants that belong to the version. It is passed explicitly into the
// engine and the scorer and never mutated at runtime; upgrades create a new
// version rather than patching this one.
type RuleSet struct {
	Version         string
	Rules           []Rule // ascending by ID
	Normalization   map[model.Category]float64
	CategoryWeights map[model.Category]float64 // sums to 1 over scored categories
}

// RuleByID returns the rule with the given id, if present.
func (rs *RuleSet) RuleByID(id string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// newRuleSet sorts the rules by id and freezes the table.
func newRuleSet(version string, rules []Rule, norm, weights map[model.Category]float64) *RuleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &RuleSet{
		Version:         version,
		Rules:           sorted,
		Normalization:   norm,
		CategoryWeights: weights,
	}
}

// overridesFile is the YAML shape for scoring overrides. Scoring policy is
// configuration, not code: normalization constants, category weights and
// per-rule severities can all be replaced, which always produces a new
// rule-set version.
type overridesFile struct {
	Version       string             `yaml:"version"`
	Normalization map[string]float64 `yaml:"normalization"`
	Weights       map[string]float64 `yaml:"weights"`
	Severities    map[string]float64 `yaml:"severities"`
}

// LoadOverrides derives a new rule set from the built-in one using scoring
// overrides read from a YAML file. The file must declare its own version.
func LoadOverrides(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset overrides: %w", err)
	}

	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ruleset overrides: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("ruleset overrides must declare a version")
	}

	base := DefaultRuleSet()
	if f.Version == base.Version {
		return nil, fmt.Errorf("ruleset overrides may not reuse version %q", base.Version)
	}

	norm := make(map[model.Category]float64, len(base.Normalization))
	for k, v := range base.Normalization {
		norm[k] = v
	}
	for k, v := range f.Normalization {
		if v <= 0 {
			return nil, fmt.Errorf("normalization for %q must be positive", k)
		}
		norm[model.Category(k)] = v
	}

	weights := make(map[model.Category]float64, len(base.CategoryWeights))
	for k, v := range base.CategoryWeights {
		weights[k] = v
	}
	for k, v := range f.Weights {
		weights[model.Category(k)] = v
	}

	var sum float64
	for _, c := range model.ScoredCategories {
		sum += weights[c]
	}
	if sum < 0.999 || sum > 1.001 {
		return nil, fmt.Errorf("category weights must sum to 1, got %.3f", sum)
	}

	rulesCopy := make([]Rule, len(base.Rules))
	copy(rulesCopy, base.Rules)
	for i := range rulesCopy {
		if sev, ok := f.Severities[rulesCopy[i].ID]; ok {
			if sev <= 0 {
				return nil, fmt.Errorf("severity for %q must be positive", rulesCopy[i].ID)
			}
			rulesCopy[i].Severity = sev
		}
	}

	return newRuleSet(f.Version, rulesCopy, norm, weights), nil
}
