package rules

import (
	"fmt"
	"strings"

	"github.com/ppiankov/seomancer/internal/model"
)

// Length guidance for metadata text. Search engines truncate beyond these.
const (
	maxTitleLength           = 60
	maxMetaDescriptionLength = 160
)

// genericAnchors are anchor texts that carry no descriptive value.
var genericAnchors = map[string]bool{
	"click here": true,
	"here":       true,
	"read more":  true,
	"more":       true,
	"link":       true,
	"this page":  true,
}

// DefaultRuleSet returns the built-in versioned rule table with its scoring
// constants.
func DefaultRuleSet() *RuleSet {
	rules := []Rule{
		{
			ID:          "missing-title-text",
			Category:    model.CategoryMetadata,
			Severity:    3,
			FixEligible: true,
			Check:       checkTitleText,
		},
		{
			ID:          "title-too-long",
			Category:    model.CategoryMetadata,
			Severity:    1,
			FixEligible: true,
			Check:       checkTitleLength,
		},
		{
			ID:          "missing-meta-description",
			Category:    model.CategoryMetadata,
			Severity:    3,
			FixEligible: true,
			Check:       checkMetaDescription,
		},
		{
			ID:          "meta-description-too-long",
			Category:    model.CategoryMetadata,
			Severity:    1,
			FixEligible: true,
			Check:       checkMetaDescriptionLength,
		},
		{
			ID:       "missing-canonical",
			Category: model.CategoryMetadata,
			Severity: 1,
			Check:    checkCanonical,
		},
		{
			ID:       "missing-h1",
			Category: model.CategoryContentStructure,
			Severity: 3,
			Check:    checkMissingH1,
		},
		{
			ID:       "multiple-h1",
			Category: model.CategoryContentStructure,
			Severity: 1.5,
			Check:    checkMultipleH1,
		},
		{
			ID:       "heading-level-skip",
			Category: model.CategoryContentStructure,
			Severity: 1,
			Check:    checkHeadingLevelSkip,
		},
		{
			ID:          "empty-heading",
			Category:    model.CategoryContentStructure,
			Severity:    1,
			FixEligible: true,
			Check:       checkEmptyHeadings,
		},
		{
			ID:          "img-missing-alt",
			Category:    model.CategoryMedia,
			Severity:    1,
			FixEligible: true,
			Check:       checkImageAlt,
		},
		{
			ID:       "link-empty-anchor",
			Category: model.CategoryLinks,
			Severity: 1,
			Check:    checkEmptyAnchors,
		},
		{
			ID:       "link-generic-anchor",
			Category: model.CategoryLinks,
			Severity: 0.5,
			Check:    checkGenericAnchors,
		},
		{
			ID:       "structured-data-invalid-json",
			Category: model.CategoryStructuredData,
			Severity: 2,
			Check:    checkStructuredData,
		},
	}

	norm := map[model.Category]float64{
		model.CategoryMetadata:         9,
		model.CategoryContentStructure: 6.5,
		model.CategoryMedia:            5,
		model.CategoryLinks:            4,
		model.CategoryStructuredData:   4,
	}

	weights := map[model.Category]float64{
		model.CategoryMetadata:         0.30,
		model.CategoryContentStructure: 0.25,
		model.CategoryMedia:            0.20,
		model.CategoryLinks:            0.15,
		model.CategoryStructuredData:   0.10,
	}

	return newRuleSet("seo-rules/v1", rules, norm, weights)
}

func checkTitleText(doc *model.Document) []model.Finding {
	if doc.HasTitle && doc.Title != "" {
		return nil
	}
	f := model.Finding{Message: "page has no title text"}
	if doc.HasTitle {
		f.Message = "title element is empty"
		span := doc.TitleSpan
		f.Span = &span
	}
	return []model.Finding{f}
}

func checkTitleLength(doc *model.Document) []model.Finding {
	if doc.Title == "" || len(doc.Title) <= maxTitleLength {
		return nil
	}
	span := doc.TitleSpan
	return []model.Finding{{
		Message: fmt.Sprintf("title is %d characters, longer than %d", len(doc.Title), maxTitleLength),
		Span:    &span,
	}}
}

func checkMetaDescription(doc *model.Document) []model.Finding {
	if desc, ok := doc.MetaContent("description"); ok && desc != "" {
		return nil
	}
	return []model.Finding{{Message: "page has no meta description"}}
}

func checkMetaDescriptionLength(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, m := range doc.Meta {
		if m.Name != "description" {
			continue
		}
		if len(m.Content) > maxMetaDescriptionLength {
			span := m.Span
			findings = append(findings, model.Finding{
				Message: fmt.Sprintf("meta description is %d characters, longer than %d", len(m.Content), maxMetaDescriptionLength),
				Span:    &span,
			})
		}
	}
	return findings
}

func checkCanonical(doc *model.Document) []model.Finding {
	if doc.Canonical != "" {
		return nil
	}
	return []model.Finding{{Message: "page has no canonical URL"}}
}

func checkMissingH1(doc *model.Document) []model.Finding {
	for _, h := range doc.Headings {
		if h.Level == 1 {
			return nil
		}
	}
	return []model.Finding{{Message: "page has no h1 heading"}}
}

func checkMultipleH1(doc *model.Document) []model.Finding {
	var findings []model.Finding
	count := 0
	for _, h := range doc.Headings {
		if h.Level != 1 {
			continue
		}
		count++
		if count > 1 {
			span := h.Span
			findings = append(findings, model.Finding{
				Message: "page has more than one h1 heading",
				Span:    &span,
			})
		}
	}
	return findings
}

func checkHeadingLevelSkip(doc *model.Document) []model.Finding {
	var findings []model.Finding
	prev := 0
	for _, h := range doc.Headings {
		if prev > 0 && h.Level > prev+1 {
			span := h.Span
			findings = append(findings, model.Finding{
				Message: fmt.Sprintf("heading level jumps from h%d to h%d", prev, h.Level),
				Span:    &span,
			})
		}
		prev = h.Level
	}
	return findings
}

func checkEmptyHeadings(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, h := range doc.Headings {
		if h.Text == "" {
			span := h.Span
			findings = append(findings, model.Finding{
				Message: fmt.Sprintf("h%d heading has no text", h.Level),
				Span:    &span,
			})
		}
	}
	return findings
}

func checkImageAlt(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, img := range doc.Images {
		if img.HasAlt {
			continue
		}
		span := img.Span
		findings = append(findings, model.Finding{
			Message: fmt.Sprintf("image %q has no alt text", img.Src),
			Span:    &span,
		})
	}
	return findings
}

func checkEmptyAnchors(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, l := range doc.Links {
		if l.Text != "" {
			continue
		}
		span := l.Span
		findings = append(findings, model.Finding{
			Message: fmt.Sprintf("link to %q has no anchor text", l.Href),
			Span:    &span,
		})
	}
	return findings
}

func checkGenericAnchors(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, l := range doc.Links {
		if !genericAnchors[strings.ToLower(l.Text)] {
			continue
		}
		span := l.Span
		findings = append(findings, model.Finding{
			Message: fmt.Sprintf("link anchor %q is generic", l.Text),
			Span:    &span,
		})
	}
	return findings
}

func checkStructuredData(doc *model.Document) []model.Finding {
	var findings []model.Finding
	for _, sd := range doc.StructuredData {
		if sd.Valid {
			continue
		}
		span := sd.Span
		findings = append(findings, model.Finding{
			Message: fmt.Sprintf("structured-data block (%s) is not valid JSON", sd.Type),
			Span:    &span,
		})
	}
	return findings
}
