package suggest

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/seomancer/internal/model"
	"golang.org/x/net/html"
)

// Tags that generated markup may never introduce, regardless of where the
// target span sits.
var alwaysForbidden = map[string]bool{
	"script": true,
	"iframe": true,
	"object": true,
	"embed":  true,
	"style":  true,
	"link":   true,
	"base":   true,
	"form":   true,
}

// Tags additionally forbidden when the target is a head element (a title or
// meta replacement must not smuggle body content into the head).
var forbiddenInHead = map[string]bool{
	"div": true, "p": true, "a": true, "img": true, "span": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "body": true,
}

// voidTags never take a closing tag.
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// validateReplacement checks the structural and safety properties of
// generated markup: it must be a well-formed fragment on its own, must not
// introduce a tag type forbidden at the target position, and must not
// exceed the configured length multiplier over the original span. It never
// judges SEO merit. A non-nil result is the rejection reason.
func validateReplacement(replacement string, target model.Span, category model.Category, maxMultiplier int) error {
	if strings.TrimSpace(replacement) == "" {
		return fmt.Errorf("replacement is empty")
	}

	if maxMultiplier > 0 && target.Len() > 0 {
		limit := maxMultiplier * target.Len()
		if len(replacement) > limit {
			return fmt.Errorf("replacement is %d bytes, exceeds %dx the original %d-byte span", len(replacement), maxMultiplier, target.Len())
		}
	}

	tags, err := fragmentTags(replacement)
	if err != nil {
		return fmt.Errorf("replacement is not well-formed markup: %v", err)
	}

	headTarget := category == model.CategoryMetadata
	for _, tag := range tags {
		if alwaysForbidden[tag] {
			return fmt.Errorf("replacement introduces forbidden tag <%s>", tag)
		}
		if headTarget && forbiddenInHead[tag] {
			return fmt.Errorf("replacement introduces <%s>, not allowed in a head element", tag)
		}
	}

	return nil
}

// fragmentTags tokenizes the fragment, verifies that non-void tags balance,
// and returns every tag name that appears.
func fragmentTags(fragment string) ([]string, error) {
	z := html.NewTokenizer(strings.NewReader(fragment))

	var tags []string
	var open []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			if len(open) > 0 {
				return nil, fmt.Errorf("unclosed <%s>", open[len(open)-1])
			}
			return tags, nil

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			tags = append(tags, tag)
			if !voidTags[tag] {
				open = append(open, tag)
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(open) == 0 || open[len(open)-1] != tag {
				return nil, fmt.Errorf("unexpected closing </%s>", tag)
			}
			open = open[:len(open)-1]
		}
	}
}
