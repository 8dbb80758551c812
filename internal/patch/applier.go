package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/seomancer/internal/model"
)

// Applier substitutes validated patches into a document's source text.
type Applier struct{}

// NewApplier creates a new applier
func NewApplier() *Applier {
	return &Applier{}
}

// Apply produces the final HTML for a document and a patch set. Patches are
// sorted by start offset; the original text is copied verbatim between
// patch ranges with each range replaced by its patch text. Any overlap
// fails the whole operation with ErrOverlappingPatches and nothing is
// applied: the caller must resolve conflicts and resubmit. The input
// Document is never mutated.
func (a *Applier) Apply(doc *model.Document, set model.PatchSet) (string, error) {
	if len(set.Patches) == 0 {
		return doc.Source, nil
	}

	patches := make([]model.Patch, len(set.Patches))
	copy(patches, set.Patches)
	sort.Slice(patches, func(i, j int) bool { return patches[i].Span.Start < patches[j].Span.Start })

	for i, p := range patches {
		if p.Status != model.PatchValid {
			return "", fmt.Errorf("patch %s is %s, only valid patches can be applied: %w",
				p.Fingerprint, p.Status, model.ErrPatchRejected)
		}
		if p.Span.Start < 0 || p.Span.End > len(doc.Source) || p.Span.Start > p.Span.End {
			return "", fmt.Errorf("patch %s has span [%d,%d) outside the %d-byte source",
				p.Fingerprint, p.Span.Start, p.Span.End, len(doc.Source))
		}
		if i > 0 && patches[i-1].Span.Overlaps(p.Span) {
			return "", &model.OverlapError{A: patches[i-1].Span, B: p.Span}
		}
	}

	var out strings.Builder
	out.Grow(len(doc.Source))

	cursor := 0
	for _, p := range patches {
		out.WriteString(doc.Source[cursor:p.Span.Start])
		out.WriteString(p.Replacement)
		cursor = p.Span.End
	}
	out.WriteString(doc.Source[cursor:])

	return out.String(), nil
}
