package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Span is a half-open byte range [Start, End) into a Document's source text.
// Spans are stable for the lifetime of the Document that produced them and
// become invalid as soon as the page is re-parsed.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the length of the span in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// MetaTag is a single <meta> element, keyed by its name or property attribute.
type MetaTag struct {
	Name    string `json:"name"`              // name or property attribute
	Content string `json:"content"`           // content attribute
	Span    Span   `json:"position"`
}

// Heading is an h1-h6 element.
type Heading struct {
	Level int    `json:"level"` // 1-6
	Text  string `json:"text"`
	Span  Span   `json:"position"`
}

// Image is an <img> element.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	HasAlt bool   `json:"has_alt"` // distinguishes alt="" from a missing attribute
	Span   Span   `json:"position"`
}

// Link is an <a> element with an href.
type Link struct {
	Href string `json:"href"` // resolved against the document base URL
	Rel  string `json:"rel,omitempty"`
	Text string `json:"text,omitempty"` // anchor text
	Span Span   `json:"position"`
}

// StructuredData is a structured-data block (e.g. application/ld+json).
// Blocks whose payload is not valid JSON are recorded with Valid=false,
// never dropped.
type StructuredData struct {
	Type  string `json:"type"`    // script type attribute
	Raw   string `json:"raw"`     // raw payload text
	Valid bool   `json:"valid"`   // whether Raw parses as JSON
	Span  Span   `json:"position"`
}

// Document is an immutable snapshot of a parsed HTML page. All spans are
// byte offsets into Source. Corrections never mutate a Document; applying
// patches produces new HTML text that must be re-parsed to get a new one.
type Document struct {
	Source string // decoded UTF-8 source text

	Title     string // text of the first <title>, empty if absent or blank
	HasTitle  bool   // whether a <title> element exists at all
	TitleSpan Span

	Meta           []MetaTag
	Headings       []Heading
	Images         []Image
	Links          []Link
	Canonical      string // resolved canonical URL, empty if absent
	StructuredData []StructuredData

	SourceLen   int    // length of Source in bytes
	ContentHash string // sha256 of Source, hex-encoded
}

// MetaContent returns the content of the first meta tag with the given
// name/property, and whether such a tag exists.
func (d *Document) MetaContent(name string) (string, bool) {
	for _, m := range d.Meta {
		if m.Name == name {
			return m.Content, true
		}
	}
	return "", false
}

// Slice returns the source text covered by the span.
func (d *Document) Slice(s Span) string {
	if s.Start < 0 || s.End > len(d.Source) || s.Start > s.End {
		return ""
	}
	return d.Source[s.Start:s.End]
}

// HashSource computes the content hash used to key derived results.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
