package parse

import (
	"reflect"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Sample Page</title>
<meta name="description" content="A sample page for testing">
<meta property="og:title" content="Sample">
<link rel="canonical" href="/sample">
<script type="application/ld+json">{"@type":"WebPage"}</script>
</head>
<body>
<h1>Main Heading</h1>
<p>Intro text with <a href="/about">a link</a> inside.</p>
<img src="/logo.png" alt="Logo">
<img src="/banner.png">
<h2>Section</h2>
</body>
</html>`

func TestParser_Parse_ExtractsElements(t *testing.T) {
	parser := NewParser()

	doc, err := parser.Parse([]byte(samplePage), "text/html; charset=utf-8", "https://example.com/page")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !doc.HasTitle || doc.Title != "Sample Page" {
		t.Errorf("Expected title 'Sample Page', got %q (hasTitle=%v)", doc.Title, doc.HasTitle)
	}

	if desc, ok := doc.MetaContent("description"); !ok || desc != "A sample page for testing" {
		t.Errorf("Expected meta description, got %q (ok=%v)", desc, ok)
	}

	if og, ok := doc.MetaContent("og:title"); !ok || og != "Sample" {
		t.Errorf("Expected og:title meta via property attribute, got %q", og)
	}

	if doc.Canonical != "https://example.com/sample" {
		t.Errorf("Expected canonical resolved against base URL, got %q", doc.Canonical)
	}

	if len(doc.Headings) != 2 {
		t.Fatalf("Expected 2 headings, got %d", len(doc.Headings))
	}
	if doc.Headings[0].Level != 1 || doc.Headings[0].Text != "Main Heading" {
		t.Errorf("Unexpected first heading: %+v", doc.Headings[0])
	}

	if len(doc.Images) != 2 {
		t.Fatalf("Expected 2 images, got %d", len(doc.Images))
	}
	if !doc.Images[0].HasAlt || doc.Images[0].Alt != "Logo" {
		t.Errorf("Expected first image to have alt 'Logo', got %+v", doc.Images[0])
	}
	if doc.Images[1].HasAlt {
		t.Errorf("Expected second image to have no alt attribute")
	}

	if len(doc.Links) != 1 {
		t.Fatalf("Expected 1 link, got %d", len(doc.Links))
	}
	if doc.Links[0].Href != "https://example.com/about" || doc.Links[0].Text != "a link" {
		t.Errorf("Unexpected link: %+v", doc.Links[0])
	}

	if len(doc.StructuredData) != 1 {
		t.Fatalf("Expected 1 structured-data block, got %d", len(doc.StructuredData))
	}
	if !doc.StructuredData[0].Valid {
		t.Errorf("Expected structured-data block to be valid JSON")
	}
}

func TestParser_Parse_SpansIndexIntoSource(t *testing.T) {
	parser := NewParser()

	doc, err := parser.Parse([]byte(samplePage), "text/html", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	title := doc.Slice(doc.TitleSpan)
	if title != "<title>Sample Page</title>" {
		t.Errorf("Title span does not cover the title element: %q", title)
	}

	h1 := doc.Slice(doc.Headings[0].Span)
	if h1 != "<h1>Main Heading</h1>" {
		t.Errorf("Heading span does not cover the element: %q", h1)
	}

	img := doc.Slice(doc.Images[0].Span)
	if img != `<img src="/logo.png" alt="Logo">` {
		t.Errorf("Image span does not cover the tag: %q", img)
	}

	sd := doc.Slice(doc.StructuredData[0].Span)
	if strings.TrimSpace(sd) != `{"@type":"WebPage"}` {
		t.Errorf("Structured-data span does not cover the payload: %q", sd)
	}
}

func TestParser_Parse_Deterministic(t *testing.T) {
	parser := NewParser()

	first, err := parser.Parse([]byte(samplePage), "text/html", "https://example.com/")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := parser.Parse([]byte(samplePage), "text/html", "https://example.com/")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical input to produce structurally identical Documents")
	}
}

func TestParser_Parse_EmptyTitle(t *testing.T) {
	parser := NewParser()

	doc, err := parser.Parse([]byte(`<html><head><title></title></head><body></body></html>`), "text/html", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !doc.HasTitle {
		t.Error("Expected HasTitle for an empty title element")
	}
	if doc.Title != "" {
		t.Errorf("Expected empty title text, got %q", doc.Title)
	}
}

func TestParser_Parse_RecoversFromUnclosedTags(t *testing.T) {
	parser := NewParser()

	// Unclosed h1 and anchor: both close implicitly at the next block tag.
	input := `<html><body><h1>Open heading<p>paragraph</p><a href="/x">dangling</body></html>`

	doc, err := parser.Parse([]byte(input), "text/html", "")
	if err != nil {
		t.Fatalf("Expected recovery, got error: %v", err)
	}

	if len(doc.Headings) != 1 || doc.Headings[0].Text != "Open heading" {
		t.Errorf("Expected implicitly closed heading, got %+v", doc.Headings)
	}
	if len(doc.Links) != 1 || doc.Links[0].Text != "dangling" {
		t.Errorf("Expected implicitly closed anchor, got %+v", doc.Links)
	}

	// Recovery must be deterministic.
	again, err := parser.Parse([]byte(input), "text/html", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(doc, again) {
		t.Error("Expected deterministic recovery for identical malformed input")
	}
}

func TestParser_Parse_InvalidStructuredDataRecorded(t *testing.T) {
	parser := NewParser()

	input := `<html><head><script type="application/ld+json">{not json</script></head></html>`

	doc, err := parser.Parse([]byte(input), "text/html", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(doc.StructuredData) != 1 {
		t.Fatalf("Expected invalid block to be recorded, got %d blocks", len(doc.StructuredData))
	}
	if doc.StructuredData[0].Valid {
		t.Error("Expected parse-valid flag to be false for malformed JSON")
	}
}

func TestParser_Parse_DuplicateAttributesFirstWins(t *testing.T) {
	parser := NewParser()

	input := `<html><body><img src="/a.png" src="/b.png" alt="one" alt="two"></body></html>`

	doc, err := parser.Parse([]byte(input), "text/html", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(doc.Images) != 1 {
		t.Fatalf("Expected 1 image, got %d", len(doc.Images))
	}
	if doc.Images[0].Src != "/a.png" || doc.Images[0].Alt != "one" {
		t.Errorf("Expected first attribute occurrence to win, got %+v", doc.Images[0])
	}
}

func TestParser_Parse_ContentHashStable(t *testing.T) {
	parser := NewParser()

	a, _ := parser.Parse([]byte(samplePage), "text/html", "")
	b, _ := parser.Parse([]byte(samplePage), "text/html", "")

	if a.ContentHash == "" || a.ContentHash != b.ContentHash {
		t.Errorf("Expected stable content hash, got %q vs %q", a.ContentHash, b.ContentHash)
	}
	if a.SourceLen != len(a.Source) {
		t.Errorf("Expected SourceLen to match source length")
	}
}
