package parse

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/ppiankov/seomancer/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Parser turns raw HTML bytes into an immutable model.Document. It is a
// pure function of (bytes, declared encoding, base URL): identical input
// always yields a structurally identical Document.
type Parser struct{}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes the input using the declared or sniffed character encoding
// and tokenizes it into a Document. All spans are byte offsets into the
// decoded source text.
//
// malformed input is tolerated where the tokenizer can recover (unclosed
// tags, duplicate attributes, missing quotes); captures left open at a
// block boundary or EOF are closed implicitly. An unrecoverable tokenizer
// failure surfaces as *model.MalformedMarkupError with the byte offset
// where scanning stopped.
func (p *Parser) Parse(raw []byte, contentType string, baseURL string) (*model.Document, error) {
	source, err := decode(raw, contentType)
	if err != nil {
		return nil, &model.MalformedMarkupError{Offset: 0, Err: err}
	}

	var base *url.URL
	if baseURL != "" {
		base, _ = url.Parse(baseURL)
	}

	doc := &model.Document{
		Source:      source,
		SourceLen:   len(source),
		ContentHash: model.HashSource(source),
	}

	w := &walker{doc: doc, base: base}
	if err := w.run(); err != nil {
		return nil, err
	}

	return doc, nil
}

// decode converts the raw bytes to UTF-8 using the declared encoding from
// the Content-Type header, a meta charset, or byte sniffing.
func decode(raw []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// capture accumulates text for an element whose contents span multiple
// tokens (title, heading, anchor).
type capture struct {
	start int // offset of the opening tag
	text  strings.Builder
}

// walker drives the tokenizer and collects SEO-relevant elements with their
// source spans.
type walker struct {
	doc  *model.Document
	base *url.URL

	pos int // byte offset of the next token

	title   *capture
	heading *capture
	hLevel  int
	anchor  *capture
	aHref   string
	aRel    string

	script    *model.StructuredData // open structured-data block
	rawScript bool                  // inside a non-structured-data script/style
}

// blockTags close any open text capture when they start: a heading or
// anchor left unclosed ends at the next block boundary.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"header": true, "footer": true, "main": true, "nav": true, "aside": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"title": true, "body": true, "form": true, "blockquote": true, "pre": true,
}

func (w *walker) run() error {
	z := html.NewTokenizer(strings.NewReader(w.doc.Source))

	for {
		tt := z.Next()
		start := w.pos
		w.pos += len(z.Raw())

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return &model.MalformedMarkupError{Offset: start, Err: err}
			}
			w.closeOpenCaptures(start)
			return nil

		case html.TextToken:
			w.onText(z.Token().Data, w.pos)

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			w.onStartTag(tok, start, w.pos, tt == html.SelfClosingTagToken)

		case html.EndTagToken:
			tok := z.Token()
			w.onEndTag(tok.Data, start, w.pos)
		}
	}
}

func (w *walker) onText(text string, end int) {
	if w.script != nil {
		w.script.Raw += text
		w.script.Span.End = end
		return
	}
	if w.rawScript {
		return
	}
	if w.title != nil {
		w.title.text.WriteString(text)
	}
	if w.heading != nil {
		w.heading.text.WriteString(text)
	}
	if w.anchor != nil {
		w.anchor.text.WriteString(text)
	}
}

func (w *walker) onStartTag(tok html.Token, start, end int, selfClosing bool) {
	name := tok.Data

	if blockTags[name] {
		w.closeOpenCaptures(start)
	}

	switch name {
	case "title":
		if !w.doc.HasTitle {
			w.doc.HasTitle = true
			w.title = &capture{start: start}
		}

	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.heading = &capture{start: start}
		w.hLevel = int(name[1] - '0')

	case "meta":
		key := firstAttr(tok, "name")
		if key == "" {
			key = firstAttr(tok, "property")
		}
		if key != "" {
			w.doc.Meta = append(w.doc.Meta, model.MetaTag{
				Name:    strings.ToLower(key),
				Content: strings.TrimSpace(firstAttr(tok, "content")),
				Span:    model.Span{Start: start, End: end},
			})
		}

	case "link":
		if strings.EqualFold(firstAttr(tok, "rel"), "canonical") {
			if href := strings.TrimSpace(firstAttr(tok, "href")); href != "" {
				w.doc.Canonical = w.resolve(href)
			}
		}

	case "img":
		src := strings.TrimSpace(firstAttr(tok, "src"))
		alt, hasAlt := lookupAttr(tok, "alt")
		w.doc.Images = append(w.doc.Images, model.Image{
			Src:    src,
			Alt:    strings.TrimSpace(alt),
			HasAlt: hasAlt,
			Span:   model.Span{Start: start, End: end},
		})

	case "a":
		if href := strings.TrimSpace(firstAttr(tok, "href")); href != "" {
			w.anchor = &capture{start: start}
			w.aHref = w.resolve(href)
			w.aRel = firstAttr(tok, "rel")
		}

	case "script":
		typ := strings.ToLower(strings.TrimSpace(firstAttr(tok, "type")))
		if selfClosing {
			return
		}
		if isStructuredDataType(typ) {
			w.script = &model.StructuredData{
				Type: typ,
				Span: model.Span{Start: end, End: end}, // payload span, grows with text
			}
		} else {
			w.rawScript = true
		}

	case "style":
		if !selfClosing {
			w.rawScript = true
		}
	}
}

func (w *walker) onEndTag(name string, start, end int) {
	switch name {
	case "title":
		w.closeTitle(end)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.closeHeading(end)
	case "a":
		w.closeAnchor(end)
	case "script":
		if w.script != nil {
			w.finishScript()
		}
		w.rawScript = false
	case "style":
		w.rawScript = false
	}
}

// closeOpenCaptures implicitly closes anything still open at a block
// boundary or EOF. The close offset is the boundary itself, which keeps
// recovery deterministic for identical input.
func (w *walker) closeOpenCaptures(at int) {
	w.closeTitle(at)
	w.closeHeading(at)
	w.closeAnchor(at)
	if w.script != nil {
		w.finishScript()
	}
}

func (w *walker) closeTitle(end int) {
	if w.title == nil {
		return
	}
	w.doc.Title = strings.TrimSpace(w.title.text.String())
	w.doc.TitleSpan = model.Span{Start: w.title.start, End: end}
	w.title = nil
}

func (w *walker) closeHeading(end int) {
	if w.heading == nil {
		return
	}
	w.doc.Headings = append(w.doc.Headings, model.Heading{
		Level: w.hLevel,
		Text:  strings.TrimSpace(w.heading.text.String()),
		Span:  model.Span{Start: w.heading.start, End: end},
	})
	w.heading = nil
}

func (w *walker) closeAnchor(end int) {
	if w.anchor == nil {
		return
	}
	w.doc.Links = append(w.doc.Links, model.Link{
		Href: w.aHref,
		Rel:  w.aRel,
		Text: strings.TrimSpace(w.anchor.text.String()),
		Span: model.Span{Start: w.anchor.start, End: end},
	})
	w.anchor = nil
}

func (w *walker) finishScript() {
	sd := w.script
	w.script = nil
	sd.Valid = json.Valid([]byte(sd.Raw))
	sd.Raw = strings.TrimSpace(sd.Raw)
	w.doc.StructuredData = append(w.doc.StructuredData, *sd)
}

// resolve resolves href against the document base URL, keeping it verbatim
// when there is no base or it does not parse.
func (w *walker) resolve(href string) string {
	if w.base == nil {
		return href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	return w.base.ResolveReference(parsed).String()
}

func isStructuredDataType(typ string) bool {
	return typ == "application/ld+json" || typ == "application/json"
}

// firstAttr returns the first occurrence of the attribute; duplicates are
// a common authoring error and later copies are ignored.
func firstAttr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func lookupAttr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
