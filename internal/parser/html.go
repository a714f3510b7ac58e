// Package parser extracts content, links and metadata from rendered HTML.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
)

// HTMLParser parses documents loaded from one base URL.
type HTMLParser struct {
	baseURL *url.URL
}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser(baseURL string) (*HTMLParser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &HTMLParser{baseURL: u}, nil
}

// Document is a parsed HTML page.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse parses an HTML document.
func (p *HTMLParser) Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, cerrors.NewExtractionError(p.baseURL.String(), "parse", err)
	}
	return &Document{doc: doc, base: p.baseURL}, nil
}

// Title returns the document title with whitespace collapsed.
func (d *Document) Title() string {
	return collapse(d.doc.Find("title").First().Text())
}

// Description returns the meta description, falling back to og:description.
func (d *Document) Description() string {
	if desc := d.metaContent(`meta[name="description"]`); desc != "" {
		return desc
	}
	return d.metaContent(`meta[property="og:description"]`)
}

func (d *Document) metaContent(selector string) string {
	content, _ := d.doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// Counts counts links, images, forms, scripts and all elements.
func (d *Document) Counts() ElementCounts {
	return ElementCounts{
		Links:   d.doc.Find("a").Length(),
		Images:  d.doc.Find("img").Length(),
		Forms:   d.doc.Find("form").Length(),
		Scripts: d.doc.Find("script").Length(),
		Total:   d.doc.Find("*").Length(),
	}
}

// Summary returns title, description and element counts.
func (d *Document) Summary() Summary {
	return Summary{
		Title:       d.Title(),
		Description: d.Description(),
		Counts:      d.Counts(),
	}
}

// Hrefs returns the raw href of every anchor in document order. Relative
// references are left for the caller to resolve.
func (d *Document) Hrefs() []string {
	hrefs := make([]string, 0)
	d.doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// Text returns the visible text of the body.
func (d *Document) Text() string {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.TrimSpace(body.Text())
}

// Select returns the text, or the value of attribute when set, of the
// elements matching selector. Only the first match is returned unless
// multiple is true. No match is a not-found error.
func (d *Document) Select(selector, attribute string, multiple bool) ([]string, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, cerrors.NewPolicyError(d.base.String(), "selector is required")
	}

	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, cerrors.NewNotFoundError(d.base.String(), "elements matching "+selector)
	}
	if !multiple {
		sel = sel.First()
	}

	values := make([]string, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		if attribute != "" {
			v, _ := s.Attr(attribute)
			values = append(values, v)
			return
		}
		values = append(values, strings.TrimSpace(s.Text()))
	})
	return values, nil
}

// resolveURL resolves a relative URL against the base URL.
func (d *Document) resolveURL(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return d.base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
