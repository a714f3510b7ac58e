package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedSchemes = []string{"javascript:", "mailto:", "tel:"}

var linkAttributes = []string{"target", "rel", "title", "id", "class"}

// Links returns every followable anchor resolved against the base URL.
// A link is internal when its host equals the base host or it has none.
func (d *Document) Links() []Link {
	links := make([]Link, 0)
	d.doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || hasSkippedScheme(href) {
			return
		}

		resolved := d.resolveURL(href)
		if resolved == "" {
			return
		}

		attrs := make(map[string]string)
		for _, name := range linkAttributes {
			if v, ok := s.Attr(name); ok && v != "" {
				attrs[name] = v
			}
		}

		links = append(links, Link{
			URL:        resolved,
			Text:       collapse(s.Text()),
			IsInternal: d.isInternal(resolved),
			Attributes: attrs,
		})
	})
	return links
}

func (d *Document) isInternal(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == "" || u.Host == d.base.Host
}

func hasSkippedScheme(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
