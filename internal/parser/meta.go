package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var faviconSelectors = []string{
	`link[rel="icon"]`,
	`link[rel="shortcut icon"]`,
	`link[rel="apple-touch-icon"]`,
}

// Metadata collects meta tags, Open Graph and Twitter card values, the
// canonical URL and the favicon.
func (d *Document) Metadata() *Metadata {
	md := &Metadata{
		MetaTags:    make(map[string]string),
		OpenGraph:   make(map[string]string),
		TwitterCard: make(map[string]string),
	}

	d.doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		if name == "" {
			return
		}
		content, _ := s.Attr("content")
		md.MetaTags[name] = content

		switch {
		case strings.HasPrefix(name, "og:"):
			md.OpenGraph[strings.TrimPrefix(name, "og:")] = content
		case strings.HasPrefix(name, "twitter:"):
			md.TwitterCard[strings.TrimPrefix(name, "twitter:")] = content
		}
	})

	md.Basic.Title = d.Title()
	md.Basic.Description = md.MetaTags["description"]
	if md.Basic.Description == "" {
		md.Basic.Description = md.MetaTags["og:description"]
	}

	if href, ok := d.doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && href != "" {
		md.Basic.CanonicalURL = d.resolveURL(href)
	}

	for _, sel := range faviconSelectors {
		if href, ok := d.doc.Find(sel).First().Attr("href"); ok && href != "" {
			md.Basic.FaviconURL = d.resolveURL(href)
			break
		}
	}

	return md
}
