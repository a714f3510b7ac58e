package parser

// ElementCounts counts the elements of a rendered page.
type ElementCounts struct {
	Links   int `json:"links"`
	Images  int `json:"images"`
	Forms   int `json:"forms"`
	Scripts int `json:"scripts"`
	// Total is the number of elements in the document.
	Total int `json:"total"`
}

// Summary is the content extracted from every crawled or scraped page.
type Summary struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Counts      ElementCounts `json:"element_counts"`
}

// Link is an anchor found on a page.
type Link struct {
	URL        string            `json:"url"`
	Text       string            `json:"text"`
	IsInternal bool              `json:"is_internal"`
	Attributes map[string]string `json:"attributes"`
}

// BasicMetadata holds the page-level metadata fields.
type BasicMetadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	CanonicalURL string `json:"canonical_url"`
	FaviconURL   string `json:"favicon_url"`
}

// Metadata groups every meta tag of a page.
type Metadata struct {
	Basic BasicMetadata `json:"basic"`
	// MetaTags maps name or property to content.
	MetaTags    map[string]string `json:"meta_tags"`
	OpenGraph   map[string]string `json:"open_graph"`
	TwitterCard map[string]string `json:"twitter_card"`
}

// Article is the main content of a page found by boilerplate removal.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text"`
	Author      string `json:"author,omitempty"`
	Sitename    string `json:"sitename,omitempty"`
	Language    string `json:"language,omitempty"`
}
