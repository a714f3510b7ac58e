package crawler

import (
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/parser"
)

// PageRecord is the content extracted from one crawled page.
type PageRecord struct {
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Content     string               `json:"content"`
	Elements    parser.ElementCounts `json:"elements"`
	Depth       int                  `json:"depth"`
	Domain      string               `json:"domain"`
}

// CrawlResult is the outcome of a crawl job. Pages are in visit order.
type CrawlResult struct {
	StartURL        string         `json:"start_url"`
	Pages           []PageRecord   `json:"pages"`
	PagesCrawled    int            `json:"pages_crawled"`
	MaxDepthReached int            `json:"max_depth_reached"`
	PagesSkipped    int            `json:"pages_skipped"`
	PagesFailed     int            `json:"pages_failed"`
	Duration        time.Duration  `json:"duration"`
	Domains         map[string]int `json:"domains"`
}

// URLs returns the page URLs in visit order.
func (r *CrawlResult) URLs() []string {
	urls := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		urls[i] = p.URL
	}
	return urls
}

// EventType identifies a crawl progress event.
type EventType string

const (
	EventPage  EventType = "page"
	EventSkip  EventType = "skip"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event reports crawl progress to an observer.
type Event struct {
	Type         EventType `json:"type"`
	URL          string    `json:"url,omitempty"`
	Depth        int       `json:"depth"`
	PagesCrawled int       `json:"pages_crawled"`
	Queue        int       `json:"queue"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// Observer receives events from a running job. It is called on the job's
// goroutine and must not block.
type Observer func(Event)

// Job is one crawl request.
type Job struct {
	StartURL string
	Policy   CrawlPolicy
	Profile  browser.Profile
	Observer Observer
}

// ProxyConfig is a per-request proxy.
type ProxyConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Country  string `json:"country,omitempty" yaml:"country,omitempty"`
}

// BrowserOptions overrides the browser profile of a request.
type BrowserOptions struct {
	Headless      *bool        `json:"headless,omitempty"`
	DisableImages *bool        `json:"disable_images,omitempty"`
	WaitTime      *float64     `json:"wait_time,omitempty"` // seconds
	Proxy         *ProxyConfig `json:"proxy_config,omitempty"`
}

// CrawlOptions enables link following for a scrape.
type CrawlOptions struct {
	Enabled             bool  `json:"enabled"`
	MaxDepth            *int  `json:"max_depth,omitempty"`
	MaxPages            *int  `json:"max_pages,omitempty"`
	FollowExternalLinks *bool `json:"follow_external_links,omitempty"`
	RestrictToDomain    *bool `json:"restrict_to_domain,omitempty"`
	IgnoreQueryStrings  *bool `json:"ignore_query_strings,omitempty"`
}

// SelectorOptions selects elements with a CSS selector.
type SelectorOptions struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
	Multiple  *bool  `json:"multiple,omitempty"`
}

// RenderOptions tunes Render.
type RenderOptions struct {
	WaitTime        *float64 `json:"wait_time,omitempty"` // seconds, default 5
	WaitForSelector string   `json:"wait_for_selector,omitempty"`
	FullPage        *bool    `json:"full_page,omitempty"`
}

// ScreenshotOptions tunes Screenshot.
type ScreenshotOptions struct {
	FullPage *bool  `json:"full_page,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
}

// ScrapeRequest is the input of every Scraper operation.
type ScrapeRequest struct {
	URL        string             `json:"url"`
	UserAgent  string             `json:"user_agent,omitempty"`
	Browser    *BrowserOptions    `json:"browser_options,omitempty"`
	Crawl      *CrawlOptions      `json:"crawl_options,omitempty"`
	Selector   *SelectorOptions   `json:"selector_options,omitempty"`
	Render     *RenderOptions     `json:"render_options,omitempty"`
	Screenshot *ScreenshotOptions `json:"screenshot_options,omitempty"`
}

// URLInfo describes redirects of a scraped URL.
type URLInfo struct {
	Original      string `json:"original"`
	Final         string `json:"final"`
	WasRedirected bool   `json:"was_redirected"`
}

// CrawlingData summarizes the crawl attached to a scrape.
type CrawlingData struct {
	Enabled      bool     `json:"enabled"`
	PagesCrawled int      `json:"pages_crawled"`
	MaxDepth     int      `json:"max_depth"`
	CrawledURLs  []string `json:"crawled_urls"`
}

// ScrapeMetadata describes how a page was scraped.
type ScrapeMetadata struct {
	ContentLength     int                   `json:"content_length"`
	ScrapeTimeSeconds float64               `json:"scrape_time_seconds"`
	HasTitle          bool                  `json:"has_title"`
	HasDescription    bool                  `json:"has_description"`
	UserAgent         string                `json:"user_agent"`
	IsDynamic         bool                  `json:"is_dynamic"`
	Frameworks        []string              `json:"frameworks,omitempty"`
	Elements          *parser.ElementCounts `json:"elements,omitempty"`
	Crawling          *CrawlingData         `json:"crawling,omitempty"`
}

// ScrapedData is the result of Scrape and ScrapeStatic.
type ScrapedData struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	URL         URLInfo        `json:"url"`
	Metadata    ScrapeMetadata `json:"metadata"`
}

// RenderResult is the rendered DOM of a page.
type RenderResult struct {
	HTML              string  `json:"html"`
	Title             string  `json:"title"`
	URL               URLInfo `json:"url"`
	RenderTimeSeconds float64 `json:"render_time_seconds"`
	SelectorFound     *bool   `json:"selector_found,omitempty"`
}

// ScreenshotResult is an encoded page capture.
type ScreenshotResult struct {
	Image    []byte                   `json:"image"` // base64 in JSON
	Format   browser.ScreenshotFormat `json:"format"`
	Width    int                      `json:"width"`
	Height   int                      `json:"height"`
	FullPage bool                     `json:"full_page"`
	URL      URLInfo                  `json:"url"`
}

// MetadataResult is the head metadata of a page.
type MetadataResult struct {
	parser.Metadata
	URL URLInfo `json:"url"`
}

// LinksResult lists the anchors of a page.
type LinksResult struct {
	Links         []parser.Link `json:"links"`
	Total         int           `json:"total"`
	InternalCount int           `json:"internal_count"`
	ExternalCount int           `json:"external_count"`
	URL           URLInfo       `json:"url"`
}

// SelectResult holds values matched by a CSS selector.
type SelectResult struct {
	Selector  string   `json:"selector"`
	Attribute string   `json:"attribute,omitempty"`
	Results   []string `json:"results"`
	Count     int      `json:"count"`
	URL       URLInfo  `json:"url"`
}
