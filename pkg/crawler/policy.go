package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/scope"
)

// RedirectHost is the URL fragment of pages that finish loading through a
// client-side redirect chain. Navigations to it wait between
// RedirectMinWait and RedirectMaxWait and then reload the current URL.
const RedirectHost = "chat.openai.com/share/"

// CrawlPolicy bounds and filters one crawl job. A policy is copied into the
// job when it starts and never changes while the job runs.
type CrawlPolicy struct {
	// MaxDepth is the deepest link level followed; 0 crawls only the start page.
	MaxDepth int `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
	// MaxPages is the global page budget of the job.
	MaxPages int `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`
	// MaxPagesPerDomain caps pages per domain (<= 0 = unlimited).
	MaxPagesPerDomain   int  `json:"max_pages_per_domain" yaml:"max_pages_per_domain" mapstructure:"max_pages_per_domain"`
	FollowExternalLinks bool `json:"follow_external_links" yaml:"follow_external_links" mapstructure:"follow_external_links"`
	// RestrictToDomain adds the start URL's domain to RestrictToDomains.
	RestrictToDomain   bool     `json:"restrict_to_domain" yaml:"restrict_to_domain" mapstructure:"restrict_to_domain"`
	RestrictToDomains  []string `json:"restrict_to_domains" yaml:"restrict_to_domains" mapstructure:"restrict_to_domains"`
	IgnoreQueryStrings bool     `json:"ignore_query_strings" yaml:"ignore_query_strings" mapstructure:"ignore_query_strings"`
	ExcludeURLPatterns []string `json:"exclude_url_patterns" yaml:"exclude_url_patterns" mapstructure:"exclude_url_patterns"`

	DynamicContentWait time.Duration `json:"dynamic_content_wait" yaml:"dynamic_content_wait" mapstructure:"dynamic_content_wait"`
	PageLoadTimeout    time.Duration `json:"page_load_timeout" yaml:"page_load_timeout" mapstructure:"page_load_timeout"`
	RedirectMinWait    time.Duration `json:"redirect_min_wait" yaml:"redirect_min_wait" mapstructure:"redirect_min_wait"`
	RedirectMaxWait    time.Duration `json:"redirect_max_wait" yaml:"redirect_max_wait" mapstructure:"redirect_max_wait"`

	// RespectRobots skips URLs disallowed by robots.txt.
	RespectRobots bool `json:"respect_robots" yaml:"respect_robots" mapstructure:"respect_robots"`
}

// DefaultPolicy returns the default crawl policy.
func DefaultPolicy() CrawlPolicy {
	return CrawlPolicy{
		MaxDepth:           1,
		MaxPages:           10,
		MaxPagesPerDomain:  10,
		RestrictToDomain:   true,
		IgnoreQueryStrings: true,
		ExcludeURLPatterns: []string{},
		DynamicContentWait: 2 * time.Second,
		PageLoadTimeout:    30 * time.Second,
		RedirectMinWait:    5 * time.Second,
		RedirectMaxWait:    8 * time.Second,
	}
}

// Validate checks the policy for values the engine cannot run with.
func (p CrawlPolicy) Validate() error {
	if p.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if p.DynamicContentWait < 0 || p.PageLoadTimeout < 0 {
		return fmt.Errorf("wait times must not be negative")
	}
	if p.RedirectMinWait < 0 || p.RedirectMaxWait < p.RedirectMinWait {
		return fmt.Errorf("redirect wait range is invalid")
	}
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p CrawlPolicy) Clone() CrawlPolicy {
	c := p
	c.RestrictToDomains = append([]string(nil), p.RestrictToDomains...)
	c.ExcludeURLPatterns = append([]string(nil), p.ExcludeURLPatterns...)
	return c
}

func (p CrawlPolicy) pageLoadTimeout() time.Duration {
	if p.PageLoadTimeout <= 0 {
		return DefaultPolicy().PageLoadTimeout
	}
	return p.PageLoadTimeout
}

// rules converts the policy into link admission rules for a job that
// starts at start.
func (p CrawlPolicy) rules(start string) scope.Rules {
	domains := make([]string, 0, len(p.RestrictToDomains)+1)
	for _, d := range p.RestrictToDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, strings.ToLower(d))
		}
	}
	if p.RestrictToDomain {
		if d := scope.Domain(start); d != "" {
			domains = append(domains, d)
		}
	}
	return scope.Rules{
		RestrictToDomains: domains,
		FollowExternal:    p.FollowExternalLinks,
		MaxPagesPerDomain: p.MaxPagesPerDomain,
		ExcludePatterns:   p.ExcludeURLPatterns,
		IgnoreQuery:       p.IgnoreQueryStrings,
	}
}
