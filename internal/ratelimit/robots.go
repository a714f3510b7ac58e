package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsManager caches robots.txt rules per host.
type RobotsManager struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewRobotsManager creates a manager. A nil client gets a 10s timeout
// client; a non-positive ttl defaults to one hour.
func NewRobotsManager(client *http.Client, userAgent string, ttl time.Duration) *RobotsManager {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsManager{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched. Errors fetching or
// parsing robots.txt allow the request.
func (m *RobotsManager) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return false
	}

	rules, err := m.rules(ctx, target)
	if err != nil {
		return true
	}

	group := rules.FindGroup(m.userAgent)
	if group == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay for the host of rawURL, if cached.
func (m *RobotsManager) CrawlDelay(rawURL string) time.Duration {
	target, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	m.mu.RLock()
	entry, ok := m.cache[strings.ToLower(target.Host)]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	if group := entry.rules.FindGroup(m.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

func (m *RobotsManager) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	m.mu.RLock()
	entry, ok := m.cache[host]
	m.mu.RUnlock()
	if ok && time.Since(entry.fetched) < m.ttl {
		return entry.rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	m.mu.Lock()
	m.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	m.mu.Unlock()

	return data, nil
}
