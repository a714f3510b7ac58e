// Package browsertest provides an in-memory browser for tests of code that
// borrows from a browser.Pool.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
)

// ErrCrashed is returned by every call on a crashed fake browser.
var ErrCrashed = errors.New("browser process exited")

// Page describes how the fake responds to a navigation.
type Page struct {
	HTML string
	// Text is the rendered body text.
	Text string
	// FinalURL simulates a redirect.
	FinalURL string
	// Err fails the navigation.
	Err error
	// Delay blocks the navigation until it elapses or ctx is done.
	Delay time.Duration
	// Crash kills the browser during navigation.
	Crash bool
}

// Site is a set of fake pages plus launch bookkeeping.
type Site struct {
	mu        sync.Mutex
	pages     map[string]*Page
	visits    []string
	launches  int
	closes    int
	launchErr error
	profiles  []browser.Profile
	pageOpts  []browser.PageOptions
}

// NewSite creates an empty site.
func NewSite() *Site {
	return &Site{pages: make(map[string]*Page)}
}

// Add registers url.
func (s *Site) Add(url string, p Page) {
	s.mu.Lock()
	s.pages[url] = &p
	s.mu.Unlock()
}

// AddHTML registers url as a document with title and anchors to links.
func (s *Site) AddHTML(url, title string, links ...string) {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title><meta name=\"description\" content=\"About %s\"></head><body><h1>%s</h1>", title, title, title)
	for _, l := range links {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>", l, l)
	}
	b.WriteString("</body></html>")
	s.Add(url, Page{HTML: b.String(), Text: title + " body"})
}

// SetLaunchError makes subsequent launches fail with err (nil clears it).
func (s *Site) SetLaunchError(err error) {
	s.mu.Lock()
	s.launchErr = err
	s.mu.Unlock()
}

// Visits returns navigated URLs in order.
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

// Launches returns how many browsers were started.
func (s *Site) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// Closes returns how many browsers were closed.
func (s *Site) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Live returns started minus closed browsers.
func (s *Site) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches - s.closes
}

// Profiles returns the profiles browsers were launched with.
func (s *Site) Profiles() []browser.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Profile(nil), s.profiles...)
}

// PageOptions returns the options of every opened page.
func (s *Site) PageOptions() []browser.PageOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.PageOptions(nil), s.pageOpts...)
}

// Launcher returns a browser.Launcher backed by the site.
func (s *Site) Launcher() browser.Launcher {
	return func(ctx context.Context, profile browser.Profile) (browser.Handle, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.launchErr != nil {
			return nil, s.launchErr
		}
		s.launches++
		s.profiles = append(s.profiles, profile)
		return &handle{site: s}, nil
	}
}

type handle struct {
	site    *Site
	mu      sync.Mutex
	crashed bool
	closed  bool
}

func (h *handle) dead() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.crashed {
		return ErrCrashed
	}
	if h.closed {
		return errors.New("browser closed")
	}
	return nil
}

func (h *handle) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if err := h.dead(); err != nil {
		return nil, err
	}
	h.site.mu.Lock()
	h.site.pageOpts = append(h.site.pageOpts, opts)
	h.site.mu.Unlock()
	return &page{handle: h}, nil
}

func (h *handle) Ping(ctx context.Context) error {
	return h.dead()
}

func (h *handle) Close() error {
	h.mu.Lock()
	already := h.closed
	h.closed = true
	h.mu.Unlock()
	if !already {
		h.site.mu.Lock()
		h.site.closes++
		h.site.mu.Unlock()
	}
	return nil
}

type page struct {
	handle  *handle
	current string
	def     *Page
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := p.handle.dead(); err != nil {
		return err
	}

	s := p.handle.site
	s.mu.Lock()
	s.visits = append(s.visits, url)
	def, ok := s.pages[url]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("navigation failed: net::ERR_NAME_NOT_RESOLVED at %s", url)
	}

	if def.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(def.Delay):
		}
	}

	if def.Crash {
		p.handle.mu.Lock()
		p.handle.crashed = true
		p.handle.mu.Unlock()
		return errors.New("websocket: close 1006 (abnormal closure)")
	}
	if def.Err != nil {
		return def.Err
	}

	p.def = def
	p.current = url
	if def.FinalURL != "" {
		p.current = def.FinalURL
	}
	return nil
}

func (p *page) URL(ctx context.Context) (string, error) {
	if err := p.handle.dead(); err != nil {
		return "", err
	}
	if p.current == "" {
		return "about:blank", nil
	}
	return p.current, nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	if err := p.handle.dead(); err != nil {
		return "", err
	}
	if p.def == nil {
		return "<html><head></head><body></body></html>", nil
	}
	return p.def.HTML, nil
}

func (p *page) Text(ctx context.Context) (string, error) {
	if err := p.handle.dead(); err != nil {
		return "", err
	}
	if p.def == nil {
		return "", nil
	}
	return p.def.Text, nil
}

func (p *page) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.handle.dead(); err != nil {
		return err
	}
	if p.def != nil && strings.Contains(p.def.HTML, strings.TrimLeft(selector, "#.")) {
		return nil
	}
	return context.DeadlineExceeded
}

func (p *page) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	if err := p.handle.dead(); err != nil {
		return nil, err
	}
	if opts.Format == browser.FormatJPEG {
		return []byte{0xff, 0xd8, 0xff}, nil
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *page) Close() error {
	return nil
}
