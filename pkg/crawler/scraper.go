package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	fetch "github.com/PentesterFlow/ScrapeIt/internal/http"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/parser"
)

// digestChars is how much of each crawled page is appended to a scrape.
const digestChars = 500

// Scraper performs single-page operations on pooled browsers. The optional
// crawl of Scrape reuses the browser borrowed for the page.
type Scraper struct {
	engine   *Engine
	settings *SettingsService
	log      *logger.Logger
}

// NewScraper creates a scraper. Defaults for waits, profile and crawl
// policy are read from settings on every call.
func NewScraper(engine *Engine, settings *SettingsService) *Scraper {
	if engine.client == nil {
		engine.client = fetch.NewClient(fetch.DefaultClientConfig())
	}
	return &Scraper{
		engine:   engine,
		settings: settings,
		log:      engine.log.WithComponent("scraper"),
	}
}

// session is one borrowed browser with a loaded page.
type session struct {
	inst     *browser.Instance
	page     browser.Page
	settings *Settings
	profile  browser.Profile
	target   string
	url      URLInfo
}

// pageSetup describes how open prepares the page.
type pageSetup struct {
	wait     time.Duration
	viewport *browser.PageOptions
}

// open borrows a browser for req, loads the page and calls fn. The browser
// is discarded when it stopped responding and released otherwise.
func (s *Scraper) open(ctx context.Context, req ScrapeRequest, setup func(*Settings) pageSetup, fn func(ctx context.Context, sess *session) error) error {
	target, err := normalizeURL(req.URL)
	if err != nil {
		return err
	}
	settings := s.settings.Get()
	profile := requestProfile(req, settings)
	ps := setup(settings)

	inst, err := s.engine.pool.Borrow(ctx, profile)
	if err != nil {
		return err
	}

	err = s.run(ctx, inst, target, settings, profile, ps, fn)
	if err != nil && cerrors.GetErrorType(err) != cerrors.Crash &&
		cerrors.GetErrorType(err) != cerrors.Cancelled && !s.engine.alive(inst) {
		err = cerrors.NewCrashError(target, err)
		s.engine.metrics.RecordCrash()
	}
	s.engine.giveBack(inst, err)
	return err
}

func (s *Scraper) run(ctx context.Context, inst *browser.Instance, target string, settings *Settings, profile browser.Profile, ps pageSetup, fn func(ctx context.Context, sess *session) error) error {
	var page browser.Page
	var err error
	if ps.viewport != nil {
		page, err = inst.NewPageWith(ctx, *ps.viewport)
	} else {
		page, err = inst.NewPage(ctx)
	}
	if err != nil {
		return cerrors.Categorize(err, target)
	}
	defer page.Close()

	final, err := s.engine.load(ctx, page, target, loadOptions{
		timeout:     settings.Crawl.pageLoadTimeout(),
		wait:        ps.wait,
		redirectMin: settings.Crawl.RedirectMinWait,
		redirectMax: settings.Crawl.RedirectMaxWait,
	})
	if err != nil {
		return err
	}

	return fn(ctx, &session{
		inst:     inst,
		page:     page,
		settings: settings,
		profile:  profile,
		target:   target,
		url: URLInfo{
			Original:      target,
			Final:         final,
			WasRedirected: final != target || strings.Contains(target, RedirectHost),
		},
	})
}

// Scrape loads a page in a browser and extracts its content. With crawling
// enabled the pages found from it are crawled on the same browser and
// appended to the content as a digest.
func (s *Scraper) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapedData, error) {
	began := time.Now()
	var data *ScrapedData

	err := s.open(ctx, req, func(st *Settings) pageSetup {
		return pageSetup{wait: scrapeWait(req, st)}
	}, func(ctx context.Context, sess *session) error {
		doc, text, err := extract(ctx, sess.page, sess.url.Final)
		if err != nil {
			return err
		}
		summary := doc.Summary()
		counts := summary.Counts
		data = &ScrapedData{
			Title:       summary.Title,
			Description: summary.Description,
			Content:     text,
			URL:         sess.url,
			Metadata: ScrapeMetadata{
				UserAgent:  sess.profile.UserAgent,
				IsDynamic:  true,
				Frameworks: doc.Frameworks(),
				Elements:   &counts,
			},
		}

		if req.Crawl == nil || !req.Crawl.Enabled {
			return nil
		}
		policy := crawlPolicy(req, sess.settings)
		result, err := s.engine.crawl(ctx, sess.inst, sess.target, policy, nil)
		if err != nil {
			return err
		}
		data.Content += crawlDigest(result.Pages)
		data.Metadata.Crawling = &CrawlingData{
			Enabled:      true,
			PagesCrawled: result.PagesCrawled,
			MaxDepth:     policy.MaxDepth,
			CrawledURLs:  result.URLs(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data.Metadata.ContentLength = len(data.Content)
	data.Metadata.HasTitle = data.Title != ""
	data.Metadata.HasDescription = data.Description != ""
	data.Metadata.ScrapeTimeSeconds = time.Since(began).Seconds()
	return data, nil
}

// crawlDigest renders crawled pages as the text appended to a scrape.
func crawlDigest(pages []PageRecord) string {
	if len(pages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n--- CRAWLED PAGES ---\n\n")
	for i, p := range pages {
		title := p.Title
		if title == "" {
			title = "No Title"
		}
		fmt.Fprintf(&b, "[Page %d] %s - %s\n", i+1, title, p.URL)
		content := []rune(p.Content)
		if len(content) > digestChars {
			content = content[:digestChars]
		}
		b.WriteString(string(content))
		b.WriteString("...\n\n")
	}
	return b.String()
}

// ScrapeStatic fetches url over plain HTTP and extracts the main article
// text. No browser is used.
func (s *Scraper) ScrapeStatic(ctx context.Context, rawURL, userAgent string) (*ScrapedData, error) {
	began := time.Now()
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = s.settings.Get().Browser.Profile.UserAgent
	}

	resp, err := s.engine.client.GetWithRetry(ctx, target, browser.ResolveUserAgent(userAgent))
	if err != nil {
		return nil, err
	}
	final := resp.FinalURL
	if final == "" {
		final = target
	}

	article, err := parser.ExtractArticle(resp.Body, final)
	if err != nil {
		return nil, err
	}
	counts := parser.ElementCounts{}
	var frameworks []string
	if p, perr := parser.NewHTMLParser(final); perr == nil {
		if doc, perr := p.Parse(string(resp.Body)); perr == nil {
			counts = doc.Counts()
			frameworks = doc.Frameworks()
		}
	}

	data := &ScrapedData{
		Title:       article.Title,
		Description: article.Description,
		Content:     article.Text,
		URL: URLInfo{
			Original:      target,
			Final:         final,
			WasRedirected: final != target,
		},
		Metadata: ScrapeMetadata{
			ContentLength:     len(article.Text),
			ScrapeTimeSeconds: time.Since(began).Seconds(),
			HasTitle:          article.Title != "",
			HasDescription:    article.Description != "",
			UserAgent:         userAgent,
			Frameworks:        frameworks,
			Elements:          &counts,
		},
	}
	s.log.Event(logger.DebugLevel).Str("url", target).Int("length", len(article.Text)).Msg("Static scrape finished")
	return data, nil
}

// Render returns the DOM after scripts ran. A wait_for_selector that never
// matches is logged and reported, not an error.
func (s *Scraper) Render(ctx context.Context, req ScrapeRequest) (*RenderResult, error) {
	began := time.Now()
	var result *RenderResult

	err := s.open(ctx, req, func(st *Settings) pageSetup {
		wait := st.Render.RenderWait
		if req.Render != nil && req.Render.WaitTime != nil {
			wait = seconds(*req.Render.WaitTime)
		}
		return pageSetup{wait: wait}
	}, func(ctx context.Context, sess *session) error {
		result = &RenderResult{URL: sess.url}
		if req.Render != nil && req.Render.WaitForSelector != "" {
			found := true
			if err := sess.page.WaitSelector(ctx, req.Render.WaitForSelector, sess.settings.Render.SelectorTimeout); err != nil {
				if ctx.Err() != nil {
					return cerrors.NewCancelledError(sess.target, "render")
				}
				found = false
				s.log.Event(logger.WarnLevel).
					Str("url", sess.target).
					Str("selector", req.Render.WaitForSelector).
					Msg("Selector did not appear")
			}
			result.SelectorFound = &found
		}

		html, err := sess.page.HTML(ctx)
		if err != nil {
			return cerrors.NewExtractionError(sess.target, "html", err)
		}
		result.HTML = html
		if p, err := parser.NewHTMLParser(sess.url.Final); err == nil {
			if doc, err := p.Parse(html); err == nil {
				result.Title = doc.Title()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.RenderTimeSeconds = time.Since(began).Seconds()
	return result, nil
}

// Screenshot captures the page as PNG or JPEG.
func (s *Scraper) Screenshot(ctx context.Context, req ScrapeRequest) (*ScreenshotResult, error) {
	opts, err := screenshotOptions(req.Screenshot)
	if err != nil {
		return nil, cerrors.NewPolicyError(req.URL, err.Error())
	}

	var result *ScreenshotResult
	err = s.open(ctx, req, func(st *Settings) pageSetup {
		return pageSetup{
			wait: scrapeWait(req, st),
			viewport: &browser.PageOptions{
				DisableImages:  false,
				ViewportWidth:  opts.Width,
				ViewportHeight: opts.Height,
			},
		}
	}, func(ctx context.Context, sess *session) error {
		img, err := sess.page.Screenshot(ctx, opts)
		if err != nil {
			return cerrors.NewExtractionError(sess.target, "screenshot", err)
		}
		result = &ScreenshotResult{
			Image:    img,
			Format:   opts.Format,
			Width:    opts.Width,
			Height:   opts.Height,
			FullPage: opts.FullPage,
			URL:      sess.url,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func screenshotOptions(o *ScreenshotOptions) (browser.ScreenshotOptions, error) {
	opts := browser.DefaultScreenshotOptions()
	if o == nil {
		return opts, nil
	}
	if o.FullPage != nil {
		opts.FullPage = *o.FullPage
	}
	if o.Width > 0 {
		opts.Width = o.Width
	}
	if o.Height > 0 {
		opts.Height = o.Height
	}
	switch strings.ToLower(o.Format) {
	case "", "png":
		opts.Format = browser.FormatPNG
	case "jpeg", "jpg":
		opts.Format = browser.FormatJPEG
	default:
		return opts, fmt.Errorf("unsupported screenshot format %q", o.Format)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return opts, fmt.Errorf("quality must be between 0 and 100")
	}
	opts.Quality = o.Quality
	return opts, nil
}

// Metadata returns the meta tags, Open Graph and Twitter card data of a page.
func (s *Scraper) Metadata(ctx context.Context, req ScrapeRequest) (*MetadataResult, error) {
	var result *MetadataResult
	err := s.withDocument(ctx, req, func(sess *session, doc *parser.Document) error {
		result = &MetadataResult{Metadata: *doc.Metadata(), URL: sess.url}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Links returns every followable anchor of a page.
func (s *Scraper) Links(ctx context.Context, req ScrapeRequest) (*LinksResult, error) {
	var result *LinksResult
	err := s.withDocument(ctx, req, func(sess *session, doc *parser.Document) error {
		links := doc.Links()
		result = &LinksResult{Links: links, Total: len(links), URL: sess.url}
		for _, l := range links {
			if l.IsInternal {
				result.InternalCount++
			} else {
				result.ExternalCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Select extracts the text or an attribute of the elements matching a CSS
// selector. No match is a not-found error.
func (s *Scraper) Select(ctx context.Context, req ScrapeRequest) (*SelectResult, error) {
	if req.Selector == nil || strings.TrimSpace(req.Selector.Selector) == "" {
		return nil, cerrors.NewPolicyError(req.URL, "selector_options.selector is required")
	}
	multiple := true
	if req.Selector.Multiple != nil {
		multiple = *req.Selector.Multiple
	}

	var result *SelectResult
	err := s.withDocument(ctx, req, func(sess *session, doc *parser.Document) error {
		values, err := doc.Select(req.Selector.Selector, req.Selector.Attribute, multiple)
		if err != nil {
			return err
		}
		result = &SelectResult{
			Selector:  req.Selector.Selector,
			Attribute: req.Selector.Attribute,
			Results:   values,
			Count:     len(values),
			URL:       sess.url,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Scraper) withDocument(ctx context.Context, req ScrapeRequest, fn func(sess *session, doc *parser.Document) error) error {
	return s.open(ctx, req, func(st *Settings) pageSetup {
		return pageSetup{wait: scrapeWait(req, st)}
	}, func(ctx context.Context, sess *session) error {
		html, err := sess.page.HTML(ctx)
		if err != nil {
			return cerrors.NewExtractionError(sess.target, "html", err)
		}
		p, err := parser.NewHTMLParser(sess.url.Final)
		if err != nil {
			return cerrors.NewExtractionError(sess.target, "parse", err)
		}
		doc, err := p.Parse(html)
		if err != nil {
			return err
		}
		return fn(sess, doc)
	})
}

// requestProfile applies the browser options of req to the default profile.
func requestProfile(req ScrapeRequest, settings *Settings) browser.Profile {
	p := settings.Browser.Profile
	if req.UserAgent != "" {
		p.UserAgent = req.UserAgent
	}
	b := req.Browser
	if b == nil {
		return p
	}
	if b.Headless != nil {
		p.Headless = *b.Headless
	}
	if b.DisableImages != nil {
		p.DisableImages = *b.DisableImages
	}
	if b.Proxy != nil && b.Proxy.Enabled && b.Proxy.Host != "" {
		p.Proxy = &browser.Proxy{
			Host:     b.Proxy.Host,
			Port:     b.Proxy.Port,
			Username: b.Proxy.Username,
			Password: b.Proxy.Password,
			Country:  b.Proxy.Country,
		}
	}
	return p
}

func scrapeWait(req ScrapeRequest, settings *Settings) time.Duration {
	if req.Browser != nil && req.Browser.WaitTime != nil && *req.Browser.WaitTime >= 0 {
		return seconds(*req.Browser.WaitTime)
	}
	return settings.Render.ScrapeWait
}

// crawlPolicy builds the policy of a scrape's crawl from the settings and
// the request's crawl options. max_pages caps both the job and each domain,
// and the crawl uses the scrape's dynamic wait.
func crawlPolicy(req ScrapeRequest, settings *Settings) CrawlPolicy {
	p := settings.Crawl.Clone()
	p.RestrictToDomains = nil
	p.DynamicContentWait = scrapeWait(req, settings)

	o := req.Crawl
	if o.MaxDepth != nil && *o.MaxDepth >= 0 {
		p.MaxDepth = *o.MaxDepth
	}
	if o.MaxPages != nil && *o.MaxPages > 0 {
		p.MaxPages = *o.MaxPages
		p.MaxPagesPerDomain = *o.MaxPages
	}
	if o.FollowExternalLinks != nil {
		p.FollowExternalLinks = *o.FollowExternalLinks
	}
	if o.RestrictToDomain != nil {
		p.RestrictToDomain = *o.RestrictToDomain
	}
	if o.IgnoreQueryStrings != nil {
		p.IgnoreQueryStrings = *o.IgnoreQueryStrings
	}
	return p
}

// RequestPolicy returns the crawl policy for a crawl task started with req:
// the current settings overridden by req's crawl options.
func (s *Scraper) RequestPolicy(req ScrapeRequest) CrawlPolicy {
	settings := s.settings.Get()
	if req.Crawl == nil {
		return settings.Crawl.Clone()
	}
	p := crawlPolicy(req, settings)
	p.RestrictToDomains = settings.Crawl.RestrictToDomains
	p.DynamicContentWait = settings.Crawl.DynamicContentWait
	if req.Browser != nil && req.Browser.WaitTime != nil && *req.Browser.WaitTime >= 0 {
		p.DynamicContentWait = seconds(*req.Browser.WaitTime)
	}
	return p
}

// RequestProfile returns the browser profile for req.
func (s *Scraper) RequestProfile(req ScrapeRequest) browser.Profile {
	return requestProfile(req, s.settings.Get())
}
