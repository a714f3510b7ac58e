package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/browser/browsertest"
	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
)

type testEnv struct {
	site    *browsertest.Site
	pool    *browser.Pool
	engine  *Engine
	metrics *metrics.Collector

	mu     sync.Mutex
	sleeps []time.Duration
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()
	env := &testEnv{site: browsertest.NewSite(), metrics: metrics.New()}
	env.pool = browser.NewPool(
		browser.Config{Capacity: capacity, IdleTimeout: time.Minute},
		env.site.Launcher(),
		browser.WithLogger(logger.Nop()),
		browser.WithMetrics(env.metrics),
	)
	t.Cleanup(func() { env.pool.Shutdown() })

	e, err := NewEngine(env.pool, WithLogger(logger.Nop()), WithMetrics(env.metrics), WithSeed(1))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		env.mu.Lock()
		env.sleeps = append(env.sleeps, d)
		env.mu.Unlock()
		return ctx.Err()
	}
	env.engine = e
	return env
}

func (env *testEnv) Sleeps() []time.Duration {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]time.Duration(nil), env.sleeps...)
}

func testPolicy() CrawlPolicy {
	p := DefaultPolicy()
	p.DynamicContentWait = 0
	p.PageLoadTimeout = 5 * time.Second
	return p
}

func pageURLs(r *CrawlResult) []string {
	if r == nil {
		return nil
	}
	return r.URLs()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func countVisits(visits []string, url string) int {
	n := 0
	for _, v := range visits {
		if v == url {
			n++
		}
	}
	return n
}

// =============================================================================
// Traversal Tests
// =============================================================================

func TestEngine_ExampleSite(t *testing.T) {
	env := newTestEnv(t, 2)
	env.site.AddHTML("https://example.com/", "Home",
		"/a", "/b", "https://other.com/x", "#top", "javascript:void(0)", "mailto:me@example.com")
	env.site.AddHTML("https://example.com/a", "A", "/", "/c")
	env.site.AddHTML("https://example.com/b", "B")
	env.site.AddHTML("https://example.com/c", "C")
	env.site.AddHTML("https://other.com/x", "Other")

	policy := testPolicy()
	policy.MaxDepth = 1
	policy.MaxPages = 10

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Fatalf("pages = %v, want %v", got, want)
	}
	if result.PagesCrawled != 3 {
		t.Errorf("PagesCrawled = %d, want 3", result.PagesCrawled)
	}
	if result.MaxDepthReached != 1 {
		t.Errorf("MaxDepthReached = %d, want 1", result.MaxDepthReached)
	}
	if countVisits(env.site.Visits(), "https://other.com/x") != 0 {
		t.Error("external link was visited")
	}
	if countVisits(env.site.Visits(), "https://example.com/c") != 0 {
		t.Error("depth 2 link was visited")
	}

	home := result.Pages[0]
	if home.Title != "Home" || home.Description != "About Home" {
		t.Errorf("home record = %+v", home)
	}
	if home.Content != "Home body" {
		t.Errorf("Content = %q, want %q", home.Content, "Home body")
	}
	if home.Depth != 0 || home.Domain != "example.com" {
		t.Errorf("Depth/Domain = %d/%s", home.Depth, home.Domain)
	}
	if home.Elements.Links != 6 {
		t.Errorf("Elements.Links = %d, want 6", home.Elements.Links)
	}
	if result.Domains["example.com"] != 3 {
		t.Errorf("Domains = %v", result.Domains)
	}
}

func TestEngine_DepthBound(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "0", "/1")
	env.site.AddHTML("https://example.com/1", "1", "/2")
	env.site.AddHTML("https://example.com/2", "2", "/3")
	env.site.AddHTML("https://example.com/3", "3")

	tests := []struct {
		maxDepth  int
		wantPages int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
		{5, 4},
	}

	for _, tt := range tests {
		policy := testPolicy()
		policy.MaxDepth = tt.maxDepth
		result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
		if err != nil {
			t.Fatalf("MaxDepth %d: error = %v", tt.maxDepth, err)
		}
		if len(result.Pages) != tt.wantPages {
			t.Errorf("MaxDepth %d: pages = %d, want %d", tt.maxDepth, len(result.Pages), tt.wantPages)
		}
		for _, p := range result.Pages {
			if p.Depth > tt.maxDepth {
				t.Errorf("MaxDepth %d: page %s at depth %d", tt.maxDepth, p.URL, p.Depth)
			}
		}
	}
}

func TestEngine_PageBound(t *testing.T) {
	env := newTestEnv(t, 1)
	links := []string{"/1", "/2", "/3", "/4", "/5", "/6"}
	env.site.AddHTML("https://example.com/", "root", links...)
	for _, l := range links {
		env.site.AddHTML("https://example.com"+l, l)
	}

	policy := testPolicy()
	policy.MaxPages = 3
	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 3 {
		t.Errorf("pages = %d, want 3", len(result.Pages))
	}
	if got := len(env.site.Visits()); got != 3 {
		t.Errorf("navigations = %d, want 3", got)
	}
}

func TestEngine_Deduplication(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/a?x=1", "/a?x=2", "/a#frag", "/b")
	env.site.AddHTML("https://example.com/a?x=1", "a", "/", "/b")
	env.site.AddHTML("https://example.com/b", "b", "/a?x=1", "/")

	policy := testPolicy()
	policy.MaxDepth = 3
	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/a?x=1", "https://example.com/b"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Fatalf("pages = %v, want %v", got, want)
	}
	visits := env.site.Visits()
	for _, u := range want {
		if n := countVisits(visits, u); n != 1 {
			t.Errorf("%s visited %d times", u, n)
		}
	}
}

func TestEngine_QueryStringsKept(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/a?x=1", "/a?x=2")
	env.site.AddHTML("https://example.com/a?x=1", "a1")
	env.site.AddHTML("https://example.com/a?x=2", "a2")

	policy := testPolicy()
	policy.IgnoreQueryStrings = false
	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 3 {
		t.Errorf("pages = %v, want 3 distinct", pageURLs(result))
	}
}

func TestEngine_DomainRestriction(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://docs.example.com/", "docs",
		"https://api.docs.example.com/ref",
		"https://example.com/pricing",
		"https://evil-docs.example.com.attacker.io/",
		"https://docs.example.com:8443/admin")
	env.site.AddHTML("https://api.docs.example.com/ref", "ref")
	env.site.AddHTML("https://example.com/pricing", "pricing")

	policy := testPolicy()
	policy.RestrictToDomain = false
	policy.RestrictToDomains = []string{"docs.example.com"}
	policy.FollowExternalLinks = true

	result, err := env.engine.RunCrawl(context.Background(), "https://docs.example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	want := []string{"https://docs.example.com/", "https://api.docs.example.com/ref"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
}

func TestEngine_ExternalLinksNotFollowedByDefault(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "https://blog.example.com/", "https://other.com/")
	env.site.AddHTML("https://blog.example.com/", "blog")
	env.site.AddHTML("https://other.com/", "other")

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 1 {
		t.Errorf("pages = %v, want only the start page", pageURLs(result))
	}
}

func TestEngine_RedirectOffSiteKeepsRequestedDomain(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/go")
	env.site.Add("https://example.com/go", browsertest.Page{
		HTML:     `<html><head><title>Landing</title></head><body><a href="/p1">p1</a></body></html>`,
		Text:     "Landing body",
		FinalURL: "https://other.com/landing",
	})
	env.site.AddHTML("https://other.com/p1", "P1")

	policy := testPolicy()
	policy.RestrictToDomain = false
	policy.FollowExternalLinks = false
	policy.MaxDepth = 3

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	want := []string{"https://example.com/", "https://example.com/go"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if n := countVisits(env.site.Visits(), "https://other.com/p1"); n != 0 {
		t.Errorf("external page reached through a redirect was visited %d times", n)
	}
}

func TestEngine_ApexToWWWRedirectStaysOnStartDomain(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.Add("https://example.com/", browsertest.Page{
		HTML:     `<html><head><title>Home</title></head><body><a href="/a">a</a></body></html>`,
		Text:     "Home body",
		FinalURL: "https://www.example.com/",
	})
	env.site.AddHTML("https://www.example.com/a", "A")

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("pages = %v, want only the start page", pageURLs(result))
	}
	for _, p := range result.Pages {
		if p.Domain != "example.com" {
			t.Errorf("page %s domain = %q, want example.com", p.URL, p.Domain)
		}
	}
}

func TestEngine_ExcludedURL(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/docs", "/logout", "/files/report.pdf")
	env.site.AddHTML("https://example.com/docs", "docs")
	env.site.AddHTML("https://example.com/logout", "logout")
	env.site.AddHTML("https://example.com/files/report.pdf", "pdf")

	policy := testPolicy()
	policy.ExcludeURLPatterns = []string{"/logout", `\.pdf$`}

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	want := []string{"https://example.com/", "https://example.com/docs"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	visits := env.site.Visits()
	if countVisits(visits, "https://example.com/logout") != 0 || countVisits(visits, "https://example.com/files/report.pdf") != 0 {
		t.Errorf("excluded URL was navigated: %v", visits)
	}
}

func TestEngine_DomainCap(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/1", "/2", "/3")
	env.site.AddHTML("https://example.com/1", "1")
	env.site.AddHTML("https://example.com/2", "2")
	env.site.AddHTML("https://example.com/3", "3")

	policy := testPolicy()
	policy.MaxPagesPerDomain = 2

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 2 {
		t.Errorf("pages = %v, want 2", pageURLs(result))
	}
	if result.PagesSkipped != 2 {
		t.Errorf("PagesSkipped = %d, want 2", result.PagesSkipped)
	}
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestEngine_TimedOutPageIsSkipped(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/slow", "/fast")
	env.site.Add("https://example.com/slow", browsertest.Page{HTML: "<title>slow</title>", Delay: 2 * time.Second})
	env.site.AddHTML("https://example.com/fast", "fast")

	policy := testPolicy()
	policy.PageLoadTimeout = 50 * time.Millisecond

	var mu sync.Mutex
	var errorEvents []Event
	result, err := env.engine.Run(context.Background(), Job{
		StartURL: "https://example.com/",
		Policy:   policy,
		Profile:  browser.DefaultProfile(),
		Observer: func(ev Event) {
			if ev.Type == EventError {
				mu.Lock()
				errorEvents = append(errorEvents, ev)
				mu.Unlock()
			}
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/fast"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if result.PagesFailed != 1 {
		t.Errorf("PagesFailed = %d, want 1", result.PagesFailed)
	}
	if n := countVisits(env.site.Visits(), "https://example.com/slow"); n != 1 {
		t.Errorf("slow page navigated %d times, want 1 (no retry)", n)
	}
	if len(errorEvents) != 1 || errorEvents[0].URL != "https://example.com/slow" {
		t.Errorf("error events = %+v", errorEvents)
	}
	snap := env.metrics.Snapshot()
	if snap.PagesFailed != 1 || snap.ErrorCounts["timeout"] != 1 {
		t.Errorf("metrics failed = %d, errors = %v", snap.PagesFailed, snap.ErrorCounts)
	}
}

func TestEngine_NavigationErrorIsSkipped(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/missing", "/ok")
	env.site.AddHTML("https://example.com/ok", "ok")

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if len(result.Pages) != 2 || result.PagesFailed != 1 {
		t.Errorf("pages = %v, failed = %d", pageURLs(result), result.PagesFailed)
	}
}

func TestEngine_CrashReturnsPartialResult(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/a", "/crash", "/b")
	env.site.AddHTML("https://example.com/a", "a")
	env.site.Add("https://example.com/crash", browsertest.Page{Crash: true})
	env.site.AddHTML("https://example.com/b", "b")

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
	if cerrors.GetErrorType(err) != cerrors.Crash {
		t.Fatalf("error = %v, want crash", err)
	}
	want := []string{"https://example.com/", "https://example.com/a"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("partial pages = %v, want %v", got, want)
	}
	if env.site.Live() != 0 {
		t.Errorf("live browsers = %d, crashed browser should be closed", env.site.Live())
	}
	if stats := env.pool.Stats(); stats.Size != 0 {
		t.Errorf("pool size = %d, crashed browser should be discarded", stats.Size)
	}
	if snap := env.metrics.Snapshot(); snap.Crashes != 1 || snap.JobsFailed != 1 {
		t.Errorf("crashes = %d, jobs failed = %d", snap.Crashes, snap.JobsFailed)
	}
}

func TestEngine_LaunchFailure(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.SetLaunchError(errors.New("chrome not found"))

	result, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
	if cerrors.GetErrorType(err) != cerrors.Launch {
		t.Fatalf("error = %v, want launch error", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/1", "/2", "/3")
	env.site.AddHTML("https://example.com/1", "1")
	env.site.AddHTML("https://example.com/2", "2")
	env.site.AddHTML("https://example.com/3", "3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := env.engine.Run(ctx, Job{
		StartURL: "https://example.com/",
		Policy:   testPolicy(),
		Profile:  browser.DefaultProfile(),
		Observer: func(ev Event) {
			if ev.Type == EventPage {
				cancel()
			}
		},
	})
	if cerrors.GetErrorType(err) != cerrors.Cancelled {
		t.Fatalf("error = %v, want cancelled", err)
	}
	if len(result.Pages) != 1 {
		t.Errorf("pages = %v, want the start page only", pageURLs(result))
	}
	if stats := env.pool.Stats(); stats.Size != 1 || stats.InUse != 0 {
		t.Errorf("pool stats = %+v, browser should be released", stats)
	}
}

func TestEngine_InvalidInput(t *testing.T) {
	env := newTestEnv(t, 1)

	bad := testPolicy()
	bad.MaxPages = 0

	tests := []struct {
		name   string
		url    string
		policy CrawlPolicy
	}{
		{"empty url", "", testPolicy()},
		{"no host", "http://", testPolicy()},
		{"zero max pages", "https://example.com/", bad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.RunCrawl(context.Background(), tt.url, tt.policy, browser.DefaultProfile())
			if cerrors.GetErrorType(err) != cerrors.Policy {
				t.Errorf("error = %v, want policy error", err)
			}
		})
	}
	if env.site.Launches() != 0 {
		t.Error("a browser was launched for invalid input")
	}
}

// =============================================================================
// Redirect and Wait Tests
// =============================================================================

func TestEngine_RedirectWait(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.Add("https://chat.openai.com/share/abc", browsertest.Page{FinalURL: "https://chat.openai.com/c/abc"})
	env.site.AddHTML("https://chat.openai.com/c/abc", "Conversation")

	policy := testPolicy()
	policy.MaxDepth = 0
	policy.DynamicContentWait = time.Second

	result, err := env.engine.RunCrawl(context.Background(), "https://chat.openai.com/share/abc", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	if result.Pages[0].Title != "Conversation" {
		t.Errorf("Title = %q, want the redirected page", result.Pages[0].Title)
	}

	visits := env.site.Visits()
	want := []string{"https://chat.openai.com/share/abc", "https://chat.openai.com/c/abc"}
	if !equalStrings(visits, want) {
		t.Errorf("visits = %v, want %v", visits, want)
	}

	sleeps := env.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want redirect wait then dynamic wait", sleeps)
	}
	if sleeps[0] < 5*time.Second || sleeps[0] > 8*time.Second {
		t.Errorf("redirect wait = %v, want within [5s, 8s]", sleeps[0])
	}
	if sleeps[1] != time.Second {
		t.Errorf("dynamic wait = %v, want 1s", sleeps[1])
	}
}

func TestEngine_RobotsCrawlDelayPacesDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 0.2\n"))
	}))
	defer srv.Close()

	env := newTestEnv(t, 1)
	env.engine.robots = ratelimit.NewRobotsManager(srv.Client(), "ScrapeIt", time.Hour)
	env.engine.limiter = ratelimit.NewLimiter(0, 1)
	env.site.AddHTML(srv.URL+"/", "root", "/a", "/b", "/private")
	env.site.AddHTML(srv.URL+"/a", "A")
	env.site.AddHTML(srv.URL+"/b", "B")
	env.site.AddHTML(srv.URL+"/private", "Private")

	policy := testPolicy()
	policy.RespectRobots = true

	start := time.Now()
	result, err := env.engine.RunCrawl(context.Background(), srv.URL+"/", policy, browser.DefaultProfile())
	if err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	want := []string{srv.URL + "/", srv.URL + "/a", srv.URL + "/b"}
	if got := pageURLs(result); !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if elapsed := time.Since(start); elapsed < 350*time.Millisecond {
		t.Errorf("three pages took %v, want the 200ms crawl delay between them", elapsed)
	}
}

func TestEngine_DynamicWaitPerPage(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/a")
	env.site.AddHTML("https://example.com/a", "a")

	policy := testPolicy()
	policy.DynamicContentWait = 1500 * time.Millisecond

	if _, err := env.engine.RunCrawl(context.Background(), "https://example.com/", policy, browser.DefaultProfile()); err != nil {
		t.Fatalf("RunCrawl() error = %v", err)
	}
	sleeps := env.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 1500*time.Millisecond {
		t.Errorf("sleeps = %v, want one 1.5s wait per page", sleeps)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepCtx() did not return on cancellation")
	}
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Errorf("sleepCtx(0) error = %v", err)
	}
}

// =============================================================================
// Pool Interaction Tests
// =============================================================================

func TestEngine_ReleasesAndReusesBrowser(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile()); err != nil {
			t.Fatalf("run %d: error = %v", i, err)
		}
	}
	if env.site.Launches() != 1 {
		t.Errorf("launches = %d, want 1", env.site.Launches())
	}
	if stats := env.pool.Stats(); stats.InUse != 0 {
		t.Errorf("InUse = %d, want 0", stats.InUse)
	}
}

func TestEngine_ConcurrentJobsOverflowPool(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.Add("https://example.com/", browsertest.Page{HTML: "<title>root</title>", Delay: 100 * time.Millisecond})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.RunCrawl(context.Background(), "https://example.com/", testPolicy(), browser.DefaultProfile())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("job %d: error = %v", i, err)
		}
	}
	if stats := env.pool.Stats(); stats.Size != 1 || stats.Temporary != 0 {
		t.Errorf("pool stats = %+v, want 1 pooled and no temporary left", stats)
	}
	if env.site.Live() != 1 {
		t.Errorf("live browsers = %d, temporary browser should be closed", env.site.Live())
	}
}

func TestEngine_ObserverEvents(t *testing.T) {
	env := newTestEnv(t, 1)
	env.site.AddHTML("https://example.com/", "root", "/a")
	env.site.AddHTML("https://example.com/a", "a")

	var events []Event
	_, err := env.engine.Run(context.Background(), Job{
		StartURL: "https://example.com/",
		Policy:   testPolicy(),
		Profile:  browser.DefaultProfile(),
		Observer: func(ev Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	pages := 0
	for _, ev := range events {
		if ev.Type == EventPage {
			pages++
		}
	}
	if pages != 2 {
		t.Errorf("page events = %d, want 2", pages)
	}
	last := events[len(events)-1]
	if last.Type != EventDone || last.PagesCrawled != 2 {
		t.Errorf("last event = %+v, want done with 2 pages", last)
	}
}
