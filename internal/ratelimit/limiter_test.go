package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)

	if l.defaultRate != 10.0 {
		t.Errorf("defaultRate = %v, want 10.0", l.defaultRate)
	}
	if l.defaultBurst != 5 {
		t.Errorf("defaultBurst = %d, want 5", l.defaultBurst)
	}
}

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)

	if l.defaultRate != rate.Inf {
		t.Errorf("defaultRate = %v, want Inf", l.defaultRate)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.WaitDomain(ctx, "example.com"); err != nil {
			t.Fatalf("WaitDomain() error = %v on request %d with unlimited rate", err, i)
		}
	}
}

func TestLimiter_WaitDomain_ContextCancelled(t *testing.T) {
	l := NewLimiter(0.1, 1)
	l.WaitDomain(context.Background(), "example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.WaitDomain(ctx, "example.com"); err == nil {
		t.Error("WaitDomain() should return error for cancelled context")
	}
}

func TestLimiter_WaitDomain(t *testing.T) {
	l := NewLimiter(1000, 10)

	if err := l.WaitDomain(context.Background(), "example.com"); err != nil {
		t.Fatalf("WaitDomain() error = %v", err)
	}
	if n := len(l.perDomain); n != 1 {
		t.Errorf("domains = %d, want 1", n)
	}
}

func TestLimiter_WaitDomain_WithDelay(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetDomainDelay(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	l.WaitDomain(ctx, "example.com")
	l.WaitDomain(ctx, "example.com")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second request after %v, want at least the domain delay", elapsed)
	}

	start = time.Now()
	l.WaitDomain(ctx, "other.com")
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("other domain waited %v", elapsed)
	}
}

func TestLimiter_WaitDomain_DelayCancelled(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetDomainDelay(time.Hour)
	l.WaitDomain(context.Background(), "example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.WaitDomain(ctx, "example.com"); err == nil {
		t.Error("WaitDomain() should fail when ctx ends during the delay")
	}
}

func TestLimiter_SetDomainRate(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetDomainRate("slow.com", 0.001, 1)
	bg := context.Background()

	if err := l.WaitDomain(bg, "slow.com"); err != nil {
		t.Fatalf("first request error = %v", err)
	}

	// same rate again keeps the spent token
	l.SetDomainRate("slow.com", 0.001, 1)

	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	if err := l.WaitDomain(ctx, "slow.com"); err == nil {
		t.Error("second request should be limited")
	}
	if err := l.WaitDomain(ctx, "fast.com"); err != nil {
		t.Errorf("unknown domain should not wait: %v", err)
	}

	l.SetDomainRate("slow.com", 1000, 1)
	if err := l.WaitDomain(bg, "slow.com"); err != nil {
		t.Errorf("changed rate should replace the limiter: %v", err)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(10000, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			domain := "example.com"
			if i%2 == 0 {
				domain = "other.com"
			}
			l.WaitDomain(ctx, domain)
		}(i)
	}
	wg.Wait()

	if n := len(l.perDomain); n != 2 {
		t.Errorf("domains = %d, want 2", n)
	}
}

// =============================================================================
// ClientLimiter Tests
// =============================================================================

func TestClientLimiter_Quotas(t *testing.T) {
	c := NewClientLimiter(0, 0)
	if c.Quota(false) != 30 || c.Quota(true) != 120 {
		t.Fatalf("Quota() = %d/%d, want 30/120", c.Quota(false), c.Quota(true))
	}

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	for i := 0; i < 30; i++ {
		if !c.Allow("10.0.0.1", false) {
			t.Fatalf("request %d denied within standard quota", i+1)
		}
	}
	if c.Allow("10.0.0.1", false) {
		t.Error("31st request should be denied")
	}

	for i := 0; i < 120; i++ {
		if !c.Allow("10.0.0.1", true) {
			t.Fatalf("premium request %d denied", i+1)
		}
	}
	if c.Allow("10.0.0.1", true) {
		t.Error("121st premium request should be denied")
	}

	if !c.Allow("10.0.0.2", false) {
		t.Error("quota must be per client")
	}
}

func TestClientLimiter_Refill(t *testing.T) {
	c := NewClientLimiter(2, 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Allow("a", false)
	c.Allow("a", false)
	if c.Allow("a", false) {
		t.Fatal("quota should be exhausted")
	}

	now = now.Add(30 * time.Second)
	if !c.Allow("a", false) {
		t.Error("one token should refill after half a minute")
	}
}

func TestClientLimiter_Cleanup(t *testing.T) {
	c := NewClientLimiter(10, 20)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Allow("old", false)
	now = now.Add(time.Hour)
	c.Allow("new", false)

	if removed := c.Cleanup(10 * time.Minute); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if c.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", c.Clients())
	}
}

// =============================================================================
// RobotsManager Tests
// =============================================================================

func TestRobotsManager_Allowed(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 2\nSitemap: https://example.com/sitemap.xml\n"))
	}))
	defer srv.Close()

	m := NewRobotsManager(srv.Client(), "ScrapeIt", time.Hour)
	ctx := context.Background()

	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/public/page", true},
		{"/private", false},
		{"/private/data?x=1", false},
	}
	for _, tt := range tests {
		if got := m.Allowed(ctx, srv.URL+tt.path); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}
	if d := m.CrawlDelay(srv.URL + "/"); d != 2*time.Second {
		t.Errorf("CrawlDelay() = %v, want 2s", d)
	}
	if d := m.CrawlDelay("http://unknown.example/"); d != 0 {
		t.Errorf("CrawlDelay() for an unfetched host = %v, want 0", d)
	}
}

func TestRobotsManager_MissingRobotsAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := NewRobotsManager(srv.Client(), "ScrapeIt", 0)
	if !m.Allowed(context.Background(), srv.URL+"/anything") {
		t.Error("missing robots.txt should allow everything")
	}
}

func TestRobotsManager_UnreachableAllows(t *testing.T) {
	m := NewRobotsManager(&http.Client{Timeout: 100 * time.Millisecond}, "ScrapeIt", 0)
	if !m.Allowed(context.Background(), "http://127.0.0.1:1/page") {
		t.Error("unreachable host should fail open")
	}
	if m.Allowed(context.Background(), "/relative") {
		t.Error("relative URL should not be allowed")
	}
}
