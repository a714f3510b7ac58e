package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// =============================================================================
// Test Event Source
// =============================================================================

type fakeSource struct {
	events chan crawler.Event
	unsub  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan crawler.Event, 16),
		unsub:  make(chan struct{}, 1),
	}
}

func (f *fakeSource) Subscribe(taskID string) (<-chan crawler.Event, func(), error) {
	if taskID != "task-1" {
		return nil, nil, cerrors.NewNotFoundError("", "task "+taskID)
	}
	return f.events, func() { f.unsub <- struct{}{} }, nil
}

func newStreamServer(t *testing.T, src EventSource, cfg Config) *httptest.Server {
	t.Helper()
	s := NewStreamer(src, cfg, logger.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Serve(w, r, r.URL.Query().Get("task_id")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// Streamer Tests
// =============================================================================

func TestNewStreamer_Defaults(t *testing.T) {
	s := NewStreamer(newFakeSource(), Config{PingInterval: time.Second}, nil)

	if s.cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", s.cfg.WriteTimeout)
	}
	if s.cfg.PongTimeout != 2*time.Second {
		t.Errorf("PongTimeout = %v, want twice the ping interval", s.cfg.PongTimeout)
	}
}

func TestStreamer_ForwardsEventsUntilClosed(t *testing.T) {
	src := newFakeSource()
	srv := newStreamServer(t, src, DefaultConfig())

	src.events <- crawler.Event{Type: crawler.EventPage, URL: "https://example.com/", PagesCrawled: 1}
	src.events <- crawler.Event{Type: crawler.EventDone, PagesCrawled: 1}
	close(src.events)

	streamURL, err := StreamURL(srv.URL, "task-1", "")
	if err != nil {
		t.Fatalf("StreamURL() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []crawler.Event
	if err := NewClient().Follow(ctx, streamURL, func(ev crawler.Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Type != crawler.EventPage || got[0].URL != "https://example.com/" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != crawler.EventDone {
		t.Errorf("last event = %+v, want done", got[1])
	}

	select {
	case <-src.unsub:
	case <-time.After(time.Second):
		t.Error("subscription was not released")
	}
}

func TestStreamer_UnknownTask(t *testing.T) {
	srv := newStreamServer(t, newFakeSource(), DefaultConfig())

	streamURL, _ := StreamURL(srv.URL, "missing", "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := NewClient().Follow(ctx, streamURL, func(crawler.Event) {})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Follow() error = %v, want a 404 refusal", err)
	}
}

func TestClient_FollowCancelled(t *testing.T) {
	src := newFakeSource()
	srv := newStreamServer(t, src, DefaultConfig())

	streamURL, _ := StreamURL(srv.URL, "task-1", "")
	ctx, cancel := context.WithCancel(context.Background())

	first := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- NewClient().Follow(ctx, streamURL, func(crawler.Event) { close(first) })
	}()

	src.events <- crawler.Event{Type: crawler.EventPage}
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Follow() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow() did not return after cancel")
	}
}

// =============================================================================
// URL Tests
// =============================================================================

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"http://localhost:5000", "", "ws://localhost:5000/api/crawl/ws?task_id=abc"},
		{"https://scraper.example.com/", "secret", "wss://scraper.example.com/api/crawl/ws?task_id=abc&token=secret"},
		{"ws://localhost:5000", "", "ws://localhost:5000/api/crawl/ws?task_id=abc"},
	}

	for _, tt := range tests {
		got, err := StreamURL(tt.base, "abc", tt.token)
		if err != nil {
			t.Errorf("StreamURL(%q) error = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("StreamURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestClient_SetHeaders(t *testing.T) {
	c := NewClient()
	c.SetHeaders(map[string]string{"X-API-Key": "k"})

	if c.headers.Get("X-API-Key") != "k" {
		t.Error("X-API-Key header not set")
	}
}
