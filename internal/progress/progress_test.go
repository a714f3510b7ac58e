package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplay_Lifecycle(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)

	// Updates before Start only record counts.
	d.Update(1, 2, 0)
	if buf.Len() != 0 {
		t.Errorf("output before Start: %q", buf.String())
	}

	d.Start("https://example.com/", 10)
	d.Update(3, 4, 1)
	d.Stop()
	d.Stop()

	pages, queue, failed := d.Stats()
	if pages != 3 || queue != 4 || failed != 1 {
		t.Errorf("Stats() = %d/%d/%d, want 3/4/1", pages, queue, failed)
	}

	d.PrintSummary()
	out := buf.String()
	for _, want := range []string{"Crawl complete", "https://example.com/", "Pages Crawled:  3", "Pages Failed:   1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDisplay_UnboundedBudget(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("https://example.com/", 0)
	d.Update(5, 0, 0)
	d.Stop()

	if pages, _, _ := d.Stats(); pages != 5 {
		t.Errorf("pages = %d, want 5", pages)
	}
}

func TestTruncateURL(t *testing.T) {
	tests := []struct {
		url    string
		maxLen int
		want   string
	}{
		{"https://example.com", 50, "https://example.com"},
		{"https://example.com/a/very/long/path", 20, "https://example.c..."},
	}
	for _, tt := range tests {
		if got := truncateURL(tt.url, tt.maxLen); got != tt.want {
			t.Errorf("truncateURL(%q, %d) = %q, want %q", tt.url, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
