// Package progress renders crawl progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Display shows a progress bar of pages crawled against the page budget.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *progressbar.ProgressBar
	started bool
	stopped bool

	pages  atomic.Int64
	queue  atomic.Int64
	failed atomic.Int64

	startTime time.Time
	target    string
}

// New creates a display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a display writing to w.
func NewWithWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start shows the bar for a crawl of target bounded by maxPages.
func (d *Display) Start(target string, maxPages int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.startTime = time.Now()
	d.target = target

	if maxPages < 1 {
		maxPages = -1
	}
	d.bar = progressbar.NewOptions(maxPages,
		progressbar.OptionSetWriter(d.out),
		progressbar.OptionSetDescription(truncateURL(target, 40)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Update records the current counts and redraws the bar.
func (d *Display) Update(pagesCrawled, queueSize, failed int) {
	d.pages.Store(int64(pagesCrawled))
	d.queue.Store(int64(queueSize))
	d.failed.Store(int64(failed))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}
	d.bar.Describe(fmt.Sprintf("%s | queue %d | failed %d", truncateURL(d.target, 40), queueSize, failed))
	d.bar.Set(pagesCrawled)
}

// Stop completes the bar.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true
	d.bar.Finish()
	fmt.Fprintln(d.out)
}

// PrintSummary prints the final counts.
func (d *Display) PrintSummary() {
	duration := time.Since(d.startTime)
	pages := d.pages.Load()

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "Crawl complete")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Target:         %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(d.out, "  Duration:       %s\n", formatDuration(duration))
	fmt.Fprintf(d.out, "  Pages Crawled:  %d\n", pages)
	fmt.Fprintf(d.out, "  Pages Failed:   %d\n", d.failed.Load())
	if duration.Seconds() > 0 {
		fmt.Fprintf(d.out, "  Average Speed:  %.1f pages/sec\n", float64(pages)/duration.Seconds())
	}
	fmt.Fprintln(d.out)
}

// Stats returns the last reported counts.
func (d *Display) Stats() (pagesCrawled, queueSize, failed int64) {
	return d.pages.Load(), d.queue.Load(), d.failed.Load()
}

func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
