package browser

import (
	"context"
	"time"
)

// Launcher starts a browser process for profile. The pool calls it outside
// its lock; it must honour ctx.
type Launcher func(ctx context.Context, profile Profile) (Handle, error)

// Handle is a running browser.
type Handle interface {
	// NewPage opens a blank tab configured with opts.
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	// Ping returns an error when the browser no longer responds.
	Ping(ctx context.Context) error
	// Close terminates the browser process.
	Close() error
}

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// URL returns the current location, after redirects.
	URL(ctx context.Context) (string, error)
	// HTML returns the serialized DOM.
	HTML(ctx context.Context) (string, error)
	// Text returns the rendered text of the body.
	Text(ctx context.Context) (string, error)
	// WaitSelector waits until selector matches an element.
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Close() error
}

// PageOptions configures a new page.
type PageOptions struct {
	UserAgent      string
	DisableImages  bool
	ViewportWidth  int
	ViewportHeight int
	Headers        map[string]string
}

// ScreenshotFormat is the image encoding of a screenshot.
type ScreenshotFormat string

const (
	FormatPNG  ScreenshotFormat = "png"
	FormatJPEG ScreenshotFormat = "jpeg"
)

// ScreenshotOptions configures Page.Screenshot.
type ScreenshotOptions struct {
	FullPage bool             `json:"full_page"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Format   ScreenshotFormat `json:"format"`
	Quality  int              `json:"quality,omitempty"` // jpeg only, 0 = browser default
}

// DefaultScreenshotOptions returns a full-page 1280x800 PNG.
func DefaultScreenshotOptions() ScreenshotOptions {
	return ScreenshotOptions{
		FullPage: true,
		Width:    1280,
		Height:   800,
		Format:   FormatPNG,
	}
}
