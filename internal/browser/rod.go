package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
)

// RodConfig configures Chrome processes started through rod.
type RodConfig struct {
	// Bin is the Chrome binary; empty lets rod find or download one.
	Bin               string        `json:"bin" yaml:"bin" mapstructure:"bin"`
	LaunchTimeout     time.Duration `json:"launch_timeout" yaml:"launch_timeout" mapstructure:"launch_timeout"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors" mapstructure:"ignore_https_errors"`
	NoSandbox         bool          `json:"no_sandbox" yaml:"no_sandbox" mapstructure:"no_sandbox"`
	AcceptLanguage    string        `json:"accept_language" yaml:"accept_language" mapstructure:"accept_language"`
}

// DefaultRodConfig returns launch settings suited to containers.
func DefaultRodConfig() RodConfig {
	return RodConfig{
		LaunchTimeout:     30 * time.Second,
		IgnoreHTTPSErrors: true,
		NoSandbox:         true,
		AcceptLanguage:    "en-US,en;q=0.9",
	}
}

// RodLauncher returns a Launcher that starts a local Chrome for each
// instance.
func RodLauncher(cfg RodConfig) Launcher {
	return func(ctx context.Context, profile Profile) (Handle, error) {
		if cfg.LaunchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.LaunchTimeout)
			defer cancel()
		}

		l := launcher.New().
			Context(ctx).
			Headless(profile.Headless).
			NoSandbox(cfg.NoSandbox).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("disable-extensions")

		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.IgnoreHTTPSErrors {
			l = l.Set("ignore-certificate-errors", "true")
		}
		if server := profile.Proxy.Server(); server != "" {
			l = l.Proxy(server)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, cerrors.NewLaunchError(fmt.Errorf("failed to launch browser: %w", err))
		}

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, cerrors.NewLaunchError(fmt.Errorf("failed to connect to browser: %w", err))
		}

		if profile.Proxy.HasAuth() {
			go func() {
				_ = b.HandleAuth(profile.Proxy.Username, profile.Proxy.Password)()
			}()
		}

		return &rodHandle{
			browser:        b,
			launcher:       l,
			acceptLanguage: cfg.AcceptLanguage,
		}, nil
	}
}

type rodHandle struct {
	browser        *rod.Browser
	launcher       *launcher.Launcher
	acceptLanguage string
}

func (h *rodHandle) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	page, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		})
	}

	if opts.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}).Call(page); err != nil {
			_ = page.Context(h.browser.GetContext()).Close()
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	headers := make(proto.NetworkHeaders)
	if h.acceptLanguage != "" {
		headers["Accept-Language"] = gson.New(h.acceptLanguage)
	}
	for k, v := range opts.Headers {
		headers[k] = gson.New(v)
	}
	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(page)
	}

	// Setup calls above run under ctx; the page itself outlives it and
	// takes a per-call context from its callers.
	page = page.Context(h.browser.GetContext())
	rp := &rodPage{page: page}

	if opts.DisableImages {
		router := page.HijackRequests()
		err := router.Add("*", proto.NetworkResourceTypeImage, func(hijack *rod.Hijack) {
			hijack.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err == nil {
			go router.Run()
			rp.router = router
		}
	}

	return rp, nil
}

func (h *rodHandle) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := h.browser.Context(ctx).Version()
	return err
}

func (h *rodHandle) Close() error {
	err := h.browser.Close()
	h.launcher.Kill()
	return err
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Text(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	return err
}

func (p *rodPage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	page := p.page.Context(ctx)
	if opts.Width > 0 && opts.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  opts.Width,
			Height: opts.Height,
		}); err != nil {
			return nil, err
		}
	}

	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if opts.Format == FormatJPEG {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		if opts.Quality > 0 {
			req.Quality = gson.Int(opts.Quality)
		}
	}
	return page.Screenshot(opts.FullPage, req)
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}
