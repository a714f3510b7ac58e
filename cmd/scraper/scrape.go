package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScrapeIt/internal/output"
	"github.com/PentesterFlow/ScrapeIt/internal/shutdown"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// Scrape modes.
const (
	modeScrape     = "scrape"
	modeStatic     = "static"
	modeRender     = "render"
	modeMetadata   = "metadata"
	modeLinks      = "links"
	modeSelect     = "select"
	modeScreenshot = "screenshot"
)

var scrapeModes = []string{modeScrape, modeStatic, modeRender, modeMetadata, modeLinks, modeSelect, modeScreenshot}

type scrapeFlags struct {
	mode       string
	userAgent  string
	wait       float64
	selector   string
	attribute  string
	multiple   bool
	fullPage   bool
	format     string
	imageFile  string
	outputFile string
	pretty     bool
}

func newScrapeCmd() *cobra.Command {
	return newScrapeCommand(&scrapeFlags{})
}

func newScrapeCommand(f *scrapeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Scrape a single page",
		Long: `Scrape a single page and print the result as JSON.

Modes: ` + strings.Join(scrapeModes, ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, f, args[0])
		},
	}

	cmd.Flags().StringVar(&f.mode, "mode", modeScrape, "What to extract ("+strings.Join(scrapeModes, ", ")+")")
	cmd.Flags().StringVarP(&f.userAgent, "user-agent", "u", "", "User agent key or string")
	cmd.Flags().Float64Var(&f.wait, "wait", 0, "Seconds to wait for dynamic content")
	cmd.Flags().StringVar(&f.selector, "selector", "", "CSS selector (select mode, or wait-for selector in render mode)")
	cmd.Flags().StringVar(&f.attribute, "attribute", "", "Attribute to read instead of text (select mode)")
	cmd.Flags().BoolVar(&f.multiple, "multiple", true, "Return every match (select mode)")
	cmd.Flags().BoolVar(&f.fullPage, "full-page", false, "Capture the whole page (screenshot mode)")
	cmd.Flags().StringVar(&f.format, "image-format", "png", "Screenshot format (png, jpeg)")
	cmd.Flags().StringVar(&f.imageFile, "image-file", "", "Write the screenshot image to this file")
	cmd.Flags().StringVarP(&f.outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&f.pretty, "pretty", true, "Indent JSON output")

	return cmd
}

// request builds the scrape request from the flags set on the command line.
func (f *scrapeFlags) request(cmd *cobra.Command, target string) crawler.ScrapeRequest {
	flags := cmd.Flags()
	req := crawler.ScrapeRequest{URL: target, UserAgent: f.userAgent}

	switch f.mode {
	case modeRender:
		req.Render = &crawler.RenderOptions{WaitForSelector: f.selector}
		if flags.Changed("wait") {
			req.Render.WaitTime = &f.wait
		}
	case modeSelect:
		req.Selector = &crawler.SelectorOptions{
			Selector:  f.selector,
			Attribute: f.attribute,
			Multiple:  &f.multiple,
		}
	case modeScreenshot:
		req.Screenshot = &crawler.ScreenshotOptions{
			FullPage: &f.fullPage,
			Format:   f.format,
		}
	}

	if flags.Changed("wait") && f.mode != modeRender {
		req.Browser = &crawler.BrowserOptions{WaitTime: &f.wait}
	}
	return req
}

func runScrape(cmd *cobra.Command, f *scrapeFlags, target string) error {
	if f.mode == modeSelect && f.selector == "" {
		return fmt.Errorf("--selector is required in select mode")
	}

	a, err := newApp(appOptions{Quiet: true})
	if err != nil {
		return err
	}

	h := shutdown.New(shutdown.Config{Timeout: a.settings.Server.ShutdownTimeout, Logger: a.log})
	h.RegisterFunc("browsers", a.Close)
	go h.Wait(context.Background())
	defer h.Shutdown()

	result, err := scrape(h.Context(), a.scraper, f, f.request(cmd, target))
	if err != nil {
		return err
	}

	if shot, ok := result.(*crawler.ScreenshotResult); ok && f.imageFile != "" {
		if err := os.WriteFile(f.imageFile, shot.Image, 0644); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Screenshot written to %s\n", f.imageFile)
		return nil
	}

	w, err := output.Open(output.Config{Format: output.FormatJSON, Pretty: f.pretty, FilePath: f.outputFile})
	if err != nil {
		return err
	}
	defer w.Close()
	return w.WriteResult(result)
}

func scrape(ctx context.Context, s *crawler.Scraper, f *scrapeFlags, req crawler.ScrapeRequest) (interface{}, error) {
	switch f.mode {
	case modeScrape:
		return s.Scrape(ctx, req)
	case modeStatic:
		return s.ScrapeStatic(ctx, req.URL, req.UserAgent)
	case modeRender:
		return s.Render(ctx, req)
	case modeMetadata:
		return s.Metadata(ctx, req)
	case modeLinks:
		return s.Links(ctx, req)
	case modeSelect:
		return s.Select(ctx, req)
	case modeScreenshot:
		return s.Screenshot(ctx, req)
	}
	return nil, fmt.Errorf("unknown mode %q (want one of %s)", f.mode, strings.Join(scrapeModes, ", "))
}
