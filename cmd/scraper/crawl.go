package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/output"
	"github.com/PentesterFlow/ScrapeIt/internal/progress"
	"github.com/PentesterFlow/ScrapeIt/internal/shutdown"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

type crawlFlags struct {
	maxDepth          int
	maxPages          int
	maxPagesPerDomain int
	timeout           int
	followExternal    bool
	ignoreQuery       bool
	respectRobots     bool
	restrict          []string
	exclude           []string
	userAgent         string
	headful           bool

	outputFile string
	format     string
	pretty     bool
	stream     bool
	noProgress bool
}

func newCrawlCmd() *cobra.Command {
	return newCrawlCommand(&crawlFlags{})
}

func newCrawlCommand(f *crawlFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a site from a start URL",
		Long:  "Crawl a site breadth-first from a start URL and write the extracted pages.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, f, args[0])
		},
	}

	cmd.Flags().IntVarP(&f.maxDepth, "max-depth", "d", 1, "Maximum link depth")
	cmd.Flags().IntVarP(&f.maxPages, "max-pages", "m", 10, "Maximum pages to crawl")
	cmd.Flags().IntVar(&f.maxPagesPerDomain, "max-pages-per-domain", 10, "Maximum pages per domain")
	cmd.Flags().IntVarP(&f.timeout, "timeout", "t", 30, "Page load timeout in seconds")
	cmd.Flags().BoolVar(&f.followExternal, "follow-external", false, "Follow links to other domains")
	cmd.Flags().BoolVar(&f.ignoreQuery, "ignore-query", true, "Treat URLs differing only in query string as one page")
	cmd.Flags().BoolVar(&f.respectRobots, "respect-robots", false, "Respect robots.txt")
	cmd.Flags().StringArrayVar(&f.restrict, "restrict", nil, "Only crawl these domains")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "URL patterns to exclude (regex)")
	cmd.Flags().StringVarP(&f.userAgent, "user-agent", "u", "", "User agent key or string")
	cmd.Flags().BoolVar(&f.headful, "headful", false, "Show the browser window")

	cmd.Flags().StringVarP(&f.outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&f.format, "format", output.FormatJSON, "Output format (json, jsonl)")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Indent JSON output")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Write progress events before the result")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// apply overrides policy and profile with the flags set on the command line.
func (f *crawlFlags) apply(cmd *cobra.Command, policy *crawler.CrawlPolicy, profile *browser.Profile) {
	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		policy.MaxDepth = f.maxDepth
	}
	if flags.Changed("max-pages") {
		policy.MaxPages = f.maxPages
	}
	switch {
	case flags.Changed("max-pages-per-domain"):
		policy.MaxPagesPerDomain = f.maxPagesPerDomain
	case flags.Changed("max-pages"):
		// --max-pages alone lifts the per-domain cap too
		policy.MaxPagesPerDomain = f.maxPages
	}
	if flags.Changed("timeout") {
		policy.PageLoadTimeout = time.Duration(f.timeout) * time.Second
	}
	if flags.Changed("follow-external") {
		policy.FollowExternalLinks = f.followExternal
	}
	if flags.Changed("ignore-query") {
		policy.IgnoreQueryStrings = f.ignoreQuery
	}
	if flags.Changed("respect-robots") {
		policy.RespectRobots = f.respectRobots
	}
	if flags.Changed("restrict") {
		policy.RestrictToDomains = f.restrict
	}
	if flags.Changed("exclude") {
		policy.ExcludeURLPatterns = f.exclude
	}
	if flags.Changed("user-agent") {
		profile.UserAgent = f.userAgent
	}
	if flags.Changed("headful") {
		profile.Headless = !f.headful
	}
}

func runCrawl(cmd *cobra.Command, f *crawlFlags, target string) error {
	showProgress := !f.noProgress && !verbose && !debug && !f.stream
	a, err := newApp(appOptions{Quiet: showProgress})
	if err != nil {
		return err
	}

	settings := a.service.Get()
	policy := settings.Crawl
	profile := settings.Browser.Profile
	f.apply(cmd, &policy, &profile)
	if err := policy.Validate(); err != nil {
		a.Close()
		return fmt.Errorf("invalid crawl options: %w", err)
	}

	w, err := output.Open(output.Config{
		Format:   f.format,
		Pretty:   f.pretty,
		Stream:   f.stream,
		FilePath: f.outputFile,
	})
	if err != nil {
		a.Close()
		return err
	}
	defer w.Close()

	h := shutdown.New(shutdown.Config{Timeout: settings.Server.ShutdownTimeout, Logger: a.log})
	h.RegisterFunc("browsers", a.Close)
	go h.Wait(context.Background())
	defer h.Shutdown()

	var display *progress.Display
	var failed atomic.Int64
	if showProgress {
		display = progress.New()
		display.Start(target, policy.MaxPages)
	}
	events := output.NewProgressWriter(w, func(ev crawler.Event) {
		if ev.Type == crawler.EventError {
			failed.Add(1)
		}
		if display != nil {
			display.Update(ev.PagesCrawled, ev.Queue, int(failed.Load()))
		}
	})

	result, err := a.engine.Run(h.Context(), crawler.Job{
		StartURL: target,
		Policy:   policy,
		Profile:  profile,
		Observer: func(ev crawler.Event) {
			if werr := events.WriteEvent(ev); werr != nil {
				a.log.Event(logger.WarnLevel).Err(werr).Msg("Failed to write event")
			}
		},
	})

	if display != nil {
		display.Stop()
	}
	if result != nil {
		if werr := w.WriteResult(result); werr != nil {
			return fmt.Errorf("failed to write result: %w", werr)
		}
		w.Flush()
	}
	if display != nil {
		display.PrintSummary()
	}

	if err != nil {
		if h.IsShuttingDown() {
			fmt.Fprintln(os.Stderr, "Crawl interrupted")
			return nil
		}
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}
