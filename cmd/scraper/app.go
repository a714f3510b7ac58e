package main

import (
	"fmt"
	"os"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	fetch "github.com/PentesterFlow/ScrapeIt/internal/http"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
	"github.com/PentesterFlow/ScrapeIt/internal/state"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// app holds the components shared by the commands.
type app struct {
	settings *crawler.Settings
	log      *logger.Logger
	metrics  *metrics.Collector
	store    state.Store
	pool     *browser.Pool
	client   *fetch.Client
	engine   *crawler.Engine
	service  *crawler.SettingsService
	scraper  *crawler.Scraper
}

// appOptions selects how newApp builds the shared components.
type appOptions struct {
	// Quiet raises the log level to warn unless --verbose or --debug is set.
	Quiet bool
	// Persistent opens the bbolt store and the log file from the settings.
	Persistent bool
}

func newLogger(s *crawler.Settings, opts appOptions) (*logger.Logger, error) {
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", s.Log.Level)
	}
	switch {
	case debug:
		level = logger.DebugLevel
	case verbose && level > logger.InfoLevel:
		level = logger.InfoLevel
	case opts.Quiet && !verbose && level < logger.WarnLevel:
		level = logger.WarnLevel
	}

	cfg := logger.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = s.Log.Pretty
	cfg.Output = os.Stderr
	if opts.Persistent && s.Log.File.Path != "" {
		file := s.Log.File
		cfg.File = &file
	}
	return logger.New(cfg), nil
}

func openStore(s *crawler.Settings, persistent bool) (state.Store, error) {
	if !persistent || s.Storage.Path == "" {
		return state.NewMemoryStore(), nil
	}
	store, err := state.NewBoltStore(s.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", s.Storage.Path, err)
	}
	return store, nil
}

// newApp loads the settings and builds the browser pool, the engine and
// the scraper on top of it.
func newApp(opts appOptions) (*app, error) {
	settings, err := crawler.LoadSettings(configFile)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(settings, opts)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(log)

	m := metrics.New()
	metrics.SetGlobal(m)

	store, err := openStore(settings, opts.Persistent)
	if err != nil {
		return nil, err
	}

	service, err := crawler.NewSettingsService(settings, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	limiter := ratelimit.NewLimiter(settings.RateLimit.RequestsPerSecond, settings.RateLimit.Burst)
	if settings.RateLimit.DomainDelay > 0 {
		limiter.SetDomainDelay(settings.RateLimit.DomainDelay)
	}

	userAgent := settings.Browser.Profile.UserAgentString()
	clientCfg := fetch.DefaultClientConfig()
	clientCfg.UserAgent = userAgent
	clientCfg.Timeout = settings.Crawl.PageLoadTimeout
	client := fetch.NewClient(clientCfg)
	client.SetLimiter(limiter)

	pool := browser.NewPool(settings.Pool, browser.RodLauncher(settings.Browser.RodConfig),
		browser.WithLogger(log),
		browser.WithMetrics(m),
	)

	engine, err := crawler.NewEngine(pool,
		crawler.WithLogger(log),
		crawler.WithMetrics(m),
		crawler.WithLimiter(limiter),
		crawler.WithRobots(ratelimit.NewRobotsManager(nil, userAgent, 0)),
		crawler.WithHTTPClient(client),
	)
	if err != nil {
		pool.Shutdown()
		store.Close()
		return nil, err
	}

	return &app{
		settings: settings,
		log:      log,
		metrics:  m,
		store:    store,
		pool:     pool,
		client:   client,
		engine:   engine,
		service:  service,
		scraper:  crawler.NewScraper(engine, service),
	}, nil
}

// Close stops the browsers and closes the store.
func (a *app) Close() error {
	err := a.pool.Shutdown()
	a.client.Close()
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}
