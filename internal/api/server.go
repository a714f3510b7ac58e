// Package api exposes the scraper, crawl tasks and settings over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/auth"
	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/cache"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
	"github.com/PentesterFlow/ScrapeIt/internal/websocket"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// maxBodyBytes bounds JSON and YAML request bodies.
const maxBodyBytes = 1 << 20

// Config tunes the server.
type Config struct {
	RateLimitStandard int
	RateLimitPremium  int
	CacheEnabled      bool
	CacheSize         int
	CacheTTL          time.Duration
	// LogFile is served by /api/logs; empty disables the endpoint.
	LogFile string
}

// ConfigFromSettings derives the server config from the loaded settings.
func ConfigFromSettings(s *crawler.Settings) Config {
	return Config{
		RateLimitStandard: s.Server.RateLimitStandard,
		RateLimitPremium:  s.Server.RateLimitPremium,
		CacheEnabled:      s.Server.CacheEnabled,
		CacheSize:         s.Server.CacheSize,
		CacheTTL:          s.Server.CacheTTL,
		LogFile:           s.Log.File.Path,
	}
}

// PoolStatter reports browser pool statistics. *browser.Pool implements it.
type PoolStatter interface {
	Stats() browser.PoolStats
}

// Server is the HTTP API. It implements http.Handler.
type Server struct {
	cfg      Config
	scraper  *crawler.Scraper
	tasks    *crawler.Manager
	settings *crawler.SettingsService

	pool     PoolStatter
	verifier *auth.TokenVerifier
	limiter  *ratelimit.ClientLimiter
	cache    *cache.Cache
	stream   *websocket.Streamer
	sampler  *metrics.SystemSampler
	metrics  *metrics.Collector
	log      *logger.Logger

	started time.Time
	mux     *http.ServeMux
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVerifier enables the token query parameter check.
func WithVerifier(v *auth.TokenVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithPool adds browser pool statistics to /api/status.
func WithPool(p PoolStatter) Option {
	return func(s *Server) { s.pool = p }
}

// WithSampler sets the system resource sampler of /api/status.
func WithSampler(sm *metrics.SystemSampler) Option {
	return func(s *Server) { s.sampler = sm }
}

// NewServer wires the handlers.
func NewServer(cfg Config, scraper *crawler.Scraper, tasks *crawler.Manager, settings *crawler.SettingsService, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		scraper:  scraper,
		tasks:    tasks,
		settings: settings,
		log:      logger.Global(),
		metrics:  metrics.Global(),
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("api")
	if s.sampler == nil {
		s.sampler = metrics.NewSystemSampler()
	}
	s.limiter = ratelimit.NewClientLimiter(cfg.RateLimitStandard, cfg.RateLimitPremium)
	if cfg.CacheEnabled {
		s.cache = cache.New(cfg.CacheSize, cfg.CacheTTL, s.metrics)
	}
	s.stream = websocket.NewStreamer(tasks, websocket.DefaultConfig(), s.log)

	s.routes()
	s.handler = s.recoverer(s.logRequests(s.rateLimit(s.authenticate(s.mux))))
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/scrape", s.cached("scrape", s.handleScrape))
	s.mux.HandleFunc("POST /api/scrape/static", s.cached("static", s.handleScrapeStatic))
	s.mux.HandleFunc("POST /api/scrape/trafilatura", s.cached("static", s.handleScrapeStatic))
	s.mux.HandleFunc("POST /api/extract", s.cached("extract", s.handleExtract))
	s.mux.HandleFunc("POST /api/render", s.handleRender)
	s.mux.HandleFunc("POST /api/metadata", s.cached("metadata", s.handleMetadata))
	s.mux.HandleFunc("POST /api/links", s.cached("links", s.handleLinks))
	s.mux.HandleFunc("POST /api/screenshot", s.handleScreenshot)

	s.mux.HandleFunc("POST /api/crawl", s.handleCrawlStart)
	s.mux.HandleFunc("GET /api/crawl_status", s.handleCrawlStatus)
	s.mux.HandleFunc("GET /api/crawl/result", s.handleCrawlResult)
	s.mux.HandleFunc("GET /api/crawl/tasks", s.handleCrawlList)
	s.mux.HandleFunc("POST /api/crawl/cancel", s.handleCrawlCancel)
	s.mux.HandleFunc("GET /api/crawl/ws", s.handleCrawlStream)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	s.mux.HandleFunc("GET /api/settings/json", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings/json", s.handleUpdateSettings)
	s.mux.HandleFunc("GET /api/settings_yaml", s.handleGetSettingsYAML)
	s.mux.HandleFunc("POST /api/settings_yaml", s.handleUpdateSettingsYAML)
	s.mux.HandleFunc("GET /api/user_agents", s.handleUserAgents)
	s.mux.HandleFunc("GET /api/proxies", s.handleGetProxies)
	s.mux.HandleFunc("POST /api/proxies", s.handleSetProxies)

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
}

// Janitor forgets idle rate limit clients every interval until ctx is done.
func (s *Server) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(10 * time.Minute); n > 0 {
				s.log.Event(logger.DebugLevel).Int("clients", n).Msg("Dropped idle rate limit clients")
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
