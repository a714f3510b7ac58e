package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/cache"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
	"github.com/PentesterFlow/ScrapeIt/internal/state"
)

// EnvPrefix prefixes environment overrides, e.g. SCRAPER_CRAWL_MAX_PAGES.
const EnvPrefix = "SCRAPER"

// Settings holds every tunable of the scraper.
type Settings struct {
	Server    ServerSettings    `json:"server" yaml:"server" mapstructure:"server"`
	Pool      browser.Config    `json:"pool" yaml:"pool" mapstructure:"pool"`
	Browser   BrowserSettings   `json:"browser" yaml:"browser" mapstructure:"browser"`
	Crawl     CrawlPolicy       `json:"crawl" yaml:"crawl" mapstructure:"crawl"`
	Render    RenderSettings    `json:"render" yaml:"render" mapstructure:"render"`
	RateLimit RateLimitSettings `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Proxies   []browser.Proxy   `json:"proxies" yaml:"proxies" mapstructure:"proxies"`
	Log       LogSettings       `json:"log" yaml:"log" mapstructure:"log"`
	Storage   StorageSettings   `json:"storage" yaml:"storage" mapstructure:"storage"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
	// MasterToken is accepted by the token check; empty disables it.
	MasterToken       string        `json:"master_token" yaml:"master_token" mapstructure:"master_token"`
	RateLimitStandard int           `json:"rate_limit_standard" yaml:"rate_limit_standard" mapstructure:"rate_limit_standard"`
	RateLimitPremium  int           `json:"rate_limit_premium" yaml:"rate_limit_premium" mapstructure:"rate_limit_premium"`
	CacheEnabled      bool          `json:"cache_enabled" yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheSize         int           `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// BrowserSettings holds the launch settings and the default profile.
type BrowserSettings struct {
	browser.RodConfig `yaml:",inline" mapstructure:",squash"`
	Profile           browser.Profile `json:"profile" yaml:"profile" mapstructure:"profile"`
}

// RenderSettings holds the waits of the single-page operations.
type RenderSettings struct {
	// ScrapeWait is the dynamic content wait of Scrape.
	ScrapeWait      time.Duration `json:"scrape_wait" yaml:"scrape_wait" mapstructure:"scrape_wait"`
	RenderWait      time.Duration `json:"render_wait" yaml:"render_wait" mapstructure:"render_wait"`
	SelectorTimeout time.Duration `json:"selector_timeout" yaml:"selector_timeout" mapstructure:"selector_timeout"`
}

// RateLimitSettings paces browser navigations per domain.
type RateLimitSettings struct {
	// RequestsPerSecond <= 0 disables pacing.
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst" mapstructure:"burst"`
	DomainDelay       time.Duration `json:"domain_delay" yaml:"domain_delay" mapstructure:"domain_delay"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level  string            `json:"level" yaml:"level" mapstructure:"level"`
	Pretty bool              `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	File   logger.FileConfig `json:"file" yaml:"file" mapstructure:"file"`
}

// StorageSettings locates the task and settings database.
type StorageSettings struct {
	// Path of the bbolt file; empty keeps everything in memory.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// DefaultSettings returns the default settings.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:              ":5000",
			RateLimitStandard: ratelimit.DefaultStandardPerMinute,
			RateLimitPremium:  ratelimit.DefaultPremiumPerMinute,
			CacheEnabled:      true,
			CacheTTL:          cache.DefaultTTL,
			CacheSize:         cache.DefaultSize,
			ShutdownTimeout:   30 * time.Second,
		},
		Pool: browser.DefaultConfig(),
		Browser: BrowserSettings{
			RodConfig: browser.DefaultRodConfig(),
			Profile:   browser.DefaultProfile(),
		},
		Crawl: DefaultPolicy(),
		Render: RenderSettings{
			ScrapeWait:      2 * time.Second,
			RenderWait:      5 * time.Second,
			SelectorTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitSettings{
			Burst: 1,
		},
		Proxies: []browser.Proxy{
			{Host: "proxy1.com", Port: 8000, Country: "US"},
			{Host: "proxy2.com", Port: 8080, Country: "UK"},
		},
		Log: LogSettings{
			Level:  "info",
			Pretty: true,
		},
		Storage: StorageSettings{
			Path: "scrapeit.db",
		},
	}
}

// LoadSettings reads settings from path (YAML, JSON or TOML; empty path
// means defaults only) and applies SCRAPER_* environment overrides, for
// example SCRAPER_CRAWL_MAX_PAGES=50.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	if err := registerDefaults(v, DefaultSettings()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// registerDefaults walks the YAML form of defaults and registers every
// leaf key with viper.
func registerDefaults(v *viper.Viper, defaults *Settings) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// SaveToFile writes the settings as JSON when path ends in .json and as
// YAML otherwise.
func (s *Settings) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = s.ToYAML()
	}
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ToYAML encodes the settings as YAML.
func (s *Settings) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// FromYAML decodes YAML over a copy of the defaults and validates it.
func FromYAML(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	if err := s.Crawl.Validate(); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	if s.Crawl.PageLoadTimeout <= 0 {
		return fmt.Errorf("crawl: page_load_timeout must be positive")
	}
	if s.Pool.Capacity < 1 {
		return fmt.Errorf("pool capacity must be at least 1")
	}
	if s.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool idle_timeout must be positive")
	}
	if s.Pool.SweepInterval < 0 || s.Pool.MaxUses < 0 {
		return fmt.Errorf("pool sweep_interval and max_uses must not be negative")
	}
	if s.Server.RateLimitStandard < 1 || s.Server.RateLimitPremium < 1 {
		return fmt.Errorf("rate limits must be at least 1 request per minute")
	}
	if s.Server.CacheTTL < 0 || s.Server.CacheSize < 0 {
		return fmt.Errorf("cache ttl and size must not be negative")
	}
	if s.Render.ScrapeWait < 0 || s.Render.RenderWait < 0 || s.Render.SelectorTimeout < 0 {
		return fmt.Errorf("render waits must not be negative")
	}
	if _, err := logger.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", s.Log.Level)
	}
	for i, p := range s.Proxies {
		if p.Host == "" || p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("proxy %d: invalid host or port", i)
		}
	}
	return nil
}

// Clone creates a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Crawl = s.Crawl.Clone()
	c.Proxies = append([]browser.Proxy(nil), s.Proxies...)
	if s.Browser.Profile.Proxy != nil {
		p := *s.Browser.Profile.Proxy
		c.Browser.Profile.Proxy = &p
	}
	return &c
}

// ScraperSettings is the flat view of the crawl settings served by the
// settings endpoints. Durations are in seconds.
type ScraperSettings struct {
	PageLoadTimeout     int      `json:"page_load_timeout" yaml:"page_load_timeout"`
	DynamicContentWait  float64  `json:"dynamic_content_wait" yaml:"dynamic_content_wait"`
	ChatGPTMinWait      float64  `json:"chatgpt_min_wait" yaml:"chatgpt_min_wait"`
	ChatGPTMaxWait      float64  `json:"chatgpt_max_wait" yaml:"chatgpt_max_wait"`
	MaxDepth            int      `json:"max_depth" yaml:"max_depth"`
	MaxPages            int      `json:"max_pages" yaml:"max_pages"`
	MaxPagesPerDomain   int      `json:"max_pages_per_domain" yaml:"max_pages_per_domain"`
	RestrictToDomains   []string `json:"restrict_to_domains" yaml:"restrict_to_domains"`
	FollowExternalLinks bool     `json:"follow_external_links" yaml:"follow_external_links"`
	IgnoreQueryStrings  bool     `json:"ignore_query_strings" yaml:"ignore_query_strings"`
	ExcludeURLPatterns  []string `json:"exclude_url_patterns" yaml:"exclude_url_patterns"`
	RespectRobots       bool     `json:"respect_robots" yaml:"respect_robots"`
}

// ScraperView returns the flat view of s.
func (s *Settings) ScraperView() ScraperSettings {
	c := s.Crawl
	return ScraperSettings{
		PageLoadTimeout:     int(c.PageLoadTimeout / time.Second),
		DynamicContentWait:  c.DynamicContentWait.Seconds(),
		ChatGPTMinWait:      c.RedirectMinWait.Seconds(),
		ChatGPTMaxWait:      c.RedirectMaxWait.Seconds(),
		MaxDepth:            c.MaxDepth,
		MaxPages:            c.MaxPages,
		MaxPagesPerDomain:   c.MaxPagesPerDomain,
		RestrictToDomains:   append([]string{}, c.RestrictToDomains...),
		FollowExternalLinks: c.FollowExternalLinks,
		IgnoreQueryStrings:  c.IgnoreQueryStrings,
		ExcludeURLPatterns:  append([]string{}, c.ExcludeURLPatterns...),
		RespectRobots:       c.RespectRobots,
	}
}

// Validate rejects zero or negative limits.
func (v ScraperSettings) Validate() error {
	switch {
	case v.PageLoadTimeout <= 0:
		return fmt.Errorf("page_load_timeout must be positive")
	case v.DynamicContentWait < 0:
		return fmt.Errorf("dynamic_content_wait must not be negative")
	case v.ChatGPTMinWait < 0 || v.ChatGPTMaxWait < v.ChatGPTMinWait:
		return fmt.Errorf("chatgpt_max_wait must be at least chatgpt_min_wait")
	case v.MaxDepth < 0:
		return fmt.Errorf("max_depth must not be negative")
	case v.MaxPages < 1:
		return fmt.Errorf("max_pages must be at least 1")
	case v.MaxPagesPerDomain < 1:
		return fmt.Errorf("max_pages_per_domain must be at least 1")
	}
	return nil
}

// ApplyScraperView copies a validated flat view into the crawl settings.
func (s *Settings) ApplyScraperView(v ScraperSettings) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.Crawl.PageLoadTimeout = time.Duration(v.PageLoadTimeout) * time.Second
	s.Crawl.DynamicContentWait = seconds(v.DynamicContentWait)
	s.Crawl.RedirectMinWait = seconds(v.ChatGPTMinWait)
	s.Crawl.RedirectMaxWait = seconds(v.ChatGPTMaxWait)
	s.Crawl.MaxDepth = v.MaxDepth
	s.Crawl.MaxPages = v.MaxPages
	s.Crawl.MaxPagesPerDomain = v.MaxPagesPerDomain
	s.Crawl.RestrictToDomains = append([]string{}, v.RestrictToDomains...)
	s.Crawl.FollowExternalLinks = v.FollowExternalLinks
	s.Crawl.IgnoreQueryStrings = v.IgnoreQueryStrings
	s.Crawl.ExcludeURLPatterns = append([]string{}, v.ExcludeURLPatterns...)
	s.Crawl.RespectRobots = v.RespectRobots
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// SettingsService holds the live settings. Updates are persisted to the
// store and apply to jobs started afterwards.
type SettingsService struct {
	mu      sync.RWMutex
	current *Settings
	store   state.Store
	log     *logger.Logger
}

// NewSettingsService starts from initial, replaced by the settings saved
// in store when there are any.
func NewSettingsService(initial *Settings, store state.Store, log *logger.Logger) (*SettingsService, error) {
	if log == nil {
		log = logger.Global()
	}
	s := &SettingsService{current: initial.Clone(), store: store, log: log.WithComponent("settings")}
	if store == nil {
		return s, nil
	}

	data, err := store.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load saved settings: %w", err)
	}
	if data != nil {
		var view ScraperSettings
		if err := json.Unmarshal(data, &view); err != nil {
			s.log.Event(logger.WarnLevel).Err(err).Msg("Ignoring unreadable saved settings")
			return s, nil
		}
		if err := s.current.ApplyScraperView(view); err != nil {
			s.log.Event(logger.WarnLevel).Err(err).Msg("Ignoring invalid saved settings")
		}
	}
	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsService) Get() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Scraper returns the flat view of the current settings.
func (s *SettingsService) Scraper() ScraperSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.ScraperView()
}

// Update validates and applies v, then persists it.
func (s *SettingsService) Update(v ScraperSettings) (ScraperSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := next.ApplyScraperView(v); err != nil {
		return ScraperSettings{}, err
	}
	if s.store != nil {
		data, err := json.Marshal(next.ScraperView())
		if err != nil {
			return ScraperSettings{}, err
		}
		if err := s.store.SaveSettings(data); err != nil {
			return ScraperSettings{}, fmt.Errorf("failed to persist settings: %w", err)
		}
	}
	s.current = next
	s.log.Event(logger.InfoLevel).
		Int("max_depth", next.Crawl.MaxDepth).
		Int("max_pages", next.Crawl.MaxPages).
		Msg("Settings updated")
	return next.ScraperView(), nil
}

// Proxies returns the configured proxies.
func (s *SettingsService) Proxies() []browser.Proxy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]browser.Proxy{}, s.current.Proxies...)
}

// SetProxies replaces the proxy list.
func (s *SettingsService) SetProxies(proxies []browser.Proxy) error {
	for i, p := range proxies {
		if p.Host == "" || p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("proxy %d: invalid host or port", i)
		}
	}
	s.mu.Lock()
	s.current.Proxies = append([]browser.Proxy{}, proxies...)
	s.mu.Unlock()
	return nil
}
