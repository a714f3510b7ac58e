package browser

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultUserAgentKey is used when a profile names no user agent.
const DefaultUserAgentKey = "chrome-windows"

// UserAgents maps user agent keys to their header values.
var UserAgents = map[string]string{
	"chrome-windows": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"chrome-mac":     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"firefox":        "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"safari":         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	"mobile-android": "Mozilla/5.0 (Linux; Android 10; SM-G981B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0.3987.162 Mobile Safari/537.36",
	"mobile-iphone":  "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
}

// UserAgentKeys returns the known user agent keys, sorted.
func UserAgentKeys() []string {
	keys := make([]string, 0, len(UserAgents))
	for k := range UserAgents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveUserAgent maps a key to its user agent string. A value that is
// not a known key but looks like a full user agent is returned unchanged;
// anything else falls back to the default.
func ResolveUserAgent(key string) string {
	if ua, ok := UserAgents[key]; ok {
		return ua
	}
	if strings.HasPrefix(key, "Mozilla/") {
		return key
	}
	return UserAgents[DefaultUserAgentKey]
}

// Proxy describes an upstream HTTP proxy for a browser.
type Proxy struct {
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Username string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	Country  string `json:"country,omitempty" yaml:"country,omitempty" mapstructure:"country"`
}

// Server returns the host:port form passed to --proxy-server.
func (p *Proxy) Server() string {
	if p == nil || p.Host == "" {
		return ""
	}
	if p.Port == 0 {
		return p.Host
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// HasAuth reports whether the proxy needs credentials.
func (p *Proxy) HasAuth() bool {
	return p != nil && p.Username != ""
}

// Profile configures the browser a caller borrows and the pages it opens.
type Profile struct {
	// UserAgent is a key of UserAgents or a full user agent string.
	UserAgent     string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
	Headless      bool   `json:"headless" yaml:"headless" mapstructure:"headless"`
	DisableImages bool   `json:"disable_images" yaml:"disable_images" mapstructure:"disable_images"`
	Proxy         *Proxy `json:"proxy,omitempty" yaml:"proxy,omitempty" mapstructure:"proxy"`
}

// DefaultProfile returns a headless Chrome-on-Windows profile with images off.
func DefaultProfile() Profile {
	return Profile{
		UserAgent:     DefaultUserAgentKey,
		Headless:      true,
		DisableImages: true,
	}
}

// UserAgentString resolves the profile's user agent.
func (p Profile) UserAgentString() string {
	return ResolveUserAgent(p.UserAgent)
}

// LaunchKey identifies the process-level settings of a profile. Instances
// are only reused for profiles with the same key; user agent and image
// blocking are applied per page and do not affect it.
func (p Profile) LaunchKey() string {
	var b strings.Builder
	if p.Headless {
		b.WriteString("headless")
	} else {
		b.WriteString("headful")
	}
	if server := p.Proxy.Server(); server != "" {
		b.WriteString("|proxy=")
		b.WriteString(server)
		if p.Proxy.HasAuth() {
			b.WriteString("|user=")
			b.WriteString(p.Proxy.Username)
		}
	}
	return b.String()
}

// PageOptions returns the per-page settings implied by the profile.
func (p Profile) PageOptions() PageOptions {
	return PageOptions{
		UserAgent:     p.UserAgentString(),
		DisableImages: p.DisableImages,
	}
}
