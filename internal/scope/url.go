package scope

import (
	"net/url"
	"strings"
)

// Domain returns the network location (host[:port]) of rawURL, lowercased.
// The port is kept, so example.com and example.com:8080 are different domains.
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

// Canonicalize returns the dedup key for rawURL. The fragment is always
// dropped and an empty path becomes "/"; the query string is dropped when
// ignoreQuery is set.
func Canonicalize(rawURL string, ignoreQuery bool) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if parsed.Path == "" {
		parsed.Path = "/"
		parsed.RawPath = ""
	}
	if ignoreQuery {
		return parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	}
	return parsed.String()
}

// ResolveURL resolves a possibly relative reference against a base URL.
func ResolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}

// EnsureScheme prefixes https:// to URLs given without a scheme.
func EnsureScheme(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return rawURL
	}
	return "https://" + rawURL
}

// IsValidURL reports whether rawURL is an absolute http(s) URL with a host.
func IsValidURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// MatchesDomain reports whether domain equals allowed or is a subdomain of
// it by textual "." suffix.
func MatchesDomain(domain, allowed string) bool {
	domain = strings.ToLower(domain)
	allowed = strings.ToLower(strings.TrimSpace(allowed))
	if allowed == "" {
		return false
	}
	return domain == allowed || strings.HasSuffix(domain, "."+allowed)
}

// IsInternal reports whether link is on the same domain as base.
func IsInternal(base, link string) bool {
	return Domain(base) == Domain(link)
}
