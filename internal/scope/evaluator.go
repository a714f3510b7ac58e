// Package scope decides which discovered links a crawl job may follow.
package scope

import (
	"net/url"
	"regexp"
	"strings"
)

// Evaluator applies Rules to candidate links. It holds no per-job state
// and is safe for concurrent use.
type Evaluator struct {
	rules    Rules
	patterns []excludePattern
}

type excludePattern struct {
	raw string
	re  *regexp.Regexp // nil when raw is not a valid expression
}

// NewEvaluator compiles the exclusion patterns of rules. Patterns that are
// not valid regular expressions are matched as substrings only.
func NewEvaluator(rules Rules) *Evaluator {
	e := &Evaluator{rules: rules}
	for _, p := range rules.ExcludePatterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			re = nil
		}
		e.patterns = append(e.patterns, excludePattern{raw: p, re: re})
	}
	return e
}

// Rules returns the rules the evaluator was built with.
func (e *Evaluator) Rules() Rules {
	return e.rules
}

// ShouldFollow is Evaluate reduced to its verdict.
func (e *Evaluator) ShouldFollow(baseURL, candidate string, visited Visited, counter *DomainCounter) bool {
	return e.Evaluate(baseURL, candidate, visited, counter).Follow
}

// Evaluate decides whether candidate, found on baseURL, should be followed.
// Checks run in order and the first failing check decides.
func (e *Evaluator) Evaluate(baseURL, candidate string, visited Visited, counter *DomainCounter) Decision {
	return e.EvaluateFrom(baseURL, baseURL, candidate, visited, counter)
}

// EvaluateFrom is Evaluate for a page that was requested as originURL but
// ended up at resolveURL after redirects. Relative links resolve against
// resolveURL; the external-domain check compares with originURL.
func (e *Evaluator) EvaluateFrom(originURL, resolveURL, candidate string, visited Visited, counter *DomainCounter) Decision {
	candidate = strings.TrimSpace(candidate)
	switch {
	case candidate == "":
		return Decision{Reason: RejectEmpty}
	case strings.HasPrefix(strings.ToLower(candidate), "javascript:"):
		return Decision{URL: candidate, Reason: RejectPseudoURL}
	case strings.HasPrefix(candidate, "#"):
		return Decision{URL: candidate, Reason: RejectFragment}
	}

	abs, err := ResolveURL(resolveURL, candidate)
	if err != nil {
		return Decision{URL: candidate, Reason: RejectInvalid}
	}
	parsed, err := url.Parse(abs)
	if err != nil {
		return Decision{URL: abs, Reason: RejectInvalid}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Decision{URL: abs, Reason: RejectScheme}
	}
	if parsed.Host == "" {
		return Decision{URL: abs, Reason: RejectInvalid}
	}

	d := Decision{
		URL:    abs,
		Domain: strings.ToLower(parsed.Host),
	}

	if len(e.rules.RestrictToDomains) > 0 && !e.allowedDomain(d.Domain) {
		d.Reason = RejectNotAllowedDomain
		return d
	}

	if d.Domain != Domain(originURL) {
		if !e.rules.FollowExternal {
			d.Reason = RejectExternal
			return d
		}
		if counter != nil && counter.Reached(d.Domain, e.rules.MaxPagesPerDomain) {
			d.Reason = RejectDomainCap
			return d
		}
	}

	if e.Excluded(abs) {
		d.Reason = RejectExcluded
		return d
	}

	d.Canonical = Canonicalize(abs, e.rules.IgnoreQuery)
	if visited != nil && visited.HasSeen(d.Canonical) {
		d.Reason = RejectVisited
		return d
	}

	d.Follow = true
	d.Reason = Accepted
	return d
}

// Excluded reports whether rawURL matches any exclusion pattern.
func (e *Evaluator) Excluded(rawURL string) bool {
	for _, p := range e.patterns {
		if strings.Contains(rawURL, p.raw) {
			return true
		}
		if p.re != nil && p.re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Canonical returns the dedup key for rawURL under these rules.
func (e *Evaluator) Canonical(rawURL string) string {
	return Canonicalize(rawURL, e.rules.IgnoreQuery)
}

func (e *Evaluator) allowedDomain(domain string) bool {
	for _, allowed := range e.rules.RestrictToDomains {
		if MatchesDomain(domain, allowed) {
			return true
		}
	}
	return false
}
