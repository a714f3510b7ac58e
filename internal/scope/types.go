package scope

// Rules is the link-admission subset of a crawl policy.
type Rules struct {
	// RestrictToDomains limits candidates to these domains and their
	// subdomains. Empty means no list restriction.
	RestrictToDomains []string
	// FollowExternal allows candidates whose domain differs from the base.
	FollowExternal bool
	// MaxPagesPerDomain caps pages fetched per external domain (0 = no cap).
	MaxPagesPerDomain int
	// ExcludePatterns are matched against the absolute candidate URL,
	// as a substring or as a regular expression.
	ExcludePatterns []string
	// IgnoreQuery drops the query string from the canonical form.
	IgnoreQuery bool
}

// Reason explains an evaluator decision.
type Reason int

const (
	Accepted Reason = iota
	RejectEmpty
	RejectPseudoURL
	RejectFragment
	RejectInvalid
	RejectScheme
	RejectNotAllowedDomain
	RejectExternal
	RejectDomainCap
	RejectExcluded
	RejectVisited
)

var reasonNames = map[Reason]string{
	Accepted:               "accepted",
	RejectEmpty:            "empty",
	RejectPseudoURL:        "javascript",
	RejectFragment:         "fragment",
	RejectInvalid:          "invalid",
	RejectScheme:           "scheme",
	RejectNotAllowedDomain: "domain_not_allowed",
	RejectExternal:         "external",
	RejectDomainCap:        "domain_cap",
	RejectExcluded:         "excluded",
	RejectVisited:          "visited",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Decision is the outcome of evaluating one candidate link.
type Decision struct {
	// URL is the absolute candidate URL after resolution against the base.
	URL string
	// Canonical is the dedup key for URL.
	Canonical string
	Domain    string
	Follow    bool
	Reason    Reason
}

// Visited reports whether a canonical URL has been seen in the current job.
type Visited interface {
	HasSeen(canonical string) bool
}
