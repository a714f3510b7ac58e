package scope

// DomainCounter tracks pages fetched per domain within one crawl job.
// It is owned by a single job and is not safe for concurrent use.
type DomainCounter struct {
	counts map[string]int
}

// NewDomainCounter creates an empty counter.
func NewDomainCounter() *DomainCounter {
	return &DomainCounter{counts: make(map[string]int)}
}

// Inc records one fetched page for domain.
func (d *DomainCounter) Inc(domain string) {
	d.counts[domain]++
}

// Count returns the pages fetched for domain.
func (d *DomainCounter) Count(domain string) int {
	return d.counts[domain]
}

// Reached reports whether domain hit limit. A limit <= 0 is unlimited.
func (d *DomainCounter) Reached(domain string, limit int) bool {
	if limit <= 0 {
		return false
	}
	return d.counts[domain] >= limit
}

// Snapshot returns a copy of the per-domain counts.
func (d *DomainCounter) Snapshot() map[string]int {
	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}
