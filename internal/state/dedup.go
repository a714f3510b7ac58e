package state

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator is the visited set of one crawl job. A Bloom filter answers
// most negative lookups; an exact map settles the rest.
//
// A Deduplicator is owned by a single job and is not safe for concurrent use.
type Deduplicator struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// NewDeduplicator creates a visited set sized for estimatedItems.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add inserts url and reports whether it was new.
func (d *Deduplicator) Add(url string) bool {
	if _, exists := d.exact[url]; exists {
		return false
	}
	d.filter.AddString(url)
	d.exact[url] = struct{}{}
	return true
}

// HasSeen checks if url has been added.
func (d *Deduplicator) HasSeen(url string) bool {
	if !d.filter.TestString(url) {
		return false
	}
	_, exists := d.exact[url]
	return exists
}

// Count returns the number of unique URLs seen.
func (d *Deduplicator) Count() int {
	return len(d.exact)
}
