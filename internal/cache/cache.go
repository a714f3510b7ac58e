// Package cache keeps rendered API responses for a limited time.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
)

// Defaults match the scrape endpoint cache.
const (
	DefaultSize = 512
	DefaultTTL  = 3600 * time.Second
)

// Cache is a size-bounded LRU whose entries expire after a TTL. It is safe
// for concurrent use.
type Cache struct {
	lru     *expirable.LRU[string, []byte]
	ttl     time.Duration
	metrics *metrics.Collector
}

// New creates a cache. Non-positive size or ttl use the defaults.
func New(size int, ttl time.Duration, m *metrics.Collector) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if m == nil {
		m = metrics.Global()
	}
	return &Cache{
		lru:     expirable.NewLRU[string, []byte](size, nil, ttl),
		ttl:     ttl,
		metrics: m,
	}
}

// Key builds a cache key from a namespace, the request URL and the body.
func Key(namespace, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached value and records a hit or miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.lru.Get(key)
	c.metrics.RecordCache(ok)
	return v, ok
}

// Set stores value under key.
func (c *Cache) Set(key string, value []byte) {
	c.lru.Add(key, value)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
