package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default API quotas per client and minute.
const (
	DefaultStandardPerMinute = 30
	DefaultPremiumPerMinute  = 120
)

// ClientLimiter enforces a per-minute quota for each API client. Clients
// presenting an API key get the premium quota.
type ClientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	standard int
	premium  int
	now      func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter with the given quotas. Non-positive
// quotas fall back to the defaults.
func NewClientLimiter(standardPerMinute, premiumPerMinute int) *ClientLimiter {
	if standardPerMinute <= 0 {
		standardPerMinute = DefaultStandardPerMinute
	}
	if premiumPerMinute <= 0 {
		premiumPerMinute = DefaultPremiumPerMinute
	}
	return &ClientLimiter{
		clients:  make(map[string]*clientEntry),
		standard: standardPerMinute,
		premium:  premiumPerMinute,
		now:      time.Now,
	}
}

// Allow consumes one request from the client's quota.
func (c *ClientLimiter) Allow(client string, premium bool) bool {
	perMinute := c.standard
	key := client
	if premium {
		perMinute = c.premium
		key = client + "|premium"
	}

	c.mu.Lock()
	entry, ok := c.clients[key]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		}
		c.clients[key] = entry
	}
	now := c.now()
	entry.lastSeen = now
	c.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Quota returns the per-minute quota for a client class.
func (c *ClientLimiter) Quota(premium bool) int {
	if premium {
		return c.premium
	}
	return c.standard
}

// Cleanup forgets clients idle for longer than maxIdle and returns how
// many were dropped.
func (c *ClientLimiter) Cleanup(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxIdle)
	removed := 0
	for key, entry := range c.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(c.clients, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (c *ClientLimiter) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
