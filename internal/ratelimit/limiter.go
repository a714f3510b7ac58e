// Package ratelimit paces page loads per domain and throttles API clients.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests globally and per domain.
type Limiter struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	perDomain    map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	domainDelay  time.Duration
	lastRequest  map[string]time.Time
}

// NewLimiter creates a limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(limit, burst),
		perDomain:    make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
		lastRequest:  make(map[string]time.Time),
	}
}

// WaitDomain blocks until a request to domain is allowed. The minimum
// delay between two requests to the same domain is enforced as well.
func (l *Limiter) WaitDomain(ctx context.Context, domain string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	domainLimiter, exists := l.perDomain[domain]
	if !exists {
		domainLimiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perDomain[domain] = domainLimiter
	}

	var wait time.Duration
	if l.domainDelay > 0 {
		now := time.Now()
		next := now
		if last, ok := l.lastRequest[domain]; ok && now.Sub(last) < l.domainDelay {
			next = last.Add(l.domainDelay)
			wait = next.Sub(now)
		}
		l.lastRequest[domain] = next
	}
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return domainLimiter.Wait(ctx)
}

// SetDomainRate sets a custom rate for one domain. Setting the rate the
// domain already has keeps its current tokens.
func (l *Limiter) SetDomainRate(domain string, requestsPerSecond float64, burst int) {
	limit := rate.Limit(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.perDomain[domain]; ok && cur.Limit() == limit && cur.Burst() == burst {
		return
	}
	l.perDomain[domain] = rate.NewLimiter(limit, burst)
}

// SetDomainDelay sets the minimum delay between requests to the same domain.
func (l *Limiter) SetDomainDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domainDelay = delay
}
