package crawler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	fetch "github.com/PentesterFlow/ScrapeIt/internal/http"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine) error

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		e.log = l.WithComponent("engine")
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) error {
		if m == nil {
			return errors.New("metrics collector is nil")
		}
		e.metrics = m
		return nil
	}
}

// WithLimiter paces navigations per domain.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) error {
		e.limiter = l
		return nil
	}
}

// WithRobots sets the robots.txt cache consulted by policies with
// RespectRobots.
func WithRobots(r *ratelimit.RobotsManager) Option {
	return func(e *Engine) error {
		e.robots = r
		return nil
	}
}

// WithHTTPClient sets the client used for static scrapes.
func WithHTTPClient(c *fetch.Client) Option {
	return func(e *Engine) error {
		e.client = c
		return nil
	}
}

// WithSeed makes the redirect wait deterministic.
func WithSeed(seed int64) Option {
	return func(e *Engine) error {
		e.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
