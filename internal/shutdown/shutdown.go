// Package shutdown stops the server's components in reverse start order
// when a signal arrives.
package shutdown

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/logger"
)

// Callback stops one component. It should return when ctx expires.
type Callback func(ctx context.Context) error

type step struct {
	name string
	fn   Callback
}

// Handler runs registered callbacks last-in first-out on shutdown.
type Handler struct {
	mu    sync.Mutex
	steps []step

	shuttingDown atomic.Bool
	done         chan struct{}
	result       *Result
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	log     *logger.Logger
}

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds all callbacks together.
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a handler listening for cfg.Signals.
func New(cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = def.Signals
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		log:     cfg.Logger.WithComponent("shutdown"),
	}
	signal.Notify(h.sigChan, cfg.Signals...)
	return h
}

// Register adds a callback. Callbacks run in reverse registration order.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step{name: name, fn: fn})
}

// RegisterFunc registers a cleanup that ignores the deadline.
func (h *Handler) RegisterFunc(name string, fn func() error) {
	h.Register(name, func(context.Context) error { return fn() })
}

// GracefulServer is a component with a context-bounded Shutdown, such as
// *http.Server or *crawler.Manager.
type GracefulServer interface {
	Shutdown(ctx context.Context) error
}

// RegisterServer registers server.Shutdown.
func (h *Handler) RegisterServer(name string, server GracefulServer) {
	h.Register(name, server.Shutdown)
}

// RegisterCloser registers c.Close.
func (h *Handler) RegisterCloser(name string, c io.Closer) {
	h.RegisterFunc(name, c.Close)
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown has begun.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done is closed when shutdown has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until a signal arrives, ctx is done or Shutdown is called
// elsewhere, then returns the shutdown result.
func (h *Handler) Wait(ctx context.Context) *Result {
	select {
	case sig := <-h.sigChan:
		h.log.Event(logger.InfoLevel).Str("signal", sig.String()).Msg("Signal received")
		return h.Shutdown()
	case <-ctx.Done():
		return h.Shutdown()
	case <-h.ctx.Done():
		<-h.done
		return h.result
	}
}

// Trigger requests shutdown as if a signal had arrived.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown cancels Context and runs the callbacks. Later calls wait for
// the first one and return its result.
func (h *Handler) Shutdown() *Result {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return h.result
	}
	signal.Stop(h.sigChan)
	start := time.Now()
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	steps := append([]step(nil), h.steps...)
	h.mu.Unlock()

	h.log.Event(logger.InfoLevel).Int("steps", len(steps)).Dur("timeout", h.timeout).Msg("Shutting down")

	result := &Result{}
	for i := len(steps) - 1; i >= 0; i-- {
		began := time.Now()
		err := h.run(ctx, steps[i])
		ev := h.log.Event(logger.DebugLevel)
		if err != nil {
			result.Errors = append(result.Errors, err)
			ev = h.log.Event(logger.WarnLevel).Err(err)
		}
		ev.Str("step", steps[i].name).Dur("elapsed", time.Since(began)).Msg("Shutdown step finished")
	}
	result.Elapsed = time.Since(start)

	h.log.Event(logger.InfoLevel).
		Dur("elapsed", result.Elapsed).
		Int("errors", len(result.Errors)).
		Msg("Shutdown complete")

	h.result = result
	close(h.done)
	return result
}

// run executes one step, giving up when ctx expires.
func (h *Handler) run(ctx context.Context, s step) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.fn(ctx)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		return nil
	case <-ctx.Done():
		return &TimeoutError{Step: s.name}
	}
}

// TimeoutError is returned for a step still running at the deadline.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	return "shutdown step timed out: " + e.Step
}

// Result holds the outcome of a shutdown.
type Result struct {
	Elapsed time.Duration
	Errors  []error
}

// HasErrors returns whether any step failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}
