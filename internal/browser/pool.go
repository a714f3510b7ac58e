package browser

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
)

// Config configures a Pool.
type Config struct {
	// Capacity is the maximum number of pooled instances.
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	// IdleTimeout is how long an unused instance survives the sweep.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// SweepInterval is the period of the idle eviction sweep.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`
	// MaxUses closes an instance on release after this many borrows
	// (0 = never).
	MaxUses int `json:"max_uses" yaml:"max_uses" mapstructure:"max_uses"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:      2,
		IdleTimeout:   300 * time.Second,
		SweepInterval: 60 * time.Second,
	}
}

// Pool lends browser instances to callers. At most Capacity instances are
// pooled. When every pooled instance is busy a borrow is served by a
// temporary instance that is closed on release, so Borrow never waits for
// another caller. The price is that the number of live browsers can exceed
// Capacity while the pool is saturated.
type Pool struct {
	mu        sync.Mutex
	config    Config
	launch    Launcher
	instances []*Instance
	pending   int // launches in flight that will join instances
	temporary int // temporary instances currently lent out
	closed    bool

	launched  int64
	evicted   int64
	overflows int64

	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Collector

	stop chan struct{}
	done chan struct{}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *logger.Logger) PoolOption {
	return func(p *Pool) {
		p.log = l.WithComponent("pool")
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool and starts its eviction sweep. A SweepInterval
// <= 0 disables the background sweep.
func NewPool(config Config, launch Launcher, opts ...PoolOption) *Pool {
	if config.Capacity < 1 {
		config.Capacity = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}

	p := &Pool{
		config:  config,
		launch:  launch,
		now:     time.Now,
		log:     logger.Global().WithComponent("pool"),
		metrics: metrics.Global(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if config.SweepInterval > 0 {
		go p.sweepLoop(config.SweepInterval)
	} else {
		close(p.done)
	}

	p.log.Event(logger.InfoLevel).
		Int("capacity", config.Capacity).
		Dur("idle_timeout", config.IdleTimeout).
		Msg("Browser pool initialized")

	return p
}

// Borrow returns an instance for profile. In order it
// reuses an idle instance with the same launch key, launches a new pooled
// instance below capacity, replaces an idle instance with a different
// launch key, or launches a temporary instance. Launch failures are
// returned as fatal errors and never retried.
func (p *Pool) Borrow(ctx context.Context, profile Profile) (*Instance, error) {
	key := profile.LaunchKey()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, cerrors.ErrPoolClosed
	}

	now := p.now()
	for _, inst := range p.instances {
		if !inst.inUse && inst.launchKey == key {
			inst.inUse = true
			inst.lastUsed = now
			inst.uses++
			inst.profile = profile
			p.publishLocked()
			p.mu.Unlock()
			return inst, nil
		}
	}

	if len(p.instances)+p.pending < p.config.Capacity {
		p.pending++
		p.mu.Unlock()
		return p.launchPooled(ctx, profile)
	}

	if victim := p.removeIdleLocked(); victim != nil {
		p.pending++
		p.mu.Unlock()

		p.log.Event(logger.DebugLevel).
			Str("instance", victim.ID).
			Str("launch_key", victim.launchKey).
			Msg("Replacing idle browser with different launch settings")
		p.closeInstance(victim)
		p.metrics.RecordRecycle()

		return p.launchPooled(ctx, profile)
	}

	p.temporary++
	p.overflows++
	busy, capacity := len(p.instances), p.config.Capacity
	p.mu.Unlock()

	p.log.PoolEvent(logger.WarnLevel, busy, busy, capacity).
		Err(cerrors.NewPoolExhaustedError(capacity)).
		Msg("Browser pool full, creating temporary browser")
	p.metrics.RecordTemporaryInstance()

	h, err := p.launchHandle(ctx, profile)
	if err != nil {
		p.mu.Lock()
		p.temporary--
		p.mu.Unlock()
		return nil, err
	}
	return newInstance(h, profile, true, p.now()), nil
}

// launchPooled launches an instance for a reserved pending slot.
func (p *Pool) launchPooled(ctx context.Context, profile Profile) (*Instance, error) {
	h, err := p.launchHandle(ctx, profile)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		_ = h.Close()
		return nil, cerrors.ErrPoolClosed
	}
	inst := newInstance(h, profile, false, p.now())
	p.instances = append(p.instances, inst)
	p.launched++
	p.publishLocked()
	p.mu.Unlock()

	p.log.Event(logger.DebugLevel).Str("instance", inst.ID).Msg("Launched pooled browser")
	return inst, nil
}

func (p *Pool) launchHandle(ctx context.Context, profile Profile) (Handle, error) {
	h, err := p.launch(ctx, profile)
	if err != nil {
		p.metrics.RecordLaunchFailure()
		p.log.Event(logger.ErrorLevel).Err(err).Msg("Failed to launch browser")
		if cerrors.GetErrorType(err) == cerrors.Launch {
			return nil, err
		}
		return nil, cerrors.NewLaunchError(err)
	}
	p.metrics.RecordBrowserLaunch()
	return h, nil
}

// removeIdleLocked removes and returns the least recently used idle
// instance, or nil.
func (p *Pool) removeIdleLocked() *Instance {
	idx := -1
	for i, inst := range p.instances {
		if inst.inUse {
			continue
		}
		if idx < 0 || inst.lastUsed.Before(p.instances[idx].lastUsed) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	victim := p.instances[idx]
	p.instances = append(p.instances[:idx], p.instances[idx+1:]...)
	return victim
}

// Release returns inst to the pool. Temporary instances, instances past
// MaxUses and instances released after Shutdown are closed instead.
func (p *Pool) Release(inst *Instance) {
	if inst == nil {
		return
	}

	if inst.temporary {
		p.mu.Lock()
		p.temporary--
		p.mu.Unlock()
		p.closeInstance(inst)
		p.log.Event(logger.DebugLevel).Str("instance", inst.ID).Msg("Closed temporary browser")
		return
	}

	p.mu.Lock()
	idx := p.indexLocked(inst)
	if idx < 0 {
		p.mu.Unlock()
		p.closeInstance(inst)
		return
	}
	if !inst.inUse {
		p.mu.Unlock()
		return
	}

	if p.config.MaxUses > 0 && inst.uses >= p.config.MaxUses {
		p.instances = append(p.instances[:idx], p.instances[idx+1:]...)
		p.publishLocked()
		p.mu.Unlock()
		p.log.Event(logger.DebugLevel).Str("instance", inst.ID).Int("uses", inst.uses).Msg("Recycling browser")
		p.metrics.RecordRecycle()
		p.closeInstance(inst)
		return
	}

	inst.inUse = false
	inst.lastUsed = p.now()
	p.publishLocked()
	p.mu.Unlock()
}

// Discard closes inst and drops it from the pool. Use it instead of
// Release when the browser crashed.
func (p *Pool) Discard(inst *Instance) {
	if inst == nil {
		return
	}

	p.mu.Lock()
	if inst.temporary {
		p.temporary--
	} else if idx := p.indexLocked(inst); idx >= 0 {
		p.instances = append(p.instances[:idx], p.instances[idx+1:]...)
		p.publishLocked()
	}
	p.mu.Unlock()

	p.log.Event(logger.WarnLevel).Str("instance", inst.ID).Msg("Discarding unresponsive browser")
	p.closeInstance(inst)
}

func (p *Pool) indexLocked(inst *Instance) int {
	for i, candidate := range p.instances {
		if candidate == inst {
			return i
		}
	}
	return -1
}

func (p *Pool) sweepLoop(interval time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep(p.now())
		}
	}
}

// sweep closes instances idle for longer than IdleTimeout at now and
// returns how many were removed. Borrowed instances are never touched.
func (p *Pool) sweep(now time.Time) int {
	p.mu.Lock()
	var victims []*Instance
	kept := p.instances[:0]
	for _, inst := range p.instances {
		if !inst.inUse && now.Sub(inst.lastUsed) > p.config.IdleTimeout {
			victims = append(victims, inst)
			continue
		}
		kept = append(kept, inst)
	}
	for i := len(kept); i < len(p.instances); i++ {
		p.instances[i] = nil
	}
	p.instances = kept
	p.evicted += int64(len(victims))
	if len(victims) > 0 {
		p.publishLocked()
	}
	p.mu.Unlock()

	for _, inst := range victims {
		p.closeInstance(inst)
	}
	if len(victims) > 0 {
		p.metrics.RecordEvictions(len(victims))
		p.log.Event(logger.DebugLevel).Int("evicted", len(victims)).Msg("Cleaned up idle browsers")
	}
	return len(victims)
}

// Shutdown stops the sweep and closes every pooled instance, borrowed or
// not. Later calls return nil. Temporary instances still lent out are
// closed by their Release.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	instances := p.instances
	p.instances = nil
	p.publishLocked()
	p.mu.Unlock()

	close(p.stop)
	<-p.done

	var g errgroup.Group
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			return inst.close()
		})
	}
	err := g.Wait()

	p.log.Event(logger.InfoLevel).Int("closed", len(instances)).Msg("Browser pool shut down")
	return err
}

func (p *Pool) closeInstance(inst *Instance) {
	if err := inst.close(); err != nil {
		p.log.Event(logger.WarnLevel).Err(err).Str("instance", inst.ID).Msg("Error closing browser")
	}
}

// publishLocked pushes pool gauges to the metrics collector.
func (p *Pool) publishLocked() {
	inUse := 0
	for _, inst := range p.instances {
		if inst.inUse {
			inUse++
		}
	}
	p.metrics.SetBrowserPoolStats(len(p.instances), inUse, p.config.Capacity)
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		Capacity:       p.config.Capacity,
		Size:           len(p.instances),
		Pending:        p.pending,
		Temporary:      p.temporary,
		TotalLaunched:  p.launched,
		TotalEvicted:   p.evicted,
		TotalOverflows: p.overflows,
		Closed:         p.closed,
	}
	for _, inst := range p.instances {
		if inst.inUse {
			stats.InUse++
		}
	}
	stats.Available = stats.Size - stats.InUse
	return stats
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Capacity       int   `json:"capacity"`
	Size           int   `json:"size"`
	InUse          int   `json:"in_use"`
	Available      int   `json:"available"`
	Pending        int   `json:"pending"`
	Temporary      int   `json:"temporary"`
	TotalLaunched  int64 `json:"total_launched"`
	TotalEvicted   int64 `json:"total_evicted"`
	TotalOverflows int64 `json:"total_overflows"`
	Closed         bool  `json:"closed"`
}
