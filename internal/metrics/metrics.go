// Package metrics provides counters and gauges for the browser pool, crawl
// jobs and the HTTP API.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	// Crawl counters
	pagesCrawled atomic.Int64
	pagesSkipped atomic.Int64
	pagesFailed  atomic.Int64
	jobsStarted  atomic.Int64
	jobsFailed   atomic.Int64
	jobsActive   atomic.Int64

	// Browser pool counters
	browserLaunches    atomic.Int64
	launchFailures     atomic.Int64
	temporaryInstances atomic.Int64
	evictions          atomic.Int64
	recycles           atomic.Int64
	crashes            atomic.Int64

	// API counters
	requestsTotal atomic.Int64
	rateLimited   atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64

	// Page load time tracking
	loadTimesSum atomic.Int64
	loadTimesNum atomic.Int64

	// Histogram buckets for page load times in ms:
	// <250, <500, <1000, <2500, <5000, <10000, <30000, >=30000
	loadTimeBuckets [8]atomic.Int64

	// Gauges
	browserPoolSize     atomic.Int64
	browserPoolInUse    atomic.Int64
	browserPoolCapacity atomic.Int64

	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordPageCrawled increments crawled pages and records the load time.
func (c *Collector) RecordPageCrawled(loadTime time.Duration) {
	c.pagesCrawled.Add(1)

	ms := loadTime.Milliseconds()
	c.loadTimesSum.Add(ms)
	c.loadTimesNum.Add(1)
	c.loadTimeBuckets[bucket(ms)].Add(1)
}

func bucket(ms int64) int {
	switch {
	case ms < 250:
		return 0
	case ms < 500:
		return 1
	case ms < 1000:
		return 2
	case ms < 2500:
		return 3
	case ms < 5000:
		return 4
	case ms < 10000:
		return 5
	case ms < 30000:
		return 6
	default:
		return 7
	}
}

// RecordPageSkipped increments pages discarded by the crawl loop.
func (c *Collector) RecordPageSkipped() {
	c.pagesSkipped.Add(1)
}

// RecordPageFailed increments pages that failed to load or extract.
func (c *Collector) RecordPageFailed(errorType string) {
	c.pagesFailed.Add(1)
	c.RecordError(errorType)
}

// RecordError increments the counter for errorType.
func (c *Collector) RecordError(errorType string) {
	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// JobStarted marks a crawl job as running.
func (c *Collector) JobStarted() {
	c.jobsStarted.Add(1)
	c.jobsActive.Add(1)
}

// JobFinished marks a crawl job as done.
func (c *Collector) JobFinished(err error) {
	c.jobsActive.Add(-1)
	if err != nil {
		c.jobsFailed.Add(1)
	}
}

// RecordBrowserLaunch increments successful browser launches.
func (c *Collector) RecordBrowserLaunch() {
	c.browserLaunches.Add(1)
}

// RecordLaunchFailure increments failed browser launches.
func (c *Collector) RecordLaunchFailure() {
	c.launchFailures.Add(1)
}

// RecordTemporaryInstance increments borrows served outside the pool.
func (c *Collector) RecordTemporaryInstance() {
	c.temporaryInstances.Add(1)
}

// RecordEvictions adds n idle instances closed by the sweep.
func (c *Collector) RecordEvictions(n int) {
	c.evictions.Add(int64(n))
}

// RecordRecycle increments instances replaced by the pool.
func (c *Collector) RecordRecycle() {
	c.recycles.Add(1)
}

// RecordCrash increments browsers found dead during a job.
func (c *Collector) RecordCrash() {
	c.crashes.Add(1)
}

// RecordRequest increments handled API requests.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
}

// RecordRateLimited increments API requests rejected by the limiter.
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Add(1)
}

// RecordCache records a response cache lookup.
func (c *Collector) RecordCache(hit bool) {
	if hit {
		c.cacheHits.Add(1)
		return
	}
	c.cacheMisses.Add(1)
}

// SetBrowserPoolStats sets browser pool gauges.
func (c *Collector) SetBrowserPoolStats(size, inUse, capacity int) {
	c.browserPoolSize.Store(int64(size))
	c.browserPoolInUse.Store(int64(inUse))
	c.browserPoolCapacity.Store(int64(capacity))
}

// AverageLoadTime returns the mean page load time.
func (c *Collector) AverageLoadTime() time.Duration {
	num := c.loadTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(c.loadTimesSum.Load()/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		PagesCrawled:        c.pagesCrawled.Load(),
		PagesSkipped:        c.pagesSkipped.Load(),
		PagesFailed:         c.pagesFailed.Load(),
		JobsStarted:         c.jobsStarted.Load(),
		JobsFailed:          c.jobsFailed.Load(),
		JobsActive:          c.jobsActive.Load(),
		BrowserLaunches:     c.browserLaunches.Load(),
		LaunchFailures:      c.launchFailures.Load(),
		TemporaryInstances:  c.temporaryInstances.Load(),
		Evictions:           c.evictions.Load(),
		Recycles:            c.recycles.Load(),
		Crashes:             c.crashes.Load(),
		RequestsTotal:       c.requestsTotal.Load(),
		RateLimited:         c.rateLimited.Load(),
		CacheHits:           c.cacheHits.Load(),
		CacheMisses:         c.cacheMisses.Load(),
		BrowserPoolSize:     c.browserPoolSize.Load(),
		BrowserPoolInUse:    c.browserPoolInUse.Load(),
		BrowserPoolCapacity: c.browserPoolCapacity.Load(),
		AverageLoadTime:     c.AverageLoadTime(),
		ErrorCounts:         make(map[string]int64),
		LoadTimeHist:        make([]int64, len(c.loadTimeBuckets)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	for i := range c.loadTimeBuckets {
		s.LoadTimeHist[i] = c.loadTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	PagesCrawled        int64            `json:"pages_crawled"`
	PagesSkipped        int64            `json:"pages_skipped"`
	PagesFailed         int64            `json:"pages_failed"`
	JobsStarted         int64            `json:"jobs_started"`
	JobsFailed          int64            `json:"jobs_failed"`
	JobsActive          int64            `json:"jobs_active"`
	BrowserLaunches     int64            `json:"browser_launches"`
	LaunchFailures      int64            `json:"launch_failures"`
	TemporaryInstances  int64            `json:"temporary_instances"`
	Evictions           int64            `json:"evictions"`
	Recycles            int64            `json:"recycles"`
	Crashes             int64            `json:"crashes"`
	RequestsTotal       int64            `json:"requests_total"`
	RateLimited         int64            `json:"rate_limited"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	BrowserPoolSize     int64            `json:"browser_pool_size"`
	BrowserPoolInUse    int64            `json:"browser_pool_in_use"`
	BrowserPoolCapacity int64            `json:"browser_pool_capacity"`
	AverageLoadTime     time.Duration    `json:"average_load_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	LoadTimeHist        []int64          `json:"load_time_histogram"`
}

// BrowserPoolUtilization returns in-use instances over capacity (0-1).
func (s *Snapshot) BrowserPoolUtilization() float64 {
	if s.BrowserPoolCapacity == 0 {
		return 0
	}
	return float64(s.BrowserPoolInUse) / float64(s.BrowserPoolCapacity)
}

// CacheHitRate returns hits over lookups (0-1).
func (s *Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Summary returns a compact map for logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":              s.Uptime.Round(time.Second).String(),
		"pages_crawled":       s.PagesCrawled,
		"pages_skipped":       s.PagesSkipped,
		"pages_failed":        s.PagesFailed,
		"jobs_active":         s.JobsActive,
		"temporary_instances": s.TemporaryInstances,
		"evictions":           s.Evictions,
		"avg_load_time_ms":    s.AverageLoadTime.Milliseconds(),
		"browser_pool_util":   s.BrowserPoolUtilization(),
		"cache_hit_rate":      s.CacheHitRate(),
	}
}

var globalCollector = New()

// SetGlobal sets the global metrics collector.
func SetGlobal(c *Collector) {
	globalCollector = c
}

// Global returns the global metrics collector.
func Global() *Collector {
	return globalCollector
}
