// Package crawler runs bounded crawl jobs and single-page scrapes on
// browsers borrowed from a browser.Pool.
package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	fetch "github.com/PentesterFlow/ScrapeIt/internal/http"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/parser"
	"github.com/PentesterFlow/ScrapeIt/internal/queue"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
	"github.com/PentesterFlow/ScrapeIt/internal/scope"
	"github.com/PentesterFlow/ScrapeIt/internal/state"
)

// pingTimeout bounds the liveness check after a failed page.
const pingTimeout = 5 * time.Second

// BrowserPool lends browser instances. *browser.Pool implements it.
type BrowserPool interface {
	Borrow(ctx context.Context, profile browser.Profile) (*browser.Instance, error)
	Release(inst *browser.Instance)
	Discard(inst *browser.Instance)
}

// Engine runs crawl jobs. One job uses one borrowed browser and one tab;
// jobs run concurrently against the shared pool.
type Engine struct {
	pool    BrowserPool
	log     *logger.Logger
	metrics *metrics.Collector
	limiter *ratelimit.Limiter
	robots  *ratelimit.RobotsManager
	client  *fetch.Client

	rngMu sync.Mutex
	rng   *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine that borrows from pool.
func NewEngine(pool BrowserPool, opts ...Option) (*Engine, error) {
	if pool == nil {
		return nil, fmt.Errorf("browser pool is required")
	}
	e := &Engine{
		pool:    pool,
		log:     logger.Global().WithComponent("engine"),
		metrics: metrics.Global(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// RunCrawl crawls from startURL and returns the pages in visit order.
func (e *Engine) RunCrawl(ctx context.Context, startURL string, policy CrawlPolicy, profile browser.Profile) (*CrawlResult, error) {
	return e.Run(ctx, Job{StartURL: startURL, Policy: policy, Profile: profile})
}

// Run executes job synchronously. On a browser crash or cancellation the
// pages crawled so far are returned together with the error.
func (e *Engine) Run(ctx context.Context, job Job) (*CrawlResult, error) {
	start, err := normalizeURL(job.StartURL)
	if err != nil {
		return nil, err
	}
	policy := job.Policy.Clone()
	if err := policy.Validate(); err != nil {
		return nil, cerrors.NewPolicyError(start, err.Error())
	}

	inst, err := e.pool.Borrow(ctx, job.Profile)
	if err != nil {
		return nil, err
	}
	result, err := e.crawl(ctx, inst, start, policy, job.Observer)
	e.giveBack(inst, err)
	return result, err
}

// giveBack returns inst to the pool, or discards it after a crash.
func (e *Engine) giveBack(inst *browser.Instance, err error) {
	if cerrors.GetErrorType(err) == cerrors.Crash {
		e.pool.Discard(inst)
		return
	}
	e.pool.Release(inst)
}

// job is the state of one running crawl. It is owned by one goroutine.
type job struct {
	start     string
	policy    CrawlPolicy
	frontier  *queue.Frontier
	visited   *state.Deduplicator
	counter   *scope.DomainCounter
	evaluator *scope.Evaluator
	result    *CrawlResult
	observe   Observer
	log       *logger.Logger
}

func (j *job) emit(t EventType, url string, depth int, err error) {
	if j.observe == nil {
		return
	}
	ev := Event{
		Type:         t,
		URL:          url,
		Depth:        depth,
		PagesCrawled: len(j.result.Pages),
		Queue:        j.frontier.Len(),
		Time:         time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	j.observe(ev)
}

func (j *job) skip(item *queue.Item, reason string, m *metrics.Collector) {
	j.result.PagesSkipped++
	m.RecordPageSkipped()
	j.log.CrawlEvent(logger.DebugLevel, item.URL, item.Depth).Str("reason", reason).Msg("Skipping URL")
	j.emit(EventSkip, item.URL, item.Depth, nil)
}

// crawl runs the BFS on inst. The caller owns the borrow.
func (e *Engine) crawl(ctx context.Context, inst *browser.Instance, start string, policy CrawlPolicy, observe Observer) (*CrawlResult, error) {
	began := time.Now()
	e.metrics.JobStarted()

	j := &job{
		start:     start,
		policy:    policy,
		frontier:  queue.NewFrontier(),
		visited:   state.NewDeduplicator(policy.MaxPages * 10),
		counter:   scope.NewDomainCounter(),
		evaluator: scope.NewEvaluator(policy.rules(start)),
		result:    &CrawlResult{StartURL: start, Pages: []PageRecord{}},
		observe:   observe,
		log:       e.log.WithURL(start),
	}

	err := e.traverse(ctx, inst, j)

	j.result.PagesCrawled = len(j.result.Pages)
	j.result.Domains = j.counter.Snapshot()
	j.result.Duration = time.Since(began)
	e.metrics.JobFinished(err)
	if cerrors.GetErrorType(err) == cerrors.Crash {
		e.metrics.RecordCrash()
	}
	j.emit(EventDone, "", j.result.MaxDepthReached, err)

	level := logger.InfoLevel
	if err != nil {
		level = logger.WarnLevel
	}
	j.log.Event(level).Err(err).
		Int("pages", j.result.PagesCrawled).
		Int("skipped", j.result.PagesSkipped).
		Int("failed", j.result.PagesFailed).
		Int("visited", j.visited.Count()).
		Dur("duration", j.result.Duration).
		Msg("Crawl finished")

	return j.result, err
}

func (e *Engine) traverse(ctx context.Context, inst *browser.Instance, j *job) error {
	page, err := inst.NewPage(ctx)
	if err != nil {
		if !e.alive(inst) {
			return cerrors.NewCrashError(j.start, err)
		}
		return cerrors.Categorize(err, j.start)
	}
	defer page.Close()

	j.frontier.Push(&queue.Item{URL: j.start, Canonical: j.evaluator.Canonical(j.start)})

	for len(j.result.Pages) < j.policy.MaxPages {
		if ctx.Err() != nil {
			return cerrors.NewCancelledError(j.start, "crawl")
		}

		item, err := j.frontier.Pop()
		if err != nil {
			return nil
		}

		if item.Depth > j.policy.MaxDepth {
			j.skip(item, "depth", e.metrics)
			continue
		}
		if j.visited.HasSeen(item.Canonical) {
			j.skip(item, "visited", e.metrics)
			continue
		}
		domain := scope.Domain(item.URL)
		if j.counter.Reached(domain, j.policy.MaxPagesPerDomain) {
			j.skip(item, "domain_cap", e.metrics)
			continue
		}
		j.visited.Add(item.Canonical)

		if j.policy.RespectRobots && e.robots != nil {
			if !e.robots.Allowed(ctx, item.URL) {
				j.skip(item, "robots", e.metrics)
				continue
			}
			if delay := e.robots.CrawlDelay(item.URL); delay > 0 && e.limiter != nil {
				e.limiter.SetDomainRate(domain, 1/delay.Seconds(), 1)
			}
		}
		if e.limiter != nil {
			if err := e.limiter.WaitDomain(ctx, domain); err != nil {
				return cerrors.NewCancelledError(j.start, "crawl")
			}
		}

		loadStart := time.Now()
		rec, hrefs, final, err := e.visit(ctx, page, item, j.policy)
		if err != nil {
			if ctx.Err() != nil {
				return cerrors.NewCancelledError(j.start, "crawl")
			}
			if !e.alive(inst) {
				j.log.CrawlEvent(logger.ErrorLevel, item.URL, item.Depth).Err(err).Msg("Browser crashed, aborting crawl")
				return cerrors.NewCrashError(item.URL, err)
			}
			j.result.PagesFailed++
			e.metrics.RecordPageFailed(cerrors.GetErrorType(err).String())
			j.log.CrawlEvent(logger.WarnLevel, item.URL, item.Depth).Err(err).Msg("Failed to crawl page")
			j.emit(EventError, item.URL, item.Depth, err)
			continue
		}

		j.counter.Inc(domain)
		j.result.Pages = append(j.result.Pages, rec)
		if item.Depth > j.result.MaxDepthReached {
			j.result.MaxDepthReached = item.Depth
		}
		e.metrics.RecordPageCrawled(time.Since(loadStart))
		j.log.CrawlEvent(logger.DebugLevel, item.URL, item.Depth).Str("title", rec.Title).Msg("Crawled page")
		j.emit(EventPage, item.URL, item.Depth, nil)

		if item.Depth >= j.policy.MaxDepth || len(j.result.Pages) >= j.policy.MaxPages {
			continue
		}
		for _, href := range hrefs {
			d := j.evaluator.EvaluateFrom(item.URL, final, href, j.visited, j.counter)
			if !d.Follow {
				continue
			}
			j.frontier.Push(&queue.Item{
				URL:       d.URL,
				Canonical: d.Canonical,
				Depth:     item.Depth + 1,
				ParentURL: item.URL,
			})
		}
	}
	return nil
}

// visit loads item and extracts its record and raw hrefs.
func (e *Engine) visit(ctx context.Context, page browser.Page, item *queue.Item, policy CrawlPolicy) (PageRecord, []string, string, error) {
	final, err := e.load(ctx, page, item.URL, loadOptions{
		timeout:     policy.pageLoadTimeout(),
		wait:        policy.DynamicContentWait,
		redirectMin: policy.RedirectMinWait,
		redirectMax: policy.RedirectMaxWait,
	})
	if err != nil {
		return PageRecord{}, nil, "", err
	}

	doc, text, err := extract(ctx, page, final)
	if err != nil {
		return PageRecord{}, nil, "", err
	}
	summary := doc.Summary()
	return PageRecord{
		URL:         item.URL,
		Title:       summary.Title,
		Description: summary.Description,
		Content:     text,
		Elements:    summary.Counts,
		Depth:       item.Depth,
		Domain:      scope.Domain(item.URL),
	}, doc.Hrefs(), final, nil
}

type loadOptions struct {
	timeout     time.Duration
	wait        time.Duration
	redirectMin time.Duration
	redirectMax time.Duration
}

// load navigates page to target, follows the delayed redirect chain of
// RedirectHost pages and waits for dynamic content. It returns the final URL.
func (e *Engine) load(ctx context.Context, page browser.Page, target string, opts loadOptions) (string, error) {
	if err := navigate(ctx, page, target, opts.timeout); err != nil {
		return "", err
	}

	if strings.Contains(target, RedirectHost) {
		wait := e.redirectWait(opts.redirectMin, opts.redirectMax)
		e.log.Event(logger.DebugLevel).Str("url", target).Dur("wait", wait).Msg("Waiting for redirect chain")
		if err := e.sleep(ctx, wait); err != nil {
			return "", cerrors.NewCancelledError(target, "redirect")
		}
		current, err := page.URL(ctx)
		if err != nil {
			return "", cerrors.NewNavigationError(target, err)
		}
		if err := navigate(ctx, page, current, opts.timeout); err != nil {
			return "", err
		}
	}

	if err := e.sleep(ctx, opts.wait); err != nil {
		return "", cerrors.NewCancelledError(target, "wait")
	}

	final, err := page.URL(ctx)
	if err != nil {
		return "", cerrors.NewNavigationError(target, err)
	}
	return final, nil
}

func navigate(ctx context.Context, page browser.Page, target string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := page.Navigate(navCtx, target)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return cerrors.NewCancelledError(target, "navigate")
	case navCtx.Err() != nil:
		return cerrors.NewTimeoutError(target, "navigate", err)
	default:
		return cerrors.NewNavigationError(target, err)
	}
}

// extract parses the DOM of the loaded page and reads its body text.
func extract(ctx context.Context, page browser.Page, pageURL string) (*parser.Document, string, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, "", cerrors.NewExtractionError(pageURL, "html", err)
	}
	p, err := parser.NewHTMLParser(pageURL)
	if err != nil {
		return nil, "", cerrors.NewExtractionError(pageURL, "parse", err)
	}
	doc, err := p.Parse(html)
	if err != nil {
		return nil, "", err
	}
	text, err := page.Text(ctx)
	if err != nil {
		return nil, "", cerrors.NewExtractionError(pageURL, "text", err)
	}
	return doc, strings.TrimSpace(text), nil
}

func (e *Engine) redirectWait(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return min + time.Duration(e.rng.Int63n(int64(max-min)+1))
}

// alive reports whether inst still answers. It uses its own deadline so a
// cancelled job can still be classified.
func (e *Engine) alive(inst *browser.Instance) bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return inst.Ping(ctx) == nil
}

// normalizeURL adds a missing scheme and rejects URLs the browser cannot load.
func normalizeURL(raw string) (string, error) {
	u := scope.EnsureScheme(raw)
	if !scope.IsValidURL(u) {
		return "", cerrors.NewPolicyError(raw, "invalid URL")
	}
	return u, nil
}
