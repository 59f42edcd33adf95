package crawling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/fetch"
	"github.com/jonathan/zeroecho/internal/metrics"
	"github.com/jonathan/zeroecho/internal/retry"
	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultConcurrency is the worker pool width when none is requested.
const DefaultConcurrency = 4

// Status is the outcome of fetching one URL.
type Status string

// Fetch outcomes.
const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// FetchOptions controls one Fetch batch.
type FetchOptions struct {
	Concurrency int
	// UseHeadless re-renders thin pages in a headless browser.
	UseHeadless bool
}

// FetchResult is the record produced for each distinct input URL.
type FetchResult struct {
	URL         string
	Status      Status
	Title       string
	Text        string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Kind        errs.Kind
	Reason      string
}

// Err returns the failure as an error, or nil for successes and skips.
func (r FetchResult) Err() error {
	if r.Status != StatusError {
		return nil
	}
	return &errs.Error{Kind: r.Kind, Op: "fetch", Message: r.Reason}
}

// RobotsPolicy decides whether a URL may be crawled.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
	CrawlDelay(host string) time.Duration
}

// Config wires the engine's collaborators. Zero values select defaults;
// nil Robots allows everything and nil History disables the cooldown.
type Config struct {
	Fetch        *fetch.Options
	Robots       RobotsPolicy
	Renderer     fetch.Renderer
	History      *History
	Freshness    Freshness
	Retry        *retry.Policy
	HostInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Engine fetches article pages in parallel with politeness rules applied.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewEngine creates a crawling engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Fetch == nil {
		cfg.Fetch = fetch.DefaultOptions()
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Freshness.Window <= 0 {
		cfg.Freshness = NewFreshness(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

// Fetch retrieves every distinct URL and returns exactly one result per URL,
// in input order. A failing URL never fails the batch. After ctx is done no
// new fetch starts; remaining URLs are reported as transient errors.
func (e *Engine) Fetch(ctx context.Context, urls []string, opts FetchOptions) []FetchResult {
	unique := dedupe(urls)
	results := make([]FetchResult, len(unique))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range unique {
		if ctx.Err() != nil {
			results[i] = errorResult(u, errs.NetworkTransient, "cancelled before fetch")
			continue
		}
		g.Go(func() error {
			start := time.Now()
			results[i] = e.fetchOne(ctx, u, opts)
			e.cfg.Metrics.ObserveFetch(string(results[i].Status), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fetchOne(ctx context.Context, rawURL string, opts FetchOptions) FetchResult {
	log := e.cfg.Logger.With(zap.String("url", rawURL))

	if ctx.Err() != nil {
		return errorResult(rawURL, errs.NetworkTransient, "cancelled before fetch")
	}
	if e.cfg.History != nil && e.cfg.History.RecentlySeen(rawURL, e.cfg.Now()) {
		log.Debug("skipping recently fetched url")
		return FetchResult{URL: rawURL, Status: StatusSkipped, Reason: "fetched within cooldown"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errorResult(rawURL, errs.ParseMalformed, "invalid URL")
	}

	if e.cfg.Robots != nil {
		allowed, err := e.cfg.Robots.Allowed(ctx, rawURL)
		if err != nil {
			return errorResult(rawURL, errs.ParseMalformed, err.Error())
		}
		if !allowed {
			log.Info("blocked by robots.txt")
			return errorResult(rawURL, errs.PolicyBlocked, "disallowed by robots.txt")
		}
	}

	res, err := retry.DoValue(ctx, e.cfg.Retry, func(ctx context.Context) (*fetch.Result, error) {
		if err := e.limiter(parsed.Host).Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.NetworkTransient, "rate limit", err)
		}
		return fetch.URL(ctx, rawURL, e.cfg.Fetch)
	}, nil)
	if err != nil {
		kind := errs.KindOf(err)
		if kind == "" {
			kind = errs.NetworkTransient
		}
		log.Warn("fetch failed", zap.String("kind", string(kind)), zap.Error(err))
		return errorResult(rawURL, kind, err.Error())
	}

	page, err := fetch.ExtractFor(res.HTML, rawURL)
	if err != nil {
		return errorResult(rawURL, errs.ParseMalformed, err.Error())
	}
	if opts.UseHeadless && e.cfg.Renderer != nil && fetch.ShouldUseBrowser(page.Text) {
		page = e.render(ctx, rawURL, page, log)
	}

	result := FetchResult{
		URL:       rawURL,
		Status:    StatusOK,
		Title:     page.Title,
		Text:      page.Text,
		FetchedAt: res.FetchedAt,
	}
	if published, ok := ParseTimestamp(page.PublishedRaw); ok {
		utc := published.UTC()
		result.PublishedAt = &utc
	}

	if !e.cfg.Freshness.Fresh(result.PublishedAt) {
		return errorResult(rawURL, errs.PolicyBlocked,
			fmt.Sprintf("stale: published %s", result.PublishedAt.Format(time.RFC3339)))
	}
	return result
}

// MarkSeen starts the refetch cooldown for rawURL. Fetch never does this
// itself; callers mark a URL once its content has been stored.
func (e *Engine) MarkSeen(rawURL string) {
	if e.cfg.History == nil {
		return
	}
	if err := e.cfg.History.Record(rawURL, e.cfg.Now()); err != nil {
		e.cfg.Logger.Warn("failed to record url history", zap.String("url", rawURL), zap.Error(err))
	}
}

// render swaps in the headless rendering when it yields more text.
func (e *Engine) render(ctx context.Context, rawURL string, page *fetch.Page, log *zap.Logger) *fetch.Page {
	html, err := e.cfg.Renderer.Render(ctx, rawURL)
	if err != nil {
		log.Warn("headless render failed, keeping http content", zap.Error(err))
		return page
	}
	rendered, err := fetch.ExtractFor(html, rawURL)
	if err != nil || len(rendered.Text) <= len(page.Text) {
		return page
	}
	if rendered.PublishedRaw == "" {
		rendered.PublishedRaw = page.PublishedRaw
	}
	return rendered
}

// limiter returns the per-host token bucket, tightened to the robots
// Crawl-delay when that is longer than the configured interval.
func (e *Engine) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	interval := e.cfg.HostInterval
	if e.cfg.Robots != nil {
		if delay := e.cfg.Robots.CrawlDelay(host); delay > interval {
			interval = delay
		}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[host]
	if !ok {
		l = rate.NewLimiter(limit, 1)
		e.limiters[host] = l
	} else if limit < l.Limit() {
		l.SetLimit(limit)
	}
	return l
}

func errorResult(rawURL string, kind errs.Kind, reason string) FetchResult {
	return FetchResult{URL: rawURL, Status: StatusError, Kind: kind, Reason: reason}
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		key := types.NormalizeURL(u)
		if u == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

// IsPermanent reports whether a failed result should not be retried on a later run.
func (r FetchResult) IsPermanent() bool {
	return r.Status == StatusError && !errs.Retryable(r.Err())
}

var errNoFeeds = errors.New("no feed URLs configured")
