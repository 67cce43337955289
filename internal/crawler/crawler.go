package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/opencrawl/opencrawl/internal/extract"
)

// AsyncCrawler drives each request through proxy selection, the HTTP
// executor, the retry loop, and the extraction pipeline, admitting at most
// MaxConcurrentRequests requests at a time.
type AsyncCrawler struct {
	cfg      *Config
	pool     *ProxyPool
	executor *Executor
	pipeline *extract.Pipeline
	policy   *RetryPolicy
	gate     *semaphore.Weighted
	logger   *zap.Logger

	mu    sync.Mutex
	ready bool
}

// ErrNotSetup is returned when Fetch or FetchMany is called before Setup.
var ErrNotSetup = errors.New("crawler not set up: call Setup first")

// New constructs an AsyncCrawler. The configuration is validated here and
// treated as immutable afterwards.
func New(cfg *Config, logger *zap.Logger) (*AsyncCrawler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler config: %w", err)
	}

	entries, err := LoadProxyEntries(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := NewProxyPool(entries, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &AsyncCrawler{
		cfg:      cfg,
		pool:     pool,
		executor: newExecutor(cfg, logger),
		pipeline: extract.NewPipeline(cfg.Extraction, logger),
		policy:   NewRetryPolicy(cfg),
		gate:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		logger:   logger,
	}, nil
}

// ProxyPool exposes the crawler's pool, mainly for inspection and tests.
func (c *AsyncCrawler) ProxyPool() *ProxyPool {
	return c.pool
}

// Setup acquires connection resources and validates the configured proxies.
// It must be called once before Fetch or FetchMany.
func (c *AsyncCrawler) Setup(ctx context.Context) error {
	if err := c.pool.ValidateAll(ctx); err != nil {
		return fmt.Errorf("validate proxies: %w", err)
	}
	if n := c.pool.Len(); n > 0 {
		c.logger.Info("proxy pool validated",
			zap.Int("configured", n),
			zap.Int("healthy", c.pool.HealthyCount()))
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Cleanup releases all held connection resources. Safe to call once all
// in-flight work has completed.
func (c *AsyncCrawler) Cleanup() error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	c.executor.Close()
	return nil
}

func (c *AsyncCrawler) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Fetch executes one request end to end: gate admission, the retry loop, and
// extraction on success. Per-request failures are reported in the response;
// the returned error is non-nil only when the crawler itself is unusable.
func (c *AsyncCrawler) Fetch(ctx context.Context, req CrawlRequest) (CrawlResponse, error) {
	if !c.isReady() {
		return CrawlResponse{}, ErrNotSetup
	}

	start := time.Now()
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return c.failed(req, start, 0, "", newCrawlError(KindCanceled, 0, 0, err)), nil
	}
	defer c.gate.Release(1)

	return c.fetchLocked(ctx, req, start), nil
}

// FetchMany admits the requests under the concurrency gate and returns their
// responses in input order regardless of completion order. One request's
// failure never aborts the batch.
func (c *AsyncCrawler) FetchMany(ctx context.Context, reqs []CrawlRequest) ([]CrawlResponse, error) {
	if !c.isReady() {
		return nil, ErrNotSetup
	}

	results := make([]CrawlResponse, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			if err := c.gate.Acquire(ctx, 1); err != nil {
				results[i] = c.failed(req, start, 0, "", newCrawlError(KindCanceled, 0, 0, err))
				return
			}
			defer c.gate.Release(1)
			results[i] = c.fetchLocked(ctx, req, start)
		}()
	}
	wg.Wait()
	return results, nil
}

// fetchLocked runs the retry loop for one admitted request. Attempts are
// strictly sequential.
func (c *AsyncCrawler) fetchLocked(ctx context.Context, req CrawlRequest, start time.Time) CrawlResponse {
	normalized, err := NormalizeURL(req.URL)
	if err != nil {
		return c.failed(req, start, 0, "", newCrawlError(KindMalformedURL, 0, 0, err))
	}

	overrideProxy, err := c.requestProxy(req)
	if err != nil {
		return c.failed(req, start, 0, "", newCrawlError(KindMalformedURL, 0, 0, err))
	}

	attempts := 0
	for attemptIndex := 0; ; attemptIndex++ {
		proxyRec, proxyURL, err := c.selectProxy(overrideProxy)
		if err != nil {
			TotalProxyExhaustion.Inc()
			return c.failed(req, start, attempts, "", newCrawlError(KindProxyExhaustion, 0, attempts, err))
		}

		attempts++
		TotalRequests.Inc()
		ex, execErr := c.executor.Do(ctx, c.resolve(req, normalized, proxyURL))

		var kind FailureKind
		var status int
		switch {
		case execErr != nil:
			kind = classifyError(execErr, proxyURL != nil)
			// A canceled attempt says nothing about the proxy's health, so
			// it neither demotes nor credits the record.
			if kind != KindCanceled {
				c.reportProxyOutcome(proxyRec, false)
			}
		default:
			c.reportProxyOutcome(proxyRec, true)
			status = ex.StatusCode
			kind = classifyStatus(status)
		}

		if kind == "" {
			return c.succeeded(req, start, attempts, proxyAddr(proxyURL), ex)
		}

		TotalRequestErrors.Inc()
		c.logger.Debug("attempt failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempts),
			zap.String("kind", string(kind)),
			zap.Int("status", status),
			zap.Error(execErr))

		if kind == KindCanceled {
			return c.failed(req, start, attempts, proxyAddr(proxyURL), newCrawlError(kind, status, attempts, execErr))
		}

		decision := c.policy.Decide(attemptIndex, kind, status)
		if !decision.Retry {
			return c.failed(req, start, attempts, proxyAddr(proxyURL), newCrawlError(kind, status, attempts, execErr))
		}

		TotalRetries.Inc()
		if err := sleepCtx(ctx, decision.Delay); err != nil {
			return c.failed(req, start, attempts, proxyAddr(proxyURL), newCrawlError(KindCanceled, status, attempts, err))
		}
	}
}

// succeeded hands the body to the extraction pipeline and assembles the final
// response. Extraction problems surface as a per-page error, never a retry.
func (c *AsyncCrawler) succeeded(req CrawlRequest, start time.Time, attempts int, proxyUsed string, ex *exchange) CrawlResponse {
	strategy := c.cfg.Extraction.Strategy
	if req.Strategy != "" {
		strategy = req.Strategy
	}

	result, err := c.pipeline.RunStrategy(strategy, ex.FinalURL, string(ex.Body))
	if err != nil {
		return CrawlResponse{
			Request:    req,
			FinalURL:   ex.FinalURL,
			StatusCode: ex.StatusCode,
			Elapsed:    time.Since(start),
			Attempts:   attempts,
			ProxyUsed:  proxyUsed,
			Err:        newCrawlError(KindExtraction, ex.StatusCode, attempts, err),
		}
	}

	TotalPagesExtracted.Inc()
	return CrawlResponse{
		Request:    req,
		FinalURL:   ex.FinalURL,
		StatusCode: ex.StatusCode,
		Elapsed:    time.Since(start),
		Attempts:   attempts,
		ProxyUsed:  proxyUsed,
		Extracted:  result,
	}
}

func (c *AsyncCrawler) failed(req CrawlRequest, start time.Time, attempts int, proxyUsed string, cerr *CrawlError) CrawlResponse {
	return CrawlResponse{
		Request:    req,
		StatusCode: cerr.StatusCode,
		Elapsed:    time.Since(start),
		Attempts:   attempts,
		ProxyUsed:  proxyUsed,
		Err:        cerr,
	}
}

// requestProxy parses a per-request proxy override, if any.
func (c *AsyncCrawler) requestProxy(req CrawlRequest) (*url.URL, error) {
	if req.Proxy == "" {
		return nil, nil
	}
	return ParseProxyEntry(req.Proxy)
}

// selectProxy binds a proxy for this attempt: the per-request override wins,
// otherwise the pool's round-robin choice. The record is nil when the proxy
// did not come from the pool.
func (c *AsyncCrawler) selectProxy(override *url.URL) (*ProxyRecord, *url.URL, error) {
	if override != nil {
		return nil, override, nil
	}
	rec, err := c.pool.Acquire()
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, nil
	}
	return rec, rec.URL, nil
}

func (c *AsyncCrawler) reportProxyOutcome(rec *ProxyRecord, success bool) {
	if rec == nil {
		return
	}
	if success {
		c.pool.ReportSuccess(rec)
	} else {
		c.pool.ReportFailure(rec)
	}
}

// resolve merges config defaults with per-request overrides; the request
// always wins.
func (c *AsyncCrawler) resolve(req CrawlRequest, normalizedURL string, proxy *url.URL) resolvedRequest {
	headers := make(map[string]string, len(c.cfg.DefaultHeaders)+len(req.Headers)+1)
	headers["User-Agent"] = c.cfg.UserAgent
	for k, v := range c.cfg.DefaultHeaders {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range req.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	cookies := make(map[string]string, len(c.cfg.DefaultCookies)+len(req.Cookies))
	for k, v := range c.cfg.DefaultCookies {
		cookies[k] = v
	}
	for k, v := range req.Cookies {
		cookies[k] = v
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := c.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	follow := c.cfg.FollowRedirects
	if req.FollowRedirects != nil {
		follow = *req.FollowRedirects
	}

	return resolvedRequest{
		method:          method,
		url:             normalizedURL,
		headers:         headers,
		cookies:         cookies,
		timeout:         timeout,
		followRedirects: follow,
		proxy:           proxy,
	}
}

func proxyAddr(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
