package crawler

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// resolvedRequest is a CrawlRequest after merging config defaults with
// per-request overrides and binding a proxy for this attempt.
type resolvedRequest struct {
	method          string
	url             string
	headers         map[string]string
	cookies         map[string]string
	timeout         time.Duration
	followRedirects bool
	proxy           *url.URL
}

// exchange is the raw outcome of one successful HTTP round trip (any status).
type exchange struct {
	StatusCode int
	FinalURL   string
	Headers    http.Header
	Body       []byte
}

// Executor performs single HTTP exchanges. Transports are cached per proxy so
// connection pools are reused across requests and torn down only at Close.
type Executor struct {
	cfg    *Config
	logger *zap.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport
}

func newExecutor(cfg *Config, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:        cfg,
		logger:     logger,
		transports: make(map[string]*http.Transport),
	}
}

// transportFor returns the shared transport for the given proxy (nil means a
// direct connection), creating it on first use.
func (e *Executor) transportFor(proxy *url.URL) *http.Transport {
	key := ""
	if proxy != nil {
		key = proxy.String()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if tr, ok := e.transports[key]; ok {
		return tr
	}

	tr := &http.Transport{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     e.cfg.MaxConcurrentRequests * 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if proxy != nil {
		tr.Proxy = http.ProxyURL(proxy)
	}
	if !e.cfg.SSLVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	e.transports[key] = tr
	return tr
}

// Do executes one exchange. The returned error is transport-level only; a
// response with a failure status is still a non-error exchange.
func (e *Executor) Do(ctx context.Context, r resolvedRequest) (*exchange, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	client := &http.Client{
		Transport: e.transportFor(r.proxy),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !r.followRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= e.cfg.MaxRedirects {
				return errRedirectLimit
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for name, value := range r.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := int64(e.cfg.Extraction.MaxDocumentBytes)
	var reader io.Reader = resp.Body
	if limit > 0 {
		// One byte over so the pipeline's size guard can reject the page.
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &exchange{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Close releases all pooled connections.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tr := range e.transports {
		tr.CloseIdleConnections()
	}
	e.transports = make(map[string]*http.Transport)
}
