package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencrawl/opencrawl/internal/extract"
)

const testPage = `<html><head><title>Test Page</title>
<meta name="description" content="A page for tests">
</head><body><main>
<p>This paragraph is comfortably longer than the minimum text length.</p>
</main></body></html>`

func testCrawlerConfig() *Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	return cfg
}

func newReadyCrawler(t *testing.T, cfg *Config) *AsyncCrawler {
	t.Helper()
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Setup(context.Background()))
	t.Cleanup(func() { _ = c.Cleanup() })
	return c
}

func TestCrawler_FetchBeforeSetup(t *testing.T) {
	t.Parallel()
	c, err := New(testCrawlerConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), CrawlRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ErrNotSetup)

	_, err = c.FetchMany(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotSetup)
}

func TestCrawler_FetchSuccessExtractsContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	c := newReadyCrawler(t, testCrawlerConfig())
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: srv.URL})
	require.NoError(t, err)

	require.True(t, resp.OK())
	require.Nil(t, resp.Err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, resp.Attempts)
	require.Contains(t, resp.Extracted.Content, "comfortably longer")
	require.Equal(t, "Test Page", resp.Extracted.Metadata["title"])
	require.Equal(t, "A page for tests", resp.Extracted.Metadata["description"])
}

func TestCrawler_ConcurrencyGateNeverExceeded(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.MaxConcurrentRequests = 4
	c := newReadyCrawler(t, cfg)

	reqs := make([]CrawlRequest, 20)
	for i := range reqs {
		reqs[i] = CrawlRequest{URL: fmt.Sprintf("%s/page/%d", srv.URL, i)}
	}

	responses, err := c.FetchMany(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, responses, 20)
	for _, resp := range responses {
		require.True(t, resp.OK())
	}
	require.LessOrEqual(t, peak.Load(), int64(4))
}

func TestCrawler_FetchManyPreservesInputOrder(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(40 * time.Millisecond)
		fmt.Fprint(w, testPage)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	})

	c := newReadyCrawler(t, testCrawlerConfig())
	responses, err := c.FetchMany(context.Background(), []CrawlRequest{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/b"},
		{URL: srv.URL + "/c"},
	})
	require.NoError(t, err)
	require.Len(t, responses, 3)

	require.True(t, responses[0].OK())
	require.Equal(t, srv.URL+"/a", responses[0].Request.URL)

	require.False(t, responses[1].OK())
	require.NotNil(t, responses[1].Err)
	require.Equal(t, KindHTTPStatus, responses[1].Err.Kind)
	require.Equal(t, http.StatusNotFound, responses[1].Err.StatusCode)
	require.Nil(t, responses[1].Extracted)

	require.True(t, responses[2].OK())
	require.Equal(t, srv.URL+"/c", responses[2].Request.URL)
}

func TestCrawler_ServerErrorRetriedUntilBudgetSpent(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream sad", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newReadyCrawler(t, testCrawlerConfig())
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: srv.URL})
	require.NoError(t, err)

	require.NotNil(t, resp.Err)
	require.Equal(t, KindHTTPStatus, resp.Err.Kind)
	require.Equal(t, http.StatusServiceUnavailable, resp.Err.StatusCode)
	require.Equal(t, 3, resp.Attempts)
	require.Equal(t, int64(3), hits.Load())
}

func TestCrawler_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newReadyCrawler(t, testCrawlerConfig())
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: srv.URL})
	require.NoError(t, err)

	require.NotNil(t, resp.Err)
	require.Equal(t, 1, resp.Attempts)
	require.Equal(t, int64(1), hits.Load())
}

func TestCrawler_TransientFailureRecovers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "warming up", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	c := newReadyCrawler(t, testCrawlerConfig())
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: srv.URL})
	require.NoError(t, err)

	require.True(t, resp.OK())
	require.Equal(t, 3, resp.Attempts)
}

func TestCrawler_MalformedURL(t *testing.T) {
	t.Parallel()

	c := newReadyCrawler(t, testCrawlerConfig())
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: "not a url"})
	require.NoError(t, err)

	require.NotNil(t, resp.Err)
	require.Equal(t, KindMalformedURL, resp.Err.Kind)
	require.Zero(t, resp.Attempts)
}

func TestCrawler_CanceledContext(t *testing.T) {
	t.Parallel()

	c := newReadyCrawler(t, testCrawlerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := c.Fetch(ctx, CrawlRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	require.Equal(t, KindCanceled, resp.Err.Kind)
}

func TestCrawler_ProxyExhaustionIsTerminal(t *testing.T) {
	t.Parallel()

	cfg := testCrawlerConfig()
	cfg.Proxies = []string{"10.255.0.1:8080"}
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	c.pool.probe = func(*ProxyRecord) error { return fmt.Errorf("refused") }
	require.NoError(t, c.Setup(context.Background()))
	defer func() { _ = c.Cleanup() }()

	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: "http://example.com"})
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	require.Equal(t, KindProxyExhaustion, resp.Err.Kind)
}

func TestCrawler_FetchThroughProxy(t *testing.T) {
	t.Parallel()

	// The test proxy answers every absolute-URI request itself, which is all
	// a plain HTTP proxy does from the client's point of view.
	var proxied atomic.Int64
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Add(1)
		fmt.Fprint(w, testPage)
	}))
	defer proxy.Close()

	cfg := testCrawlerConfig()
	cfg.Proxies = []string{proxy.URL}
	cfg.ProxyTestURL = "http://upstream.test/ip"
	c := newReadyCrawler(t, cfg)

	require.Equal(t, 1, c.ProxyPool().HealthyCount())

	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: "http://target.test/page"})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.NotEmpty(t, resp.ProxyUsed)
	// One validation probe plus one fetch.
	require.Equal(t, int64(2), proxied.Load())
}

func TestCrawler_PerRequestOverrides(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotAgent, gotLang, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		mu.Unlock()
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.UserAgent = "default-agent/1.0"
	cfg.DefaultHeaders = map[string]string{"Accept-Language": "en"}
	cfg.DefaultCookies = map[string]string{"session": "default"}
	c := newReadyCrawler(t, cfg)

	resp, err := c.Fetch(context.Background(), CrawlRequest{
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "override-agent/2.0"},
		Cookies: map[string]string{"session": "override"},
	})
	require.NoError(t, err)
	require.True(t, resp.OK())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "override-agent/2.0", gotAgent)
	require.Equal(t, "en", gotLang)
	require.Equal(t, "override", gotCookie)
}

func TestCrawler_PerRequestStrategyOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.Extraction.Strategy = extract.StrategyContent
	c := newReadyCrawler(t, cfg)

	resp, err := c.Fetch(context.Background(), CrawlRequest{
		URL:      srv.URL,
		Strategy: extract.StrategyHTML,
	})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, extract.StrategyHTML, resp.Extracted.Strategy)
	require.Contains(t, resp.Extracted.Content, "<html>")
}

func TestCrawler_RetriesAreSequential(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var concurrent, maxConcurrent int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		concurrent--
		mu.Unlock()
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.MaxAttempts = 4
	c := newReadyCrawler(t, cfg)

	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, 4, resp.Attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, maxConcurrent)
}

func TestCrawler_MidFlightCancellationReleasesGate(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			fmt.Fprint(w, testPage)
		}
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))
	defer fast.Close()

	cfg := testCrawlerConfig()
	cfg.MaxConcurrentRequests = 2
	c := newReadyCrawler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	reqs := make([]CrawlRequest, 4)
	for i := range reqs {
		reqs[i] = CrawlRequest{URL: fmt.Sprintf("%s/page/%d", slow.URL, i)}
	}
	responses, err := c.FetchMany(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, responses, 4)
	for _, resp := range responses {
		require.NotNil(t, resp.Err)
		require.Equal(t, KindCanceled, resp.Err.Kind)
	}

	// Every permit must be back: a fresh request acquires the gate at once.
	resp, err := c.Fetch(context.Background(), CrawlRequest{URL: fast.URL})
	require.NoError(t, err)
	require.True(t, resp.OK())
}

func TestCrawler_CancellationDoesNotDemoteProxy(t *testing.T) {
	t.Parallel()

	// Probes answer immediately, fetches hang until the caller gives up.
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ip" {
			fmt.Fprint(w, `{"origin":"127.0.0.1"}`)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			fmt.Fprint(w, testPage)
		}
	}))
	defer proxy.Close()

	cfg := testCrawlerConfig()
	cfg.Proxies = []string{proxy.URL}
	cfg.ProxyTestURL = "http://upstream.test/ip"
	c := newReadyCrawler(t, cfg)
	require.Equal(t, 1, c.ProxyPool().HealthyCount())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	resp, err := c.Fetch(ctx, CrawlRequest{URL: "http://target.test/slow"})
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	require.Equal(t, KindCanceled, resp.Err.Kind)

	// The abort must not count against the proxy.
	require.Equal(t, 1, c.ProxyPool().HealthyCount())
	rec := c.ProxyPool().records[0]
	require.Equal(t, HealthHealthy, rec.Health)
	require.Zero(t, rec.ConsecutiveFailures)
}
