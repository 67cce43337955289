// Package crawler implements the crawling engine: the bounded-concurrency
// scheduler, the proxy pool, the retry policy, and the HTTP executor.
package crawler

import (
	"time"

	"github.com/opencrawl/opencrawl/internal/extract"
)

// CrawlRequest captures everything needed to fetch one URL. A request is
// treated as immutable once handed to the crawler.
type CrawlRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Cookies map[string]string `json:"cookies,omitempty"`

	// Per-request overrides. Zero values mean "use the crawler config".
	Timeout         time.Duration     `json:"timeout,omitempty"`
	Proxy           string            `json:"proxy,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty"`
	Strategy        extract.Strategy  `json:"extraction_strategy,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CrawlResponse is the terminal outcome of one request. Exactly one of
// Extracted and Err is set.
type CrawlResponse struct {
	Request  CrawlRequest `json:"request"`
	FinalURL string       `json:"final_url,omitempty"`

	// StatusCode is zero when the request never produced an HTTP response.
	StatusCode int           `json:"status_code,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Attempts   int           `json:"attempts"`
	ProxyUsed  string        `json:"proxy_used,omitempty"`

	Extracted *extract.Result `json:"extracted,omitempty"`
	Err       *CrawlError     `json:"error,omitempty"`
}

// OK reports whether the request ended in extracted content.
func (r CrawlResponse) OK() bool {
	return r.Err == nil && r.Extracted != nil
}

// ResultRecord is the serialized shape handed to downstream consumers and
// written by the result sink: url, content, metadata, error.
type ResultRecord struct {
	URL      string            `json:"url"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    *CrawlError       `json:"error,omitempty"`
}

// Record flattens a response into its persisted form.
func (r CrawlResponse) Record() ResultRecord {
	rec := ResultRecord{URL: r.Request.URL, Error: r.Err}
	if r.Extracted != nil {
		rec.Content = r.Extracted.Content
		rec.Metadata = r.Extracted.Metadata
	}
	return rec
}
