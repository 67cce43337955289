package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks HTTP attempts dispatched by the executor.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_requests_total",
		Help: "The total number of HTTP request attempts sent.",
	})
	// TotalRequestErrors tracks attempts that ended in a failure.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_request_errors_total",
		Help: "The total number of failed HTTP request attempts.",
	})
	// TotalRetries tracks retries scheduled by the retry policy.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_retries_total",
		Help: "The total number of retries scheduled after qualifying failures.",
	})
	// TotalProxyExhaustion tracks requests abandoned for lack of a healthy proxy.
	TotalProxyExhaustion = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_proxy_exhaustion_total",
		Help: "The total number of requests that found no healthy proxy.",
	})
	// TotalPagesExtracted tracks pages that produced an extraction result.
	TotalPagesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_extracted_total",
		Help: "The total number of pages successfully extracted.",
	})
)
