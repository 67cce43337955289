package crawler

import (
	"fmt"
	"time"

	"github.com/opencrawl/opencrawl/internal/extract"
)

// Config captures every knob that influences a crawl session. A Config is
// immutable for the lifetime of one AsyncCrawler instance.
type Config struct {
	MaxConcurrentRequests int
	UserAgent             string
	DefaultHeaders        map[string]string
	DefaultCookies        map[string]string
	SSLVerify             bool
	FollowRedirects       bool
	MaxRedirects          int
	Timeout               time.Duration

	// Retry parameters.
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration

	// ProxySource is a file path, a comma-separated string, or empty for
	// pass-through mode. Proxies, when set, takes precedence over the source.
	ProxySource           string
	Proxies               []string
	ProxyTestURL          string
	ProxyProbeTimeout     time.Duration
	ProxyFailureThreshold int

	Extraction extract.Config
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentRequests: 5,
		UserAgent:             "opencrawl/1.0",
		SSLVerify:             true,
		FollowRedirects:       true,
		MaxRedirects:          10,
		Timeout:               30 * time.Second,
		MaxAttempts:           3,
		BaseDelay:             time.Second,
		BackoffFactor:         2,
		MaxDelay:              30 * time.Second,
		ProxyTestURL:          "http://httpbin.org/ip",
		ProxyProbeTimeout:     5 * time.Second,
		ProxyFailureThreshold: 3,
		Extraction:            extract.DefaultConfig(),
	}
}

// Validate checks for obviously bad configuration combinations.
func (c *Config) Validate() error {
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max_concurrent_requests must be >= 1")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent must be set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must be >= 0")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be >= 0")
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay must be >= base_delay")
	}
	if c.ProxyFailureThreshold < 1 {
		return fmt.Errorf("proxy_failure_threshold must be >= 1")
	}
	if c.ProxyProbeTimeout <= 0 {
		return fmt.Errorf("proxy_probe_timeout must be > 0")
	}
	if c.Extraction.MinTextLength < 0 {
		return fmt.Errorf("min_text_length must be >= 0")
	}
	if _, err := extract.ParseStrategy(string(c.Extraction.Strategy)); err != nil {
		return err
	}
	return nil
}
