// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencrawl/opencrawl/internal/crawler"
	"github.com/opencrawl/opencrawl/internal/extract"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerSection    `mapstructure:"crawler"`
	Proxy      ProxySection      `mapstructure:"proxy"`
	Extraction ExtractionSection `mapstructure:"extraction"`
	Output     OutputSection     `mapstructure:"output"`
	Logging    LoggingSection    `mapstructure:"logging"`
}

// CrawlerSection governs scheduler and HTTP behavior.
type CrawlerSection struct {
	MaxConcurrentRequests int               `mapstructure:"max_concurrent_requests"`
	UserAgent             string            `mapstructure:"user_agent"`
	DefaultHeaders        map[string]string `mapstructure:"default_headers"`
	DefaultCookies        map[string]string `mapstructure:"default_cookies"`
	SSLVerify             bool              `mapstructure:"ssl_verify"`
	FollowRedirects       bool              `mapstructure:"follow_redirects"`
	MaxRedirects          int               `mapstructure:"max_redirects"`
	TimeoutSeconds        int               `mapstructure:"timeout_seconds"`
	MaxRetries            int               `mapstructure:"max_retries"`
	BaseDelaySeconds      float64           `mapstructure:"base_delay_seconds"`
	BackoffFactor         float64           `mapstructure:"backoff_factor"`
	MaxDelaySeconds       float64           `mapstructure:"max_delay_seconds"`
}

// ProxySection configures the proxy pool.
type ProxySection struct {
	Source              string `mapstructure:"source"`
	TestURL             string `mapstructure:"test_url"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"`
	FailureThreshold    int    `mapstructure:"failure_threshold"`
}

// ExtractionSection configures the content pipeline.
type ExtractionSection struct {
	Strategy         string `mapstructure:"strategy"`
	StripScripts     bool   `mapstructure:"strip_scripts"`
	StripStyles      bool   `mapstructure:"strip_styles"`
	StripComments    bool   `mapstructure:"strip_comments"`
	StripNav         bool   `mapstructure:"strip_nav"`
	StripHeaders     bool   `mapstructure:"strip_headers"`
	StripFooters     bool   `mapstructure:"strip_footers"`
	MinTextLength    int    `mapstructure:"min_text_length"`
	ExtractMetadata  bool   `mapstructure:"extract_metadata"`
	ExtractLinks     bool   `mapstructure:"extract_links"`
	ExtractImages    bool   `mapstructure:"extract_images"`
	MaxDocumentBytes int    `mapstructure:"max_document_bytes"`
}

// OutputSection sets where batch results are written.
type OutputSection struct {
	Dir string `mapstructure:"dir"`
}

// LoggingSection toggles zap development features.
type LoggingSection struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPENCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_concurrent_requests", 5)
	v.SetDefault("crawler.user_agent", "opencrawl/1.0")
	v.SetDefault("crawler.ssl_verify", true)
	v.SetDefault("crawler.follow_redirects", true)
	v.SetDefault("crawler.max_redirects", 10)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.base_delay_seconds", 1.0)
	v.SetDefault("crawler.backoff_factor", 2.0)
	v.SetDefault("crawler.max_delay_seconds", 30.0)
	v.SetDefault("proxy.test_url", "http://httpbin.org/ip")
	v.SetDefault("proxy.probe_timeout_seconds", 5)
	v.SetDefault("proxy.failure_threshold", 3)
	v.SetDefault("extraction.strategy", "content")
	v.SetDefault("extraction.strip_scripts", true)
	v.SetDefault("extraction.strip_styles", true)
	v.SetDefault("extraction.strip_comments", true)
	v.SetDefault("extraction.min_text_length", 10)
	v.SetDefault("extraction.extract_metadata", true)
	v.SetDefault("extraction.extract_links", true)
	v.SetDefault("extraction.extract_images", true)
	v.SetDefault("extraction.max_document_bytes", 5<<20)
	v.SetDefault("output.dir", "results")
	v.SetDefault("logging.development", true)
}

// CrawlerConfig converts the loaded sections into the crawler's validated
// configuration.
func (c Config) CrawlerConfig() (*crawler.Config, error) {
	strategy, err := extract.ParseStrategy(c.Extraction.Strategy)
	if err != nil {
		return nil, err
	}

	cfg := &crawler.Config{
		MaxConcurrentRequests: c.Crawler.MaxConcurrentRequests,
		UserAgent:             c.Crawler.UserAgent,
		DefaultHeaders:        c.Crawler.DefaultHeaders,
		DefaultCookies:        c.Crawler.DefaultCookies,
		SSLVerify:             c.Crawler.SSLVerify,
		FollowRedirects:       c.Crawler.FollowRedirects,
		MaxRedirects:          c.Crawler.MaxRedirects,
		Timeout:               time.Duration(c.Crawler.TimeoutSeconds) * time.Second,
		MaxAttempts:           c.Crawler.MaxRetries,
		BaseDelay:             secondsToDuration(c.Crawler.BaseDelaySeconds),
		BackoffFactor:         c.Crawler.BackoffFactor,
		MaxDelay:              secondsToDuration(c.Crawler.MaxDelaySeconds),
		ProxySource:           c.Proxy.Source,
		ProxyTestURL:          c.Proxy.TestURL,
		ProxyProbeTimeout:     time.Duration(c.Proxy.ProbeTimeoutSeconds) * time.Second,
		ProxyFailureThreshold: c.Proxy.FailureThreshold,
		Extraction: extract.Config{
			Strategy:         strategy,
			StripScripts:     c.Extraction.StripScripts,
			StripStyles:      c.Extraction.StripStyles,
			StripComments:    c.Extraction.StripComments,
			StripNav:         c.Extraction.StripNav,
			StripHeaders:     c.Extraction.StripHeaders,
			StripFooters:     c.Extraction.StripFooters,
			MinTextLength:    c.Extraction.MinTextLength,
			Metadata:         c.Extraction.ExtractMetadata,
			Links:            c.Extraction.ExtractLinks,
			Images:           c.Extraction.ExtractImages,
			MaxDocumentBytes: c.Extraction.MaxDocumentBytes,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
