// Package extract turns raw HTML into one of several normalized
// representations: cleaned HTML, visible text content, or markdown.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Strategy selects the output representation produced by the pipeline.
type Strategy string

// Supported extraction strategies.
const (
	StrategyHTML     Strategy = "html"
	StrategyContent  Strategy = "content"
	StrategyMarkdown Strategy = "markdown"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyHTML:
		return StrategyHTML, nil
	case StrategyContent:
		return StrategyContent, nil
	case StrategyMarkdown:
		return StrategyMarkdown, nil
	default:
		return "", fmt.Errorf("unknown extraction strategy %q", raw)
	}
}

// Config holds the cleaning and extraction toggles.
type Config struct {
	Strategy      Strategy
	StripScripts  bool
	StripStyles   bool
	StripComments bool
	StripNav      bool
	StripHeaders  bool
	StripFooters  bool
	MinTextLength int
	Metadata      bool
	Links         bool
	Images        bool

	// MaxDocumentBytes bounds parser input so one huge page cannot starve
	// other in-flight fetches. Zero disables the guard.
	MaxDocumentBytes int
}

// DefaultConfig mirrors the defaults applied by the config loader.
func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyContent,
		StripScripts:     true,
		StripStyles:      true,
		StripComments:    true,
		MinTextLength:    10,
		Metadata:         true,
		Links:            true,
		Images:           true,
		MaxDocumentBytes: 5 << 20,
	}
}

// Result is the normalized output of one extraction.
type Result struct {
	Strategy Strategy          `json:"strategy"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Links    []string          `json:"links,omitempty"`
	Images   []string          `json:"images,omitempty"`
}

// Pipeline parses raw HTML and produces a Result per the configured strategy.
// A Pipeline is stateless after construction and safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Run extracts with the pipeline's configured strategy.
func (p *Pipeline) Run(baseURL, html string) (*Result, error) {
	return p.RunStrategy(p.cfg.Strategy, baseURL, html)
}

// RunStrategy extracts with an explicit strategy, used when a request
// overrides the configured one.
func (p *Pipeline) RunStrategy(strategy Strategy, baseURL, html string) (*Result, error) {
	if p.cfg.MaxDocumentBytes > 0 && len(html) > p.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("document size %d exceeds limit %d", len(html), p.cfg.MaxDocumentBytes)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	cleanDocument(doc, p.cfg)

	res := &Result{Strategy: strategy}
	if p.cfg.Metadata {
		res.Metadata = extractMetadata(doc)
	}
	if p.cfg.Links {
		res.Links = extractLinks(doc, baseURL)
	}
	if p.cfg.Images {
		res.Images = extractImages(doc, baseURL)
	}

	switch strategy {
	case StrategyHTML:
		res.Content, err = doc.Html()
		if err != nil {
			return nil, fmt.Errorf("serialize html: %w", err)
		}
	case StrategyContent:
		res.Content = contentText(doc, p.cfg)
	case StrategyMarkdown:
		res.Content = toMarkdown(doc, baseURL, p.cfg)
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", strategy)
	}

	return res, nil
}

// mainContent returns the most content-bearing region of the document,
// preferring main and article over the whole body.
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"main", "article", "body"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Selection
}

// normalizeSpace collapses runs of whitespace into single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
