package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencrawl/opencrawl/internal/config"
	"github.com/opencrawl/opencrawl/internal/crawler"
	"github.com/opencrawl/opencrawl/internal/logging"
)

// newCrawlCmd creates the 'crawl' subcommand. It fetches the given URLs under
// the configured concurrency gate and writes the batch results as JSON.
func newCrawlCmd() *cobra.Command {
	var urlsFile string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "crawl [urls...]",
		Short: "Fetch a list of URLs and write extracted results",
		Long: `Fetches the given URLs (from arguments or --urls-file), drives each
through proxy selection, retries, and content extraction, and writes a
JSON results file containing one record per URL in input order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, urlsFile, outputDir)
		},
	}

	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "newline-delimited file of URLs to fetch")
	cmd.Flags().StringVar(&outputDir, "output", "", "directory for the JSON results file (overrides config)")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, urlsFile, outputDir string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	urls, err := collectURLs(args, urlsFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given: pass them as arguments or via --urls-file")
	}

	crawlerCfg, err := cfg.CrawlerConfig()
	if err != nil {
		return err
	}

	engine, err := crawler.New(crawlerCfg, logging.Component(logger, "crawler"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := engine.Setup(ctx); err != nil {
		return fmt.Errorf("crawler setup: %w", err)
	}
	defer func() {
		if cerr := engine.Cleanup(); cerr != nil {
			logger.Warn("crawler cleanup failed", zap.Error(cerr))
		}
	}()

	requests := make([]crawler.CrawlRequest, 0, len(urls))
	for _, u := range urls {
		requests = append(requests, crawler.CrawlRequest{URL: u})
	}

	logger.Info("starting crawl", zap.Int("urls", len(requests)))
	responses, err := engine.FetchMany(ctx, requests)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, resp := range responses {
		if resp.OK() {
			succeeded++
		}
	}
	logger.Info("crawl finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(responses)-succeeded))

	dir := cfg.Output.Dir
	if outputDir != "" {
		dir = outputDir
	}
	sink, err := crawler.NewFileSystemSink(dir, logging.Component(logger, "sink"))
	if err != nil {
		return err
	}
	path, err := sink.WriteResults(ctx, responses)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// collectURLs merges positional arguments with an optional URLs file,
// skipping blank lines and #-comments.
func collectURLs(args []string, urlsFile string) ([]string, error) {
	urls := make([]string, 0, len(args))
	urls = append(urls, args...)

	if urlsFile != "" {
		data, err := os.ReadFile(urlsFile)
		if err != nil {
			return nil, fmt.Errorf("read urls file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
	}
	return urls, nil
}
