// Package cmd defines and implements the CLI commands for the opencrawl
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opencrawl",
		Short: "A concurrent web crawler with pluggable content extraction.",
		Long: `opencrawl fetches web pages at scale and converts raw HTML into
structured, cleaned content. It manages a bounded pool of concurrent
requests, rotates and health-checks egress proxies, retries transient
failures with exponential backoff, and extracts each page as cleaned
HTML, plain text, or markdown.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
