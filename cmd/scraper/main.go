package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scraper",
		Short: "ScrapeIt - headless browser scraper",
		Long: `ScrapeIt - scrape and crawl web pages through a pool of headless browsers.

Serves the scraping HTTP API or runs one-off scrapes and crawls from the command line.
Settings are read from --config and SCRAPER_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Settings file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newScrapeCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSettingsCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
