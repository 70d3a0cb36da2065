// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/jcodagnone/terroir/scrape"
	"github.com/spf13/cobra"
)

var scrapeOptions = &scrape.Options{}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the Bourgogne catalog from mistral.com.br",
	Long: `Walks every listing page of the Bourgogne region, fetches each product
page with a worker pool, merges the JSON-LD product data into the listing
hits, and writes the normalized catalog plus a raw dump for debugging.

$ terroir scrape --max-pages 1 --max-wines 5
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return scrape.NewClient(scrapeOptions).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.PersistentFlags().StringVar(
		&scrapeOptions.BaseURL,
		"base-url",
		scrape.DefaultListingURL,
		"Listing endpoint to walk",
	)
	scrapeCmd.PersistentFlags().StringVar(
		&scrapeOptions.Output,
		"output",
		scrape.DefaultOutput,
		"Normalized catalog output file",
	)
	scrapeCmd.PersistentFlags().StringVar(
		&scrapeOptions.RawOutput,
		"raw-output",
		scrape.DefaultRawOutput,
		"Raw listing and JSON-LD dump file",
	)
	scrapeCmd.PersistentFlags().BoolVar(
		&scrapeOptions.SkipRaw,
		"skip-raw",
		false,
		"Skip writing the raw dump",
	)
	scrapeCmd.PersistentFlags().StringVar(
		&scrapeOptions.UserAgent,
		"user-agent",
		"",
		"Override the browser identification sent to the storefront",
	)
	scrapeCmd.PersistentFlags().DurationVar(
		&scrapeOptions.Timeout,
		"timeout",
		scrape.DefaultTimeout,
		"Bound for one HTTP exchange",
	)
	scrapeCmd.PersistentFlags().IntVar(
		&scrapeOptions.Retries,
		"retries",
		scrape.DefaultRetries,
		"Attempts per failed request",
	)
	scrapeCmd.PersistentFlags().DurationVar(
		&scrapeOptions.Sleep,
		"sleep",
		scrape.DefaultSleep,
		"Pause between listing page requests",
	)
	scrapeCmd.PersistentFlags().IntVar(
		&scrapeOptions.Workers,
		"workers",
		scrape.DefaultWorkers,
		"Concurrent product page fetchers",
	)
	scrapeCmd.PersistentFlags().IntVar(
		&scrapeOptions.MaxPages,
		"max-pages",
		0,
		"Stop after this many listing pages, 0 walks them all",
	)
	scrapeCmd.PersistentFlags().IntVar(
		&scrapeOptions.MaxWines,
		"max-wines",
		0,
		"Stop after this many wines, 0 collects them all",
	)
	scrapeCmd.PersistentFlags().BoolVar(
		&scrapeOptions.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
	scrapeCmd.PersistentFlags().BoolVar(
		&scrapeOptions.EnableHTTPBodyTrace,
		"trace-http-body",
		false,
		"Display HTTP requests-responses bodies",
	)
}
