// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/terroir/catalog"
	"github.com/jcodagnone/terroir/enrich"
	"github.com/spf13/cobra"
)

var (
	enrichOptions = enrich.Options{}
	enrichDB      string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Geocode the scraped wines and build the aggregate rollups",
	Long: `Reads the scraped catalog, resolves every sub-region and producer to
coordinates through Nominatim and Wikidata, and writes the enriched wine
list plus producer, sub-region and grape rollups as JSON and GeoJSON.

Geocoding answers are cached across runs, so a re-run over an unchanged
catalog touches no network at all.

$ terroir enrich
$ terroir enrich --db data/catalog.duckdb
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enrichOptions.UserAgent = userAgent()

		dataset, err := enrich.Run(cmd.Context(), enrichOptions)
		if err != nil {
			return err
		}

		if enrichDB == "" {
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(enrichDB), 0o750); err != nil {
			return fmt.Errorf("creating db directory: %w", err)
		}

		db, err := sql.Open("duckdb", enrichDB)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		_, err = catalog.Load(catalog.NewRepository(db), dataset)

		return err
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.PersistentFlags().StringVar(
		&enrichOptions.Input,
		"input",
		enrich.DefaultInput,
		"Scraped catalog file",
	)
	enrichCmd.PersistentFlags().StringVar(
		&enrichOptions.OutputDir,
		"output-dir",
		enrich.DefaultOutputDir,
		"Directory receiving the enriched JSON and GeoJSON files",
	)
	enrichCmd.PersistentFlags().StringVar(
		&enrichOptions.Cache,
		"cache",
		enrich.DefaultCache,
		"Persistent geocode cache file",
	)
	enrichCmd.PersistentFlags().DurationVar(
		&enrichOptions.MinDelay,
		"min-delay",
		enrich.DefaultMinDelay,
		"Minimum spacing between Nominatim requests",
	)
	enrichCmd.PersistentFlags().DurationVar(
		&enrichOptions.WikidataMinDelay,
		"wikidata-min-delay",
		enrich.DefaultWikidataMinDelay,
		"Minimum spacing between Wikidata requests",
	)
	enrichCmd.PersistentFlags().DurationVar(
		&enrichOptions.Timeout,
		"timeout",
		enrich.DefaultTimeout,
		"Bound for one geocoding request",
	)
	enrichCmd.PersistentFlags().StringVar(
		&enrichDB,
		"db",
		"",
		"Also load the enriched rows into this DuckDB catalog",
	)
	enrichCmd.PersistentFlags().BoolVar(
		&enrichOptions.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
}
