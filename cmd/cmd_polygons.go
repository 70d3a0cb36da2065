// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/jcodagnone/terroir/polygons"
	"github.com/spf13/cobra"
)

var polygonsOptions = polygons.Options{}

var polygonsCmd = &cobra.Command{
	Use:   "polygons",
	Short: "Fetch sub-region boundary polygons from Nominatim",
	Long: `Queries Nominatim for the administrative boundary of every sub-region in
the enriched rollup, picks the best polygon per sub-region, and writes the
GeoJSON overlay together with a coverage report.

Uses a cache of its own, separate from the geocode cache: polygon geometry
is orders of magnitude larger than point answers.

$ terroir polygons
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		polygonsOptions.UserAgent = userAgent()

		_, err := polygons.Run(cmd.Context(), polygonsOptions)

		return err
	},
}

func init() {
	rootCmd.AddCommand(polygonsCmd)
	polygonsCmd.PersistentFlags().StringVar(
		&polygonsOptions.Input,
		"input",
		polygons.DefaultInput,
		"Enriched sub-region rollup file",
	)
	polygonsCmd.PersistentFlags().StringVar(
		&polygonsOptions.Output,
		"output",
		polygons.DefaultOutput,
		"GeoJSON overlay output file",
	)
	polygonsCmd.PersistentFlags().StringVar(
		&polygonsOptions.ReportPath,
		"report",
		polygons.DefaultReport,
		"Coverage report output file",
	)
	polygonsCmd.PersistentFlags().StringVar(
		&polygonsOptions.Cache,
		"cache",
		polygons.DefaultCache,
		"Persistent polygon response cache file",
	)
	polygonsCmd.PersistentFlags().DurationVar(
		&polygonsOptions.MinDelay,
		"min-delay",
		polygons.DefaultMinDelay,
		"Minimum spacing between Nominatim requests",
	)
	polygonsCmd.PersistentFlags().DurationVar(
		&polygonsOptions.Timeout,
		"timeout",
		polygons.DefaultTimeout,
		"Bound for one request",
	)
	polygonsCmd.PersistentFlags().BoolVar(
		&polygonsOptions.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
}
