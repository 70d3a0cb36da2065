// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "terroir",
	Short: "Bourgogne wine catalog scraping, geocoding and mapping",
	Long: `
terroir scrapes the Bourgogne selection of mistral.com.br, resolves every
producer and sub-region to coordinates through Nominatim and Wikidata, and
rolls the result up into enriched JSON, GeoJSON overlays and a local DuckDB
catalog with an interactive map.
`,
}

var Version = "dev"

// userAgent identifies this tool to the geocoding services, as their usage
// policies ask. The storefront scraper carries its own browser agent.
func userAgent() string {
	return fmt.Sprintf("terroir/%s (+https://github.com/jcodagnone/terroir)", Version)
}

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}

		os.Exit(1)
	}
}
