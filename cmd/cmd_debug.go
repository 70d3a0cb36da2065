// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jcodagnone/terroir/enrich"
	"github.com/jcodagnone/terroir/geocode"
	"github.com/spf13/cobra"
)

// isTerminal reports whether f is an interactive terminal. On stat errors
// we say that it isn't.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var (
	debugCache          string
	debugProducer       string
	debugExpectedRegion string
)

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode [query]",
	Short: "Search Nominatim and show how each candidate scores",
	Long: `Runs a query through the real Nominatim client and the place scorer,
printing every candidate with its evidence breakdown and the winner the
pipeline would pick. Without an argument, reads one query per line from
the standard input.

Cached answers are reused but new ones are not persisted, so poking at
queries never mutates the pipeline's cache file.

$ terroir debug geocode "Domaine Leflaive, Puligny-Montrachet, France"
$ terroir debug geocode --producer "Domaine Leflaive" "Leflaive Puligny"
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := geocode.NewFileStore(debugCache)
		client := geocode.NewNominatimClient(store, &geocode.NominatimOptions{
			UserAgent: userAgent(),
		})

		if len(args) > 0 {
			return debugGeocodeQuery(cmd.Context(), client, args[0])
		}

		input := os.Stdin
		if isTerminal(input) {
			fmt.Fprintln(os.Stderr, "Enter geocode queries, one per line…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}

			if err := debugGeocodeQuery(cmd.Context(), client, query); err != nil {
				return err
			}
		}

		return scanner.Err()
	},
}

func debugGeocodeQuery(ctx context.Context, client *geocode.NominatimClient, query string) error {
	candidates, err := client.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("searching %q: %w", query, err)
	}

	if len(candidates) == 0 {
		fmt.Printf("%s: no candidates\n", query)

		return nil
	}

	pctx := geocode.PlaceContext{
		ProducerName:   debugProducer,
		ExpectedRegion: debugExpectedRegion,
	}

	for i := range candidates {
		c := &candidates[i]
		score := geocode.ScorePlace(c, pctx)

		fmt.Printf("%5.2f  [%s/%s] %s\n", score.Total(), c.Class, c.Type, c.DisplayName)
		fmt.Printf("       %s\n", formatPlaceScore(score))
	}

	if best := geocode.BestPlace(candidates, pctx); best != nil {
		fmt.Printf("\nwinner  lat=%.6f lng=%.6f confidence=%.3f\n        %s\n",
			best.Lat, best.Lng, best.Confidence, best.DisplayName)
	}

	return nil
}

func formatPlaceScore(s geocode.PlaceScore) string {
	signals := []struct {
		label string
		value float64
	}{
		{"poi", s.POIClass},
		{"wine", s.WineType},
		{"tokens", s.TokenMatch},
		{"fr", s.FrenchCountry},
		{"bourgogne", s.Bourgogne},
		{"expected", s.ExpectedPlace},
	}

	parts := make([]string, 0, len(signals))

	for _, signal := range signals {
		if signal.value > 0 {
			parts = append(parts, fmt.Sprintf("%s=%.1f", signal.label, signal.value))
		}
	}

	if len(parts) == 0 {
		return "no signals"
	}

	return strings.Join(parts, " ")
}

var debugCacheCmd = &cobra.Command{
	Use:   "cache [key]",
	Short: "Inspect the geocode cache",
	Long: `Without arguments, lists every cache key and the entry counts per
namespace. With a key, dumps that entry as indented JSON.

$ terroir debug cache
$ terroir debug cache "wd_search::domaine leflaive"
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		store := geocode.NewFileStore(debugCache)

		if len(args) > 0 {
			raw, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("no cache entry for %q", args[0])
			}

			var buff bytes.Buffer
			if err := json.Indent(&buff, raw, "", "  "); err != nil {
				return fmt.Errorf("formatting entry: %w", err)
			}

			fmt.Println(buff.String())

			return nil
		}

		if store.Len() == 0 {
			fmt.Printf("cache %s is empty\n", debugCache)

			return nil
		}

		for _, key := range store.Keys() {
			fmt.Println(key)
		}

		counts := store.KeysByNamespace(geocode.SourceNominatim)

		namespaces := make([]string, 0, len(counts))
		for ns := range counts {
			namespaces = append(namespaces, ns)
		}

		sort.Strings(namespaces)

		fmt.Println()

		for _, ns := range namespaces {
			fmt.Printf("%-12s %d\n", ns, counts[ns])
		}

		fmt.Printf("%-12s %d\n", "total", store.Len())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
	debugCmd.AddCommand(debugCacheCmd)
	debugCmd.PersistentFlags().StringVar(
		&debugCache,
		"cache",
		enrich.DefaultCache,
		"Geocode cache file to read",
	)
	debugGeocodeCmd.PersistentFlags().StringVar(
		&debugProducer,
		"producer",
		"",
		"Producer name feeding the token match signal",
	)
	debugGeocodeCmd.PersistentFlags().StringVar(
		&debugExpectedRegion,
		"expected-region",
		"",
		"Sub-region the candidate is expected to mention",
	)
}
