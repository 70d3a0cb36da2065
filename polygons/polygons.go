// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package polygons fetches boundary geometries for the catalog's
// sub-regions from Nominatim, scores the candidates down to administrative
// polygons, and writes a GeoJSON overlay plus a coverage report.
package polygons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/spatial"
	"github.com/jcodagnone/terroir/utils/textutils"
)

// Defaults for a production run. The cache is separate from the geocode
// cache: polygon responses carry full geometries and would bloat it.
const (
	DefaultInput  = "data/bourgogne-subregions.enriched.json"
	DefaultOutput = "data/bourgogne-subregions.polygons.geojson"
	DefaultReport = "data/bourgogne-subregions.polygons.report.json"
	DefaultCache  = "data/subregion-polygons-cache.json"

	DefaultMinDelay = geocode.DefaultNominatimDelay
	DefaultTimeout  = geocode.DefaultTimeout
)

const polygonSource = "nominatim_polygon"

// ErrNoSubRegions reports an input file without usable sub-region names.
var ErrNoSubRegions = errors.New("no sub-regions to fetch")

// Searcher is the slice of the Nominatim client the fetcher needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]geocode.Candidate, error)
}

// Options configure a polygon fetch run.
type Options struct {
	// Input is the enriched sub-region rollup file.
	Input string

	// Output is the GeoJSON overlay file.
	Output string

	// ReportPath is the coverage report file.
	ReportPath string

	// Cache is the persistent response cache file.
	Cache string

	// Endpoint overrides the search URL (tests).
	Endpoint string

	// MinDelay spaces Nominatim requests.
	MinDelay time.Duration

	// Timeout bounds each request.
	Timeout time.Duration

	// UserAgent identifies us to the service.
	UserAgent string

	// EnableHTTPTrace dumps HTTP traffic to stderr.
	EnableHTTPTrace bool
}

// Properties annotate one boundary feature.
type Properties struct {
	ID          string  `json:"id"`
	SubRegion   string  `json:"sub_region"`
	DisplayName string  `json:"display_name"`
	Source      string  `json:"source"`
	Query       string  `json:"query"`
	Score       float64 `json:"score"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ItemType    string  `json:"item_type"`
	ItemClass   string  `json:"item_class"`
}

// Match is one matched sub-region in the report.
type Match struct {
	SubRegion   string  `json:"sub_region"`
	Query       string  `json:"query"`
	Score       float64 `json:"score"`
	DisplayName string  `json:"display_name"`
	ItemType    string  `json:"item_type"`
	ItemClass   string  `json:"item_class"`
}

// Report summarizes a fetch run.
type Report struct {
	GeneratedAtUnix int64    `json:"generated_at_unix"`
	Total           int      `json:"total"`
	Matched         int      `json:"matched"`
	Missing         []string `json:"missing"`
	Matches         []Match  `json:"matches"`
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// LoadSubRegions reads the enriched sub-region rollup and returns the
// distinct real sub-region names, sorted. The "Unknown" bucket is not a
// place and is skipped.
func LoadSubRegions(path string) ([]string, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sub-regions: %w", err)
	}

	var payload struct {
		Items []struct {
			SubRegion string `json:"sub_region"`
		} `json:"items"`
	}

	if err := json.Unmarshal(buff, &payload); err != nil {
		return nil, fmt.Errorf("decoding sub-regions %s: %w", path, err)
	}

	set := make(map[string]struct{})

	for _, item := range payload.Items {
		sr := textutils.NormSpace(item.SubRegion)
		if sr == "" || strings.EqualFold(sr, "unknown") {
			continue
		}

		set[sr] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for sr := range set {
		out = append(out, sr)
	}

	sort.Strings(out)

	return out, nil
}

// Fetch resolves one boundary per sub-region, trying each query phrasing
// until the scorer picks a candidate. A sub-region every phrasing misses
// lands in the report's missing list; only transport faults abort the run.
func Fetch(ctx context.Context, subRegions []string, searcher Searcher) (spatial.FeatureCollection, *Report, error) {
	features := make([]spatial.Feature, 0, len(subRegions))
	report := &Report{
		GeneratedAtUnix: time.Now().Unix(),
		Total:           len(subRegions),
		Missing:         []string{},
		Matches:         []Match{},
	}

	for i, subRegion := range subRegions {
		var (
			selected *Candidate
			query    string
		)

		for _, q := range queryOptions(subRegion) {
			results, err := searcher.Search(ctx, q)
			if err != nil {
				return spatial.FeatureCollection{}, nil, fmt.Errorf("searching %q: %w", q, err)
			}

			if selected = choosePolygon(results, subRegion); selected != nil {
				query = q

				break
			}
		}

		if selected == nil {
			report.Missing = append(report.Missing, subRegion)
			log.Printf("[%d/%d] %s: miss", i+1, len(subRegions), subRegion)

			continue
		}

		features = append(features, spatial.NewRawFeature(selected.Geometry, Properties{
			ID:          textutils.Slug(subRegion),
			SubRegion:   subRegion,
			DisplayName: selected.DisplayName,
			Source:      polygonSource,
			Query:       query,
			Score:       round3(selected.Score),
			Lat:         selected.Lat,
			Lng:         selected.Lng,
			ItemType:    selected.ItemType,
			ItemClass:   selected.ItemClass,
		}))

		report.Matches = append(report.Matches, Match{
			SubRegion:   subRegion,
			Query:       query,
			Score:       round3(selected.Score),
			DisplayName: selected.DisplayName,
			ItemType:    selected.ItemType,
			ItemClass:   selected.ItemClass,
		})

		log.Printf("[%d/%d] %s: ok (%s/%s)", i+1, len(subRegions), subRegion,
			selected.ItemClass, selected.ItemType)
	}

	report.Matched = len(features)

	return spatial.NewFeatureCollection(features), report, nil
}

// Run loads the sub-region names, fetches their boundaries through a cached
// Nominatim client, writes the overlay and the report, then saves the cache.
func Run(ctx context.Context, options Options) (*Report, error) {
	if options.Input == "" {
		options.Input = DefaultInput
	}

	if options.Output == "" {
		options.Output = DefaultOutput
	}

	if options.ReportPath == "" {
		options.ReportPath = DefaultReport
	}

	if options.Cache == "" {
		options.Cache = DefaultCache
	}

	if options.MinDelay <= 0 {
		options.MinDelay = DefaultMinDelay
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}

	subRegions, err := LoadSubRegions(options.Input)
	if err != nil {
		return nil, err
	}

	if len(subRegions) == 0 {
		return nil, ErrNoSubRegions
	}

	store := geocode.NewFileStore(options.Cache)

	var trace io.Writer
	if options.EnableHTTPTrace {
		trace = os.Stderr
	}

	searcher := geocode.NewNominatimClient(store, &geocode.NominatimOptions{
		Endpoint:        options.Endpoint,
		UserAgent:       options.UserAgent,
		MinDelay:        options.MinDelay,
		Timeout:         options.Timeout,
		IncludePolygons: true,
		HTTPTrace:       trace,
	})

	collection, report, err := Fetch(ctx, subRegions, searcher)
	if err != nil {
		return nil, err
	}

	for _, output := range []struct {
		path    string
		payload any
	}{
		{options.Output, collection},
		{options.ReportPath, report},
	} {
		if err := writeJSON(output.path, output.payload); err != nil {
			return nil, err
		}

		log.Printf("[write] %s", output.path)
	}

	if err := store.Save(); err != nil {
		return nil, fmt.Errorf("saving polygon cache: %w", err)
	}

	log.Printf("[write] %s", options.Cache)
	log.Printf("[polygons] matched=%d/%d", report.Matched, report.Total)

	return report, nil
}

func writeJSON(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	buff, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	if err := os.WriteFile(path, buff, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
