// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package enrich turns the scraped wine catalog into a geocoded dataset:
// wines get map coordinates and derived facets, and producer, sub-region
// and grape aggregates are rolled up with GeoJSON renditions of each.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/scrape"
)

// Defaults for a production run.
const (
	DefaultInput     = scrape.DefaultOutput
	DefaultOutputDir = "data"
	DefaultCache     = "data/geocode-cache.json"

	DefaultMinDelay         = geocode.DefaultNominatimDelay
	DefaultWikidataMinDelay = geocode.DefaultWikidataDelay
	DefaultTimeout          = geocode.DefaultTimeout
)

// Output files, relative to the output directory.
const (
	WinesEnrichedFile        = "bourgogne-wines.enriched.json"
	ProducersEnrichedFile    = "bourgogne-producers.enriched.json"
	ProducersGeoJSONFile     = "bourgogne-producers.geojson"
	ProducerGrapeGeoJSONFile = "bourgogne-producer-grape-points.geojson"
	SubRegionsEnrichedFile   = "bourgogne-subregions.enriched.json"
	SubRegionsGeoJSONFile    = "bourgogne-subregions.geojson"
	GrapesEnrichedFile       = "bourgogne-grapes.enriched.json"
)

// ErrNoItems reports an input file without wines.
var ErrNoItems = errors.New("no items to enrich")

// Resolver geocodes the region, its sub-regions and its producers.
// *geocode.Resolver implements it.
type Resolver interface {
	Region(ctx context.Context) (*geocode.Result, error)
	SubRegion(ctx context.Context, name string) (*geocode.Result, error)
	ResolveProducer(ctx context.Context, producer, primarySubRegion string,
		subRegions map[string]*geocode.Result, region *geocode.Result) (*geocode.Result, error)
}

// Options configure an enrichment run.
type Options struct {
	// Input is the scraped catalog file.
	Input string

	// OutputDir receives the enriched JSON and GeoJSON files.
	OutputDir string

	// Cache is the persistent geocode cache file.
	Cache string

	// MinDelay spaces Nominatim requests.
	MinDelay time.Duration

	// WikidataMinDelay spaces Wikidata requests.
	WikidataMinDelay time.Duration

	// Timeout bounds each geocoding request.
	Timeout time.Duration

	// UserAgent identifies us to the geocoding services.
	UserAgent string

	// EnableHTTPTrace dumps geocoding HTTP traffic to stderr.
	EnableHTTPTrace bool
}

// LoadItems reads the scraped catalog written by the scrape package.
func LoadItems(path string) ([]scrape.Wine, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var payload struct {
		Items []scrape.Wine `json:"items"`
	}

	if err := json.Unmarshal(buff, &payload); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", path, err)
	}

	return payload.Items, nil
}

// Assemble geocodes the catalog and rolls up every aggregate. It issues one
// SubRegion lookup per distinct sub-region and one ResolveProducer per
// distinct producer; everything after that is pure computation.
func Assemble(ctx context.Context, items []scrape.Wine, r Resolver) (*Dataset, error) {
	region, err := r.Region(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving region anchor: %w", err)
	}

	subRegions := distinctSubRegions(items)
	subRegionGeo := make(map[string]*geocode.Result, len(subRegions))

	for i, name := range subRegions {
		geo, err := r.SubRegion(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving sub-region %q: %w", name, err)
		}

		state := "miss"
		if geo != nil {
			subRegionGeo[name] = geo
			state = "ok"
		}

		log.Printf("[geocode-subregion] %d/%d %s -> %s", i+1, len(subRegions), name, state)
	}

	groups := groupByProducer(items)
	producers := sortedProducers(groups)
	producerGeo := make(map[string]*geocode.Result, len(producers))
	producerRows := make([]ProducerRow, 0, len(producers))

	for i, producer := range producers {
		wines := groups[producer]
		producerSubRegions, producerGrapes := taxonomyCounters(wines)
		primarySubRegion := primaryKey(producerSubRegions)

		geo, err := r.ResolveProducer(ctx, producer, primarySubRegion, subRegionGeo, region)
		if err != nil {
			return nil, fmt.Errorf("resolving producer %q: %w", producer, err)
		}

		producerGeo[producer] = geo

		producerRows = append(producerRows, ProducerRow{
			Producer:         producer,
			WineCount:        len(wines),
			PrimarySubRegion: primarySubRegion,
			SubRegions:       producerSubRegions,
			Grapes:           producerGrapes,
			PriceBRL:         summarizeNumeric(collectPrices(wines)),
			Location:         locationOf(geo),
		})

		log.Printf("[geocode-producer] %d/%d %s -> %s", i+1, len(producers), producer, geo.Source)
	}

	enriched := enrichWines(items, subRegionGeo, producerGeo, region)

	sort.Slice(enriched, func(i, j int) bool { return enriched[i].ID < enriched[j].ID })

	sort.Slice(producerRows, func(i, j int) bool {
		if producerRows[i].WineCount != producerRows[j].WineCount {
			return producerRows[i].WineCount > producerRows[j].WineCount
		}

		return producerRows[i].Producer < producerRows[j].Producer
	})

	direct := 0

	for i := range producerRows {
		if producerRows[i].Location.Source == geocode.SourceProducer {
			direct++
		}
	}

	return &Dataset{
		Items:          enriched,
		Producers:      producerRows,
		ProducerGrapes: buildProducerGrapeRows(enriched),
		SubRegions:     buildSubRegionRows(enriched, subRegionGeo),
		Grapes:         buildGrapeRows(enriched),
		GeoCoverage: GeoCoverage{
			SubRegionsTotal:    len(subRegions),
			SubRegionsGeocoded: len(subRegionGeo),
			ProducersTotal:     len(producers),
			ProducerGeoDirect:  direct,
		},
	}, nil
}

// Run loads the catalog, geocodes it against Nominatim and Wikidata with a
// persistent cache, writes every output file and finally saves the cache.
func Run(ctx context.Context, options Options) (*Dataset, error) {
	if options.Input == "" {
		options.Input = DefaultInput
	}

	if options.OutputDir == "" {
		options.OutputDir = DefaultOutputDir
	}

	if options.Cache == "" {
		options.Cache = DefaultCache
	}

	if options.MinDelay <= 0 {
		options.MinDelay = DefaultMinDelay
	}

	if options.WikidataMinDelay <= 0 {
		options.WikidataMinDelay = DefaultWikidataMinDelay
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}

	items, err := LoadItems(options.Input)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}

	store := geocode.NewFileStore(options.Cache)

	var trace io.Writer
	if options.EnableHTTPTrace {
		trace = os.Stderr
	}

	places := geocode.NewNominatimClient(store, &geocode.NominatimOptions{
		UserAgent: options.UserAgent,
		MinDelay:  options.MinDelay,
		Timeout:   options.Timeout,
		HTTPTrace: trace,
	})

	entities := geocode.NewWikidataClient(store, &geocode.WikidataOptions{
		UserAgent: options.UserAgent,
		MinDelay:  options.WikidataMinDelay,
		Timeout:   options.Timeout,
		HTTPTrace: trace,
	})

	dataset, err := Assemble(ctx, items, geocode.NewResolver(places, entities))
	if err != nil {
		return nil, err
	}

	if err := WriteOutputs(dataset, options.OutputDir); err != nil {
		return nil, err
	}

	if err := store.Save(); err != nil {
		return nil, fmt.Errorf("saving geocode cache: %w", err)
	}

	log.Printf("[write] %s", options.Cache)

	return dataset, nil
}

// WriteOutputs writes the enriched catalog, the aggregate files and their
// GeoJSON renditions under dir.
func WriteOutputs(dataset *Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	now := time.Now().Unix()

	outputs := []struct {
		name    string
		payload any
	}{
		{WinesEnrichedFile, WinesPayload{
			GeneratedAtUnix: now,
			Source:          scrape.DefaultListingURL,
			Count:           len(dataset.Items),
			GeoCoverage:     dataset.GeoCoverage,
			Items:           dataset.Items,
		}},
		{ProducersEnrichedFile, ProducersPayload{
			GeneratedAtUnix: now,
			Count:           len(dataset.Producers),
			Items:           dataset.Producers,
		}},
		{ProducersGeoJSONFile, ProducersGeoJSON(dataset.Producers)},
		{ProducerGrapeGeoJSONFile, ProducerGrapeGeoJSON(dataset.ProducerGrapes)},
		{SubRegionsEnrichedFile, SubRegionsPayload{
			GeneratedAtUnix: now,
			Count:           len(dataset.SubRegions),
			Items:           dataset.SubRegions,
		}},
		{SubRegionsGeoJSONFile, SubRegionsGeoJSON(dataset.SubRegions)},
		{GrapesEnrichedFile, GrapesPayload{
			GeneratedAtUnix: now,
			Count:           len(dataset.Grapes),
			Items:           dataset.Grapes,
		}},
	}

	for _, output := range outputs {
		path := filepath.Join(dir, output.name)
		if err := writeJSON(path, output.payload); err != nil {
			return err
		}

		log.Printf("[write] %s", path)
	}

	return nil
}

func writeJSON(path string, payload any) error {
	buff, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	if err := os.WriteFile(path, buff, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
