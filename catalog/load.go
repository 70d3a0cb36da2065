// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jcodagnone/terroir/enrich"
)

// DefaultDB is where the catalog database lives unless overridden.
const DefaultDB = "data/catalog.duckdb"

// Snapshot is a full set of catalog rows ready for loading.
type Snapshot struct {
	Producers  []*Producer
	SubRegions []*SubRegion
	Grapes     []*Grape
	Wines      []*Wine
}

// BuildSnapshot converts an enriched dataset into validated catalog rows.
// Wines without a sub-region or grape land in the Unknown rows; wines
// without a producer keep a NULL producer reference.
func BuildSnapshot(dataset *enrich.Dataset) (*Snapshot, error) {
	snapshot := &Snapshot{
		Producers:  make([]*Producer, 0, len(dataset.Producers)),
		SubRegions: make([]*SubRegion, 0, len(dataset.SubRegions)),
		Grapes:     make([]*Grape, 0, len(dataset.Grapes)),
		Wines:      make([]*Wine, 0, len(dataset.Items)),
	}

	for i := range dataset.Producers {
		row := &dataset.Producers[i]

		p := &Producer{
			Name:               row.Producer,
			WineCount:          row.WineCount,
			PrimarySubRegion:   row.PrimarySubRegion,
			Point:              row.Location.Point,
			LocationSource:     row.Location.Source,
			LocationConfidence: row.Location.Confidence,
			PriceMin:           row.PriceBRL.Min,
			PriceAvg:           row.PriceBRL.Avg,
			PriceMax:           row.PriceBRL.Max,
		}
		if err := validateProducer(p); err != nil {
			return nil, err
		}

		snapshot.Producers = append(snapshot.Producers, p)
	}

	for i := range dataset.SubRegions {
		row := &dataset.SubRegions[i]

		s := &SubRegion{
			Name:               row.SubRegion,
			WineCount:          row.WineCount,
			ProducerCount:      row.ProducerCount,
			Point:              row.Location.Point,
			LocationSource:     row.Location.Source,
			LocationConfidence: row.Location.Confidence,
			PriceAvg:           row.PriceBRL.Avg,
		}
		if err := validateSubRegion(s); err != nil {
			return nil, err
		}

		snapshot.SubRegions = append(snapshot.SubRegions, s)
	}

	for i := range dataset.Grapes {
		row := &dataset.Grapes[i]

		g := &Grape{
			Name:           row.Grape,
			WineCount:      row.WineCount,
			ProducerCount:  row.ProducerCount,
			Point:          row.Centroid,
			DominantStyles: row.DominantStyleKeywords,
			PriceAvg:       row.PriceBRL.Avg,
		}
		if err := validateGrape(g); err != nil {
			return nil, err
		}

		snapshot.Grapes = append(snapshot.Grapes, g)
	}

	for i := range dataset.Items {
		item := &dataset.Items[i]

		title := item.NameProduct
		if title == "" {
			title = item.TitleListing
		}

		subRegion := item.Derived.SubRegionKey
		if subRegion == "" {
			subRegion = enrich.UnknownGroup
		}

		grape := item.Derived.GrapeKey
		if grape == "" {
			grape = enrich.UnknownGroup
		}

		w := &Wine{
			ID:            item.ID,
			Slug:          item.Slug,
			Title:         title,
			Producer:      item.Derived.ProducerKey,
			SubRegion:     subRegion,
			Grape:         grape,
			PriceBRL:      item.PriceBRL.ListingSalePrice,
			PriceBucket:   item.Derived.PriceBucket,
			StyleKeywords: item.Derived.StyleKeywords,
			BottleML:      item.Derived.BottleML,
			Point:         item.Map.Point,
			MapSource:     item.Map.Source,
			MapConfidence: item.Map.Confidence,
			URL:           item.URL,
		}
		if err := validateWine(w); err != nil {
			return nil, err
		}

		snapshot.Wines = append(snapshot.Wines, w)
	}

	return snapshot, nil
}

// ReadDataset reads the enriched output files back from dir. The
// producer-grape layer never lands in the database, so its file is not
// read.
func ReadDataset(dir string) (*enrich.Dataset, error) {
	var wines enrich.WinesPayload
	if err := readJSON(filepath.Join(dir, enrich.WinesEnrichedFile), &wines); err != nil {
		return nil, err
	}

	var producers enrich.ProducersPayload
	if err := readJSON(filepath.Join(dir, enrich.ProducersEnrichedFile), &producers); err != nil {
		return nil, err
	}

	var subRegions enrich.SubRegionsPayload
	if err := readJSON(filepath.Join(dir, enrich.SubRegionsEnrichedFile), &subRegions); err != nil {
		return nil, err
	}

	var grapes enrich.GrapesPayload
	if err := readJSON(filepath.Join(dir, enrich.GrapesEnrichedFile), &grapes); err != nil {
		return nil, err
	}

	return &enrich.Dataset{
		Items:       wines.Items,
		Producers:   producers.Items,
		SubRegions:  subRegions.Items,
		Grapes:      grapes.Items,
		GeoCoverage: wines.GeoCoverage,
	}, nil
}

func readJSON(path string, v any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	return nil
}

// Load rebuilds the catalog from an enriched dataset.
func Load(repo Repository, dataset *enrich.Dataset) (*Stats, error) {
	if err := repo.CreateSchema(); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	snapshot, err := BuildSnapshot(dataset)
	if err != nil {
		return nil, err
	}

	if err := repo.ReplaceSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		return nil, err
	}

	log.Printf("✅ catalog loaded: %d wines, %d producers, %d sub-regions, %d grapes",
		stats.Wines, stats.Producers, stats.SubRegions, stats.Grapes)

	return stats, nil
}
