// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jcodagnone/terroir/enrich"
	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/scrape"
	"github.com/jcodagnone/terroir/spatial"
)

func loaderDataset() *enrich.Dataset {
	chablis := spatial.Point{Lat: 47.8131, Lng: 3.7987}
	region := spatial.Point{Lat: 47.0525, Lng: 4.3837}

	return &enrich.Dataset{
		Items: []enrich.Wine{
			{
				Wine: scrape.Wine{
					ID:           1,
					Slug:         "petit-chablis",
					URL:          "https://www.mistral.com.br/petit-chablis",
					TitleListing: "Petit Chablis 2022 750 ml",
					NameProduct:  "Petit Chablis",
					Producer:     "Domaine Brès",
					SubRegion:    "Chablis",
					Grape:        "Chardonnay",
					PriceBRL:     scrape.Price{ListingSalePrice: fptr(95.5), Currency: "BRL"},
				},
				Map: enrich.MapPoint{
					Point:      chablis,
					Source:     enrich.MapSourceSubRegion,
					Confidence: 0.68,
				},
				Derived: enrich.Derived{
					PriceBucket:   enrich.BucketEntry,
					StyleKeywords: []string{enrich.StyleMineral},
					ProducerKey:   "Domaine Brès",
					SubRegionKey:  "Chablis",
					GrapeKey:      "Chardonnay",
					BottleML:      iptr(750),
				},
			},
			{
				Wine: scrape.Wine{
					ID:           2,
					Slug:         "bourgogne-rouge",
					URL:          "https://www.mistral.com.br/bourgogne-rouge",
					TitleListing: "Bourgogne Rouge",
				},
				Map: enrich.MapPoint{
					Point:      region,
					Source:     enrich.MapSourceRegion,
					Confidence: 0.3,
				},
				Derived: enrich.Derived{
					PriceBucket:   enrich.BucketUnknown,
					StyleKeywords: []string{},
				},
			},
		},
		Producers: []enrich.ProducerRow{
			{
				Producer:         "Domaine Brès",
				WineCount:        1,
				PrimarySubRegion: "Chablis",
				SubRegions:       map[string]int{"Chablis": 1},
				Grapes:           map[string]int{"Chardonnay": 1},
				PriceBRL:         enrich.PriceSummary{Min: fptr(95.5), Avg: fptr(95.5), Max: fptr(95.5)},
				Location: enrich.Location{
					Point:       chablis,
					DisplayName: "Chablis, Yonne, France",
					Source:      geocode.SourceProducerSubRegionFallback,
					Confidence:  0.55,
				},
			},
		},
		SubRegions: []enrich.SubRegionRow{
			{
				SubRegion:     "Chablis",
				WineCount:     1,
				ProducerCount: 1,
				Producers:     []string{"Domaine Brès"},
				Grapes:        map[string]int{"Chardonnay": 1},
				PriceBRL:      enrich.PriceSummary{Min: fptr(95.5), Avg: fptr(95.5), Max: fptr(95.5)},
				Location: enrich.MapPoint{
					Point:      chablis,
					Source:     geocode.SourceSubRegion,
					Confidence: 0.68,
				},
			},
			{
				SubRegion:     enrich.UnknownGroup,
				WineCount:     1,
				ProducerCount: 0,
				Producers:     []string{},
				Grapes:        map[string]int{enrich.UnknownGroup: 1},
				Location: enrich.MapPoint{
					Point:      region,
					Source:     enrich.SourceDerivedFromWines,
					Confidence: 0.5,
				},
			},
		},
		Grapes: []enrich.GrapeRow{
			{
				Grape:                 "Chardonnay",
				WineCount:             1,
				ProducerCount:         1,
				Producers:             []string{"Domaine Brès"},
				PriceBRL:              enrich.PriceSummary{Min: fptr(95.5), Avg: fptr(95.5), Max: fptr(95.5)},
				Centroid:              chablis,
				DominantStyleKeywords: []string{enrich.StyleMineral},
			},
			{
				Grape:                 enrich.UnknownGroup,
				WineCount:             1,
				ProducerCount:         0,
				Producers:             []string{},
				Centroid:              region,
				DominantStyleKeywords: []string{},
			},
		},
		GeoCoverage: enrich.GeoCoverage{
			SubRegionsTotal:    1,
			SubRegionsGeocoded: 1,
			ProducersTotal:     1,
			ProducerGeoDirect:  0,
		},
	}
}

func TestBuildSnapshot(t *testing.T) {
	snapshot, err := BuildSnapshot(loaderDataset())
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}

	if len(snapshot.Wines) != 2 {
		t.Fatalf("got %d wines, want 2", len(snapshot.Wines))
	}

	first := snapshot.Wines[0]

	if first.Title != "Petit Chablis" {
		t.Errorf("Title = %s, want the product name", first.Title)
	}

	if first.Producer != "Domaine Brès" || first.SubRegion != "Chablis" || first.Grape != "Chardonnay" {
		t.Errorf("keys = %s/%s/%s, want Domaine Brès/Chablis/Chardonnay",
			first.Producer, first.SubRegion, first.Grape)
	}

	if first.BottleML == nil || *first.BottleML != 750 {
		t.Errorf("BottleML = %v, want 750", first.BottleML)
	}

	second := snapshot.Wines[1]

	// Without a product name the listing title stands in.
	if second.Title != "Bourgogne Rouge" {
		t.Errorf("Title = %s, want Bourgogne Rouge", second.Title)
	}

	if second.Producer != "" {
		t.Errorf("Producer = %q, want empty", second.Producer)
	}

	if second.SubRegion != enrich.UnknownGroup || second.Grape != enrich.UnknownGroup {
		t.Errorf("keys = %s/%s, want Unknown/Unknown", second.SubRegion, second.Grape)
	}

	if len(snapshot.Producers) != 1 || snapshot.Producers[0].Name != "Domaine Brès" {
		t.Fatalf("producers = %+v, want Domaine Brès", snapshot.Producers)
	}

	if snapshot.Producers[0].LocationConfidence != 0.55 {
		t.Errorf("LocationConfidence = %f, want 0.55", snapshot.Producers[0].LocationConfidence)
	}

	if len(snapshot.SubRegions) != 2 || len(snapshot.Grapes) != 2 {
		t.Errorf("got %d sub-regions and %d grapes, want 2 and 2",
			len(snapshot.SubRegions), len(snapshot.Grapes))
	}
}

func TestBuildSnapshotRejectsBadRow(t *testing.T) {
	dataset := loaderDataset()
	dataset.Producers[0].Location.Source = "divination"

	_, err := BuildSnapshot(dataset)
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("BuildSnapshot() error = %v, want ErrUnknownSource", err)
	}
}

func TestLoadFromWrittenOutputs(t *testing.T) {
	dir := t.TempDir()

	if err := enrich.WriteOutputs(loaderDataset(), dir); err != nil {
		t.Fatalf("WriteOutputs() error = %v", err)
	}

	dataset, err := ReadDataset(dir)
	if err != nil {
		t.Fatalf("ReadDataset() error = %v", err)
	}

	if len(dataset.Items) != 2 || len(dataset.Producers) != 1 {
		t.Fatalf("ReadDataset() = %d items, %d producers, want 2 and 1",
			len(dataset.Items), len(dataset.Producers))
	}

	if dataset.GeoCoverage.SubRegionsGeocoded != 1 {
		t.Errorf("GeoCoverage.SubRegionsGeocoded = %d, want 1", dataset.GeoCoverage.SubRegionsGeocoded)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	repo := NewRepository(db)

	stats, err := Load(repo, dataset)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Stats{Wines: 2, Producers: 1, SubRegions: 2, Grapes: 2}
	if *stats != want {
		t.Errorf("Stats = %+v, want %+v", *stats, want)
	}

	// The unknown wine joins the Unknown sub-region row.
	wines, err := repo.ListWines(WineFilter{SubRegion: enrich.UnknownGroup})
	if err != nil {
		t.Fatalf("ListWines() error = %v", err)
	}

	if len(wines) != 1 || wines[0].ID != 2 {
		t.Fatalf("ListWines(Unknown) = %+v, want wine 2", wines)
	}

	if wines[0].Producer != "" {
		t.Errorf("Producer = %q, want empty", wines[0].Producer)
	}
}

func TestReadDatasetMissingFiles(t *testing.T) {
	if _, err := ReadDataset(t.TempDir()); err == nil {
		t.Error("ReadDataset() on an empty dir = nil, want error")
	}
}
