// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/scrape"
	"github.com/jcodagnone/terroir/spatial"
)

// fakeResolver serves canned geocoding answers and mimics the production
// fallback chain for producers it does not know.
type fakeResolver struct {
	region     *geocode.Result
	subRegions map[string]*geocode.Result
	producers  map[string]*geocode.Result
}

func (f *fakeResolver) Region(_ context.Context) (*geocode.Result, error) {
	return f.region, nil
}

func (f *fakeResolver) SubRegion(_ context.Context, name string) (*geocode.Result, error) {
	return f.subRegions[name], nil
}

func (f *fakeResolver) ResolveProducer(_ context.Context, producer, primarySubRegion string,
	subRegions map[string]*geocode.Result, region *geocode.Result,
) (*geocode.Result, error) {
	if geo, ok := f.producers[producer]; ok {
		return geo, nil
	}

	if geo, ok := subRegions[primarySubRegion]; ok {
		return &geocode.Result{
			Lat:         geo.Lat,
			Lng:         geo.Lng,
			DisplayName: geo.DisplayName,
			Query:       producer,
			Source:      geocode.SourceProducerSubRegionFallback,
			Confidence:  0.55,
		}, nil
	}

	return &geocode.Result{
		Lat:         region.Lat,
		Lng:         region.Lng,
		DisplayName: region.DisplayName,
		Query:       producer,
		Source:      geocode.SourceProducerRegionFallback,
		Confidence:  0.3,
	}, nil
}

func testResolver() *fakeResolver {
	return &fakeResolver{
		region: &geocode.Result{
			Lat:         47.0525,
			Lng:         4.3837,
			DisplayName: "Bourgogne-Franche-Comté, France",
			Query:       "Burgundy, France",
			Source:      geocode.SourceNominatim,
			Confidence:  0.9,
		},
		subRegions: map[string]*geocode.Result{
			"Chablis": {
				Lat:         47.8131,
				Lng:         3.7987,
				DisplayName: "Chablis, Yonne, France",
				Query:       "Chablis, Bourgogne, France",
				Source:      geocode.SourceSubRegion,
				Confidence:  0.62,
			},
		},
		producers: map[string]*geocode.Result{
			"Maison Aubert": {
				Lat:         47.0521,
				Lng:         4.8361,
				DisplayName: "Maison Aubert, Beaune, France",
				Query:       "Maison Aubert",
				Source:      geocode.SourceProducer,
				Confidence:  0.8,
			},
		},
	}
}

// testItems is deliberately out of ID order, with one producer split across
// two sub-regions, one wine without a producer and one without a grape.
func testItems() []scrape.Wine {
	return []scrape.Wine{
		{
			ID:           3,
			TitleListing: "Bourgogne Blanc Les Pierres 2022",
			Producer:     "Maison Aubert",
			SubRegion:    "Chablis",
			Grape:        "Chardonnay",
			BottleSize:   "750 ml",
			Description:  "Um branco elegante, mineral e fresco.",
			PriceBRL:     scrape.Price{ListingSalePrice: fptr(180), Currency: "BRL"},
		},
		{
			ID:           1,
			TitleListing: "Pommard Vieilles Vignes 2019",
			Producer:     "Maison Aubert",
			SubRegion:    "Pommard",
			Grape:        "Pinot Noir",
			BottleSize:   "750ml",
			Description:  "Tinto de taninos firmes e final persistente.",
			PriceBRL:     scrape.Price{ListingSalePrice: fptr(320), Currency: "BRL"},
		},
		{
			ID:           2,
			TitleListing: "Petit Chablis 2023",
			Producer:     "Domaine Brès",
			SubRegion:    "Chablis",
			Grape:        "Chardonnay",
			PriceBRL:     scrape.Price{ListingSalePrice: fptr(95.5), Currency: "BRL"},
		},
		{
			ID:           5,
			TitleListing: "Magnum Cuvée 2020",
			Producer:     "Domaine Brès",
			BottleSize:   "1,5 L",
			Description:  "Equilibrado e complexo.",
			PriceBRL:     scrape.Price{ListingSalePrice: fptr(0), Currency: "BRL"},
		},
		{
			ID:           4,
			TitleListing: "Gamay Raro",
			Grape:        "Gamay",
			BottleSize:   "375 ml",
			Description:  "Raro e icônico.",
			PriceBRL:     scrape.Price{ListingSalePrice: fptr(1500), Currency: "BRL"},
		},
	}
}

func TestAssemble(t *testing.T) {
	items := testItems()

	dataset, err := Assemble(context.Background(), items, testResolver())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := &Dataset{
		Items: []Wine{
			{
				Wine: items[1],
				Map: MapPoint{
					Point:      spatial.Point{Lat: 47.0521, Lng: 4.8361},
					Source:     MapSourceProducer,
					Confidence: 0.8,
				},
				Derived: Derived{
					PriceBucket:   BucketMid,
					StyleKeywords: []string{StyleStructured, StylePersistent},
					ProducerKey:   "Maison Aubert",
					SubRegionKey:  "Pommard",
					GrapeKey:      "Pinot Noir",
					BottleML:      iptr(750),
				},
			},
			{
				Wine: items[2],
				Map: MapPoint{
					Point:      spatial.Point{Lat: 47.8131, Lng: 3.7987},
					Source:     MapSourceSubRegion,
					Confidence: 0.68,
				},
				Derived: Derived{
					PriceBucket:   BucketEntry,
					StyleKeywords: []string{},
					ProducerKey:   "Domaine Brès",
					SubRegionKey:  "Chablis",
					GrapeKey:      "Chardonnay",
				},
			},
			{
				Wine: items[0],
				Map: MapPoint{
					Point:      spatial.Point{Lat: 47.8131, Lng: 3.7987},
					Source:     MapSourceSubRegion,
					Confidence: 0.68,
				},
				Derived: Derived{
					PriceBucket:   BucketEntry,
					StyleKeywords: []string{StyleElegant, StyleMineral, StyleFresh},
					ProducerKey:   "Maison Aubert",
					SubRegionKey:  "Chablis",
					GrapeKey:      "Chardonnay",
					BottleML:      iptr(750),
				},
			},
			{
				Wine: items[4],
				Map: MapPoint{
					Point:      spatial.Point{Lat: 47.0525, Lng: 4.3837},
					Source:     MapSourceRegion,
					Confidence: 0.3,
				},
				Derived: Derived{
					PriceBucket:   BucketIconic,
					StyleKeywords: []string{},
					GrapeKey:      "Gamay",
					BottleML:      iptr(375),
				},
			},
			{
				Wine: items[3],
				Map: MapPoint{
					Point:      spatial.Point{Lat: 47.8131, Lng: 3.7987},
					Source:     MapSourceProducer,
					Confidence: 0.55,
				},
				Derived: Derived{
					PriceBucket:   BucketUnknown,
					StyleKeywords: []string{StyleComplex, StyleBalanced},
					ProducerKey:   "Domaine Brès",
					BottleML:      iptr(1500),
				},
			},
		},
		Producers: []ProducerRow{
			{
				Producer:         "Domaine Brès",
				WineCount:        2,
				PrimarySubRegion: "Chablis",
				SubRegions:       map[string]int{"Chablis": 1},
				Grapes:           map[string]int{"Chardonnay": 1},
				PriceBRL:         PriceSummary{Min: fptr(95.5), Max: fptr(95.5), Avg: fptr(95.5)},
				Location: Location{
					Point:       spatial.Point{Lat: 47.8131, Lng: 3.7987},
					DisplayName: "Chablis, Yonne, France",
					Source:      geocode.SourceProducerSubRegionFallback,
					Confidence:  0.55,
				},
			},
			{
				Producer:         "Maison Aubert",
				WineCount:        2,
				PrimarySubRegion: "Chablis",
				SubRegions:       map[string]int{"Chablis": 1, "Pommard": 1},
				Grapes:           map[string]int{"Chardonnay": 1, "Pinot Noir": 1},
				PriceBRL:         PriceSummary{Min: fptr(180), Max: fptr(320), Avg: fptr(250)},
				Location: Location{
					Point:       spatial.Point{Lat: 47.0521, Lng: 4.8361},
					DisplayName: "Maison Aubert, Beaune, France",
					Source:      geocode.SourceProducer,
					Confidence:  0.8,
				},
			},
		},
		ProducerGrapes: []ProducerGrapeRow{
			{
				Producer:              "",
				Grape:                 "Gamay",
				WineCount:             1,
				AvgPriceBRL:           fptr(1500),
				DominantStyleKeywords: []string{},
				Point:                 spatial.Point{Lat: 47.0525, Lng: 4.3837},
			},
			{
				Producer:              "Domaine Brès",
				Grape:                 "Chardonnay",
				WineCount:             1,
				AvgPriceBRL:           fptr(95.5),
				DominantStyleKeywords: []string{},
				Point:                 spatial.Point{Lat: 47.8131, Lng: 3.7987},
			},
			{
				Producer:              "Domaine Brès",
				Grape:                 "Unknown",
				WineCount:             1,
				AvgPriceBRL:           fptr(0),
				DominantStyleKeywords: []string{StyleComplex, StyleBalanced},
				Point:                 spatial.Point{Lat: 47.8131, Lng: 3.7987},
			},
			{
				Producer:              "Maison Aubert",
				Grape:                 "Chardonnay",
				WineCount:             1,
				AvgPriceBRL:           fptr(180),
				DominantStyleKeywords: []string{StyleElegant, StyleMineral, StyleFresh},
				Point:                 spatial.Point{Lat: 47.8131, Lng: 3.7987},
			},
			{
				Producer:              "Maison Aubert",
				Grape:                 "Pinot Noir",
				WineCount:             1,
				AvgPriceBRL:           fptr(320),
				DominantStyleKeywords: []string{StyleStructured, StylePersistent},
				Point:                 spatial.Point{Lat: 47.0521, Lng: 4.8361},
			},
		},
		SubRegions: []SubRegionRow{
			{
				SubRegion:     "Chablis",
				WineCount:     2,
				ProducerCount: 2,
				Producers:     []string{"Domaine Brès", "Maison Aubert"},
				Grapes:        map[string]int{"Chardonnay": 2},
				PriceBRL:      PriceSummary{Min: fptr(95.5), Max: fptr(180), Avg: fptr(137.75)},
				Location: MapPoint{
					Point:      spatial.Point{Lat: 47.8131, Lng: 3.7987},
					Source:     geocode.SourceSubRegion,
					Confidence: 0.68,
				},
			},
			{
				SubRegion:     "Unknown",
				WineCount:     2,
				ProducerCount: 1,
				Producers:     []string{"Domaine Brès"},
				Grapes:        map[string]int{"Gamay": 1},
				PriceBRL:      PriceSummary{Min: fptr(1500), Max: fptr(1500), Avg: fptr(1500)},
				Location: MapPoint{
					Point:      spatial.Point{Lat: 47.4328, Lng: 4.0912},
					Source:     SourceDerivedFromWines,
					Confidence: 0.5,
				},
			},
			{
				SubRegion:     "Pommard",
				WineCount:     1,
				ProducerCount: 1,
				Producers:     []string{"Maison Aubert"},
				Grapes:        map[string]int{"Pinot Noir": 1},
				PriceBRL:      PriceSummary{Min: fptr(320), Max: fptr(320), Avg: fptr(320)},
				Location: MapPoint{
					Point:      spatial.Point{Lat: 47.0521, Lng: 4.8361},
					Source:     SourceDerivedFromWines,
					Confidence: 0.5,
				},
			},
		},
		Grapes: []GrapeRow{
			{
				Grape:                 "Chardonnay",
				WineCount:             2,
				ProducerCount:         2,
				Producers:             []string{"Domaine Brès", "Maison Aubert"},
				PriceBRL:              PriceSummary{Min: fptr(95.5), Max: fptr(180), Avg: fptr(137.75)},
				Centroid:              spatial.Point{Lat: 47.8131, Lng: 3.7987},
				DominantStyleKeywords: []string{StyleElegant, StyleMineral, StyleFresh},
			},
			{
				Grape:                 "Gamay",
				WineCount:             1,
				ProducerCount:         0,
				Producers:             []string{},
				PriceBRL:              PriceSummary{Min: fptr(1500), Max: fptr(1500), Avg: fptr(1500)},
				Centroid:              spatial.Point{Lat: 47.0525, Lng: 4.3837},
				DominantStyleKeywords: []string{},
			},
			{
				Grape:                 "Pinot Noir",
				WineCount:             1,
				ProducerCount:         1,
				Producers:             []string{"Maison Aubert"},
				PriceBRL:              PriceSummary{Min: fptr(320), Max: fptr(320), Avg: fptr(320)},
				Centroid:              spatial.Point{Lat: 47.0521, Lng: 4.8361},
				DominantStyleKeywords: []string{StyleStructured, StylePersistent},
			},
			{
				Grape:                 "Unknown",
				WineCount:             1,
				ProducerCount:         1,
				Producers:             []string{"Domaine Brès"},
				PriceBRL:              PriceSummary{},
				Centroid:              spatial.Point{Lat: 47.8131, Lng: 3.7987},
				DominantStyleKeywords: []string{StyleComplex, StyleBalanced},
			},
		},
		GeoCoverage: GeoCoverage{
			SubRegionsTotal:    2,
			SubRegionsGeocoded: 1,
			ProducersTotal:     2,
			ProducerGeoDirect:  1,
		},
	}

	if diff := cmp.Diff(want, dataset); diff != "" {
		t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()

	dataset, err := Assemble(context.Background(), testItems(), testResolver())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if err := WriteOutputs(dataset, dir); err != nil {
		t.Fatalf("WriteOutputs() error = %v", err)
	}

	names := []string{
		WinesEnrichedFile,
		ProducersEnrichedFile,
		ProducersGeoJSONFile,
		ProducerGrapeGeoJSONFile,
		SubRegionsEnrichedFile,
		SubRegionsGeoJSONFile,
		GrapesEnrichedFile,
	}

	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	buff, err := os.ReadFile(filepath.Join(dir, WinesEnrichedFile))
	if err != nil {
		t.Fatalf("reading wines output: %v", err)
	}

	var payload WinesPayload
	if err := json.Unmarshal(buff, &payload); err != nil {
		t.Fatalf("decoding wines output: %v", err)
	}

	if payload.GeneratedAtUnix <= 0 {
		t.Errorf("GeneratedAtUnix = %d, want a timestamp", payload.GeneratedAtUnix)
	}

	if payload.Source != scrape.DefaultListingURL {
		t.Errorf("Source = %q, want %q", payload.Source, scrape.DefaultListingURL)
	}

	if payload.Count != len(dataset.Items) {
		t.Errorf("Count = %d, want %d", payload.Count, len(dataset.Items))
	}

	if diff := cmp.Diff(dataset.GeoCoverage, payload.GeoCoverage); diff != "" {
		t.Errorf("GeoCoverage mismatch (-want +got):\n%s", diff)
	}

	if len(payload.Items) != 5 || payload.Items[0].ID != 1 {
		t.Fatalf("unexpected items in wines output: %d", len(payload.Items))
	}

	if diff := cmp.Diff(dataset.Items[0].Derived, payload.Items[0].Derived); diff != "" {
		t.Errorf("first item derived mismatch (-want +got):\n%s", diff)
	}

	buff, err = os.ReadFile(filepath.Join(dir, ProducersGeoJSONFile))
	if err != nil {
		t.Fatalf("reading producers geojson: %v", err)
	}

	var fc spatial.FeatureCollection
	if err := json.Unmarshal(buff, &fc); err != nil {
		t.Fatalf("decoding producers geojson: %v", err)
	}

	if fc.Type != "FeatureCollection" || len(fc.Features) != len(dataset.Producers) {
		t.Errorf("producers geojson = %q with %d features, want %d",
			fc.Type, len(fc.Features), len(dataset.Producers))
	}
}

func TestLoadItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")

	collection := scrape.Collection{
		GeneratedAtUnix: 1700000000,
		Source:          scrape.DefaultListingURL,
		Count:           1,
		Items: []scrape.Wine{
			{ID: 7, TitleListing: "Rully 2021", Producer: "Maison Test"},
		},
	}

	buff, err := json.Marshal(collection)
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}

	if err := os.WriteFile(path, buff, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	items, err := LoadItems(path)
	if err != nil {
		t.Fatalf("LoadItems() error = %v", err)
	}

	if len(items) != 1 || items[0].ID != 7 || items[0].Producer != "Maison Test" {
		t.Errorf("LoadItems() = %+v, want the fixture item", items)
	}
}

func TestLoadItemsMissingFile(t *testing.T) {
	if _, err := LoadItems(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("LoadItems() error = nil, want an error")
	}
}

func TestRunNoItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	if err := os.WriteFile(path, []byte(`{"items": []}`), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Run(context.Background(), Options{
		Input:     path,
		OutputDir: dir,
		Cache:     filepath.Join(dir, "cache.json"),
	})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("Run() error = %v, want ErrNoItems", err)
	}
}
