// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/scrape"
	"github.com/jcodagnone/terroir/spatial"
)

// Price bucket constants.
const (
	BucketUnknown = "unknown"
	BucketEntry   = "entry"
	BucketMid     = "mid"
	BucketPremium = "premium"
	BucketIconic  = "iconic"
)

// KnownBuckets lists every price bucket, cheapest first.
var KnownBuckets = []string{
	BucketUnknown,
	BucketEntry,
	BucketMid,
	BucketPremium,
	BucketIconic,
}

// PriceBucket classifies a listing price in BRL. A nil price is unknown.
func PriceBucket(price *float64) string {
	switch {
	case price == nil:
		return BucketUnknown
	case *price < 250:
		return BucketEntry
	case *price < 600:
		return BucketMid
	case *price < 1200:
		return BucketPremium
	default:
		return BucketIconic
	}
}

// Wine-level coordinate provenance: which aggregate lent the wine its point.
const (
	MapSourceSubRegion = "sub_region"
	MapSourceProducer  = "producer"
	MapSourceRegion    = "region"
)

// SourceDerivedFromWines marks a sub-region whose location is averaged from
// its wines' points because geocoding missed.
const SourceDerivedFromWines = "derived_from_wines"

// MapPoint is a map-ready coordinate: rounded, with provenance.
type MapPoint struct {
	spatial.Point
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Location is a resolved place for an aggregate row.
type Location struct {
	spatial.Point
	DisplayName string  `json:"display_name"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}

func locationOf(geo *geocode.Result) Location {
	return Location{
		Point:       spatial.Point{Lat: geo.Lat, Lng: geo.Lng},
		DisplayName: geo.DisplayName,
		Source:      geo.Source,
		Confidence:  geo.Confidence,
	}
}

// Derived carries the computed wine facets.
type Derived struct {
	PriceBucket   string   `json:"price_bucket"`
	StyleKeywords []string `json:"style_keywords"`
	ProducerKey   string   `json:"producer_key"`
	SubRegionKey  string   `json:"sub_region_key"`
	GrapeKey      string   `json:"grape_key"`
	BottleML      *int     `json:"bottle_ml"`
}

// Wine is a scraped wine plus its map point and derived facets.
type Wine struct {
	scrape.Wine
	Map     MapPoint `json:"map"`
	Derived Derived  `json:"derived"`
}

// PriceSummary condenses the positive listing prices of a group. All fields
// are nil when the group has no usable price.
type PriceSummary struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

// ProducerRow is the aggregate of one producer's wines.
type ProducerRow struct {
	Producer         string         `json:"producer"`
	WineCount        int            `json:"wine_count"`
	PrimarySubRegion string         `json:"primary_sub_region"`
	SubRegions       map[string]int `json:"sub_regions"`
	Grapes           map[string]int `json:"grapes"`
	PriceBRL         PriceSummary   `json:"price_brl"`
	Location         Location       `json:"location"`
}

// ProducerGrapeRow is one producer and grape pairing, placed at the mean of
// its wines' points. It only feeds the map layer.
type ProducerGrapeRow struct {
	Producer              string
	Grape                 string
	WineCount             int
	AvgPriceBRL           *float64
	DominantStyleKeywords []string
	Point                 spatial.Point
}

// SubRegionRow is the aggregate of one sub-region's wines.
type SubRegionRow struct {
	SubRegion     string         `json:"sub_region"`
	WineCount     int            `json:"wine_count"`
	ProducerCount int            `json:"producer_count"`
	Producers     []string       `json:"producers"`
	Grapes        map[string]int `json:"grapes"`
	PriceBRL      PriceSummary   `json:"price_brl"`
	Location      MapPoint       `json:"location"`
}

// GrapeRow is the aggregate of one grape's wines.
type GrapeRow struct {
	Grape                 string        `json:"grape"`
	WineCount             int           `json:"wine_count"`
	ProducerCount         int           `json:"producer_count"`
	Producers             []string      `json:"producers"`
	PriceBRL              PriceSummary  `json:"price_brl"`
	Centroid              spatial.Point `json:"centroid"`
	DominantStyleKeywords []string      `json:"dominant_style_keywords"`
}

// GeoCoverage summarizes how much of the catalog resolved to real places.
type GeoCoverage struct {
	SubRegionsTotal    int `json:"sub_regions_total"`
	SubRegionsGeocoded int `json:"sub_regions_geocoded"`
	ProducersTotal     int `json:"producers_total"`
	ProducerGeoDirect  int `json:"producer_geo_direct"`
}

// Dataset is everything one enrichment run computes, ready for
// serialization or for loading into the catalog.
type Dataset struct {
	Items          []Wine
	Producers      []ProducerRow
	ProducerGrapes []ProducerGrapeRow
	SubRegions     []SubRegionRow
	Grapes         []GrapeRow
	GeoCoverage    GeoCoverage
}

// WinesPayload is the enriched wines output file.
type WinesPayload struct {
	GeneratedAtUnix int64       `json:"generated_at_unix"`
	Source          string      `json:"source"`
	Count           int         `json:"count"`
	GeoCoverage     GeoCoverage `json:"geo_coverage"`
	Items           []Wine      `json:"items"`
}

// ProducersPayload is the producer rows output file.
type ProducersPayload struct {
	GeneratedAtUnix int64         `json:"generated_at_unix"`
	Count           int           `json:"count"`
	Items           []ProducerRow `json:"items"`
}

// SubRegionsPayload is the sub-region rows output file.
type SubRegionsPayload struct {
	GeneratedAtUnix int64          `json:"generated_at_unix"`
	Count           int            `json:"count"`
	Items           []SubRegionRow `json:"items"`
}

// GrapesPayload is the grape rows output file.
type GrapesPayload struct {
	GeneratedAtUnix int64      `json:"generated_at_unix"`
	Count           int        `json:"count"`
	Items           []GrapeRow `json:"items"`
}
