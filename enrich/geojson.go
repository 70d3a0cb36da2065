// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"github.com/jcodagnone/terroir/spatial"
)

const pointKindProducerGrape = "producer_grape"

type producerProperties struct {
	Producer           string   `json:"producer"`
	WineCount          int      `json:"wine_count"`
	PrimarySubRegion   string   `json:"primary_sub_region"`
	LocationSource     string   `json:"location_source"`
	LocationConfidence float64  `json:"location_confidence"`
	PriceMin           *float64 `json:"price_min"`
	PriceAvg           *float64 `json:"price_avg"`
	PriceMax           *float64 `json:"price_max"`
}

type producerGrapeProperties struct {
	Producer              string   `json:"producer"`
	Grape                 string   `json:"grape"`
	WineCount             int      `json:"wine_count"`
	AvgPriceBRL           *float64 `json:"avg_price_brl"`
	DominantStyleKeywords []string `json:"dominant_style_keywords"`
	PointKind             string   `json:"point_kind"`
}

type subRegionProperties struct {
	SubRegion          string   `json:"sub_region"`
	WineCount          int      `json:"wine_count"`
	ProducerCount      int      `json:"producer_count"`
	LocationSource     string   `json:"location_source"`
	LocationConfidence float64  `json:"location_confidence"`
	PriceAvg           *float64 `json:"price_avg"`
}

// ProducersGeoJSON renders one point feature per producer.
func ProducersGeoJSON(rows []ProducerRow) spatial.FeatureCollection {
	features := make([]spatial.Feature, 0, len(rows))

	for _, row := range rows {
		features = append(features, spatial.NewPointFeature(row.Location.Point, producerProperties{
			Producer:           row.Producer,
			WineCount:          row.WineCount,
			PrimarySubRegion:   row.PrimarySubRegion,
			LocationSource:     row.Location.Source,
			LocationConfidence: row.Location.Confidence,
			PriceMin:           row.PriceBRL.Min,
			PriceAvg:           row.PriceBRL.Avg,
			PriceMax:           row.PriceBRL.Max,
		}))
	}

	return spatial.NewFeatureCollection(features)
}

// ProducerGrapeGeoJSON renders one point feature per producer and grape
// pairing, the finest granularity the catalog has.
func ProducerGrapeGeoJSON(rows []ProducerGrapeRow) spatial.FeatureCollection {
	features := make([]spatial.Feature, 0, len(rows))

	for _, row := range rows {
		features = append(features, spatial.NewPointFeature(row.Point, producerGrapeProperties{
			Producer:              row.Producer,
			Grape:                 row.Grape,
			WineCount:             row.WineCount,
			AvgPriceBRL:           row.AvgPriceBRL,
			DominantStyleKeywords: row.DominantStyleKeywords,
			PointKind:             pointKindProducerGrape,
		}))
	}

	return spatial.NewFeatureCollection(features)
}

// SubRegionsGeoJSON renders one point feature per sub-region.
func SubRegionsGeoJSON(rows []SubRegionRow) spatial.FeatureCollection {
	features := make([]spatial.Feature, 0, len(rows))

	for _, row := range rows {
		features = append(features, spatial.NewPointFeature(row.Location.Point, subRegionProperties{
			SubRegion:          row.SubRegion,
			WineCount:          row.WineCount,
			ProducerCount:      row.ProducerCount,
			LocationSource:     row.Location.Source,
			LocationConfidence: row.Location.Confidence,
			PriceAvg:           row.PriceBRL.Avg,
		}))
	}

	return spatial.NewFeatureCollection(features)
}
