// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"math"
	"sort"

	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/scrape"
	"github.com/jcodagnone/terroir/spatial"
	"github.com/jcodagnone/terroir/utils/textutils"
)

// Coordinate confidence per wine provenance tier.
const (
	subRegionMapFloor   = 0.68
	producerMapFloor    = 0.5
	regionMapConfidence = 0.3

	derivedLocationConfidence = 0.5
)

// UnknownGroup collects wines without a value for the grouping field.
const UnknownGroup = "Unknown"

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// listingPrice returns the positive listing price of a wine, if any.
func listingPrice(w scrape.Wine) *float64 {
	if v := w.PriceBRL.ListingSalePrice; v != nil && *v > 0 {
		return v
	}

	return nil
}

func collectPrices(wines []scrape.Wine) []float64 {
	var out []float64

	for i := range wines {
		if v := wines[i].PriceBRL.ListingSalePrice; v != nil {
			out = append(out, *v)
		}
	}

	return out
}

func collectEnrichedPrices(wines []Wine) []float64 {
	var out []float64

	for i := range wines {
		if v := wines[i].PriceBRL.ListingSalePrice; v != nil {
			out = append(out, *v)
		}
	}

	return out
}

// summarizeNumeric reduces the positive values to min/max/avg at two
// decimals. Every field is nil when nothing positive remains.
func summarizeNumeric(values []float64) PriceSummary {
	var clean []float64

	for _, v := range values {
		if v > 0 {
			clean = append(clean, v)
		}
	}

	if len(clean) == 0 {
		return PriceSummary{}
	}

	mn, mx, sum := clean[0], clean[0], 0.0
	for _, v := range clean {
		mn = min(mn, v)
		mx = max(mx, v)
		sum += v
	}

	mnv, mxv, avv := round2(mn), round2(mx), round2(sum/float64(len(clean)))

	return PriceSummary{Min: &mnv, Max: &mxv, Avg: &avv}
}

// meanPrice averages whatever prices exist, without the positive filter of
// summarizeNumeric.
func meanPrice(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	avg := round2(sum / float64(len(values)))

	return &avg
}

func distinctSubRegions(items []scrape.Wine) []string {
	set := make(map[string]struct{})

	for i := range items {
		if sr := textutils.NormSpace(items[i].SubRegion); sr != "" {
			set[sr] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for sr := range set {
		out = append(out, sr)
	}

	sort.Strings(out)

	return out
}

func groupByProducer(items []scrape.Wine) map[string][]scrape.Wine {
	groups := make(map[string][]scrape.Wine)

	for _, item := range items {
		if p := textutils.NormSpace(item.Producer); p != "" {
			groups[p] = append(groups[p], item)
		}
	}

	return groups
}

func sortedProducers(groups map[string][]scrape.Wine) []string {
	out := make([]string, 0, len(groups))
	for p := range groups {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

func taxonomyCounters(wines []scrape.Wine) (subRegions, grapes map[string]int) {
	subRegions = make(map[string]int)
	grapes = make(map[string]int)

	for i := range wines {
		if sr := textutils.NormSpace(wines[i].SubRegion); sr != "" {
			subRegions[sr]++
		}

		if g := textutils.NormSpace(wines[i].Grape); g != "" {
			grapes[g]++
		}
	}

	return subRegions, grapes
}

// primaryKey picks the most frequent key; ties go to the lexically smallest
// so reruns stay deterministic.
func primaryKey(counts map[string]int) string {
	var best string

	var bestCount int

	for key, count := range counts {
		switch {
		case count > bestCount:
			best, bestCount = key, count
		case count == bestCount && bestCount > 0 && key < best:
			best = key
		}
	}

	return best
}

func wineMapPoint(wine scrape.Wine,
	subRegionGeo, producerGeo map[string]*geocode.Result, region *geocode.Result,
) MapPoint {
	subRegion := textutils.NormSpace(wine.SubRegion)
	producer := textutils.NormSpace(wine.Producer)

	var (
		point      spatial.Point
		source     string
		confidence float64
	)

	switch {
	case subRegion != "" && subRegionGeo[subRegion] != nil:
		g := subRegionGeo[subRegion]
		point = spatial.Point{Lat: g.Lat, Lng: g.Lng}
		source = MapSourceSubRegion
		confidence = max(subRegionMapFloor, g.Confidence)
	case producer != "" && producerGeo[producer] != nil:
		g := producerGeo[producer]
		point = spatial.Point{Lat: g.Lat, Lng: g.Lng}
		source = MapSourceProducer
		confidence = max(producerMapFloor, g.Confidence)
	default:
		point = spatial.Point{Lat: region.Lat, Lng: region.Lng}
		source = MapSourceRegion
		confidence = regionMapConfidence
	}

	return MapPoint{
		Point:      point.Round(6),
		Source:     source,
		Confidence: round3(confidence),
	}
}

func enrichWines(items []scrape.Wine,
	subRegionGeo, producerGeo map[string]*geocode.Result, region *geocode.Result,
) []Wine {
	out := make([]Wine, 0, len(items))

	for _, item := range items {
		out = append(out, Wine{
			Wine: item,
			Map:  wineMapPoint(item, subRegionGeo, producerGeo, region),
			Derived: Derived{
				PriceBucket:   PriceBucket(listingPrice(item)),
				StyleKeywords: ExtractStyleKeywords(item.Description),
				ProducerKey:   textutils.NormSpace(item.Producer),
				SubRegionKey:  textutils.NormSpace(item.SubRegion),
				GrapeKey:      textutils.NormSpace(item.Grape),
				BottleML:      ParseBottleML(item.BottleSize),
			},
		})
	}

	return out
}

func mapPoints(wines []Wine) []spatial.Point {
	out := make([]spatial.Point, 0, len(wines))
	for i := range wines {
		out = append(out, wines[i].Map.Point)
	}

	return out
}

// enrichedTaxonomy returns the distinct producers (sorted) and the grape
// counts of a wine group.
func enrichedTaxonomy(wines []Wine) ([]string, map[string]int) {
	set := make(map[string]struct{})
	grapes := make(map[string]int)

	for i := range wines {
		if p := textutils.NormSpace(wines[i].Producer); p != "" {
			set[p] = struct{}{}
		}

		if g := textutils.NormSpace(wines[i].Grape); g != "" {
			grapes[g]++
		}
	}

	producers := make([]string, 0, len(set))
	for p := range set {
		producers = append(producers, p)
	}

	sort.Strings(producers)

	return producers, grapes
}

func styleCounter(wines []Wine) map[string]int {
	styles := make(map[string]int)

	for i := range wines {
		for _, tag := range wines[i].Derived.StyleKeywords {
			styles[tag]++
		}
	}

	return styles
}

func buildProducerGrapeRows(items []Wine) []ProducerGrapeRow {
	type key struct{ producer, grape string }

	groups := make(map[key][]Wine)

	for _, w := range items {
		k := key{
			producer: textutils.NormSpace(w.Producer),
			grape:    textutils.NormSpace(w.Grape),
		}
		if k.grape == "" {
			k.grape = UnknownGroup
		}

		groups[k] = append(groups[k], w)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if len(groups[a]) != len(groups[b]) {
			return len(groups[a]) > len(groups[b])
		}

		if a.producer != b.producer {
			return a.producer < b.producer
		}

		return a.grape < b.grape
	})

	rows := make([]ProducerGrapeRow, 0, len(keys))

	for _, k := range keys {
		wines := groups[k]
		centroid, _ := spatial.Centroid(mapPoints(wines))

		rows = append(rows, ProducerGrapeRow{
			Producer:              k.producer,
			Grape:                 k.grape,
			WineCount:             len(wines),
			AvgPriceBRL:           meanPrice(collectEnrichedPrices(wines)),
			DominantStyleKeywords: topStyles(styleCounter(wines), 5),
			Point:                 centroid.Round(6),
		})
	}

	return rows
}

func sortGroupNames(groups map[string][]Wine) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if len(groups[names[i]]) != len(groups[names[j]]) {
			return len(groups[names[i]]) > len(groups[names[j]])
		}

		return names[i] < names[j]
	})

	return names
}

func buildSubRegionRows(items []Wine, subRegionGeo map[string]*geocode.Result) []SubRegionRow {
	groups := make(map[string][]Wine)

	for _, w := range items {
		sr := textutils.NormSpace(w.SubRegion)
		if sr == "" {
			sr = UnknownGroup
		}

		groups[sr] = append(groups[sr], w)
	}

	rows := make([]SubRegionRow, 0, len(groups))

	for _, name := range sortGroupNames(groups) {
		wines := groups[name]
		producers, grapes := enrichedTaxonomy(wines)

		var location MapPoint
		if geo := subRegionGeo[name]; geo != nil {
			location = MapPoint{
				Point:      spatial.Point{Lat: geo.Lat, Lng: geo.Lng}.Round(6),
				Source:     geocode.SourceSubRegion,
				Confidence: round3(max(subRegionMapFloor, geo.Confidence)),
			}
		} else {
			centroid, _ := spatial.Centroid(mapPoints(wines))
			location = MapPoint{
				Point:      centroid.Round(6),
				Source:     SourceDerivedFromWines,
				Confidence: derivedLocationConfidence,
			}
		}

		rows = append(rows, SubRegionRow{
			SubRegion:     name,
			WineCount:     len(wines),
			ProducerCount: len(producers),
			Producers:     producers,
			Grapes:        grapes,
			PriceBRL:      summarizeNumeric(collectEnrichedPrices(wines)),
			Location:      location,
		})
	}

	return rows
}

func buildGrapeRows(items []Wine) []GrapeRow {
	groups := make(map[string][]Wine)

	for _, w := range items {
		g := textutils.NormSpace(w.Grape)
		if g == "" {
			g = UnknownGroup
		}

		groups[g] = append(groups[g], w)
	}

	rows := make([]GrapeRow, 0, len(groups))

	for _, name := range sortGroupNames(groups) {
		wines := groups[name]
		producers, _ := enrichedTaxonomy(wines)
		centroid, _ := spatial.Centroid(mapPoints(wines))

		rows = append(rows, GrapeRow{
			Grape:                 name,
			WineCount:             len(wines),
			ProducerCount:         len(producers),
			Producers:             producers,
			PriceBRL:              summarizeNumeric(collectEnrichedPrices(wines)),
			Centroid:              centroid.Round(6),
			DominantStyleKeywords: topStyles(styleCounter(wines), 8),
		})
	}

	return rows
}
