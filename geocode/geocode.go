// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves free-text wine place and producer names into
// coordinates by querying Nominatim and Wikidata, scoring their candidates
// against wine-trade heuristics, and caching every upstream answer so that
// repeated runs stay cheap and polite.
package geocode

// Provenance recorded in Result.Source. Downstream consumers weight a
// location by where in the fallback chain it came from.
const (
	SourceNominatim                 = "nominatim"
	SourceSubRegion                 = "sub_region_geocode"
	SourceProducer                  = "producer_geocode"
	SourceProducerWikidata          = "producer_wikidata"
	SourceProducerSubRegionFallback = "producer_sub_region_fallback"
	SourceProducerRegionFallback    = "producer_region_fallback"
	SourceHardcodedRegionFallback   = "hardcoded_region_fallback"
)

// KnownSources lists every provenance tag a Result may carry.
var KnownSources = []string{
	SourceNominatim,
	SourceSubRegion,
	SourceProducer,
	SourceProducerWikidata,
	SourceProducerSubRegionFallback,
	SourceProducerRegionFallback,
	SourceHardcodedRegionFallback,
}

// Result is one resolved location. Confidence is a bounded plausibility
// score, not a probability: higher means more upstream corroboration, never
// correctness. Results are immutable once handed to a consumer.
type Result struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name"`
	Query       string  `json:"query"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}
