// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package polygons

import (
	"encoding/json"
	"strings"

	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/utils/textutils"
)

// Boundary candidates are filtered hard before scoring: only administrative
// boundaries and place polygons qualify, commercial and amenity hits never
// do no matter how well their names match.
var (
	allowedClasses = map[string]struct{}{
		"boundary": {},
		"place":    {},
		"landuse":  {},
		"natural":  {},
	}

	allowedTypes = map[string]struct{}{
		"administrative":  {},
		"village":         {},
		"municipality":    {},
		"hamlet":          {},
		"quarter":         {},
		"city":            {},
		"town":            {},
		"county":          {},
		"region":          {},
		"local_authority": {},
		"suburb":          {},
	}

	deniedTypes = map[string]struct{}{
		"place_of_worship": {},
		"bicycle_parking":  {},
		"alcohol":          {},
		"restaurant":       {},
		"hotel":            {},
		"supermarket":      {},
		"house":            {},
		"yes":              {},
	}

	boostTypes = map[string]struct{}{
		"administrative": {},
		"village":        {},
		"municipality":   {},
		"hamlet":         {},
		"quarter":        {},
		"city":           {},
	}

	boostClasses = map[string]struct{}{
		"boundary": {},
		"place":    {},
	}
)

// burgundyCounties are the departments the region spans, folded.
var burgundyCounties = []string{"cote-d'or", "saone-et-loire", "yonne"}

// Candidate is one boundary candidate that survived filtering, with its raw
// geometry kept verbatim for the output file.
type Candidate struct {
	Geometry    json.RawMessage
	DisplayName string
	ItemType    string
	ItemClass   string
	Lat         float64
	Lng         float64
	Score       float64
}

func hasPolygonGeometry(raw json.RawMessage) bool {
	var peek struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(raw, &peek); err != nil {
		return false
	}

	return peek.Type == "Polygon" || peek.Type == "MultiPolygon"
}

func hasRegionAddress(addr *geocode.Address) bool {
	if addr == nil {
		return false
	}

	if strings.Contains(textutils.Fold(addr.State), "bourgogne") {
		return true
	}

	county := textutils.Fold(addr.County)
	for _, c := range burgundyCounties {
		if county != "" && strings.Contains(county, c) {
			return true
		}
	}

	return false
}

// scoreCandidate filters and scores one raw result against the sub-region
// it should outline. nil means unusable: wrong geometry, denied type, class
// or type outside the allow lists, or an unparseable coordinate.
func scoreCandidate(item geocode.Candidate, subRegion string) *Candidate {
	if len(item.GeoJSON) == 0 || !hasPolygonGeometry(item.GeoJSON) {
		return nil
	}

	if _, ok := deniedTypes[item.Type]; ok {
		return nil
	}

	if item.Class != "" {
		if _, ok := allowedClasses[item.Class]; !ok {
			return nil
		}
	}

	if item.Type != "" {
		if _, ok := allowedTypes[item.Type]; !ok {
			return nil
		}
	}

	lat, lon, ok := item.LatLon()
	if !ok {
		return nil
	}

	display := strings.ToLower(item.DisplayName)

	score := 0.0
	if strings.Contains(display, strings.ToLower(subRegion)) {
		score += 1.6
	}

	if strings.Contains(display, "bourgogne") {
		score += 0.8
	}

	if _, ok := boostTypes[item.Type]; ok {
		score += 0.4
	}

	if _, ok := boostClasses[item.Class]; ok {
		score += 0.4
	}

	if hasRegionAddress(item.Address) {
		score += 0.4
	}

	return &Candidate{
		Geometry:    item.GeoJSON,
		DisplayName: item.DisplayName,
		ItemType:    item.Type,
		ItemClass:   item.Class,
		Lat:         lat,
		Lng:         lon,
		Score:       score,
	}
}

// choosePolygon picks the best surviving candidate. Ties keep the first
// seen, matching the service's own relevance order.
func choosePolygon(results []geocode.Candidate, subRegion string) *Candidate {
	var best *Candidate

	for i := range results {
		c := scoreCandidate(results[i], subRegion)
		if c == nil {
			continue
		}

		if best == nil || c.Score > best.Score {
			best = c
		}
	}

	return best
}

// queryOptions are the phrasings tried per sub-region, most specific first.
func queryOptions(subRegion string) []string {
	return []string{
		subRegion + ", Bourgogne, France",
		subRegion + ", Burgundy, France",
		subRegion + ", France",
	}
}
