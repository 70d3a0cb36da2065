// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"math"
	"regexp"
	"strings"

	"github.com/jcodagnone/terroir/utils/textutils"
)

// noiseTokens are generic wine-trade words that carry no signal when
// matching a producer name against a candidate label.
var noiseTokens = map[string]struct{}{
	"domaine": {},
	"domain":  {},
	"maison":  {},
	"les":     {},
	"du":      {},
	"de":      {},
	"la":      {},
	"le":      {},
	"des":     {},
	"and":     {},
	"et":      {},
	"vinhos":  {},
	"wine":    {},
}

var tokenSplitRegex = regexp.MustCompile(`[^A-Za-zÀ-ÿ0-9 ]+`)

// ProducerTokens extracts the distinctive tokens of a producer name: lower
// cased, at least four characters, noise words removed. These are the words
// that make "Domaine Leflaive" recognizably Leflaive.
func ProducerTokens(name string) map[string]struct{} {
	cleaned := strings.ToLower(tokenSplitRegex.ReplaceAllString(name, " "))
	tokens := make(map[string]struct{})

	for _, part := range strings.Fields(cleaned) {
		if len(part) < 4 {
			continue
		}

		if _, noise := noiseTokens[part]; noise {
			continue
		}

		tokens[part] = struct{}{}
	}

	return tokens
}

// Scorer weights. Each is one independent evidence signal; the sum is
// rescaled into a confidence by confidenceScale with a floor and a ceiling:
// a matched candidate is never fully discounted, heuristics never claim
// certainty.
const (
	weightPOIClass      = 0.6
	weightWineType      = 0.6
	weightTokenMatch    = 0.4
	maxTokenScore       = 1.2
	weightCountryFR     = 0.3
	weightBourgogne     = 0.6
	weightExpectedPlace = 0.4

	confidenceScale = 2.8
	confidenceFloor = 0.2
	confidenceCeil  = 0.98
)

// poiClasses are the Nominatim classes of commercial points of interest; a
// winery shop or tasting room lands in one of these.
var poiClasses = map[string]struct{}{
	"shop":    {},
	"office":  {},
	"tourism": {},
	"amenity": {},
}

// PlaceContext is the scoring context for one geocode query.
type PlaceContext struct {
	// ProducerName, when set, rewards candidates whose label mentions the
	// producer's distinctive tokens.
	ProducerName string

	// ExpectedRegion, when set, rewards candidates that literally mention
	// the sub-region the entity is expected to sit in.
	ExpectedRegion string
}

// PlaceScore itemizes the evidence one candidate earned. Total is what
// BestPlace ranks by.
type PlaceScore struct {
	POIClass      float64
	WineType      float64
	TokenMatch    float64
	FrenchCountry float64
	Bourgogne     float64
	ExpectedPlace float64
}

// Total sums every signal.
func (s PlaceScore) Total() float64 {
	return s.POIClass + s.WineType + s.TokenMatch +
		s.FrenchCountry + s.Bourgogne + s.ExpectedPlace
}

// ScorePlace scores one candidate under the given context.
func ScorePlace(c *Candidate, pctx PlaceContext) PlaceScore {
	tokens := ProducerTokens(pctx.ProducerName)
	expected := strings.ToLower(pctx.ExpectedRegion)

	displayL := strings.ToLower(textutils.NormSpace(c.DisplayName))
	class := strings.ToLower(textutils.NormSpace(c.Class))
	typ := strings.ToLower(textutils.NormSpace(c.Type))

	var score PlaceScore

	if _, ok := poiClasses[class]; ok {
		score.POIClass = weightPOIClass
	}

	if strings.Contains(typ, "win") || strings.Contains(typ, "vine") ||
		strings.Contains(displayL, "wine") {
		score.WineType = weightWineType
	}

	if len(tokens) > 0 {
		var matched int

		for t := range tokens {
			if strings.Contains(displayL, t) {
				matched++
			}
		}

		score.TokenMatch = min(maxTokenScore, float64(matched)*weightTokenMatch)
	}

	country := c.CountryCode
	if c.Address != nil && c.Address.CountryCode != "" {
		country = c.Address.CountryCode
	}

	if strings.ToLower(textutils.NormSpace(country)) == "fr" {
		score.FrenchCountry = weightCountryFR
	}

	var state, county string
	if c.Address != nil {
		state = strings.ToLower(textutils.NormSpace(c.Address.State))
		county = strings.ToLower(textutils.NormSpace(c.Address.County))
	}

	regionBlob := state + " " + county + " " + displayL
	if strings.Contains(regionBlob, "bourgogne") {
		score.Bourgogne = weightBourgogne
	}

	if expected != "" && strings.Contains(displayL, expected) {
		score.ExpectedPlace = weightExpectedPlace
	}

	return score
}

// BestPlace scores each candidate and returns the winner as a Result with
// source "nominatim", or nil when nothing is usable. Strictly greater
// scores win; ties keep the first-seen candidate.
func BestPlace(candidates []Candidate, pctx PlaceContext) *Result {
	if len(candidates) == 0 {
		return nil
	}

	bestScore := math.Inf(-1)

	var (
		best    *Candidate
		bestLat float64
		bestLon float64
	)

	for i := range candidates {
		c := &candidates[i]

		lat, lon, ok := c.LatLon()
		if !ok {
			continue
		}

		score := ScorePlace(c, pctx).Total()

		if score > bestScore {
			bestScore = score
			best = c
			bestLat, bestLon = lat, lon
		}
	}

	if best == nil {
		return nil
	}

	confidence := min(confidenceCeil, max(confidenceFloor, bestScore/confidenceScale))

	return &Result{
		Lat:         bestLat,
		Lng:         bestLon,
		DisplayName: textutils.NormSpace(best.DisplayName),
		Source:      SourceNominatim,
		Confidence:  round3(confidence),
	}
}

// Entity scorer weights.
const (
	weightWineryVocab  = 1.0
	weightEstatePrefix = 0.4
	weightEntityRegion = 0.2
)

// wineryVocab marks an entity description as wine production.
var wineryVocab = []string{
	"winery",
	"wine producer",
	"wine house",
	"vineyard",
	"viticulture",
}

// BestEntity picks the most plausible Wikidata entity for a producer, or
// nil. Raw arg-max: no rescaling, the caller assigns the tier's fixed
// confidence to whatever wins.
func BestEntity(entities []Entity, producer string) *Entity {
	if len(entities) == 0 {
		return nil
	}

	tokens := ProducerTokens(producer)
	bestScore := math.Inf(-1)

	var best *Entity

	for i := range entities {
		e := &entities[i]

		label := textutils.NormSpace(e.Label)
		description := textutils.NormSpace(e.Description)
		blob := strings.ToLower(label + " " + description)

		var score float64

		for _, vocab := range wineryVocab {
			if strings.Contains(blob, vocab) {
				score += weightWineryVocab

				break
			}
		}

		if strings.Contains(blob, "domaine") || strings.Contains(blob, "chateau") ||
			strings.Contains(blob, "maison") {
			score += weightEstatePrefix
		}

		if len(tokens) > 0 {
			var matched int

			for t := range tokens {
				if strings.Contains(blob, t) {
					matched++
				}
			}

			score += min(maxTokenScore, float64(matched)*weightTokenMatch)
		}

		if strings.Contains(blob, "france") || strings.Contains(blob, "burgundy") ||
			strings.Contains(blob, "bourgogne") {
			score += weightEntityRegion
		}

		if score > bestScore {
			bestScore = score
			best = e
		}
	}

	return best
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
