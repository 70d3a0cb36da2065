// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jcodagnone/terroir/spatial"
	"github.com/jcodagnone/terroir/utils/textutils"
)

// PlaceSearcher is the geocoding surface the resolver consumes. Implemented
// by NominatimClient.
type PlaceSearcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// EntityFinder is the knowledge-base surface the resolver consumes.
// Implemented by WikidataClient.
type EntityFinder interface {
	SearchEntities(ctx context.Context, query string) ([]Entity, error)
	EntityCoordinates(ctx context.Context, entityID string) (*spatial.Point, error)
}

// RegionName is the region every query phrasing anchors on.
const RegionName = "Bourgogne"

// Tier confidence constants. Lower tiers carry fixed confidences so the
// source of every coordinate stays readable from the number alone.
const (
	subRegionConfidenceFloor    = 0.7
	wikidataConfidence          = 0.74
	subRegionFallbackConfidence = 0.55
	regionFallbackConfidence    = 0.35
)

// hardcodedRegion is the terminal anchor used when even the region itself
// cannot be geocoded. The run never ends without coordinates.
var hardcodedRegion = Result{
	Lat:         47.052,
	Lng:         4.383,
	DisplayName: "Bourgogne, France",
	Query:       "hardcoded",
	Source:      SourceHardcodedRegionFallback,
	Confidence:  0.3,
}

// Resolver walks the fallback tiers for sub-regions and producers. All
// upstream faults are logged and treated as misses so one flaky request
// cannot abort a batch run; only cancellation stops it.
type Resolver struct {
	places   PlaceSearcher
	entities EntityFinder
}

func NewResolver(places PlaceSearcher, entities EntityFinder) *Resolver {
	return &Resolver{
		places:   places,
		entities: entities,
	}
}

// SubRegion resolves a sub-region through fixed query phrasings, French
// spelling first. The first phrasing with a scored candidate wins, its
// confidence raised to at least 0.7: the phrasing itself already pins the
// region. Returns nil when every phrasing misses.
func (r *Resolver) SubRegion(ctx context.Context, name string) (*Result, error) {
	queries := []string{
		fmt.Sprintf("%s, Bourgogne, France", name),
		fmt.Sprintf("%s, Burgundy, France", name),
	}

	for _, q := range queries {
		candidates, err := r.search(ctx, q)
		if err != nil {
			return nil, err
		}

		picked := BestPlace(candidates, PlaceContext{ExpectedRegion: name})
		if picked == nil {
			continue
		}

		picked.Query = q
		picked.Source = SourceSubRegion
		picked.Confidence = max(picked.Confidence, subRegionConfidenceFloor)

		return picked, nil
	}

	return nil, nil
}

// Producer resolves a producer through the network tiers: geocode phrasings
// seeded with its primary sub-region, then knowledge-base name variants.
// Returns nil when both exhaust; callers fall back with ResolveProducer.
func (r *Resolver) Producer(ctx context.Context, producer, primarySubRegion string) (*Result, error) {
	queries := make([]string, 0, 5)
	if primarySubRegion != "" {
		queries = append(queries, fmt.Sprintf("%s, %s, Bourgogne, France", producer, primarySubRegion))
	}

	queries = append(queries,
		fmt.Sprintf("%s, Bourgogne, France", producer),
		fmt.Sprintf("%s winery, Bourgogne, France", producer),
		fmt.Sprintf("%s domaine, Bourgogne, France", producer),
		fmt.Sprintf("%s, Burgundy, France", producer),
	)

	for _, q := range queries {
		candidates, err := r.search(ctx, q)
		if err != nil {
			return nil, err
		}

		picked := BestPlace(candidates, PlaceContext{
			ProducerName:   producer,
			ExpectedRegion: primarySubRegion,
		})
		if picked == nil {
			continue
		}

		picked.Query = q
		picked.Source = SourceProducer

		return picked, nil
	}

	return r.producerWikidata(ctx, producer)
}

// producerWikidata tries estate name variants against the knowledge base.
// A variant wins when the entity scorer picks something and that entity
// carries a coordinate claim.
func (r *Resolver) producerWikidata(ctx context.Context, producer string) (*Result, error) {
	lower := strings.ToLower(producer)

	queries := []string{producer}
	if !strings.Contains(lower, "domaine") {
		queries = append(queries, "Domaine "+producer)
	}

	if !strings.Contains(lower, "maison") {
		queries = append(queries, "Maison "+producer)
	}

	if !strings.Contains(lower, "chateau") && !strings.Contains(lower, "château") {
		queries = append(queries, "Chateau "+producer)
	}

	queries = append(queries, producer+" winery")

	for _, q := range queries {
		entities, err := r.entitySearch(ctx, q)
		if err != nil {
			return nil, err
		}

		best := BestEntity(entities, producer)
		if best == nil {
			continue
		}

		entityID := textutils.NormSpace(best.ID)
		if entityID == "" {
			continue
		}

		point, err := r.entityCoordinates(ctx, entityID)
		if err != nil {
			return nil, err
		}

		if point == nil {
			continue
		}

		label := textutils.NormSpace(best.Label)
		if label == "" {
			label = producer
		}

		display := label
		if description := textutils.NormSpace(best.Description); description != "" {
			display = fmt.Sprintf("%s (%s)", label, description)
		}

		return &Result{
			Lat:         point.Lat,
			Lng:         point.Lng,
			DisplayName: display,
			Query:       q,
			Source:      SourceProducerWikidata,
			Confidence:  wikidataConfidence,
		}, nil
	}

	return nil, nil
}

// ResolveProducer runs the full producer chain and always lands somewhere:
// network tiers first, then the primary sub-region's already-resolved
// result at confidence 0.55, then the region-wide result at 0.35.
func (r *Resolver) ResolveProducer(ctx context.Context, producer, primarySubRegion string,
	subRegions map[string]*Result, region *Result,
) (*Result, error) {
	geo, err := r.Producer(ctx, producer, primarySubRegion)
	if err != nil {
		return nil, err
	}

	if geo != nil {
		return geo, nil
	}

	if srg, ok := subRegions[primarySubRegion]; ok && srg != nil {
		out := *srg
		out.Source = SourceProducerSubRegionFallback
		out.Confidence = subRegionFallbackConfidence

		return &out, nil
	}

	out := *region
	out.Source = SourceProducerRegionFallback
	out.Confidence = regionFallbackConfidence

	return &out, nil
}

// Region resolves the region-wide anchor once per run, falling back to a
// fixed Bourgogne centroid. Never returns nil.
func (r *Resolver) Region(ctx context.Context) (*Result, error) {
	geo, err := r.SubRegion(ctx, RegionName)
	if err != nil {
		return nil, err
	}

	if geo != nil {
		return geo, nil
	}

	out := hardcodedRegion

	return &out, nil
}

func (r *Resolver) search(ctx context.Context, query string) ([]Candidate, error) {
	candidates, err := r.places.Search(ctx, query)
	if err != nil {
		if !absorbable(err) {
			return nil, err
		}

		log.Printf("Geocode search %q failed: %s", query, err)

		return nil, nil
	}

	return candidates, nil
}

func (r *Resolver) entitySearch(ctx context.Context, query string) ([]Entity, error) {
	entities, err := r.entities.SearchEntities(ctx, query)
	if err != nil {
		if !absorbable(err) {
			return nil, err
		}

		log.Printf("Entity search %q failed: %s", query, err)

		return nil, nil
	}

	return entities, nil
}

func (r *Resolver) entityCoordinates(ctx context.Context, entityID string) (*spatial.Point, error) {
	point, err := r.entities.EntityCoordinates(ctx, entityID)
	if err != nil {
		if !absorbable(err) {
			return nil, err
		}

		log.Printf("Entity coordinates %s failed: %s", entityID, err)

		return nil, nil
	}

	return point, nil
}

// absorbable reports whether an upstream failure should be logged and
// treated as a miss. Cancellation is never absorbed: an interrupt must
// stop the run.
func absorbable(err error) bool {
	var serviceErr *ServiceError

	return errors.As(err, &serviceErr) && !errors.Is(err, context.Canceled)
}
