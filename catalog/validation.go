// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jcodagnone/terroir/enrich"
	"github.com/jcodagnone/terroir/geocode"
)

// Validation errors. Callers can test them with errors.Is.
var (
	ErrNameRequired    = errors.New("name is required")
	ErrOutOfRange      = errors.New("coordinates are out of range")
	ErrOutsideEurope   = errors.New("coordinates fall outside Europe")
	ErrConfidenceRange = errors.New("confidence must be within [0, 1]")
	ErrUnknownSource   = errors.New("unknown location source")
	ErrUnknownBucket   = errors.New("unknown price bucket")
)

// validProducerSources are the resolution sources the geocoding pipeline can
// emit for a producer.
var validProducerSources = func() map[string]bool {
	m := make(map[string]bool, len(geocode.KnownSources))
	for _, s := range geocode.KnownSources {
		m[s] = true
	}

	return m
}()

var validSubRegionSources = map[string]bool{
	geocode.SourceSubRegion:       true,
	enrich.SourceDerivedFromWines: true,
}

var validWineMapSources = map[string]bool{
	enrich.MapSourceSubRegion: true,
	enrich.MapSourceProducer:  true,
	enrich.MapSourceRegion:    true,
}

var validBuckets = func() map[string]bool {
	m := make(map[string]bool, len(enrich.KnownBuckets))
	for _, b := range enrich.KnownBuckets {
		m[b] = true
	}

	return m
}()

// validateCoordinates checks global ranges first, then a wide European
// bounding box. Wikidata hits can place a négociant outside Bourgogne, so
// the box covers the continent rather than the region.
func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %f not in [-90, 90]", ErrOutOfRange, lat)
	}

	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %f not in [-180, 180]", ErrOutOfRange, lng)
	}

	const (
		europeMinLat = 35.0
		europeMaxLat = 60.0
		europeMinLng = -12.0
		europeMaxLng = 25.0
	)

	if lat < europeMinLat || lat > europeMaxLat {
		return fmt.Errorf("%w: latitude %f not in [%.0f, %.0f]", ErrOutsideEurope, lat, europeMinLat, europeMaxLat)
	}

	if lng < europeMinLng || lng > europeMaxLng {
		return fmt.Errorf("%w: longitude %f not in [%.0f, %.0f]", ErrOutsideEurope, lng, europeMinLng, europeMaxLng)
	}

	return nil
}

func validateConfidence(confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: got %f", ErrConfidenceRange, confidence)
	}

	return nil
}

func validateProducer(p *Producer) error {
	if p == nil {
		return errors.New("producer can't be nil")
	}

	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: producer", ErrNameRequired)
	}

	if err := validateCoordinates(p.Point.Lat, p.Point.Lng); err != nil {
		return fmt.Errorf("producer %q: %w", p.Name, err)
	}

	if err := validateConfidence(p.LocationConfidence); err != nil {
		return fmt.Errorf("producer %q: %w", p.Name, err)
	}

	if !validProducerSources[p.LocationSource] {
		return fmt.Errorf("producer %q: %w: %q", p.Name, ErrUnknownSource, p.LocationSource)
	}

	return nil
}

func validateSubRegion(s *SubRegion) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: sub-region", ErrNameRequired)
	}

	if err := validateCoordinates(s.Point.Lat, s.Point.Lng); err != nil {
		return fmt.Errorf("sub-region %q: %w", s.Name, err)
	}

	if err := validateConfidence(s.LocationConfidence); err != nil {
		return fmt.Errorf("sub-region %q: %w", s.Name, err)
	}

	if !validSubRegionSources[s.LocationSource] {
		return fmt.Errorf("sub-region %q: %w: %q", s.Name, ErrUnknownSource, s.LocationSource)
	}

	return nil
}

func validateGrape(g *Grape) error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: grape", ErrNameRequired)
	}

	if err := validateCoordinates(g.Point.Lat, g.Point.Lng); err != nil {
		return fmt.Errorf("grape %q: %w", g.Name, err)
	}

	return nil
}

func validateWine(w *Wine) error {
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("%w: wine %d title", ErrNameRequired, w.ID)
	}

	if err := validateCoordinates(w.Point.Lat, w.Point.Lng); err != nil {
		return fmt.Errorf("wine %d: %w", w.ID, err)
	}

	if err := validateConfidence(w.MapConfidence); err != nil {
		return fmt.Errorf("wine %d: %w", w.ID, err)
	}

	if !validWineMapSources[w.MapSource] {
		return fmt.Errorf("wine %d: %w: %q", w.ID, ErrUnknownSource, w.MapSource)
	}

	if !validBuckets[w.PriceBucket] {
		return fmt.Errorf("wine %d: %w: %q", w.ID, ErrUnknownBucket, w.PriceBucket)
	}

	return nil
}
