// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"testing"

	"github.com/jcodagnone/terroir/enrich"
	"github.com/jcodagnone/terroir/geocode"
	"github.com/jcodagnone/terroir/spatial"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr error
	}{
		{
			name: "beaune",
			lat:  47.0521,
			lng:  4.8361,
		},
		{
			name: "chablis",
			lat:  47.8131,
			lng:  3.7987,
		},
		{
			name: "wikidata hit in alsace",
			lat:  48.2586,
			lng:  7.3389,
		},
		{
			name:    "latitude above global range",
			lat:     91.0,
			lng:     4.8,
			wantErr: ErrOutOfRange,
		},
		{
			name:    "longitude below global range",
			lat:     47.0,
			lng:     -181.0,
			wantErr: ErrOutOfRange,
		},
		{
			name:    "south of the european box",
			lat:     20.0,
			lng:     4.8,
			wantErr: ErrOutsideEurope,
		},
		{
			name:    "north of the european box",
			lat:     71.0,
			lng:     4.8,
			wantErr: ErrOutsideEurope,
		},
		{
			name:    "east of the european box",
			lat:     47.0,
			lng:     30.0,
			wantErr: ErrOutsideEurope,
		},
		{
			name:    "west of the european box",
			lat:     47.0,
			lng:     -20.0,
			wantErr: ErrOutsideEurope,
		},
		{
			name: "south boundary",
			lat:  35.0,
			lng:  4.8,
		},
		{
			name: "north boundary",
			lat:  60.0,
			lng:  4.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCoordinates(tt.lat, tt.lng)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateCoordinates(%f, %f) = %v, want nil", tt.lat, tt.lng, err)
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateCoordinates(%f, %f) = %v, want %v", tt.lat, tt.lng, err, tt.wantErr)
			}
		})
	}
}

func validTestProducer() *Producer {
	return &Producer{
		Name:               "Maison Aubert",
		WineCount:          2,
		Point:              spatial.Point{Lat: 47.0521, Lng: 4.8361},
		LocationSource:     geocode.SourceProducer,
		LocationConfidence: 0.8,
	}
}

func TestValidateProducer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Producer)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Producer) {},
		},
		{
			name:    "empty name",
			mutate:  func(p *Producer) { p.Name = "  " },
			wantErr: ErrNameRequired,
		},
		{
			name:    "unknown source",
			mutate:  func(p *Producer) { p.LocationSource = "divination" },
			wantErr: ErrUnknownSource,
		},
		{
			name:    "confidence above one",
			mutate:  func(p *Producer) { p.LocationConfidence = 1.2 },
			wantErr: ErrConfidenceRange,
		},
		{
			name:    "negative confidence",
			mutate:  func(p *Producer) { p.LocationConfidence = -0.1 },
			wantErr: ErrConfidenceRange,
		},
		{
			name:    "point outside europe",
			mutate:  func(p *Producer) { p.Point.Lat = -22.9 },
			wantErr: ErrOutsideEurope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validTestProducer()
			tt.mutate(p)

			err := validateProducer(p)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateProducer() = %v, want nil", err)
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateProducer() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := validateProducer(nil); err == nil {
		t.Error("validateProducer(nil) = nil, want error")
	}
}

func TestValidateProducerAcceptsEverySource(t *testing.T) {
	for _, source := range geocode.KnownSources {
		p := validTestProducer()
		p.LocationSource = source

		if err := validateProducer(p); err != nil {
			t.Errorf("validateProducer() with source %q = %v, want nil", source, err)
		}
	}
}

func TestValidateSubRegion(t *testing.T) {
	valid := SubRegion{
		Name:               "Chablis",
		WineCount:          2,
		Point:              spatial.Point{Lat: 47.8131, Lng: 3.7987},
		LocationSource:     geocode.SourceSubRegion,
		LocationConfidence: 0.68,
	}

	if err := validateSubRegion(&valid); err != nil {
		t.Errorf("validateSubRegion() = %v, want nil", err)
	}

	derived := valid
	derived.LocationSource = enrich.SourceDerivedFromWines

	if err := validateSubRegion(&derived); err != nil {
		t.Errorf("validateSubRegion() with derived source = %v, want nil", err)
	}

	// A producer source never labels a sub-region row.
	wrongSource := valid
	wrongSource.LocationSource = geocode.SourceProducer

	if err := validateSubRegion(&wrongSource); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("validateSubRegion() = %v, want ErrUnknownSource", err)
	}

	unnamed := valid
	unnamed.Name = ""

	if err := validateSubRegion(&unnamed); !errors.Is(err, ErrNameRequired) {
		t.Errorf("validateSubRegion() = %v, want ErrNameRequired", err)
	}
}

func TestValidateWine(t *testing.T) {
	valid := Wine{
		ID:            7,
		Title:         "Petit Chablis",
		PriceBucket:   enrich.BucketEntry,
		Point:         spatial.Point{Lat: 47.8131, Lng: 3.7987},
		MapSource:     enrich.MapSourceSubRegion,
		MapConfidence: 0.68,
	}

	if err := validateWine(&valid); err != nil {
		t.Errorf("validateWine() = %v, want nil", err)
	}

	badBucket := valid
	badBucket.PriceBucket = "luxury"

	if err := validateWine(&badBucket); !errors.Is(err, ErrUnknownBucket) {
		t.Errorf("validateWine() = %v, want ErrUnknownBucket", err)
	}

	badSource := valid
	badSource.MapSource = geocode.SourceNominatim

	if err := validateWine(&badSource); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("validateWine() = %v, want ErrUnknownSource", err)
	}

	untitled := valid
	untitled.Title = ""

	if err := validateWine(&untitled); !errors.Is(err, ErrNameRequired) {
		t.Errorf("validateWine() = %v, want ErrNameRequired", err)
	}
}
