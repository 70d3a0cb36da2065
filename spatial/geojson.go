// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import "encoding/json"

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection wraps features into a collection. A nil slice becomes
// an empty features array, which map clients prefer over null.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}

	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// Feature is a GeoJSON feature. Geometry is either a PointGeometry built
// here or a raw geometry taken verbatim from an upstream service.
type Feature struct {
	Type       string `json:"type"`
	Geometry   any    `json:"geometry"`
	Properties any    `json:"properties"`
}

// PointGeometry is a GeoJSON point. Coordinates are [lng, lat].
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPointFeature builds a point feature from a Point.
func NewPointFeature(p Point, properties any) Feature {
	return Feature{
		Type: "Feature",
		Geometry: PointGeometry{
			Type:        "Point",
			Coordinates: [2]float64{p.Lng, p.Lat},
		},
		Properties: properties,
	}
}

// NewRawFeature builds a feature around an upstream geometry, for polygon
// payloads that are passed through untouched.
func NewRawFeature(geometry json.RawMessage, properties any) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   geometry,
		Properties: properties,
	}
}
