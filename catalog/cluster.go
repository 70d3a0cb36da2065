// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"sort"

	"github.com/jcodagnone/terroir/spatial"
)

// DefaultClusterRadius is the marker grouping distance in meters.
const DefaultClusterRadius = 500.0

// Cluster is a group of producers within a radius of each other, rendered
// as one map marker.
type Cluster struct {
	Centroid  spatial.Point `json:"centroid"`
	Size      int           `json:"size"`
	WineCount int           `json:"wine_count"`
	Producers []string      `json:"producers"`
}

// clusterProducers groups producers based on a distance threshold in meters.
func clusterProducers(producers []*Producer, radiusMeters float64) [][]*Producer {
	clusters := make([][]*Producer, 0, len(producers))

	visited := make([]bool, len(producers))

	for i, p1 := range producers {
		if visited[i] {
			continue
		}

		cluster := []*Producer{p1}
		visited[i] = true

		for j, p2 := range producers {
			if visited[j] {
				continue
			}

			// Check distance against all members of the current cluster
			for _, member := range cluster {
				if p2.Point.HaversineDistance(&member.Point) <= radiusMeters {
					cluster = append(cluster, p2)
					visited[j] = true

					break
				}
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// ClusterProducers groups producers into map markers. Markers with the most
// wines come first.
func ClusterProducers(producers []*Producer, radiusMeters float64) []*Cluster {
	if radiusMeters <= 0 {
		radiusMeters = DefaultClusterRadius
	}

	groups := clusterProducers(producers, radiusMeters)

	clusters := make([]*Cluster, 0, len(groups))

	for _, group := range groups {
		c := &Cluster{
			Size:      len(group),
			Producers: make([]string, 0, len(group)),
		}

		points := make([]spatial.Point, 0, len(group))

		for _, p := range group {
			c.WineCount += p.WineCount
			c.Producers = append(c.Producers, p.Name)
			points = append(points, p.Point)
		}

		if centroid, ok := spatial.Centroid(points); ok {
			c.Centroid = centroid.Round(6)
		}

		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].WineCount != clusters[j].WineCount {
			return clusters[i].WineCount > clusters[j].WineCount
		}

		return clusters[i].Size > clusters[j].Size
	})

	return clusters
}
