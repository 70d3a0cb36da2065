// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"strconv"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/terroir/enrich"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// DefaultAddr is where the catalog server listens. The map is a local
// review tool, so it never binds a public interface.
const DefaultAddr = "localhost:8080"

// Server serves the catalog API and the map page.
type Server struct {
	repo      Repository
	index     *ProducerIndex
	producers []*Producer
	mapsKey   string
	addr      string
	templates string
}

// ServerOptions tunes the server. The zero value works over a loaded
// catalog.
type ServerOptions struct {
	// Addr defaults to DefaultAddr.
	Addr string
	// TemplateGlob defaults to "catalog/templates/*.html".
	TemplateGlob string
	// MapsKey skips the GOOGLE_MAPS_API_KEY / ADC lookup when set.
	MapsKey string
}

// NewServer reads the producers once and builds the search index over them.
// Without a Google Maps key the map page degrades to the raw layers.
func NewServer(repo Repository, options *ServerOptions) (*Server, error) {
	if options == nil {
		options = &ServerOptions{}
	}

	addr := options.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	templates := options.TemplateGlob
	if templates == "" {
		templates = "catalog/templates/*.html"
	}

	producers, err := repo.ListProducers()
	if err != nil {
		return nil, fmt.Errorf("listing producers: %w", err)
	}

	apiKey := options.MapsKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}

	if apiKey == "" {
		log.Println("GOOGLE_MAPS_API_KEY is not set. Attempting to retrieve via ADC...")

		apiKey, err = mapsKeyFromADC(context.Background())
		if err != nil {
			log.Printf("Failed to retrieve Maps key via ADC: %v", err)
			log.Print("Serving without a Google Maps key. The /geojson layers still work.")

			apiKey = ""
		} else {
			log.Println("✅ Retrieved Google Maps key via ADC")
		}
	}

	log.Printf("📍 catalog server: %d producers indexed", len(producers))

	return &Server{
		repo:      repo,
		index:     NewProducerIndex(producers),
		producers: producers,
		mapsKey:   apiKey,
		addr:      addr,
		templates: templates,
	}, nil
}

func mapsKeyFromADC(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	projectID := creds.ProjectID
	if projectID == "" {
		return "", errors.New("no project id in default credentials")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	const targetDisplayName = "Terroir Maps Key"

	req := &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	}

	it := client.ListKeys(ctx, req)

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != targetDisplayName {
			continue
		}

		// ListKeys redacts the KeyString; GetKeyString retrieves the
		// secret.
		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key %q found but its key string is empty", targetDisplayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name %q not found in project %s", targetDisplayName, projectID)
}

// Run blocks serving the catalog until the process ends.
func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)

	r := gin.Default()
	r.SetHTMLTemplate(template.Must(template.New("").ParseGlob(s.templates)))

	r.GET("/", s.mapView)
	r.GET("/api/producers", s.listProducers)
	r.GET("/api/producers/clusters", s.getProducerClusters)
	r.GET("/api/subregions", s.listSubRegions)
	r.GET("/api/grapes", s.listGrapes)
	r.GET("/api/wines", s.listWines)
	r.GET("/api/stats", s.getStats)
	r.GET("/geojson/producers", s.getProducersGeoJSON)
	r.GET("/geojson/subregions", s.getSubRegionsGeoJSON)

	log.Printf("serving catalog on http://%s", s.addr)

	return r.Run(s.addr)
}

func (s *Server) mapView(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "map.html", gin.H{"MapsKey": s.mapsKey})
}

func (s *Server) listProducers(ctx *gin.Context) {
	matches := s.index.Search(ctx.Query("q"))

	if bucket := ctx.Query("bucket"); bucket != "" {
		if !validBuckets[bucket] {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid bucket parameter"})

			return
		}

		filtered := make([]*Producer, 0, len(matches))

		for _, p := range matches {
			if enrich.PriceBucket(p.PriceAvg) == bucket {
				filtered = append(filtered, p)
			}
		}

		matches = filtered
	}

	ctx.JSON(http.StatusOK, matches)
}

func (s *Server) getProducerClusters(ctx *gin.Context) {
	radius := DefaultClusterRadius

	if param := ctx.Query("radius_m"); param != "" {
		value, err := strconv.ParseFloat(param, 64)
		if err != nil || value <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_m parameter"})

			return
		}

		radius = value
	}

	ctx.JSON(http.StatusOK, ClusterProducers(s.producers, radius))
}

func (s *Server) listSubRegions(ctx *gin.Context) {
	subRegions, err := s.repo.ListSubRegions()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, subRegions)
}

func (s *Server) listGrapes(ctx *gin.Context) {
	grapes, err := s.repo.ListGrapes()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, grapes)
}

func (s *Server) listWines(ctx *gin.Context) {
	filter := WineFilter{
		Producer:  ctx.Query("producer"),
		SubRegion: ctx.Query("sub_region"),
		Grape:     ctx.Query("grape"),
		Bucket:    ctx.Query("bucket"),
	}

	if filter.Bucket != "" && !validBuckets[filter.Bucket] {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid bucket parameter"})

		return
	}

	if param := ctx.Query("limit"); param != "" {
		value, err := strconv.Atoi(param)
		if err != nil || value <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

			return
		}

		filter.Limit = value
	}

	if param := ctx.Query("offset"); param != "" {
		value, err := strconv.Atoi(param)
		if err != nil || value < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset parameter"})

			return
		}

		filter.Offset = value
	}

	wines, err := s.repo.ListWines(filter)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if wines == nil {
		wines = []*Wine{}
	}

	ctx.JSON(http.StatusOK, wines)
}

func (s *Server) getStats(ctx *gin.Context) {
	stats, err := s.repo.Stats()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, stats)
}

func (s *Server) getProducersGeoJSON(ctx *gin.Context) {
	rows := make([]enrich.ProducerRow, 0, len(s.producers))

	for _, p := range s.producers {
		rows = append(rows, enrich.ProducerRow{
			Producer:         p.Name,
			WineCount:        p.WineCount,
			PrimarySubRegion: p.PrimarySubRegion,
			PriceBRL: enrich.PriceSummary{
				Min: p.PriceMin,
				Avg: p.PriceAvg,
				Max: p.PriceMax,
			},
			Location: enrich.Location{
				Point:      p.Point,
				Source:     p.LocationSource,
				Confidence: p.LocationConfidence,
			},
		})
	}

	ctx.JSON(http.StatusOK, enrich.ProducersGeoJSON(rows))
}

func (s *Server) getSubRegionsGeoJSON(ctx *gin.Context) {
	subRegions, err := s.repo.ListSubRegions()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	rows := make([]enrich.SubRegionRow, 0, len(subRegions))

	for _, sr := range subRegions {
		rows = append(rows, enrich.SubRegionRow{
			SubRegion:     sr.Name,
			WineCount:     sr.WineCount,
			ProducerCount: sr.ProducerCount,
			PriceBRL:      enrich.PriceSummary{Avg: sr.PriceAvg},
			Location: enrich.MapPoint{
				Point:      sr.Point,
				Source:     sr.LocationSource,
				Confidence: sr.LocationConfidence,
			},
		})
	}

	ctx.JSON(http.StatusOK, enrich.SubRegionsGeoJSON(rows))
}
