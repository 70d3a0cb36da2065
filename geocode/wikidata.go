// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/jcodagnone/terroir/spatial"
)

// Wikidata defaults. The API tolerates a much higher request rate than
// Nominatim.
const (
	DefaultWikidataSearchEndpoint = "https://www.wikidata.org/w/api.php"
	DefaultWikidataEntityEndpoint = "https://www.wikidata.org/wiki/Special:EntityData"
	DefaultWikidataDelay          = 250 * time.Millisecond

	wikidataResultLimit = "10"

	// Cache key namespaces. Both clients share one Store; the prefixes keep
	// Wikidata entries apart from the bare Nominatim query keys.
	wikidataSearchPrefix = "wd_search::"
	wikidataEntityPrefix = "wd_entity::"

	// coordinateProperty is the Wikidata claim holding a geographic point.
	coordinateProperty = "P625"
)

// Entity is one Wikidata search hit.
type Entity struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// cachedCoordinate is the persisted form of an entity-coordinate lookup.
// Explicit nulls record "this entity has no coordinate" permanently: a
// missing claim on an upstream entity will not change.
type cachedCoordinate struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// WikidataOptions configures a WikidataClient.
type WikidataOptions struct {
	SearchEndpoint string
	EntityEndpoint string
	UserAgent      string
	MinDelay       time.Duration
	Timeout        time.Duration
	HTTPTrace      io.Writer
}

// WikidataClient searches entities and resolves their coordinate claims,
// sharing the cache store with the Nominatim client under its own
// namespaces.
type WikidataClient struct {
	searchEndpoint string
	entityEndpoint string
	client         *http.Client
	limiter        *rate.Limiter
	cache          Store
}

// NewWikidataClient creates a client over the given store.
func NewWikidataClient(cache Store, opts *WikidataOptions) *WikidataClient {
	if opts == nil {
		opts = &WikidataOptions{}
	}

	searchEndpoint := opts.SearchEndpoint
	if searchEndpoint == "" {
		searchEndpoint = DefaultWikidataSearchEndpoint
	}

	entityEndpoint := opts.EntityEndpoint
	if entityEndpoint == "" {
		entityEndpoint = DefaultWikidataEntityEndpoint
	}

	minDelay := opts.MinDelay
	if minDelay <= 0 {
		minDelay = DefaultWikidataDelay
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &WikidataClient{
		searchEndpoint: searchEndpoint,
		entityEndpoint: entityEndpoint,
		client:         newServiceHTTPClient(opts.UserAgent, timeout, opts.HTTPTrace),
		limiter:        rate.NewLimiter(rate.Every(minDelay), 1),
		cache:          cache,
	}
}

// get performs one rate-limited GET and returns the raw body.
func (c *WikidataClient) get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ServiceWikidata, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, ClassifyHTTPError(ServiceWikidata, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ServiceWikidata, err)
	}

	return body, nil
}

// SearchEntities runs a wbsearchentities query. Same contract as
// NominatimClient.Search: empty answers are cached, errors are faults.
func (c *WikidataClient) SearchEntities(ctx context.Context, query string) ([]Entity, error) {
	key := wikidataSearchPrefix + searchKey(query)
	if raw, ok := c.cache.Get(key); ok {
		return decodeEntities(raw), nil
	}

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("search", query)
	params.Set("language", "en")
	params.Set("format", "json")
	params.Set("limit", wikidataResultLimit)

	body, err := c.get(ctx, c.searchEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Search json.RawMessage `json:"search"`
	}

	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Search) == 0 {
		c.cache.Put(key, emptyResults)

		if err == nil {
			// Decoded fine, just no search block: confirmed empty.
			return nil, nil
		}

		return nil, &ServiceError{
			Service: ServiceWikidata,
			Kind:    ErrorKindBadResponse,
			Message: "undecodable search response",
			Err:     err,
		}
	}

	entities := decodeEntities(payload.Search)
	c.cache.Put(key, payload.Search)

	return entities, nil
}

// EntityCoordinates resolves the entity's coordinate claim. A nil point
// with nil error means the entity has no coordinate; that outcome is cached
// permanently so subsequent runs don't hit the network for it again.
func (c *WikidataClient) EntityCoordinates(ctx context.Context, entityID string) (*spatial.Point, error) {
	key := wikidataEntityPrefix + entityID
	if raw, ok := c.cache.Get(key); ok {
		return decodeCachedCoordinate(raw), nil
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/%s.json", c.entityEndpoint, entityID))
	if err != nil {
		return nil, err
	}

	point, decodeErr := extractCoordinate(body, entityID)

	if point != nil {
		c.cache.Put(key, cachedCoordinate{Lat: &point.Lat, Lng: &point.Lng})
	} else {
		c.cache.Put(key, cachedCoordinate{})
	}

	if decodeErr != nil {
		return nil, &ServiceError{
			Service: ServiceWikidata,
			Kind:    ErrorKindBadResponse,
			Message: "undecodable entity response",
			Err:     decodeErr,
		}
	}

	return point, nil
}

// extractCoordinate digs the first P625 claim out of an EntityData document.
func extractCoordinate(body json.RawMessage, entityID string) (*spatial.Point, error) {
	var doc struct {
		Entities map[string]struct {
			Claims map[string][]struct {
				Mainsnak struct {
					Datavalue struct {
						Value struct {
							Latitude  *float64 `json:"latitude"`
							Longitude *float64 `json:"longitude"`
						} `json:"value"`
					} `json:"datavalue"`
				} `json:"mainsnak"`
			} `json:"claims"`
		} `json:"entities"`
	}

	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	claims := doc.Entities[entityID].Claims[coordinateProperty]
	if len(claims) == 0 {
		return nil, nil
	}

	value := claims[0].Mainsnak.Datavalue.Value
	if value.Latitude == nil || value.Longitude == nil {
		return nil, nil
	}

	return &spatial.Point{Lat: *value.Latitude, Lng: *value.Longitude}, nil
}

func decodeEntities(raw json.RawMessage) []Entity {
	var entities []Entity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil
	}

	return entities
}

func decodeCachedCoordinate(raw json.RawMessage) *spatial.Point {
	var cached cachedCoordinate
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}

	if cached.Lat == nil || cached.Lng == nil {
		return nil
	}

	return &spatial.Point{Lat: *cached.Lat, Lng: *cached.Lng}
}
