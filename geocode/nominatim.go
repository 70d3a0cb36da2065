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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jcodagnone/terroir/utils/httputils"
)

// Nominatim defaults. The public instance asks for at most one request per
// second from bulk users; 1.1s keeps a little margin.
const (
	DefaultNominatimEndpoint = "https://nominatim.openstreetmap.org/search"
	DefaultNominatimDelay    = 1100 * time.Millisecond
	DefaultTimeout           = 30 * time.Second

	nominatimResultLimit = "8"
)

// Address is the subdivision block Nominatim attaches to a candidate when
// addressdetails is requested.
type Address struct {
	State       string `json:"state"`
	County      string `json:"county"`
	CountryCode string `json:"country_code"`
}

// Candidate is one raw Nominatim result. It only lives long enough to be
// scored; the cache keeps the untouched response instead.
type Candidate struct {
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	DisplayName string          `json:"display_name"`
	Class       string          `json:"class"`
	Type        string          `json:"type"`
	CountryCode string          `json:"country_code"`
	Address     *Address        `json:"address,omitempty"`
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
}

// LatLon parses the candidate's coordinate strings. Nominatim serializes
// coordinates as strings; candidates that don't parse are unusable.
func (c *Candidate) LatLon() (lat, lon float64, ok bool) {
	lat, err := strconv.ParseFloat(c.Lat, 64)
	if err != nil {
		return 0, 0, false
	}

	lon, err = strconv.ParseFloat(c.Lon, 64)
	if err != nil {
		return 0, 0, false
	}

	return lat, lon, true
}

// NominatimOptions configures a NominatimClient.
type NominatimOptions struct {
	// Endpoint overrides the search URL (tests, self-hosted instances).
	Endpoint string

	// UserAgent identifies this client to the service. Required by the
	// Nominatim usage policy.
	UserAgent string

	// MinDelay is the minimum spacing between network calls of this client
	// instance. Cache hits don't count.
	MinDelay time.Duration

	// Timeout bounds one HTTP exchange.
	Timeout time.Duration

	// IncludePolygons asks for polygon_geojson geometry on each candidate.
	IncludePolygons bool

	// HTTPTrace, when set, receives a dump of every HTTP exchange.
	HTTPTrace io.Writer
}

// NominatimClient queries the Nominatim search API with a per-instance rate
// limit and a shared response cache.
type NominatimClient struct {
	endpoint string
	polygons bool
	client   *http.Client
	limiter  *rate.Limiter
	cache    Store
}

// NewNominatimClient creates a client over the given store.
func NewNominatimClient(cache Store, opts *NominatimOptions) *NominatimClient {
	if opts == nil {
		opts = &NominatimOptions{}
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultNominatimEndpoint
	}

	minDelay := opts.MinDelay
	if minDelay <= 0 {
		minDelay = DefaultNominatimDelay
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &NominatimClient{
		endpoint: endpoint,
		polygons: opts.IncludePolygons,
		client:   newServiceHTTPClient(opts.UserAgent, timeout, opts.HTTPTrace),
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		cache:    cache,
	}
}

// newServiceHTTPClient builds the http.Client shared by the geocoding
// clients: identification headers appended on every request, optional
// wire tracing underneath.
func newServiceHTTPClient(userAgent string, timeout time.Duration, trace io.Writer) *http.Client {
	if userAgent == "" {
		userAgent = "terroir/unknown"
	}

	transport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		Transport: &httputils.LoggingRoundTripper{
			Writer:    trace,
			Transport: http.DefaultTransport,
		},
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// searchKey normalizes a query into its cache key.
func searchKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// emptyResults is what a confirmed-empty or undecodable answer caches as.
var emptyResults = json.RawMessage("[]")

// Search returns the candidates for a free-text query. Results, including
// empty ones, are cached under this client's namespace; a cache hit costs
// neither delay nor network. A non-nil error is always a fault, never "no
// results": callers resolving a batch should log it and carry on with the
// next phrasing.
func (c *NominatimClient) Search(ctx context.Context, query string) ([]Candidate, error) {
	key := searchKey(query)
	if raw, ok := c.cache.Get(key); ok {
		return decodeCandidates(raw), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", nominatimResultLimit)
	params.Set("addressdetails", "1")
	params.Set("namedetails", "1")
	params.Set("countrycodes", "fr")

	if c.polygons {
		params.Set("polygon_geojson", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ServiceNominatim, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, ClassifyHTTPError(ServiceNominatim, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ServiceNominatim, err)
	}

	var candidates []Candidate
	if err := json.Unmarshal(body, &candidates); err != nil {
		// Upstream noise counts as a confirmed empty answer, same as a
		// well-formed empty array, so the query is not retried next run.
		c.cache.Put(key, emptyResults)

		return nil, &ServiceError{
			Service: ServiceNominatim,
			Kind:    ErrorKindBadResponse,
			Message: "undecodable response body",
			Err:     err,
		}
	}

	c.cache.Put(key, json.RawMessage(body))

	return candidates, nil
}

// decodeCandidates is lenient: a cached value of unexpected shape is an
// empty result, not a fault.
func decodeCandidates(raw json.RawMessage) []Candidate {
	var candidates []Candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil
	}

	return candidates
}
