// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package scrape collects the Bourgogne catalog of mistral.com.br: it
// paginates the listing endpoint, visits every product page for its JSON-LD
// block, and writes a normalized wine collection plus a raw payload dump.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jcodagnone/terroir/utils/httputils"
)

// Defaults for a production run.
const (
	DefaultListingURL = "https://www.mistral.com.br/regiao/bourgogne"
	DefaultOutput     = "data/bourgogne-wines.json"
	DefaultRawOutput  = "data/bourgogne-wines.raw.json"

	DefaultTimeout = 30 * time.Second
	DefaultRetries = 3
	DefaultSleep   = 100 * time.Millisecond
	DefaultWorkers = 8

	// The storefront serves a bot wall to unknown clients.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	retryMaxDelay = 5 * time.Second
)

// Failsafe bounds. A run where product pages fail broadly is a site change
// or a block, not bad luck, and its output should not overwrite good data.
const (
	failsafeMinAttempts = 20
	failsafeMaxErrRate  = 0.05
)

var errProductFailures = errors.New("too many product page failures")

// Options configuration for the scrape Client.
type Options struct {
	// BaseURL is the listing endpoint.
	BaseURL string

	// UserAgent overrides the default browser identification.
	UserAgent string

	// Output is the normalized collection file.
	Output string

	// RawOutput is the raw listing + JSON-LD dump. SkipRaw drops it.
	RawOutput string
	SkipRaw   bool

	// Timeout bounds one HTTP exchange, Retries the attempts per request.
	Timeout time.Duration
	Retries int

	// Sleep spaces the listing page requests.
	Sleep time.Duration

	// Workers is the number of concurrent product page fetchers.
	Workers int

	// MaxPages / MaxWines bound a run for smoke testing. Zero is unbounded.
	MaxPages int
	MaxWines int

	// Enables light tracing of HTTP requests and responses
	EnableHTTPTrace bool

	// Enables full HTTP body tracing
	EnableHTTPBodyTrace bool
}

// ListingMetrics tracks the listing traversal.
type ListingMetrics struct {
	Pages         int
	HitsSeen      int
	HitsSkipped   int
	HitsCollected int
}

// Merge combines two ListingMetrics.
func (m *ListingMetrics) Merge(o *ListingMetrics) *ListingMetrics {
	m.Pages += o.Pages
	m.HitsSeen += o.HitsSeen
	m.HitsSkipped += o.HitsSkipped
	m.HitsCollected += o.HitsCollected

	return m
}

// ProductMetrics tracks the product page phase.
type ProductMetrics struct {
	ProductsOK     int
	ProductsNoData int
	ProductsErr    int
}

// Merge combines two ProductMetrics.
func (m *ProductMetrics) Merge(o *ProductMetrics) *ProductMetrics {
	m.ProductsOK += o.ProductsOK
	m.ProductsNoData += o.ProductsNoData
	m.ProductsErr += o.ProductsErr

	return m
}

// Metrics tracks everything a scrape run did.
type Metrics struct {
	ListingMetrics
	ProductMetrics
}

// Merge combines the metrics from another Metrics instance into this one.
func (m *Metrics) Merge(other *Metrics) *Metrics {
	if other == nil {
		return m
	}

	m.ListingMetrics.Merge(&other.ListingMetrics)
	m.ProductMetrics.Merge(&other.ProductMetrics)

	return m
}

// Client scrapes the wine catalog.
type Client struct {
	options *Options
	client  *http.Client
	Metrics Metrics
}

// NewClient creates a scrape client with the provided options.
func NewClient(options *Options) *Client {
	if options == nil {
		options = &Options{}
	}

	if options.BaseURL == "" {
		options.BaseURL = DefaultListingURL
	}

	if options.Output == "" {
		options.Output = DefaultOutput
	}

	if options.RawOutput == "" {
		options.RawOutput = DefaultRawOutput
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}

	if options.Retries < 0 {
		options.Retries = DefaultRetries
	}

	if options.Workers <= 0 {
		options.Workers = DefaultWorkers
	}

	var httpLogWriter io.Writer
	if options.EnableHTTPTrace {
		httpLogWriter = os.Stderr
	}

	userAgent := options.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	transport := &http.Transport{
		MaxIdleConns:          options.Workers + 2,
		MaxIdleConnsPerHost:   options.Workers,
		MaxConnsPerHost:       options.Workers,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: options.Timeout,
		DisableKeepAlives:     false,
		DisableCompression:    false,
	}

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:    httpLogWriter,
		DumpBody:  options.EnableHTTPBodyTrace,
		Transport: transport,
	}

	retryTransport := &httputils.RetryRoundTripper{
		Retries:   options.Retries,
		MaxDelay:  retryMaxDelay,
		Transport: loggingTransport,
	}

	headerTransport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9,pt-BR;q=0.8",
		},
		Transport: retryTransport,
	}

	client := &http.Client{
		Timeout:   options.Timeout,
		Transport: headerTransport,
	}

	return &Client{
		options: options,
		client:  client,
	}
}

// Run scrapes the whole catalog and writes the output files.
func (c *Client) Run(ctx context.Context) error {
	listings, meta, err := c.collectListings(ctx)
	if err != nil {
		return fmt.Errorf("collecting listing pages: %w", err)
	}

	log.Printf(
		"[listing] finished nb_hits=%d hits_per_page=%d total_pages=%d collected=%d",
		meta.NbHits, meta.HitsPerPage, meta.TotalPages, meta.CollectedWines,
	)

	wines, raws, err := c.fetchProducts(ctx, listings)
	if err != nil {
		return err
	}

	sort.Slice(wines, func(i, j int) bool { return wines[i].ID < wines[j].ID })
	sort.Slice(raws, func(i, j int) bool { return raws[i].Listing.ID < raws[j].Listing.ID })

	now := time.Now().Unix()

	collection := Collection{
		GeneratedAtUnix: now,
		Source:          c.options.BaseURL,
		Meta:            meta,
		Count:           len(wines),
		Items:           wines,
	}

	if err := writeJSON(c.options.Output, collection); err != nil {
		return fmt.Errorf("writing normalized output: %w", err)
	}

	log.Printf("[write] normalized output: %s", c.options.Output)

	if !c.options.SkipRaw {
		rawCollection := RawCollection{
			GeneratedAtUnix: now,
			Source:          c.options.BaseURL,
			Meta:            meta,
			Count:           len(raws),
			Items:           raws,
		}

		if err := writeJSON(c.options.RawOutput, rawCollection); err != nil {
			return fmt.Errorf("writing raw output: %w", err)
		}

		log.Printf("[write] raw output: %s", c.options.RawOutput)
	}

	log.Printf("[done] wines=%d product_errors=%d", len(wines), c.Metrics.ProductsErr)

	return nil
}

func writeJSON(path string, payload any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
