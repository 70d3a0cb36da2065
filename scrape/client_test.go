// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeListingPage(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling fixture: %s", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w,
		`<!DOCTYPE html><html><head><script>%s%s;</script></head><body></body></html>`,
		instantSearchMarker, data)
}

func writeProductPage(w http.ResponseWriter, ldjson string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w,
		`<!DOCTYPE html><html><head><script type="application/ld+json">%s</script></head><body></body></html>`,
		ldjson)
}

func searchState(nbHits, hitsPerPage int, hits ...any) map[string]any {
	return map[string]any{
		"live_sync": map[string]any{
			"state": map[string]any{"hitsPerPage": hitsPerPage},
			"results": []any{map[string]any{
				"nbHits":      nbHits,
				"hitsPerPage": hitsPerPage,
				"hits":        hits,
			}},
		},
	}
}

// catalogHandler serves a three wine catalog split over two listing pages:
// one product page with full JSON-LD, one without metadata, one broken. The
// second page repeats a hit and carries one without an id.
func catalogHandler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/regiao/bourgogne", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host

		hitPremier := map[string]any{
			"id":               1,
			"slug":             "premier",
			"link":             base + "/vinho/premier",
			"title":            "Bourgogne Rouge Premier",
			"title_producers":  "Maison Test",
			"title_country":    "França",
			"region":           "Bourgogne",
			"sub_region":       "Chablis",
			"grape":            "Pinot Noir",
			"bottle_size":      "750 ml",
			"description_card": "card",
			"description":      "desc um",
			"stock":            5,
			"sale_price":       350,
		}

		hitSecond := map[string]any{
			"id":              2,
			"slug":            "second",
			"link":            base + "/vinho/second",
			"title":           "Bourgogne Blanc Second",
			"title_producers": "Domaine Deux",
			"title_country":   "França",
			"region":          "Bourgogne",
			"sub_region":      "Meursault",
			"grape":           "Chardonnay",
			"description":     "desc dois",
			"sale_price":      "99,90",
		}

		hitThird := map[string]any{
			"id":              3,
			"slug":            "third",
			"link":            base + "/vinho/third",
			"title":           "Bourgogne Aligoté Third",
			"title_producers": "Maison Trois",
			"title_country":   "França",
			"region":          "Bourgogne",
		}

		dupSecond := map[string]any{"id": 2, "slug": "second-dup", "link": base + "/vinho/second"}
		noID := map[string]any{"slug": "no-id"}

		switch r.URL.Query().Get("live_sync[page]") {
		case "", "1":
			writeListingPage(t, w, searchState(3, 2, hitPremier, hitSecond))
		default:
			writeListingPage(t, w, searchState(3, 2, dupSecond, hitThird, noID))
		}
	})

	mux.HandleFunc("/vinho/premier", func(w http.ResponseWriter, _ *http.Request) {
		writeProductPage(w, `{
			"@context": "https://schema.org",
			"@type": "Product",
			"name": "Bourgogne Rouge Premier 2020",
			"description": "Um tinto elegante.",
			"image": "https://img.example/premier.jpg",
			"brand": {"@type": "Brand", "name": "Maison Test"},
			"countryOfOrigin": "FR",
			"offers": {
				"@type": "Offer",
				"price": "349,90",
				"priceCurrency": "BRL",
				"availability": "https://schema.org/InStock"
			}
		}`)
	})

	mux.HandleFunc("/vinho/second", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><head></head><body>no metadata</body></html>`)
	})

	mux.HandleFunc("/vinho/third", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return mux
}

func newTestOptions(t *testing.T, baseURL string) *Options {
	t.Helper()

	dir := t.TempDir()

	return &Options{
		BaseURL:   baseURL + "/regiao/bourgogne",
		Output:    filepath.Join(dir, "wines.json"),
		RawOutput: filepath.Join(dir, "wines.raw.json"),
		Timeout:   5 * time.Second,
		Workers:   4,
	}
}

func TestClientRun(t *testing.T) {
	srv := httptest.NewServer(catalogHandler(t))
	defer srv.Close()

	c := NewClient(newTestOptions(t, srv.URL))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	data, err := os.ReadFile(c.options.Output)
	if err != nil {
		t.Fatalf("reading output: %s", err)
	}

	var collection Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		t.Fatalf("decoding output: %s", err)
	}

	if collection.GeneratedAtUnix <= 0 {
		t.Error("generated_at_unix not set")
	}

	if collection.Source != c.options.BaseURL {
		t.Errorf("source: got %q", collection.Source)
	}

	wantMeta := Meta{NbHits: 3, HitsPerPage: 2, TotalPages: 2, CollectedWines: 3}
	if diff := cmp.Diff(wantMeta, collection.Meta); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}

	wantItems := []Wine{
		{
			ID:              1,
			Slug:            "premier",
			URL:             srv.URL + "/vinho/premier",
			TitleListing:    "Bourgogne Rouge Premier",
			NameProduct:     "Bourgogne Rouge Premier 2020",
			Producer:        "Maison Test",
			Country:         "França",
			CountryOfOrigin: "FR",
			Region:          "Bourgogne",
			SubRegion:       "Chablis",
			Grape:           "Pinot Noir",
			BottleSize:      "750 ml",
			DescriptionCard: "card",
			Description:     "Um tinto elegante.",
			Stock:           iptr(5),
			PriceBRL: Price{
				ListingSalePrice:   fptr(350),
				ProductLDJSONPrice: fptr(349.9),
				Currency:           "BRL",
			},
			Availability: "https://schema.org/InStock",
			Image:        json.RawMessage(`"https://img.example/premier.jpg"`),
			Source: SourceRef{
				ListingPage: c.listingURL(1),
				ProductPage: srv.URL + "/vinho/premier",
			},
		},
		{
			ID:           2,
			Slug:         "second",
			URL:          srv.URL + "/vinho/second",
			TitleListing: "Bourgogne Blanc Second",
			Producer:     "Domaine Deux",
			Country:      "França",
			Region:       "Bourgogne",
			SubRegion:    "Meursault",
			Grape:        "Chardonnay",
			Description:  "desc dois",
			PriceBRL: Price{
				ListingSalePrice: fptr(99.9),
				Currency:         "BRL",
			},
			Image: json.RawMessage(`null`),
			Source: SourceRef{
				ListingPage: c.listingURL(1),
				ProductPage: srv.URL + "/vinho/second",
			},
		},
		{
			ID:           3,
			Slug:         "third",
			URL:          srv.URL + "/vinho/third",
			TitleListing: "Bourgogne Aligoté Third",
			Producer:     "Maison Trois",
			Country:      "França",
			Region:       "Bourgogne",
			PriceBRL:     Price{Currency: "BRL"},
			Image:        json.RawMessage(`null`),
			Source: SourceRef{
				ListingPage: c.listingURL(2),
				ProductPage: srv.URL + "/vinho/third",
			},
		},
	}

	if diff := cmp.Diff(wantItems, collection.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	wantMetrics := Metrics{
		ListingMetrics: ListingMetrics{Pages: 2, HitsSeen: 5, HitsSkipped: 1, HitsCollected: 3},
		ProductMetrics: ProductMetrics{ProductsOK: 1, ProductsNoData: 1, ProductsErr: 1},
	}

	if diff := cmp.Diff(wantMetrics, c.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}

	rawData, err := os.ReadFile(c.options.RawOutput)
	if err != nil {
		t.Fatalf("reading raw output: %s", err)
	}

	var raw RawCollection
	if err := json.Unmarshal(rawData, &raw); err != nil {
		t.Fatalf("decoding raw output: %s", err)
	}

	if raw.Count != 3 || len(raw.Items) != 3 {
		t.Fatalf("raw count: got %d items", len(raw.Items))
	}

	if raw.Items[0].Listing.ID != 1 || len(raw.Items[0].ProductJSONLD) == 0 {
		t.Errorf("first raw record incomplete: %+v", raw.Items[0])
	}

	if got := raw.Items[2].Error; !strings.Contains(got, "status 404") {
		t.Errorf("third raw record error: got %q", got)
	}
}

func TestClientRunMaxWines(t *testing.T) {
	srv := httptest.NewServer(catalogHandler(t))
	defer srv.Close()

	options := newTestOptions(t, srv.URL)
	options.MaxWines = 1
	options.SkipRaw = true

	c := NewClient(options)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	data, err := os.ReadFile(c.options.Output)
	if err != nil {
		t.Fatalf("reading output: %s", err)
	}

	var collection Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		t.Fatalf("decoding output: %s", err)
	}

	if collection.Count != 1 || collection.Items[0].ID != 1 {
		t.Fatalf("collection: got count=%d", collection.Count)
	}

	// Stops before the second listing page.
	if c.Metrics.Pages != 1 {
		t.Errorf("pages: want 1, got %d", c.Metrics.Pages)
	}

	if _, err := os.Stat(c.options.RawOutput); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("raw output should be skipped, got %v", err)
	}
}

func TestClientRunAbortsOnBroadFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/regiao/bourgogne", func(w http.ResponseWriter, r *http.Request) {
		hits := make([]any, 0, 24)
		for i := 1; i <= 24; i++ {
			hits = append(hits, map[string]any{
				"id":   i,
				"slug": fmt.Sprintf("wine-%d", i),
				"link": "http://" + r.Host + "/vinho/gone",
			})
		}

		writeListingPage(t, w, searchState(24, 24, hits...))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(newTestOptions(t, srv.URL))

	err := c.Run(context.Background())
	if !errors.Is(err, errProductFailures) {
		t.Fatalf("want errProductFailures, got %v", err)
	}

	if c.Metrics.ProductsErr != 24 {
		t.Errorf("products err: want 24, got %d", c.Metrics.ProductsErr)
	}

	// A failed run must not clobber previous good output.
	if _, err := os.Stat(c.options.Output); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output should not be written, got %v", err)
	}
}
