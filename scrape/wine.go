// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package scrape

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Listing is one normalized hit from the listing pages.
type Listing struct {
	ID                 int64    `json:"id"`
	Slug               string   `json:"slug"`
	URL                string   `json:"url"`
	TitleListing       string   `json:"title_listing"`
	Producer           string   `json:"producer"`
	Country            string   `json:"country"`
	Region             string   `json:"region"`
	SubRegion          string   `json:"sub_region"`
	Grape              string   `json:"grape"`
	BottleSize         string   `json:"bottle_size"`
	DescriptionCard    string   `json:"description_card"`
	DescriptionListing string   `json:"description_listing"`
	Stock              *int64   `json:"stock"`
	SalePriceListing   *float64 `json:"sale_price_listing"`
	ListingPage        string   `json:"listing_page"`
}

// Product is the normalized JSON-LD block of one product page.
type Product struct {
	NameProduct     string          `json:"name_product"`
	Description     string          `json:"description"`
	Image           json.RawMessage `json:"image"`
	Brand           string          `json:"brand"`
	CountryOfOrigin string          `json:"country_of_origin"`
	PriceProduct    *float64        `json:"price_product"`
	Currency        string          `json:"currency"`
	Availability    string          `json:"availability"`
}

// Price groups the two price observations of a wine. The listing price is
// what the storefront asks; the JSON-LD price is what the page metadata
// declares. They usually agree.
type Price struct {
	ListingSalePrice   *float64 `json:"listing_sale_price"`
	ProductLDJSONPrice *float64 `json:"product_ldjson_price"`
	Currency           string   `json:"currency"`
}

// SourceRef records where a wine's fields were collected from.
type SourceRef struct {
	ListingPage string `json:"listing_page"`
	ProductPage string `json:"product_page"`
}

// Wine is the merged record of a listing hit and its product page.
type Wine struct {
	ID              int64           `json:"id"`
	Slug            string          `json:"slug"`
	URL             string          `json:"url"`
	TitleListing    string          `json:"title_listing"`
	NameProduct     string          `json:"name_product"`
	Producer        string          `json:"producer"`
	Country         string          `json:"country"`
	CountryOfOrigin string          `json:"country_of_origin"`
	Region          string          `json:"region"`
	SubRegion       string          `json:"sub_region"`
	Grape           string          `json:"grape"`
	BottleSize      string          `json:"bottle_size"`
	DescriptionCard string          `json:"description_card"`
	Description     string          `json:"description"`
	Stock           *int64          `json:"stock"`
	PriceBRL        Price           `json:"price_brl"`
	Availability    string          `json:"availability"`
	Image           json.RawMessage `json:"image"`
	Source          SourceRef       `json:"source"`
}

// RawRecord pairs a listing with the untouched JSON-LD node of its product
// page, for audits and reprocessing.
type RawRecord struct {
	Listing       Listing         `json:"listing"`
	ProductJSONLD json.RawMessage `json:"product_json_ld"`
	Error         string          `json:"error,omitempty"`
}

// Meta describes one listing traversal.
type Meta struct {
	NbHits         int `json:"nb_hits"`
	HitsPerPage    int `json:"hits_per_page"`
	TotalPages     int `json:"total_pages"`
	CollectedWines int `json:"collected_wines"`
}

// Collection is the normalized output file.
type Collection struct {
	GeneratedAtUnix int64  `json:"generated_at_unix"`
	Source          string `json:"source"`
	Meta            Meta   `json:"meta"`
	Count           int    `json:"count"`
	Items           []Wine `json:"items"`
}

// RawCollection is the raw output file.
type RawCollection struct {
	GeneratedAtUnix int64       `json:"generated_at_unix"`
	Source          string      `json:"source"`
	Meta            Meta        `json:"meta"`
	Count           int         `json:"count"`
	Items           []RawRecord `json:"items"`
}

// looseFloat tolerates the price shapes the storefront emits: a number, a
// numeric string with a decimal comma, null, or garbage. Anything unusable
// decodes to nil instead of failing the whole hit.
type looseFloat struct {
	value *float64
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	f.value = nil

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.value = &n

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}

	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}

	f.value = &n

	return nil
}

// listingHit is the raw InstantSearch hit shape.
type listingHit struct {
	ID              *int64     `json:"id"`
	Slug            string     `json:"slug"`
	Link            string     `json:"link"`
	Title           string     `json:"title"`
	TitleProducers  string     `json:"title_producers"`
	TitleCountry    string     `json:"title_country"`
	Region          string     `json:"region"`
	SubRegion       string     `json:"sub_region"`
	Grape           string     `json:"grape"`
	BottleSize      string     `json:"bottle_size"`
	DescriptionCard string     `json:"description_card"`
	Description     string     `json:"description"`
	Stock           *int64     `json:"stock"`
	SalePrice       looseFloat `json:"sale_price"`
}

// decodeHit decodes one raw hit. Hits without a numeric id are unusable
// downstream and dropped.
func decodeHit(raw json.RawMessage) (*listingHit, bool) {
	var hit listingHit
	if err := json.Unmarshal(raw, &hit); err != nil {
		return nil, false
	}

	if hit.ID == nil {
		return nil, false
	}

	return &hit, true
}

func normalizeHit(hit *listingHit, listingPage string) Listing {
	return Listing{
		ID:                 *hit.ID,
		Slug:               hit.Slug,
		URL:                hit.Link,
		TitleListing:       hit.Title,
		Producer:           hit.TitleProducers,
		Country:            hit.TitleCountry,
		Region:             hit.Region,
		SubRegion:          hit.SubRegion,
		Grape:              hit.Grape,
		BottleSize:         hit.BottleSize,
		DescriptionCard:    hit.DescriptionCard,
		DescriptionListing: hit.Description,
		Stock:              hit.Stock,
		SalePriceListing:   hit.SalePrice.value,
		ListingPage:        listingPage,
	}
}

// MergeWine combines a listing with its product page data. The product page
// wins for descriptive fields, the listing for catalog taxonomy; a nil
// product leaves the listing as the sole source.
func MergeWine(listing Listing, product *Product) Wine {
	if product == nil {
		product = &Product{}
	}

	producer := listing.Producer
	if producer == "" {
		producer = product.Brand
	}

	description := product.Description
	if description == "" {
		description = listing.DescriptionListing
	}

	currency := product.Currency
	if currency == "" {
		currency = "BRL"
	}

	return Wine{
		ID:              listing.ID,
		Slug:            listing.Slug,
		URL:             listing.URL,
		TitleListing:    listing.TitleListing,
		NameProduct:     product.NameProduct,
		Producer:        producer,
		Country:         listing.Country,
		CountryOfOrigin: product.CountryOfOrigin,
		Region:          listing.Region,
		SubRegion:       listing.SubRegion,
		Grape:           listing.Grape,
		BottleSize:      listing.BottleSize,
		DescriptionCard: listing.DescriptionCard,
		Description:     description,
		Stock:           listing.Stock,
		PriceBRL: Price{
			ListingSalePrice:   listing.SalePriceListing,
			ProductLDJSONPrice: product.PriceProduct,
			Currency:           currency,
		},
		Availability: product.Availability,
		Image:        product.Image,
		Source: SourceRef{
			ListingPage: listing.ListingPage,
			ProductPage: listing.URL,
		},
	}
}
