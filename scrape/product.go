// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/jcodagnone/terroir/utils/htmlutils"
)

const jsonLDType = "application/ld+json"

// typeList tolerates @type being a string or a list of strings.
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	*t = nil

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = typeList{single}

		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*t = typeList(many)
	}

	return nil
}

func (t typeList) contains(name string) bool {
	for _, v := range t {
		if strings.EqualFold(v, name) {
			return true
		}
	}

	return false
}

// brandField tolerates brand being {"name": …} or a bare string.
type brandField struct {
	name string
}

func (b *brandField) UnmarshalJSON(data []byte) error {
	b.name = ""

	var nested struct {
		Name string `json:"name"`
	}

	if err := json.Unmarshal(data, &nested); err == nil {
		b.name = nested.Name

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.name = s
	}

	return nil
}

// offersField tolerates offers being an object or a list; only the first
// offer matters.
type offersField struct {
	Price        looseFloat
	Currency     string
	Availability string
}

func (o *offersField) UnmarshalJSON(data []byte) error {
	*o = offersField{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			return nil
		}

		data = list[0]
	}

	var offer struct {
		Price         looseFloat `json:"price"`
		PriceCurrency string     `json:"priceCurrency"`
		Availability  string     `json:"availability"`
	}

	if err := json.Unmarshal(data, &offer); err != nil {
		return nil
	}

	o.Price = offer.Price
	o.Currency = offer.PriceCurrency
	o.Availability = offer.Availability

	return nil
}

type ldProduct struct {
	Type            typeList        `json:"@type"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Image           json.RawMessage `json:"image"`
	Brand           brandField      `json:"brand"`
	CountryOfOrigin string          `json:"countryOfOrigin"`
	Offers          offersField     `json:"offers"`
}

// productNode finds the first @type Product node among a page's JSON-LD
// scripts. Top-level arrays are flattened; returns nil when no script
// carries a product.
func productNode(scripts []string) json.RawMessage {
	for _, script := range scripts {
		text := strings.TrimSpace(script)
		if text == "" {
			continue
		}

		var raw json.RawMessage
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			continue
		}

		for _, node := range flattenNodes(raw) {
			var peek struct {
				Type typeList `json:"@type"`
			}

			if err := json.Unmarshal(node, &peek); err != nil {
				continue
			}

			if peek.Type.contains("product") {
				return node
			}
		}
	}

	return nil
}

func flattenNodes(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil
		}

		var out []json.RawMessage
		for _, el := range list {
			out = append(out, flattenNodes(el)...)
		}

		return out
	}

	if trimmed[0] == '{' {
		return []json.RawMessage{trimmed}
	}

	return nil
}

func normalizeProduct(node json.RawMessage) *Product {
	var ld ldProduct
	if err := json.Unmarshal(node, &ld); err != nil {
		return nil
	}

	return &Product{
		NameProduct:     ld.Name,
		Description:     ld.Description,
		Image:           ld.Image,
		Brand:           ld.Brand.name,
		CountryOfOrigin: ld.CountryOfOrigin,
		PriceProduct:    ld.Offers.Price.value,
		Currency:        ld.Offers.Currency,
		Availability:    ld.Offers.Availability,
	}
}

// fetchProductNode downloads one product page and returns its raw Product
// JSON-LD node, or nil when the page has none.
func (c *Client) fetchProductNode(ctx context.Context, pageURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching product page: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	r, err := htmlutils.AsReader(resp)
	if err != nil {
		return nil, fmt.Errorf("reading product page: %w", err)
	}

	root, err := htmlutils.AsNode(r)
	if err != nil {
		return nil, err
	}

	return productNode(htmlutils.ScriptContents(root, jsonLDType)), nil
}

func (c *Client) fetchProductAndMerge(ctx context.Context, listing Listing) (Wine, RawRecord) {
	raw := RawRecord{Listing: listing}

	if listing.URL == "" {
		raw.Error = "missing product url"

		return MergeWine(listing, nil), raw
	}

	node, err := c.fetchProductNode(ctx, listing.URL)
	if err != nil {
		raw.Error = err.Error()

		return MergeWine(listing, nil), raw
	}

	if node == nil {
		return MergeWine(listing, nil), raw
	}

	raw.ProductJSONLD = node

	return MergeWine(listing, normalizeProduct(node)), raw
}

// fetchProducts visits every product page with a bounded worker pool and
// merges the results. Individual page failures degrade that wine to its
// listing data; a broad failure rate aborts the run.
func (c *Client) fetchProducts(ctx context.Context, listings []Listing) ([]Wine, []RawRecord, error) {
	n := len(listings)

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Fetching product pages"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wines = make([]Wine, 0, n)
		raws  = make([]RawRecord, 0, n)
	)

	semaphore := make(chan struct{}, c.options.Workers)

	for _, listing := range listings {
		wg.Add(1)

		go func(listing Listing) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			wine, raw := c.fetchProductAndMerge(ctx, listing)

			mu.Lock()
			wines = append(wines, wine)
			raws = append(raws, raw)
			done := len(raws)
			mu.Unlock()

			if bar != nil {
				_ = bar.Add(1)
			} else if done%25 == 0 || done == n {
				log.Printf("[product] fetched=%d/%d", done, n)
			}
		}(listing)
	}

	wg.Wait()

	for i := range raws {
		switch {
		case raws[i].Error != "":
			c.Metrics.ProductsErr++
		case len(raws[i].ProductJSONLD) == 0:
			c.Metrics.ProductsNoData++
		default:
			c.Metrics.ProductsOK++
		}
	}

	if n > failsafeMinAttempts {
		rate := float64(c.Metrics.ProductsErr) / float64(n)
		if rate > failsafeMaxErrRate {
			return nil, nil, fmt.Errorf(
				"%w: %d of %d pages failed",
				errProductFailures, c.Metrics.ProductsErr, n,
			)
		}
	}

	return wines, raws, nil
}
