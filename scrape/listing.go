// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jcodagnone/terroir/utils/htmlutils"
)

// instantSearchMarker precedes the embedded search state on every listing
// page. The payload runs from the marker to the end of its script element.
const instantSearchMarker = `window[Symbol.for("InstantSearchInitialResults")] = `

const defaultHitsPerPage = 24

var errNoListingPayload = errors.New("listing payload script not found")

type listingResult struct {
	NbHits      int               `json:"nbHits"`
	HitsPerPage int               `json:"hitsPerPage"`
	Hits        []json.RawMessage `json:"hits"`
}

type listingPayload struct {
	LiveSync struct {
		State struct {
			HitsPerPage int `json:"hitsPerPage"`
		} `json:"state"`
		Results []listingResult `json:"results"`
	} `json:"live_sync"`
}

func (p *listingPayload) counters() (nbHits, hitsPerPage int) {
	if len(p.LiveSync.Results) > 0 {
		nbHits = p.LiveSync.Results[0].NbHits
	}

	hitsPerPage = p.LiveSync.State.HitsPerPage
	if hitsPerPage == 0 && len(p.LiveSync.Results) > 0 {
		hitsPerPage = p.LiveSync.Results[0].HitsPerPage
	}

	if hitsPerPage <= 0 {
		hitsPerPage = defaultHitsPerPage
	}

	return nbHits, hitsPerPage
}

func (p *listingPayload) hits() []json.RawMessage {
	if len(p.LiveSync.Results) == 0 {
		return nil
	}

	return p.LiveSync.Results[0].Hits
}

func (c *Client) listingURL(page int) string {
	params := url.Values{}
	params.Set("live_sync[range][sale_price]", "0:1000000")
	params.Set("live_sync[page]", strconv.Itoa(page))

	return c.options.BaseURL + "?" + params.Encode()
}

// collectListings traverses the listing pages and returns the de-duplicated
// normalized hits in first-seen order.
func (c *Client) collectListings(ctx context.Context) ([]Listing, Meta, error) {
	payload, err := c.fetchListingPayload(ctx, c.listingURL(1))
	if err != nil {
		return nil, Meta{}, err
	}

	nbHits, hitsPerPage := payload.counters()

	totalPages := max(1, (nbHits+hitsPerPage-1)/hitsPerPage)
	if c.options.MaxPages > 0 && totalPages > c.options.MaxPages {
		totalPages = c.options.MaxPages
	}

	seen := make(map[int64]struct{})
	listings := make([]Listing, 0, nbHits)

	for page := 1; page <= totalPages; page++ {
		pageURL := c.listingURL(page)

		if page > 1 {
			payload, err = c.fetchListingPayload(ctx, pageURL)
			if err != nil {
				return nil, Meta{}, fmt.Errorf("page %d: %w", page, err)
			}
		}

		for _, raw := range payload.hits() {
			c.Metrics.HitsSeen++

			hit, ok := decodeHit(raw)
			if !ok {
				c.Metrics.HitsSkipped++

				continue
			}

			if _, dup := seen[*hit.ID]; dup {
				continue
			}

			seen[*hit.ID] = struct{}{}
			listings = append(listings, normalizeHit(hit, pageURL))

			if c.options.MaxWines > 0 && len(listings) >= c.options.MaxWines {
				break
			}
		}

		log.Printf("[listing] page=%d/%d collected=%d", page, totalPages, len(listings))

		if c.options.MaxWines > 0 && len(listings) >= c.options.MaxWines {
			break
		}

		if page < totalPages && c.options.Sleep > 0 {
			select {
			case <-ctx.Done():
				return nil, Meta{}, ctx.Err()
			case <-time.After(c.options.Sleep):
			}
		}
	}

	c.Metrics.HitsCollected = len(listings)

	meta := Meta{
		NbHits:         nbHits,
		HitsPerPage:    hitsPerPage,
		TotalPages:     totalPages,
		CollectedWines: len(listings),
	}

	return listings, meta, nil
}

func (c *Client) fetchListingPayload(ctx context.Context, pageURL string) (*listingPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	r, err := htmlutils.AsReader(resp)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	root, err := htmlutils.AsNode(r)
	if err != nil {
		return nil, err
	}

	payload, err := extractListingPayload(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pageURL, err)
	}

	c.Metrics.Pages++

	return payload, nil
}

// extractListingPayload finds the InstantSearch state in the page scripts.
func extractListingPayload(root *html.Node) (*listingPayload, error) {
	for _, script := range htmlutils.ScriptContents(root, "") {
		idx := strings.Index(script, instantSearchMarker)
		if idx < 0 {
			continue
		}

		text := strings.TrimSpace(script[idx+len(instantSearchMarker):])
		text = strings.TrimSuffix(text, ";")

		var payload listingPayload
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return nil, fmt.Errorf("decoding listing payload: %w", err)
		}

		return &payload, nil
	}

	return nil, errNoListingPayload
}
