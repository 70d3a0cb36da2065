// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils provides text normalization helpers shared by the
// scraper, the geocoding scorers and the catalog.
package textutils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold normalizes a string by removing accents, lowercasing, and trimming spaces.
func Fold(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

var spaceRegex = regexp.MustCompile(`\s+`)

// NormSpace collapses runs of whitespace into single spaces and trims the ends.
// Scraped values keep their accents and case; only spacing is canonicalized so
// the same producer spelled with stray newlines maps to one key.
func NormSpace(s string) string {
	if s == "" {
		return ""
	}

	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

var (
	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9]+`)
	slugTrimRegex    = regexp.MustCompile(`^-+|-+$`)
)

// Slug converts a display name into a stable ASCII identifier: accents are
// folded away, anything that isn't a letter or digit becomes a dash.
// "Côte de Beaune" -> "cote-de-beaune".
func Slug(s string) string {
	s = Fold(s)
	s = slugInvalidRegex.ReplaceAllString(s, "-")

	return slugTrimRegex.ReplaceAllString(s, "")
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
