// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jcodagnone/terroir/utils/textutils"
)

var bottleSizeRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(ml|litros?|lt|l)\b`)

// ParseBottleML reads a volume in milliliters out of a catalog size label
// such as "750 ml", "375ml" or "1,5 L". Returns nil when the label carries
// no readable volume.
func ParseBottleML(size string) *int {
	s := strings.ToLower(textutils.NormSpace(size))
	if s == "" {
		return nil
	}

	m := bottleSizeRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v <= 0 {
		return nil
	}

	if m[2] != "ml" {
		v *= 1000
	}

	ml := int(math.Round(v))

	return &ml
}
