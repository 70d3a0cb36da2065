// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jcodagnone/terroir/utils/textutils"
)

// Style tag constants.
const (
	StyleElegant    = "elegant"
	StyleComplex    = "complex"
	StyleMineral    = "mineral"
	StyleFruity     = "fruity"
	StyleFloral     = "floral"
	StyleWoodyOak   = "woody_oak"
	StyleFresh      = "fresh"
	StyleAcidic     = "acidic"
	StyleStructured = "structured"
	StyleBalanced   = "balanced"
	StylePersistent = "persistent"
)

// StylePattern maps a style tag to the Portuguese description stems that
// signal it. The storefront writes tasting notes in Portuguese.
type StylePattern struct {
	Tag      string
	Patterns []*regexp.Regexp
}

// Validate checks that the pattern is usable.
func (p *StylePattern) Validate() error {
	if p.Tag == "" {
		return errors.New("style pattern: tag must not be empty")
	}

	if len(p.Patterns) == 0 {
		return fmt.Errorf("style pattern %q: needs at least one expression", p.Tag)
	}

	return nil
}

func compile(exprs ...string) []*regexp.Regexp {
	ret := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		ret = append(ret, regexp.MustCompile(expr))
	}

	return ret
}

// All known styles, in reporting order.
var stylePatterns = func() []StylePattern {
	ret := []StylePattern{
		{Tag: StyleElegant, Patterns: compile(`\belegan`)},
		{Tag: StyleComplex, Patterns: compile(`\bcomplex`)},
		{Tag: StyleMineral, Patterns: compile(`\bminer`)},
		{Tag: StyleFruity, Patterns: compile(`\bfrut`)},
		{Tag: StyleFloral, Patterns: compile(`\bflor`)},
		{Tag: StyleWoodyOak, Patterns: compile(`\bmadeira`, `\bcarvalho`)},
		{Tag: StyleFresh, Patterns: compile(`\bfresc`)},
		{Tag: StyleAcidic, Patterns: compile(`\bacidez`)},
		{Tag: StyleStructured, Patterns: compile(`\btanino`, `\bencorp`)},
		{Tag: StyleBalanced, Patterns: compile(`\bequilibr`)},
		{Tag: StylePersistent, Patterns: compile(`\bpersist`)},
	}

	for i := range ret {
		if err := ret[i].Validate(); err != nil {
			panic(err)
		}
	}

	return ret
}()

// ExtractStyleKeywords scans a tasting note and returns the matched style
// tags in registry order. The result is never nil.
func ExtractStyleKeywords(text string) []string {
	found := make([]string, 0, 4)

	base := strings.ToLower(textutils.NormSpace(text))
	if base == "" {
		return found
	}

	for _, sp := range stylePatterns {
		for _, p := range sp.Patterns {
			if p.MatchString(base) {
				found = append(found, sp.Tag)

				break
			}
		}
	}

	return found
}

// styleRank positions a tag inside the registry, for stable tie-breaking.
// Unknown tags sort last.
func styleRank(tag string) int {
	for i := range stylePatterns {
		if stylePatterns[i].Tag == tag {
			return i
		}
	}

	return len(stylePatterns)
}

// topStyles returns the n most frequent tags, most common first, ties
// resolved by registry order. The result is never nil.
func topStyles(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}

	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}

		return styleRank(tags[i]) < styleRank(tags[j])
	})

	if len(tags) > n {
		tags = tags[:n]
	}

	return tags
}
