// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"strings"

	"github.com/jcodagnone/terroir/utils/textutils"
)

// ProducerIndex answers accent-insensitive substring searches over producer
// names. "meo" matches "Domaine Méo-Camuzet".
type ProducerIndex struct {
	producers []*Producer
	folded    []string
}

// NewProducerIndex builds the index. Result order follows input order.
func NewProducerIndex(producers []*Producer) *ProducerIndex {
	ix := &ProducerIndex{
		producers: producers,
		folded:    make([]string, len(producers)),
	}

	for i, p := range producers {
		ix.folded[i] = textutils.Fold(p.Name)
	}

	return ix
}

// Search returns the producers whose folded name contains the folded query.
// An empty query matches everything. The result is never nil.
func (ix *ProducerIndex) Search(query string) []*Producer {
	needle := textutils.Fold(query)

	matches := make([]*Producer, 0, len(ix.producers))

	for i, folded := range ix.folded {
		if needle == "" || strings.Contains(folded, needle) {
			matches = append(matches, ix.producers[i])
		}
	}

	return matches
}
