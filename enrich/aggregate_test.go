// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fptr(v float64) *float64 {
	return &v
}

func iptr(v int) *int {
	return &v
}

func TestPriceBucket(t *testing.T) {
	testCases := []struct {
		name  string
		price *float64
		want  string
	}{
		{"missing price", nil, BucketUnknown},
		{"entry upper edge", fptr(249.99), BucketEntry},
		{"mid lower edge", fptr(250), BucketMid},
		{"mid upper edge", fptr(599.99), BucketMid},
		{"premium lower edge", fptr(600), BucketPremium},
		{"premium upper edge", fptr(1199.99), BucketPremium},
		{"iconic lower edge", fptr(1200), BucketIconic},
		{"iconic", fptr(8400), BucketIconic},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := PriceBucket(testCase.price); got != testCase.want {
				t.Errorf("PriceBucket() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestSummarizeNumeric(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		want   PriceSummary
	}{
		{
			name:   "plain values",
			values: []float64{180, 320},
			want:   PriceSummary{Min: fptr(180), Max: fptr(320), Avg: fptr(250)},
		},
		{
			name:   "average rounds to cents",
			values: []float64{10, 20, 25},
			want:   PriceSummary{Min: fptr(10), Max: fptr(25), Avg: fptr(18.33)},
		},
		{
			name:   "zeros and negatives are not prices",
			values: []float64{0, -5, 95.5},
			want:   PriceSummary{Min: fptr(95.5), Max: fptr(95.5), Avg: fptr(95.5)},
		},
		{
			name:   "nothing usable",
			values: []float64{0},
			want:   PriceSummary{},
		},
		{
			name:   "empty",
			values: nil,
			want:   PriceSummary{},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := summarizeNumeric(testCase.values)
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Errorf("summarizeNumeric(%v) mismatch (-want +got):\n%s", testCase.values, diff)
			}
		})
	}
}

func TestMeanPrice(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		want   *float64
	}{
		{"plain mean", []float64{10, 20, 25}, fptr(18.33)},
		{"zero still counts", []float64{0}, fptr(0)},
		{"empty", nil, nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := meanPrice(testCase.values)
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Errorf("meanPrice(%v) mismatch (-want +got):\n%s", testCase.values, diff)
			}
		})
	}
}

func TestPrimaryKey(t *testing.T) {
	testCases := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"clear winner", map[string]int{"Chablis": 3, "Pommard": 1}, "Chablis"},
		{"tie breaks lexically", map[string]int{"Pommard": 2, "Chablis": 2}, "Chablis"},
		{"single key", map[string]int{"Meursault": 1}, "Meursault"},
		{"empty", map[string]int{}, ""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := primaryKey(testCase.counts); got != testCase.want {
				t.Errorf("primaryKey(%v) = %q, want %q", testCase.counts, got, testCase.want)
			}
		})
	}
}
