// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"math"
	"testing"
	"time"

	"github.com/selvedge/tessera/internal/engine"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNumericSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{name: "equal", a: 5, b: 5, want: 1},
		{name: "both zero", a: 0, b: 0, want: 1},
		{name: "ratio", a: 10, b: 40, want: 0.25},
		{name: "symmetric", a: 40, b: 10, want: 0.25},
		{name: "negative pair", a: -10, b: -20, want: 0.5},
		{name: "opposite signs", a: -10, b: 10, want: 0},
		{name: "one zero", a: 0, b: 3, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := numericSimilarity(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("numericSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDateSimilarityHalflife(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		days int
		want float64
	}{
		{name: "same day", days: 0, want: 1},
		{name: "one halflife", days: 180, want: 0.5},
		{name: "two halflives", days: 360, want: 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dateSimilarity(180,
				engine.DateValue(base),
				engine.DateValue(base.AddDate(0, 0, tt.days)))
			if !almostEqual(got, tt.want) {
				t.Errorf("dateSimilarity(%d days) = %v, want %v", tt.days, got, tt.want)
			}
		})
	}

	// Distance is symmetric.
	a := dateSimilarity(180, engine.DateValue(base), engine.DateValue(base.AddDate(0, 0, 90)))
	b := dateSimilarity(180, engine.DateValue(base.AddDate(0, 0, 90)), engine.DateValue(base))
	if !almostEqual(a, b) {
		t.Errorf("date similarity asymmetric: %v vs %v", a, b)
	}
}

func TestListSimilarityCoversBase(t *testing.T) {
	tests := []struct {
		name       string
		base, cand []string
		want       float64
	}{
		{name: "identical", base: []string{"a", "b"}, cand: []string{"a", "b"}, want: 1},
		{name: "half covered", base: []string{"a", "b"}, cand: []string{"a"}, want: 0.5},
		{name: "superset candidate", base: []string{"a"}, cand: []string{"a", "b", "c"}, want: 1},
		{name: "disjoint", base: []string{"a"}, cand: []string{"x"}, want: 0},
		{name: "empty base", base: nil, cand: []string{"x"}, want: 1},
		{name: "empty candidate", base: []string{"a"}, cand: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listSimilarity(tt.base, tt.cand); !almostEqual(got, tt.want) {
				t.Errorf("listSimilarity(%v, %v) = %v, want %v", tt.base, tt.cand, got, tt.want)
			}
		})
	}
}

func TestTextSimilarityAsymmetric(t *testing.T) {
	tests := []struct {
		name       string
		base, cand string
		want       float64
	}{
		{name: "identical", base: "blue suede shoes", cand: "blue suede shoes", want: 1},
		{name: "candidate adds words", base: "blue shoes", cand: "big blue suede shoes", want: 1},
		{name: "half the terms missing", base: "blue shoes", cand: "blue socks", want: 0.5},
		{name: "nothing shared", base: "blue shoes", cand: "red hat", want: 0},
		{name: "empty base", base: "", cand: "anything", want: 1},
		{name: "case and punctuation", base: "Blue, Shoes!", cand: "blue shoes", want: 1},
		{name: "repeated term partially covered", base: "la la la land", cand: "la land", want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textSimilarity(tt.base, tt.cand); !almostEqual(got, tt.want) {
				t.Errorf("textSimilarity(%q, %q) = %v, want %v", tt.base, tt.cand, got, tt.want)
			}
		})
	}
}

func TestSimilarityWeighting(t *testing.T) {
	cfg := specConfig() // genre weight 2, price weight 1

	base := engine.Product{ID: "b", Attributes: map[string]engine.AttrValue{
		"genre": engine.ListValue("jazz"),
		"price": engine.NumberValue(10),
	}}
	cand := engine.Product{ID: "c", Attributes: map[string]engine.AttrValue{
		"genre": engine.ListValue("jazz"),
		"price": engine.NumberValue(20),
	}}

	// (2*1 + 1*0.5) / 3
	if got := Similarity(cfg, base, cand); !almostEqual(got, 2.5/3) {
		t.Errorf("Similarity = %v, want %v", got, 2.5/3)
	}

	// Candidate missing an attribute scores zero for it at full weight.
	bare := engine.Product{ID: "n", Attributes: map[string]engine.AttrValue{
		"genre": engine.ListValue("jazz"),
	}}
	if got := Similarity(cfg, base, bare); !almostEqual(got, 2.0/3) {
		t.Errorf("Similarity with missing candidate attr = %v, want %v", got, 2.0/3)
	}

	// Attributes the base lacks are skipped entirely.
	if got := Similarity(cfg, bare, cand); !almostEqual(got, 1) {
		t.Errorf("Similarity with missing base attr = %v, want 1", got)
	}

	// No comparable attributes at all.
	if got := Similarity(cfg, engine.Product{ID: "e"}, cand); got != 0 {
		t.Errorf("Similarity with empty base = %v, want 0", got)
	}
}

func TestTermFrequencies(t *testing.T) {
	freq := termFrequencies("The quick brown fox -- the FOX!")
	if freq["the"] != 2 || freq["fox"] != 2 || freq["quick"] != 1 {
		t.Errorf("termFrequencies = %v", freq)
	}
}
