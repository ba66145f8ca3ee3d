// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"testing"
	"time"
)

func strptr(s string) *string     { return &s }
func f64ptr(f float64) *float64   { return &f }
func tptr(t time.Time) *time.Time { return &t }

func TestCompileFilterRejectsBadDocs(t *testing.T) {
	cfg := testTenantConfig()

	tests := []struct {
		name string
		doc  FilterDoc
	}{
		{name: "range on list", doc: FilterDoc{"genre": {Min: f64ptr(1)}}},
		{name: "equals on numeric", doc: FilterDoc{"price": {Equals: strptr("9.99")}}},
		{name: "empty constraint", doc: FilterDoc{"price": {}}},
		{name: "min on date", doc: FilterDoc{"released": {Min: f64ptr(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileFilter(cfg, tt.doc); err == nil {
				t.Error("CompileFilter accepted an invalid document")
			}
		})
	}
}

func TestCompileFilterIgnoresUnfilterableAttributes(t *testing.T) {
	cfg := testTenantConfig()

	// Undeclared and non-filterable attributes are not consulted; a document
	// that only names them compiles to a match-all filter.
	f, err := CompileFilter(cfg, FilterDoc{
		"color": {Equals: strptr("red")},
		"title": {Equals: strptr("dune")},
	})
	if err != nil {
		t.Fatalf("CompileFilter unexpected error: %v", err)
	}
	if f != nil {
		t.Error("filter with no consultable constraints should be nil")
	}

	// Mixed documents keep only the filterable constraints.
	f, err = CompileFilter(cfg, FilterDoc{
		"color": {Equals: strptr("red")},
		"genre": {Equals: strptr("jazz")},
	})
	if err != nil {
		t.Fatalf("CompileFilter unexpected error: %v", err)
	}
	p := Product{ID: "p1", Attributes: map[string]AttrValue{"genre": ListValue("jazz")}}
	if !f.Match(p) {
		t.Error("product matching the filterable constraint should pass")
	}
}

func TestFilterMatch(t *testing.T) {
	cfg := testTenantConfig()
	released := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	product := Product{
		ID: "p1",
		Attributes: map[string]AttrValue{
			"genre":    ListValue("jazz", "fusion"),
			"price":    NumberValue(14.5),
			"released": DateValue(released),
		},
	}

	tests := []struct {
		name string
		doc  FilterDoc
		want bool
	}{
		{name: "nil filter matches", doc: nil, want: true},
		{name: "list member equals", doc: FilterDoc{"genre": {Equals: strptr("jazz")}}, want: true},
		{name: "list anyof hit", doc: FilterDoc{"genre": {AnyOf: []string{"rock", "fusion"}}}, want: true},
		{name: "list anyof miss", doc: FilterDoc{"genre": {AnyOf: []string{"rock", "pop"}}}, want: false},
		{name: "numeric in range", doc: FilterDoc{"price": {Min: f64ptr(10), Max: f64ptr(20)}}, want: true},
		{name: "numeric below min", doc: FilterDoc{"price": {Min: f64ptr(15)}}, want: false},
		{name: "numeric above max", doc: FilterDoc{"price": {Max: f64ptr(10)}}, want: false},
		{name: "date after min", doc: FilterDoc{"released": {MinDate: tptr(released.AddDate(0, -1, 0))}}, want: true},
		{name: "date before min", doc: FilterDoc{"released": {MinDate: tptr(released.AddDate(0, 1, 0))}}, want: false},
		{
			name: "all constraints must hold",
			doc: FilterDoc{
				"genre": {Equals: strptr("jazz")},
				"price": {Max: f64ptr(10)},
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(cfg, tt.doc)
			if err != nil {
				t.Fatalf("CompileFilter unexpected error: %v", err)
			}
			if got := f.Match(product); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMissingAttributeFails(t *testing.T) {
	cfg := testTenantConfig()
	f, err := CompileFilter(cfg, FilterDoc{"price": {Min: f64ptr(1)}})
	if err != nil {
		t.Fatalf("CompileFilter unexpected error: %v", err)
	}
	bare := Product{ID: "p2", Attributes: map[string]AttrValue{"genre": ListValue("jazz")}}
	if f.Match(bare) {
		t.Error("product missing a constrained attribute must fail the filter")
	}
}
