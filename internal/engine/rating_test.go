// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"testing"
	"time"
)

func TestTranslate(t *testing.T) {
	tr := NewTranslator(testTenantConfig())

	ar, err := tr.Translate("purchase")
	if err != nil {
		t.Fatalf("Translate(purchase) unexpected error: %v", err)
	}
	if ar.Stars != 5 || !ar.Blocking {
		t.Errorf("Translate(purchase) = %+v, want 5 stars blocking", ar)
	}

	if _, err := tr.Translate("teleport"); err == nil {
		t.Fatal("Translate should reject unmapped activity types")
	} else if !IsConfiguration(err) {
		t.Errorf("unmapped type error is not a configuration error: %v", err)
	}
}

func TestDeriveLatestWins(t *testing.T) {
	tr := NewTranslator(testTenantConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acts := []Activity{
		{UserID: "u1", ProductID: "p1", Type: "like", At: t0.Add(2 * time.Hour)},
		{UserID: "u1", ProductID: "p1", Type: "dislike", At: t0},
		{UserID: "u1", ProductID: "p2", Type: "view", At: t0},
		{UserID: "u1", ProductID: "p2", Type: "dislike", At: t0.Add(time.Hour)},
		{UserID: "u1", ProductID: "p3", Type: "teleport", At: t0}, // unmapped, skipped
	}

	ratings := tr.Derive(acts)

	if r := ratings["p1"]; r.Stars != 5 {
		t.Errorf("p1 derived stars = %d, want 5 (latest activity wins)", r.Stars)
	}
	if r := ratings["p2"]; r.Stars != 1 {
		t.Errorf("p2 derived stars = %d, want 1 (latest activity wins even when lower)", r.Stars)
	}
	if _, ok := ratings["p3"]; ok {
		t.Error("unmapped activity type must not produce a rating")
	}
}

func TestDeriveOrderIndependent(t *testing.T) {
	tr := NewTranslator(testTenantConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	forward := []Activity{
		{UserID: "u1", ProductID: "p1", Type: "dislike", At: t0},
		{UserID: "u1", ProductID: "p1", Type: "like", At: t0.Add(time.Hour)},
	}
	reversed := []Activity{forward[1], forward[0]}

	a, b := tr.Derive(forward), tr.Derive(reversed)
	if a["p1"].Stars != b["p1"].Stars {
		t.Errorf("Derive is order dependent: %d vs %d", a["p1"].Stars, b["p1"].Stars)
	}
}
