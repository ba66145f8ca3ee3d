// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package specialist implements the four ranking specialists: popularity,
// product-based collaborative filtering, content-based filtering, and
// user-based collaborative filtering. Each works off the read-only request
// session and the pinned stats view, so all four can run concurrently.
package specialist

import (
	"context"

	"github.com/selvedge/tessera/internal/engine"
)

// POP ranks by popularity density: distinct qualifying users per active day.
// The table is precomputed, so ranking is a single ordered scan with
// candidate filtering.
type POP struct{}

// NewPOP builds the popularity specialist.
func NewPOP() *POP { return &POP{} }

// Kind implements engine.Specialist.
func (*POP) Kind() engine.AlgorithmKind { return engine.AlgorithmPOP }

// Rank implements engine.Specialist.
func (*POP) Rank(ctx context.Context, s *engine.Session, n int) ([]engine.RankedItem, error) {
	pops := s.Stats.Popularities()
	if len(pops) == 0 {
		return nil, &engine.InsufficientDataError{
			Algorithm: engine.AlgorithmPOP,
			Reason:    "no qualifying ratings recorded",
		}
	}
	items := make([]engine.RankedItem, 0, n)
	for _, stat := range pops {
		if !s.Candidate(stat.ProductID) {
			continue
		}
		items = append(items, engine.RankedItem{
			ProductID: stat.ProductID,
			Score:     stat.Density,
			Source:    engine.AlgorithmPOP,
		})
		if len(items) == n {
			break
		}
	}
	return items, nil
}
