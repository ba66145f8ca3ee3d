// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"context"

	"github.com/selvedge/tessera/internal/engine"
)

// CB ranks catalog products by attribute similarity to the user's recent
// high-rated products. Similarity is computed on demand against the live
// catalog, so attribute edits show up without waiting for a rebuild.
type CB struct{}

// NewCB builds the content-based specialist.
func NewCB() *CB { return &CB{} }

// Kind implements engine.Specialist.
func (*CB) Kind() engine.AlgorithmKind { return engine.AlgorithmCB }

// Rank implements engine.Specialist.
func (*CB) Rank(ctx context.Context, s *engine.Session, n int) ([]engine.RankedItem, error) {
	baseIDs := s.BaseProducts()
	if len(baseIDs) == 0 {
		return nil, &engine.InsufficientDataError{
			Algorithm: engine.AlgorithmCB,
			Reason:    "user has no recent high-rated products",
		}
	}

	// Base products may have left the catalog since they were rated.
	bases := make([]engine.Product, 0, len(baseIDs))
	for _, id := range baseIDs {
		if p, ok := s.Product(id); ok {
			bases = append(bases, p)
		}
	}
	if len(bases) == 0 {
		return nil, &engine.InsufficientDataError{
			Algorithm: engine.AlgorithmCB,
			Reason:    "no rated products remain in the catalog",
		}
	}

	scores := make(map[string]float64)
	for id := range s.Products() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.IsBase(id) || !s.Candidate(id) {
			continue
		}
		cand, _ := s.Product(id)
		var sum float64
		for _, base := range bases {
			sum += Similarity(s.Config, base, cand)
		}
		if sum > 0 {
			scores[id] = sum
		}
	}
	return rankScores(scores, engine.AlgorithmCB, n), nil
}
