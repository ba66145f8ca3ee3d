// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"context"

	"github.com/selvedge/tessera/internal/engine"
)

// PBCF expands the user's recent high-rated products through the
// product-to-product strength table. A candidate reachable from several base
// products accumulates the sum of the pair strengths.
type PBCF struct{}

// NewPBCF builds the product-based collaborative filtering specialist.
func NewPBCF() *PBCF { return &PBCF{} }

// Kind implements engine.Specialist.
func (*PBCF) Kind() engine.AlgorithmKind { return engine.AlgorithmPBCF }

// Rank implements engine.Specialist.
func (*PBCF) Rank(ctx context.Context, s *engine.Session, n int) ([]engine.RankedItem, error) {
	base := s.BaseProducts()
	if len(base) == 0 {
		return nil, &engine.InsufficientDataError{
			Algorithm: engine.AlgorithmPBCF,
			Reason:    "user has no recent high-rated products",
		}
	}
	perBase := s.Config.Counts.ProductTemplates

	scores := make(map[string]float64)
	for _, baseID := range base {
		for _, pair := range s.Stats.ProductTemplates(baseID, perBase) {
			if s.IsBase(pair.ID) || !s.Candidate(pair.ID) {
				continue
			}
			scores[pair.ID] += pair.Score
		}
	}
	return rankScores(scores, engine.AlgorithmPBCF, n), nil
}
