// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"context"

	"github.com/selvedge/tessera/internal/engine"
)

// UBCF promotes the recent high-rated products of the user's strongest
// template users. A product recommended by several templates accumulates
// the sum of the template strengths.
type UBCF struct{}

// NewUBCF builds the user-based collaborative filtering specialist.
func NewUBCF() *UBCF { return &UBCF{} }

// Kind implements engine.Specialist.
func (*UBCF) Kind() engine.AlgorithmKind { return engine.AlgorithmUBCF }

// Rank implements engine.Specialist.
func (*UBCF) Rank(ctx context.Context, s *engine.Session, n int) ([]engine.RankedItem, error) {
	templates := s.Stats.UserTemplates(s.UserID, s.Config.Counts.UserTemplates)
	if len(templates) == 0 {
		return nil, &engine.InsufficientDataError{
			Algorithm: engine.AlgorithmUBCF,
			Reason:    "no user templates",
		}
	}
	perTemplate := s.Config.Counts.RecentProducts

	scores := make(map[string]float64)
	for _, tmpl := range templates {
		for _, productID := range s.Stats.RecentHighRated(tmpl.ID, perTemplate) {
			if !s.Candidate(productID) {
				continue
			}
			scores[productID] += tmpl.Score
		}
	}
	return rankScores(scores, engine.AlgorithmUBCF, n), nil
}
