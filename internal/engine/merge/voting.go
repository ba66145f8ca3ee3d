// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package merge

import (
	"math"
	"sort"

	"github.com/selvedge/tessera/internal/engine"
)

// Voting points per rank position: votes(rank) = 1000 * 2^(-rank/4), so the
// top of a queue is worth 1000 points and the value halves every 4 ranks.
const (
	voteScale    = 1000.0
	voteHalflife = 4.0
)

// Voting merges by rank-decayed voting: every queue awards points to its
// products by position, scaled by the queue's weight, and products are
// ranked by total points. A product endorsed by several specialists
// accumulates all their votes.
type Voting struct{}

// NewVoting builds the voting merger.
func NewVoting() *Voting { return &Voting{} }

// Kind implements engine.Merger.
func (*Voting) Kind() engine.AlgorithmKind { return engine.AlgorithmHRVoting }

// Merge implements engine.Merger.
func (*Voting) Merge(queues map[engine.AlgorithmKind][]engine.RankedItem, weights map[engine.AlgorithmKind]float64, n int) []engine.RankedItem {
	points := make(map[string]float64)
	for _, kind := range engine.Specialists {
		w := weights[kind]
		if w <= 0 {
			continue
		}
		for rank, item := range queues[kind] {
			points[item.ProductID] += w * votes(rank)
		}
	}

	out := make([]engine.RankedItem, 0, len(points))
	for id, score := range points {
		out = append(out, engine.RankedItem{
			ProductID: id,
			Score:     score,
			Source:    engine.AlgorithmHRVoting,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// votes returns the points awarded to the zero-based rank position.
func votes(rank int) float64 {
	return voteScale * math.Exp2(-float64(rank)/voteHalflife)
}
