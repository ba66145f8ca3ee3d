// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package merge implements the three hybrid mergers that combine the
// specialist queues into one result: weight-proportional chunks, weighted
// random draws, and rank-decayed voting. All three deduplicate across
// queues, keeping a product's first appearance.
package merge

import (
	"math"

	"github.com/selvedge/tessera/internal/engine"
)

// Chunks interleaves the queues in fixed specialist order, taking from each
// queue a contiguous chunk proportional to its weight. Weight 1:1 alternates
// one by one; 2:1 takes two from the first queue for every one of the
// second. Exhausted queues are skipped and the survivors keep their chunk
// sizes, so the weight ratio among non-empty queues is preserved.
type Chunks struct{}

// NewChunks builds the chunk merger.
func NewChunks() *Chunks { return &Chunks{} }

// Kind implements engine.Merger.
func (*Chunks) Kind() engine.AlgorithmKind { return engine.AlgorithmHRChunks }

// Merge implements engine.Merger.
func (*Chunks) Merge(queues map[engine.AlgorithmKind][]engine.RankedItem, weights map[engine.AlgorithmKind]float64, n int) []engine.RankedItem {
	chunks := chunkSizes(weights)

	cursors := make(map[engine.AlgorithmKind]int, len(engine.Specialists))
	seen := make(map[string]struct{}, n)
	out := make([]engine.RankedItem, 0, n)

	for len(out) < n {
		progressed := false
		for _, kind := range engine.Specialists {
			take := chunks[kind]
			queue := queues[kind]
			for take > 0 && cursors[kind] < len(queue) && len(out) < n {
				item := queue[cursors[kind]]
				cursors[kind]++
				if _, dup := seen[item.ProductID]; dup {
					continue
				}
				seen[item.ProductID] = struct{}{}
				out = append(out, item)
				progressed = true
				take--
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

// chunkSizes converts the weight table into the smallest integer chunk per
// specialist that preserves the configured ratios. Weights are read at
// two-decimal precision.
func chunkSizes(weights map[engine.AlgorithmKind]float64) map[engine.AlgorithmKind]int {
	scaled := make(map[engine.AlgorithmKind]int, len(weights))
	g := 0
	for _, kind := range engine.Specialists {
		v := int(math.Round(weights[kind] * 100))
		if v < 0 {
			v = 0
		}
		scaled[kind] = v
		g = gcd(g, v)
	}
	out := make(map[engine.AlgorithmKind]int, len(scaled))
	for kind, v := range scaled {
		if g > 0 {
			out[kind] = v / g
		}
	}
	return out
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
