// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package merge

import (
	"math/rand"

	"github.com/selvedge/tessera/internal/engine"
)

// Random fills the result by weighted random draws: each slot picks a queue
// with probability proportional to its weight, renormalized over the queues
// that still have items, then takes that queue's best remaining product.
// The randomness source is injected so tests can pin the sequence.
type Random struct {
	rng *rand.Rand
}

// NewRandom builds the random merger around the given source.
func NewRandom(rng *rand.Rand) *Random { return &Random{rng: rng} }

// Kind implements engine.Merger.
func (*Random) Kind() engine.AlgorithmKind { return engine.AlgorithmHRRandom }

// Merge implements engine.Merger.
func (m *Random) Merge(queues map[engine.AlgorithmKind][]engine.RankedItem, weights map[engine.AlgorithmKind]float64, n int) []engine.RankedItem {
	cursors := make(map[engine.AlgorithmKind]int, len(engine.Specialists))
	seen := make(map[string]struct{}, n)
	out := make([]engine.RankedItem, 0, n)

	// skipSeen advances a queue's cursor past products already emitted and
	// reports whether anything is left.
	skipSeen := func(kind engine.AlgorithmKind) bool {
		queue := queues[kind]
		for cursors[kind] < len(queue) {
			if _, dup := seen[queue[cursors[kind]].ProductID]; !dup {
				return true
			}
			cursors[kind]++
		}
		return false
	}

	for len(out) < n {
		// Renormalize over the queues that can still contribute.
		var total float64
		for _, kind := range engine.Specialists {
			if weights[kind] > 0 && skipSeen(kind) {
				total += weights[kind]
			}
		}
		if total == 0 {
			break
		}

		draw := m.rng.Float64() * total
		for _, kind := range engine.Specialists {
			if weights[kind] <= 0 || !skipSeen(kind) {
				continue
			}
			draw -= weights[kind]
			if draw >= 0 {
				continue
			}
			item := queues[kind][cursors[kind]]
			cursors[kind]++
			seen[item.ProductID] = struct{}{}
			out = append(out, item)
			break
		}
	}
	return out
}
