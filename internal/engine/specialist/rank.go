// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"sort"

	"github.com/selvedge/tessera/internal/engine"
)

// rankScores turns an accumulated score map into an ordered result: score
// descending, ties broken by product id ascending, capped at n.
func rankScores(scores map[string]float64, source engine.AlgorithmKind, n int) []engine.RankedItem {
	items := make([]engine.RankedItem, 0, len(scores))
	for id, score := range scores {
		items = append(items, engine.RankedItem{ProductID: id, Score: score, Source: source})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ProductID < items[j].ProductID
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}
