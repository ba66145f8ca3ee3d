// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package merge

import (
	"math"
	"math/rand"
	"testing"

	"github.com/selvedge/tessera/internal/engine"
)

func queue(ids ...string) []engine.RankedItem {
	out := make([]engine.RankedItem, len(ids))
	for i, id := range ids {
		out[i] = engine.RankedItem{ProductID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func ids(items []engine.RankedItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ProductID
	}
	return out
}

func equalIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func weights(pop, pbcf, cb, ubcf float64) map[engine.AlgorithmKind]float64 {
	return map[engine.AlgorithmKind]float64{
		engine.AlgorithmPOP:  pop,
		engine.AlgorithmPBCF: pbcf,
		engine.AlgorithmCB:   cb,
		engine.AlgorithmUBCF: ubcf,
	}
}

func TestChunksEqualWeightsAlternate(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1", "a2", "a3"),
		engine.AlgorithmPBCF: queue("b1", "b2", "b3"),
	}
	got := ids(NewChunks().Merge(queues, weights(1, 1, 0, 0), 6))
	if !equalIDs(got, "a1", "b1", "a2", "b2", "a3", "b3") {
		t.Errorf("merge = %v, want strict alternation", got)
	}
}

func TestChunksProportionalRatio(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1", "a2", "a3", "a4"),
		engine.AlgorithmPBCF: queue("b1", "b2"),
	}
	// 2:1 takes two POP items per PBCF item.
	got := ids(NewChunks().Merge(queues, weights(2, 1, 0, 0), 6))
	if !equalIDs(got, "a1", "a2", "b1", "a3", "a4", "b2") {
		t.Errorf("merge = %v, want 2:1 interleave", got)
	}
}

func TestChunksFractionalWeights(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1", "a2", "a3"),
		engine.AlgorithmPBCF: queue("b1", "b2", "b3"),
	}
	// 0.5 : 0.25 reduces to 2 : 1.
	got := ids(NewChunks().Merge(queues, weights(0.5, 0.25, 0, 0), 4))
	if !equalIDs(got, "a1", "a2", "b1", "a3") {
		t.Errorf("merge = %v, want reduced 2:1 interleave", got)
	}
}

func TestChunksSkipsExhaustedQueues(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1"),
		engine.AlgorithmPBCF: queue("b1", "b2", "b3"),
	}
	got := ids(NewChunks().Merge(queues, weights(1, 1, 0, 0), 4))
	if !equalIDs(got, "a1", "b1", "b2", "b3") {
		t.Errorf("merge = %v, want exhausted queue skipped", got)
	}
}

func TestChunksDeduplicates(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("x", "a2"),
		engine.AlgorithmPBCF: queue("x", "b2"),
	}
	got := ids(NewChunks().Merge(queues, weights(1, 1, 0, 0), 4))
	if !equalIDs(got, "x", "b2", "a2") {
		t.Errorf("merge = %v, want x kept once", got)
	}
}

func TestChunksStopsAtCount(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP: queue("a1", "a2", "a3", "a4", "a5"),
	}
	if got := NewChunks().Merge(queues, weights(1, 0, 0, 0), 3); len(got) != 3 {
		t.Errorf("merge returned %d items, want 3", len(got))
	}
}

func TestRandomSingleWeightIsDeterministic(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1", "a2", "a3"),
		engine.AlgorithmPBCF: queue("b1", "b2"),
	}
	m := NewRandom(rand.New(rand.NewSource(1)))
	// Only POP carries weight, so the draw can only ever pick POP.
	got := ids(m.Merge(queues, weights(1, 0, 0, 0), 5))
	if !equalIDs(got, "a1", "a2", "a3") {
		t.Errorf("merge = %v, want POP queue in order", got)
	}
}

func TestRandomSeededSequenceStable(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1", "a2", "a3"),
		engine.AlgorithmPBCF: queue("b1", "b2", "b3"),
	}
	a := ids(NewRandom(rand.New(rand.NewSource(42))).Merge(queues, weights(1, 1, 0, 0), 6))
	b := ids(NewRandom(rand.New(rand.NewSource(42))).Merge(queues, weights(1, 1, 0, 0), 6))
	if !equalIDs(a, b...) {
		t.Errorf("same seed produced different merges: %v vs %v", a, b)
	}
	if len(a) != 6 {
		t.Errorf("merge = %v, want all 6 items", a)
	}
}

func TestRandomFallsBackWhenQueueExhausted(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a1"),
		engine.AlgorithmPBCF: queue("b1", "b2", "b3"),
	}
	got := ids(NewRandom(rand.New(rand.NewSource(7))).Merge(queues, weights(100, 1, 0, 0), 4))
	// POP runs dry after one item; the remaining slots must renormalize
	// onto PBCF and drain it completely.
	if len(got) != 4 {
		t.Fatalf("merge = %v, want all 4 items", got)
	}
	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range []string{"a1", "b1", "b2", "b3"} {
		if !seen[id] {
			t.Errorf("merge = %v, missing %s", got, id)
		}
	}
}

func TestRandomDeduplicates(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("x", "a2"),
		engine.AlgorithmPBCF: queue("x", "b2"),
	}
	got := ids(NewRandom(rand.New(rand.NewSource(3))).Merge(queues, weights(1, 1, 0, 0), 4))
	seen := map[string]int{}
	for _, id := range got {
		seen[id]++
	}
	if seen["x"] != 1 {
		t.Errorf("merge = %v, want x exactly once", got)
	}
	if len(got) != 3 {
		t.Errorf("merge = %v, want 3 distinct items", got)
	}
}

func TestVotingPointsFormula(t *testing.T) {
	tests := []struct {
		rank int
		want float64
	}{
		{rank: 0, want: 1000},
		{rank: 4, want: 500},
		{rank: 8, want: 250},
		{rank: 2, want: 1000 * math.Exp2(-0.5)},
	}
	for _, tt := range tests {
		if got := votes(tt.rank); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("votes(%d) = %v, want %v", tt.rank, got, tt.want)
		}
	}
}

func TestVotingAccumulatesAcrossQueues(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a", "shared"),
		engine.AlgorithmPBCF: queue("shared", "b"),
	}
	items := NewVoting().Merge(queues, weights(1, 1, 0, 0), 10)

	// shared: rank 1 in POP + rank 0 in PBCF = 1000*2^-0.25 + 1000 ≈ 1840.9
	// a: 1000, b: 1000*2^-0.25 ≈ 840.9
	if got := ids(items); !equalIDs(got, "shared", "a", "b") {
		t.Fatalf("merge = %v, want [shared a b]", got)
	}
	wantShared := 1000*math.Exp2(-0.25) + 1000
	if math.Abs(items[0].Score-wantShared) > 1e-6 {
		t.Errorf("shared score = %v, want %v", items[0].Score, wantShared)
	}
}

func TestVotingRespectsWeights(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("a"),
		engine.AlgorithmPBCF: queue("b"),
	}
	// PBCF votes count triple, so b outranks a despite equal positions.
	items := NewVoting().Merge(queues, weights(1, 3, 0, 0), 10)
	if got := ids(items); !equalIDs(got, "b", "a") {
		t.Errorf("merge = %v, want [b a]", got)
	}
	if items[0].Score != 3000 {
		t.Errorf("b score = %v, want 3000", items[0].Score)
	}
}

func TestVotingTieBreaksByID(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP:  queue("zeta"),
		engine.AlgorithmPBCF: queue("alpha"),
	}
	items := NewVoting().Merge(queues, weights(1, 1, 0, 0), 10)
	if got := ids(items); !equalIDs(got, "alpha", "zeta") {
		t.Errorf("merge = %v, want tie broken by id ascending", got)
	}
}

func TestVotingZeroWeightQueueIgnored(t *testing.T) {
	queues := map[engine.AlgorithmKind][]engine.RankedItem{
		engine.AlgorithmPOP: queue("a"),
		engine.AlgorithmCB:  queue("c"),
	}
	items := NewVoting().Merge(queues, weights(1, 1, 0, 1), 10)
	if got := ids(items); !equalIDs(got, "a") {
		t.Errorf("merge = %v, want CB queue ignored at zero weight", got)
	}
}
