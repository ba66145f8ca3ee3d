// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package specialist

import (
	"math"
	"strings"
	"unicode"

	"github.com/selvedge/tessera/internal/engine"
)

// Similarity computes the weighted attribute similarity of a candidate
// product against a base product, in [0, 1]. Attributes the base product
// does not carry are skipped; attributes the candidate is missing score
// zero at full weight. Returns 0 when no weighted attribute is comparable.
func Similarity(cfg *engine.TenantConfig, base, cand engine.Product) float64 {
	var total, weighted float64
	for name, spec := range cfg.Attributes {
		if spec.SimilarityWeight <= 0 {
			continue
		}
		bv, ok := base.Attributes[name]
		if !ok {
			continue
		}
		total += spec.SimilarityWeight

		cv, ok := cand.Attributes[name]
		if !ok || cv.Kind != bv.Kind {
			continue
		}
		weighted += spec.SimilarityWeight * attrSimilarity(cfg, bv, cv)
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func attrSimilarity(cfg *engine.TenantConfig, base, cand engine.AttrValue) float64 {
	switch base.Kind {
	case engine.AttrNumeric:
		return numericSimilarity(base.Number, cand.Number)
	case engine.AttrDate:
		return dateSimilarity(cfg.Thresholds.DateHalflifeDays, base, cand)
	case engine.AttrList:
		return listSimilarity(base.List, cand.List)
	case engine.AttrText:
		return textSimilarity(base.Text, cand.Text)
	default:
		return 0
	}
}

// numericSimilarity is the min/max ratio: equal values score 1, values an
// order of magnitude apart score 0.1. Opposite signs score 0.
func numericSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	if a == 0 || b == 0 || (a > 0) != (b > 0) {
		return 0
	}
	a, b = math.Abs(a), math.Abs(b)
	if a > b {
		a, b = b, a
	}
	return a / b
}

// dateSimilarity decays exponentially with day distance: identical dates
// score 1, dates one half-life apart score 0.5.
func dateSimilarity(halflifeDays float64, base, cand engine.AttrValue) float64 {
	days := math.Abs(base.Date.Sub(cand.Date).Hours()) / 24
	return math.Exp2(-days / halflifeDays)
}

// listSimilarity is the share of the base list covered by the candidate.
// An empty base list constrains nothing and scores 1.
func listSimilarity(base, cand []string) float64 {
	if len(base) == 0 {
		return 1
	}
	have := make(map[string]struct{}, len(cand))
	for _, item := range cand {
		have[item] = struct{}{}
	}
	common := 0
	for _, item := range base {
		if _, ok := have[item]; ok {
			common++
		}
	}
	return float64(common) / float64(len(base))
}

// textSimilarity measures how much of the base text's term mass the
// candidate covers. Each base term contributes its frequency share as debt
// when the candidate misses it, or the uncovered fraction of its
// occurrences when the candidate has fewer. The similarity is 1 minus the
// accumulated debt, so it is asymmetric: the candidate may say more than
// the base, never less.
func textSimilarity(base, cand string) float64 {
	bf := termFrequencies(base)
	if len(bf) == 0 {
		return 1
	}
	cf := termFrequencies(cand)

	var totalBase, debt float64
	for _, n := range bf {
		totalBase += float64(n)
	}
	for term, bn := range bf {
		missing := bn - cf[term]
		if missing > 0 {
			debt += float64(missing) / totalBase
		}
	}
	return 1 - debt
}

// termFrequencies lowercases and splits on anything that is not a letter or
// digit.
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, term := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		freq[term]++
	}
	return freq
}
