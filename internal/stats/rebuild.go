// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/metrics"
)

// userHistory is one user's derived view of the tenant history.
type userHistory struct {
	ratings map[string]engine.Rating
	// impressed is the set of products shown to the user; nil when the user
	// has no impressions at all.
	impressed map[string]struct{}
}

// Rebuild recomputes every table for one tenant from the full activity and
// impression history, then commits the result atomically. On failure the
// previous snapshot stays in place untouched.
func (s *Store) Rebuild(ctx context.Context, tenant string, cfg *engine.TenantConfig, store engine.Store) error {
	started := time.Now()
	err := s.rebuild(ctx, tenant, cfg, store)
	metrics.RecordRebuild(tenant, time.Since(started), err)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", tenant).Msg("stats rebuild failed")
		return err
	}
	s.logger.Info().
		Str("tenant", tenant).
		Dur("elapsed", time.Since(started)).
		Msg("stats rebuild committed")
	return nil
}

func (s *Store) rebuild(ctx context.Context, tenant string, cfg *engine.TenantConfig, store engine.Store) error {
	acts, err := store.Activities(ctx, tenant)
	if err != nil {
		return fmt.Errorf("loading activities: %w", err)
	}
	imps, err := store.Impressions(ctx, tenant)
	if err != nil {
		return fmt.Errorf("loading impressions: %w", err)
	}

	users := deriveHistories(cfg, acts, imps)

	snap := &snapshot{
		productTemplates: buildProductTemplates(cfg, users),
		userTemplates:    buildUserTemplates(cfg, users),
		recentHigh:       buildRecentHigh(cfg, users),
		builtAt:          time.Now().UTC(),
	}
	pop := buildPopularity(cfg, users)

	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tenant, snap, pop)
	return nil
}

// deriveHistories groups the raw history by user and applies the rating
// translation, so every table below works off derived ratings.
func deriveHistories(cfg *engine.TenantConfig, acts []engine.Activity, imps []engine.Impression) map[string]*userHistory {
	tr := engine.NewTranslator(cfg)

	byUser := make(map[string][]engine.Activity)
	for _, act := range acts {
		byUser[act.UserID] = append(byUser[act.UserID], act)
	}

	users := make(map[string]*userHistory, len(byUser))
	for userID, ua := range byUser {
		users[userID] = &userHistory{ratings: tr.Derive(ua)}
	}
	for _, imp := range imps {
		h, ok := users[imp.UserID]
		if !ok {
			h = &userHistory{ratings: map[string]engine.Rating{}}
			users[imp.UserID] = h
		}
		if h.impressed == nil {
			h.impressed = make(map[string]struct{})
		}
		h.impressed[imp.ProductID] = struct{}{}
	}
	return users
}

// strength is the Laplace-smoothed estimate shared by both collaborative
// tables: ((1-risk)*nc + risk*na + 1) / (d + 2), where nc and na count
// co-high ratings at the conservative and aggressive thresholds and d is
// the conditioning population.
func strength(cfg *engine.TenantConfig, nc, na, d int) float64 {
	r := cfg.Thresholds.RiskFactor
	return ((1-r)*float64(nc) + r*float64(na) + 1) / float64(d+2)
}

// buildPopularity accumulates, per product, the distinct users whose derived
// rating qualifies, plus the first and latest qualifying times.
func buildPopularity(cfg *engine.TenantConfig, users map[string]*userHistory) *popularityTable {
	pop := newPopularityTable()
	for userID, h := range users {
		for productID, r := range h.ratings {
			if cfg.Recommendable(r.Stars) {
				pop.bump(productID, userID, r.At)
			}
		}
	}
	return pop
}

// buildProductTemplates computes, for every base product, the candidates
// most likely to be rated high by users who rated the base product.
func buildProductTemplates(cfg *engine.TenantConfig, users map[string]*userHistory) map[string][]engine.ScoredPair {
	nc := make(map[string]map[string]int)
	na := make(map[string]map[string]int)
	denom := make(map[string]int)

	for _, h := range users {
		var consHigh, aggrHigh []string
		for productID, r := range h.ratings {
			if cfg.Recommendable(r.Stars) {
				denom[productID]++
			}
			if cfg.ConservativeHigh(r.Stars) {
				consHigh = append(consHigh, productID)
			}
			if cfg.AggressiveHigh(r.Stars) {
				aggrHigh = append(aggrHigh, productID)
			}
		}
		countPairs(nc, consHigh)
		countPairs(na, aggrHigh)
	}

	out := make(map[string][]engine.ScoredPair, len(nc))
	for base, cands := range nc {
		pairs := make([]engine.ScoredPair, 0, len(cands))
		for cand, n := range cands {
			pairs = append(pairs, engine.ScoredPair{
				ID:    cand,
				Score: strength(cfg, n, na[base][cand], denom[base]),
			})
		}
		sortPairs(pairs)
		out[base] = pairs
	}
	return out
}

// countPairs increments counts[a][b] for every ordered pair of distinct
// elements in ids.
func countPairs(counts map[string]map[string]int, ids []string) {
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			m, ok := counts[a]
			if !ok {
				m = make(map[string]int)
				counts[a] = m
			}
			m[b]++
		}
	}
}

// buildUserTemplates computes, for every target user, the template users
// whose taste best predicts the target's. The conditioning population d is
// the overlap between the template's recommendable products and the
// target's impressions; a target with no impressions conditions on all of
// the template's recommendable products.
func buildUserTemplates(cfg *engine.TenantConfig, users map[string]*userHistory) map[string][]engine.ScoredPair {
	// Users sharing at least one conservative-high product are candidates
	// for each other; index by product to avoid the full user cross product.
	highRaters := make(map[string][]string)
	for userID, h := range users {
		for productID, r := range h.ratings {
			if cfg.ConservativeHigh(r.Stars) {
				highRaters[productID] = append(highRaters[productID], userID)
			}
		}
	}

	neighbours := make(map[string]map[string]struct{})
	for _, raters := range highRaters {
		for _, a := range raters {
			for _, b := range raters {
				if a == b {
					continue
				}
				m, ok := neighbours[a]
				if !ok {
					m = make(map[string]struct{})
					neighbours[a] = m
				}
				m[b] = struct{}{}
			}
		}
	}

	out := make(map[string][]engine.ScoredPair, len(neighbours))
	for target, temps := range neighbours {
		th := users[target]
		pairs := make([]engine.ScoredPair, 0, len(temps))
		for template := range temps {
			nc, na, d := userPairCounts(cfg, th, users[template])
			pairs = append(pairs, engine.ScoredPair{
				ID:    template,
				Score: strength(cfg, nc, na, d),
			})
		}
		sortPairs(pairs)
		out[target] = pairs
	}
	return out
}

// userPairCounts counts, over the template's rated products, the co-high
// ratings shared with the target (nc conservative, na aggressive) and the
// conditioning population d of the template's recommendable products. When
// the target has impressions, every count is restricted to products the
// target was shown, so the estimate stays a probability. A target without
// impressions consumed the products unprompted and counts them all.
func userPairCounts(cfg *engine.TenantConfig, target, template *userHistory) (nc, na, d int) {
	for productID, tr := range template.ratings {
		if target.impressed != nil {
			if _, shown := target.impressed[productID]; !shown {
				continue
			}
		}
		rr, rated := target.ratings[productID]
		if rated && cfg.ConservativeHigh(tr.Stars) && cfg.ConservativeHigh(rr.Stars) {
			nc++
		}
		if rated && cfg.AggressiveHigh(tr.Stars) && cfg.AggressiveHigh(rr.Stars) {
			na++
		}
		if cfg.Recommendable(tr.Stars) {
			d++
		}
	}
	return nc, na, d
}

// buildRecentHigh collects, per user, the recommendable-rated products
// ordered newest first.
func buildRecentHigh(cfg *engine.TenantConfig, users map[string]*userHistory) map[string][]string {
	type rated struct {
		id string
		at time.Time
	}
	out := make(map[string][]string)
	for userID, h := range users {
		var recent []rated
		for productID, r := range h.ratings {
			if cfg.Recommendable(r.Stars) {
				recent = append(recent, rated{id: productID, at: r.At})
			}
		}
		if len(recent) == 0 {
			continue
		}
		sort.Slice(recent, func(i, j int) bool {
			if !recent[i].at.Equal(recent[j].at) {
				return recent[i].at.After(recent[j].at)
			}
			return recent[i].id < recent[j].id
		})
		ids := make([]string, len(recent))
		for i, r := range recent {
			ids[i] = r.id
		}
		out[userID] = ids
	}
	return out
}

// sortPairs orders by score descending, ties by id ascending.
func sortPairs(pairs []engine.ScoredPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		return pairs[i].ID < pairs[j].ID
	})
}
