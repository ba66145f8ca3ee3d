// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"fmt"
	"sort"
)

// ActivityRating maps one activity type onto the 1..5 rating scale.
// Blocking activity types mark the product as consumed for the user.
type ActivityRating struct {
	Stars    int  `koanf:"stars" json:"stars" validate:"min=1,max=5"`
	Blocking bool `koanf:"blocking" json:"blocking"`
}

// AttributeSpec declares one product attribute: its value kind, its weight
// in content-based similarity, and whether context filters may constrain it.
type AttributeSpec struct {
	Kind             string  `koanf:"kind" json:"kind" validate:"oneof=text numeric list date"`
	SimilarityWeight float64 `koanf:"similarity_weight" json:"similarity_weight" validate:"min=0"`
	ContextFilter    bool    `koanf:"context_filter" json:"context_filter"`
}

// Thresholds holds the rating cut-offs and the risk factor used by the
// strength formulas.
type Thresholds struct {
	// MinConservative is the floor for a "high" rating under the safe
	// interpretation (nc in the strength numerator).
	MinConservative int `koanf:"min_conservative" json:"min_conservative" validate:"min=1,max=5"`
	// MinAggressive is the floor for a "high" rating under the strict
	// interpretation (na in the strength numerator).
	MinAggressive int `koanf:"min_aggressive" json:"min_aggressive" validate:"min=1,max=5"`
	// MinRecommendable is the floor for a rating to make the rated product
	// recommendable from that user, and for a user to qualify toward
	// popularity.
	MinRecommendable int `koanf:"min_recommendable" json:"min_recommendable" validate:"min=1,max=5"`
	// RiskFactor blends the conservative and aggressive counts:
	// (1-risk)*nc + risk*na.
	RiskFactor float64 `koanf:"risk_factor" json:"risk_factor" validate:"min=0,max=1"`
	// DateHalflifeDays is the decay half-life for date attribute similarity.
	DateHalflifeDays float64 `koanf:"date_halflife_days" json:"date_halflife_days" validate:"min=1"`
}

// Counts holds the breadth knobs of the specialists.
type Counts struct {
	// UserTemplates is how many like-minded users UBCF consults.
	UserTemplates int `koanf:"user_templates" json:"user_templates" validate:"min=1"`
	// RecentProducts is how many recent high-rated products seed PBCF and CB.
	RecentProducts int `koanf:"recent_products" json:"recent_products" validate:"min=1"`
	// ProductTemplates is how many neighbours each base product contributes.
	ProductTemplates int `koanf:"product_templates" json:"product_templates" validate:"min=1"`
	// DefaultCount is the result size when the request does not name one.
	DefaultCount int `koanf:"default_count" json:"default_count" validate:"min=1"`
	// MaxCount caps the result size a request may ask for.
	MaxCount int `koanf:"max_count" json:"max_count" validate:"min=1"`
}

// TenantConfig is the per-tenant behavior contract: the activity-to-rating
// translation table, the attribute schema, the strength thresholds, and the
// merger weight tables.
type TenantConfig struct {
	Activities map[string]ActivityRating `koanf:"activities" json:"activities" validate:"required,dive"`
	Attributes map[string]AttributeSpec  `koanf:"attributes" json:"attributes" validate:"dive"`
	Thresholds Thresholds                `koanf:"thresholds" json:"thresholds"`
	Counts     Counts                    `koanf:"counts" json:"counts"`
	// Weights maps merger name -> specialist name -> non-negative weight.
	Weights map[string]map[string]float64 `koanf:"weights" json:"weights"`
}

// DefaultThresholds returns the standard rating cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConservative:  4,
		MinAggressive:    5,
		MinRecommendable: 4,
		RiskFactor:       0.3,
		DateHalflifeDays: 180,
	}
}

// DefaultCounts returns the standard breadth knobs.
func DefaultCounts() Counts {
	return Counts{
		UserTemplates:    20,
		RecentProducts:   10,
		ProductTemplates: 10,
		DefaultCount:     20,
		MaxCount:         200,
	}
}

// Normalize fills zero-valued thresholds and counts with their defaults.
// Called once at configuration load, before Validate.
func (c *TenantConfig) Normalize() {
	dt, dc := DefaultThresholds(), DefaultCounts()
	if c.Thresholds.MinConservative == 0 {
		c.Thresholds.MinConservative = dt.MinConservative
	}
	if c.Thresholds.MinAggressive == 0 {
		c.Thresholds.MinAggressive = dt.MinAggressive
	}
	if c.Thresholds.MinRecommendable == 0 {
		c.Thresholds.MinRecommendable = dt.MinRecommendable
	}
	if c.Thresholds.RiskFactor == 0 {
		c.Thresholds.RiskFactor = dt.RiskFactor
	}
	if c.Thresholds.DateHalflifeDays == 0 {
		c.Thresholds.DateHalflifeDays = dt.DateHalflifeDays
	}
	if c.Counts.UserTemplates == 0 {
		c.Counts.UserTemplates = dc.UserTemplates
	}
	if c.Counts.RecentProducts == 0 {
		c.Counts.RecentProducts = dc.RecentProducts
	}
	if c.Counts.ProductTemplates == 0 {
		c.Counts.ProductTemplates = dc.ProductTemplates
	}
	if c.Counts.DefaultCount == 0 {
		c.Counts.DefaultCount = dc.DefaultCount
	}
	if c.Counts.MaxCount == 0 {
		c.Counts.MaxCount = dc.MaxCount
	}
}

// Validate checks the internal consistency constraints the struct tags
// cannot express.
func (c *TenantConfig) Validate() error {
	if len(c.Activities) == 0 {
		return &ConfigurationError{Field: "activities", Detail: "at least one activity type must be mapped"}
	}
	for name, ar := range c.Activities {
		if ar.Stars < 1 || ar.Stars > 5 {
			return &ConfigurationError{Field: "activities." + name, Detail: fmt.Sprintf("stars %d out of range 1..5", ar.Stars)}
		}
	}
	for name, spec := range c.Attributes {
		if _, err := ParseAttrKind(spec.Kind); err != nil {
			return &ConfigurationError{Field: "attributes." + name, Detail: "unknown kind " + spec.Kind}
		}
		if spec.SimilarityWeight < 0 {
			return &ConfigurationError{Field: "attributes." + name, Detail: "similarity_weight must be non-negative"}
		}
	}
	if c.Thresholds.MinAggressive < c.Thresholds.MinConservative {
		return &ConfigurationError{Field: "thresholds", Detail: "min_aggressive must be >= min_conservative"}
	}
	// Every conservative-high rater must count toward the recommendable
	// denominator, or a strength estimate could exceed 1.
	if c.Thresholds.MinConservative < c.Thresholds.MinRecommendable {
		return &ConfigurationError{Field: "thresholds", Detail: "min_conservative must be >= min_recommendable"}
	}
	if c.Thresholds.RiskFactor < 0 || c.Thresholds.RiskFactor > 1 {
		return &ConfigurationError{Field: "thresholds.risk_factor", Detail: "must be within [0,1]"}
	}
	for merger, table := range c.Weights {
		if _, err := c.weightsFor(merger, table); err != nil {
			return err
		}
	}
	return nil
}

// MergerWeights resolves the weight table for a merger kind. Every specialist
// must carry a non-negative weight and at least one weight must be positive.
func (c *TenantConfig) MergerWeights(kind AlgorithmKind) (map[AlgorithmKind]float64, error) {
	if !kind.IsMerger() {
		return nil, &ConfigurationError{Field: "algorithm", Detail: kind.String() + " is not a merger"}
	}
	table, ok := c.Weights[kind.String()]
	if !ok {
		return nil, &ConfigurationError{Field: "weights." + kind.String(), Detail: "no weight table configured"}
	}
	return c.weightsFor(kind.String(), table)
}

func (c *TenantConfig) weightsFor(merger string, table map[string]float64) (map[AlgorithmKind]float64, error) {
	out := make(map[AlgorithmKind]float64, len(Specialists))
	total := 0.0
	for _, sk := range Specialists {
		w, ok := table[sk.String()]
		if !ok {
			return nil, &ConfigurationError{Field: "weights." + merger, Detail: "missing weight for " + sk.String()}
		}
		if w < 0 {
			return nil, &ConfigurationError{Field: "weights." + merger + "." + sk.String(), Detail: "weight must be non-negative"}
		}
		out[sk] = w
		total += w
	}
	if total <= 0 {
		return nil, &ConfigurationError{Field: "weights." + merger, Detail: "at least one specialist weight must be positive"}
	}
	// Reject weights for names that are not specialists.
	if len(table) > len(Specialists) {
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if kind, err := ParseAlgorithm(k); err != nil || kind.IsMerger() {
				return nil, &ConfigurationError{Field: "weights." + merger, Detail: k + " is not a specialist"}
			}
		}
	}
	return out, nil
}

// ConservativeHigh reports whether stars clears the conservative cut-off.
func (c *TenantConfig) ConservativeHigh(stars int) bool {
	return stars >= c.Thresholds.MinConservative
}

// AggressiveHigh reports whether stars clears the aggressive cut-off.
func (c *TenantConfig) AggressiveHigh(stars int) bool {
	return stars >= c.Thresholds.MinAggressive
}

// Recommendable reports whether stars is high enough for the rated product
// to be recommendable from that user.
func (c *TenantConfig) Recommendable(stars int) bool {
	return stars >= c.Thresholds.MinRecommendable
}

// ClampCount resolves the requested result size against the tenant defaults.
func (c *TenantConfig) ClampCount(n int) int {
	if n <= 0 {
		return c.Counts.DefaultCount
	}
	if n > c.Counts.MaxCount {
		return c.Counts.MaxCount
	}
	return n
}

// TenantRegistry resolves tenant names to their configuration. Lookups for
// unconfigured tenants return ErrUnknownTenant.
type TenantRegistry interface {
	Tenant(name string) (*TenantConfig, error)
	Tenants() []string
}
