// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import "time"

// Rating is the translated value of an activity on the 1..5 scale.
type Rating struct {
	Stars    int       `json:"stars"`
	Blocking bool      `json:"blocking"`
	At       time.Time `json:"at"`
}

// Translator turns raw activities into ratings using the tenant's activity
// mapping. The derived rating of a (user, product) pair is the rating of the
// most recent mapped activity, regardless of star value.
type Translator struct {
	cfg *TenantConfig
}

// NewTranslator builds a translator over a tenant configuration.
func NewTranslator(cfg *TenantConfig) *Translator {
	return &Translator{cfg: cfg}
}

// Translate maps a single activity type. Unmapped types are a configuration
// error; ingestion rejects them before they reach storage.
func (t *Translator) Translate(activityType string) (ActivityRating, error) {
	ar, ok := t.cfg.Activities[activityType]
	if !ok {
		return ActivityRating{}, &ConfigurationError{
			Field:  "activities." + activityType,
			Detail: "activity type has no rating mapping",
		}
	}
	return ar, nil
}

// Derive computes the per-product derived rating from a user's activity
// history. Activities with unmapped types are skipped: history recorded
// before a mapping was removed must not poison ranking.
func (t *Translator) Derive(acts []Activity) map[string]Rating {
	out := make(map[string]Rating)
	for _, act := range acts {
		ar, ok := t.cfg.Activities[act.Type]
		if !ok {
			continue
		}
		if prev, seen := out[act.ProductID]; seen && !act.At.After(prev.At) {
			continue
		}
		out[act.ProductID] = Rating{Stars: ar.Stars, Blocking: ar.Blocking, At: act.At}
	}
	return out
}
