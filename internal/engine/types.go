// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"strings"
	"time"
)

// AlgorithmKind identifies a specialist or a hybrid merger. Algorithm
// selection is a closed enum dispatched through fixed registration tables,
// not open-ended lookup.
type AlgorithmKind int

const (
	// AlgorithmUnknown is the zero value; never valid in a request.
	AlgorithmUnknown AlgorithmKind = iota
	// AlgorithmPOP ranks by rating density over the product's active time span.
	AlgorithmPOP
	// AlgorithmPBCF expands recently consumed products via cross-user
	// co-rating probability.
	AlgorithmPBCF
	// AlgorithmCB expands recently consumed products via weighted attribute
	// similarity.
	AlgorithmCB
	// AlgorithmUBCF promotes the recent high-rated products of like-minded
	// user templates.
	AlgorithmUBCF
	// AlgorithmHRChunks merges specialist queues in weight-proportional chunks.
	AlgorithmHRChunks
	// AlgorithmHRRandom merges specialist queues by weighted random draws.
	AlgorithmHRRandom
	// AlgorithmHRVoting merges specialist queues by rank-decayed voting.
	AlgorithmHRVoting
)

// Specialists lists the four specialist kinds in their fixed merge order.
var Specialists = [4]AlgorithmKind{AlgorithmPOP, AlgorithmPBCF, AlgorithmCB, AlgorithmUBCF}

// String returns the canonical algorithm name.
func (k AlgorithmKind) String() string {
	switch k {
	case AlgorithmPOP:
		return "POP"
	case AlgorithmPBCF:
		return "PBCF"
	case AlgorithmCB:
		return "CB"
	case AlgorithmUBCF:
		return "UBCF"
	case AlgorithmHRChunks:
		return "HRChunks"
	case AlgorithmHRRandom:
		return "HRRandom"
	case AlgorithmHRVoting:
		return "HRVoting"
	default:
		return "unknown"
	}
}

// IsMerger reports whether the kind is a hybrid merger.
func (k AlgorithmKind) IsMerger() bool {
	switch k {
	case AlgorithmHRChunks, AlgorithmHRRandom, AlgorithmHRVoting:
		return true
	default:
		return false
	}
}

// ParseAlgorithm resolves a request-supplied algorithm name. Unknown names
// are a configuration error surfaced to the caller.
func ParseAlgorithm(name string) (AlgorithmKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pop":
		return AlgorithmPOP, nil
	case "pbcf":
		return AlgorithmPBCF, nil
	case "cb":
		return AlgorithmCB, nil
	case "ubcf":
		return AlgorithmUBCF, nil
	case "hrchunks":
		return AlgorithmHRChunks, nil
	case "hrrandom":
		return AlgorithmHRRandom, nil
	case "hrvoting":
		return AlgorithmHRVoting, nil
	default:
		return AlgorithmUnknown, &ConfigurationError{Field: "algorithm", Detail: "unknown algorithm " + name}
	}
}

// Activity records a user acting on a product. Activities are append-only
// and immutable once recorded.
type Activity struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
}

// Impression records that a product was shown to a user. Impressions are a
// conditioning signal for probability estimation only; they never become
// ratings.
type Impression struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	At        time.Time `json:"at"`
}

// AttrKind is the type of a product attribute value.
type AttrKind int

const (
	// AttrText is free text, compared by asymmetric token similarity.
	AttrText AttrKind = iota
	// AttrNumeric is a numeric value, compared by min/max ratio.
	AttrNumeric
	// AttrList is a list of terms, compared by overlap coverage.
	AttrList
	// AttrDate is a timestamp, compared by exponential day-distance decay.
	AttrDate
)

// String returns a human-readable attribute kind name.
func (k AttrKind) String() string {
	switch k {
	case AttrText:
		return "text"
	case AttrNumeric:
		return "numeric"
	case AttrList:
		return "list"
	case AttrDate:
		return "date"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name so JSON payloads carry "text",
// "numeric", "list" or "date" instead of an integer.
func (k AttrKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name from a JSON payload.
func (k *AttrKind) UnmarshalText(text []byte) error {
	kind, err := ParseAttrKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseAttrKind resolves an attribute kind name from configuration.
func ParseAttrKind(name string) (AttrKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text":
		return AttrText, nil
	case "numeric", "number":
		return AttrNumeric, nil
	case "list":
		return AttrList, nil
	case "date":
		return AttrDate, nil
	default:
		return AttrText, &ConfigurationError{Field: "attributes", Detail: "unknown attribute kind " + name}
	}
}

// AttrValue is a tagged union holding one typed attribute value.
type AttrValue struct {
	Kind   AttrKind  `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	List   []string  `json:"list,omitempty"`
	Date   time.Time `json:"date,omitempty"`
}

// TextValue builds a text attribute value.
func TextValue(s string) AttrValue { return AttrValue{Kind: AttrText, Text: s} }

// NumberValue builds a numeric attribute value.
func NumberValue(f float64) AttrValue { return AttrValue{Kind: AttrNumeric, Number: f} }

// ListValue builds a list attribute value.
func ListValue(items ...string) AttrValue { return AttrValue{Kind: AttrList, List: items} }

// DateValue builds a date attribute value.
func DateValue(t time.Time) AttrValue { return AttrValue{Kind: AttrDate, Date: t} }

// Product is a recommendable item: an identifier plus typed attributes.
// Products are mutable and deletable; a deleted product must never appear
// in a subsequently computed ranking.
type Product struct {
	ID         string               `json:"id"`
	Attributes map[string]AttrValue `json:"attributes,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at,omitempty"`
}

// RankedItem is the unit exchanged between specialists and mergers.
type RankedItem struct {
	ProductID string        `json:"product_id"`
	Score     float64       `json:"score"`
	Source    AlgorithmKind `json:"-"`
}

// ScoredPair couples an identifier (product or user) with a strength score.
type ScoredPair struct {
	ID    string
	Score float64
}

// PopularityStat summarizes a product's qualifying-rating density.
type PopularityStat struct {
	ProductID string
	// Count is the number of distinct users with a qualifying rating.
	Count int
	// Density is Count divided by the day span between the first and latest
	// qualifying activity (minimum span: one day).
	Density float64
}

// Request is a recommendation request for one user.
type Request struct {
	Tenant    string
	UserID    string
	Count     int
	Algorithm AlgorithmKind
	Filter    FilterDoc
	RequestID string
}

// Response is an ordered recommendation result.
type Response struct {
	Items       []RankedItem  `json:"items"`
	Algorithm   AlgorithmKind `json:"-"`
	RequestID   string        `json:"request_id"`
	LatencyMS   int64         `json:"latency_ms"`
	CacheHit    bool          `json:"cache_hit"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// ProductIDs returns the ordered product ids of the response items.
func (r *Response) ProductIDs() []string {
	ids := make([]string, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.ProductID
	}
	return ids
}
