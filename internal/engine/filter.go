// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import "time"

// Constraint restricts one attribute. The populated fields must match the
// attribute's declared kind; Min/Max bound numeric values, MinDate/MaxDate
// bound dates, Equals matches a text value or a list member, AnyOf matches
// any of several text values or list members.
type Constraint struct {
	Equals  *string    `json:"equals,omitempty"`
	AnyOf   []string   `json:"any_of,omitempty"`
	Min     *float64   `json:"min,omitempty"`
	Max     *float64   `json:"max,omitempty"`
	MinDate *time.Time `json:"min_date,omitempty"`
	MaxDate *time.Time `json:"max_date,omitempty"`
}

// FilterDoc is a per-request context filter: attribute name to constraint.
// All constraints must hold for a product to remain a candidate.
type FilterDoc map[string]Constraint

// ContextFilter is a compiled FilterDoc bound to a tenant's attribute
// schema. A nil *ContextFilter matches everything.
type ContextFilter struct {
	constraints map[string]compiledConstraint
}

type compiledConstraint struct {
	kind AttrKind
	c    Constraint
}

// CompileFilter binds a filter document to the tenant attribute schema.
// Only attributes flagged for context filtering are consulted; constraints
// naming undeclared or non-filterable attributes are ignored. A constraint
// whose fields do not fit the attribute kind is a configuration error.
func CompileFilter(cfg *TenantConfig, doc FilterDoc) (*ContextFilter, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	compiled := make(map[string]compiledConstraint, len(doc))
	for name, c := range doc {
		spec, ok := cfg.Attributes[name]
		if !ok || !spec.ContextFilter {
			continue
		}
		kind, err := ParseAttrKind(spec.Kind)
		if err != nil {
			return nil, err
		}
		if err := checkConstraint(name, kind, c); err != nil {
			return nil, err
		}
		compiled[name] = compiledConstraint{kind: kind, c: c}
	}
	if len(compiled) == 0 {
		return nil, nil
	}
	return &ContextFilter{constraints: compiled}, nil
}

func checkConstraint(name string, kind AttrKind, c Constraint) error {
	bad := func(detail string) error {
		return &ConfigurationError{Field: "context_filter." + name, Detail: detail}
	}
	switch kind {
	case AttrText, AttrList:
		if c.Min != nil || c.Max != nil || c.MinDate != nil || c.MaxDate != nil {
			return bad("range bounds do not apply to " + kind.String() + " attributes")
		}
		if c.Equals == nil && len(c.AnyOf) == 0 {
			return bad("equals or any_of required")
		}
	case AttrNumeric:
		if c.Equals != nil || len(c.AnyOf) > 0 || c.MinDate != nil || c.MaxDate != nil {
			return bad("only min/max apply to numeric attributes")
		}
		if c.Min == nil && c.Max == nil {
			return bad("min or max required")
		}
	case AttrDate:
		if c.Equals != nil || len(c.AnyOf) > 0 || c.Min != nil || c.Max != nil {
			return bad("only min_date/max_date apply to date attributes")
		}
		if c.MinDate == nil && c.MaxDate == nil {
			return bad("min_date or max_date required")
		}
	}
	return nil
}

// Match reports whether the product satisfies every constraint. Products
// missing a constrained attribute fail the filter.
func (f *ContextFilter) Match(p Product) bool {
	if f == nil {
		return true
	}
	for name, cc := range f.constraints {
		v, ok := p.Attributes[name]
		if !ok || v.Kind != cc.kind {
			return false
		}
		if !matchValue(cc, v) {
			return false
		}
	}
	return true
}

func matchValue(cc compiledConstraint, v AttrValue) bool {
	c := cc.c
	switch cc.kind {
	case AttrText:
		if c.Equals != nil {
			return v.Text == *c.Equals
		}
		for _, want := range c.AnyOf {
			if v.Text == want {
				return true
			}
		}
		return false
	case AttrList:
		want := c.AnyOf
		if c.Equals != nil {
			want = []string{*c.Equals}
		}
		for _, w := range want {
			for _, have := range v.List {
				if w == have {
					return true
				}
			}
		}
		return false
	case AttrNumeric:
		if c.Min != nil && v.Number < *c.Min {
			return false
		}
		if c.Max != nil && v.Number > *c.Max {
			return false
		}
		return true
	case AttrDate:
		if c.MinDate != nil && v.Date.Before(*c.MinDate) {
			return false
		}
		if c.MaxDate != nil && v.Date.After(*c.MaxDate) {
			return false
		}
		return true
	default:
		return false
	}
}
