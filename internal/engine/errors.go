// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across storage adapters and the engine.
var (
	// ErrStorageUnavailable reports that the storage backend rejected the
	// operation, typically because the circuit breaker is open.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownTenant reports a request for a tenant with no configuration.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrProductNotFound reports a lookup for a product id that does not
	// exist (or was deleted) in the tenant catalog.
	ErrProductNotFound = errors.New("product not found")
)

// ConfigurationError reports a request or tenant configuration that cannot
// produce a valid ranking: unknown algorithm, missing merger weights, an
// activity type with no rating mapping, and the like. Configuration errors
// are caller faults and map to a 4xx response.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Detail)
}

// InsufficientDataError reports that a specialist has no basis to rank for
// this user: no history, no templates, an empty catalog. It is not a fault;
// the caller (or a merger) treats the specialist's contribution as empty.
type InsufficientDataError struct {
	Algorithm AlgorithmKind
	Reason    string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: %s", e.Algorithm, e.Reason)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsInsufficientData reports whether err means a specialist simply has
// nothing to say for this user.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}
