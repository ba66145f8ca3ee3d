// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/selvedge/tessera/internal/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the whole configuration: struct tags first, then the
// cross-field rules the tags cannot express, then every tenant contract.
// Tenants are normalized (defaults filled in) as a side effect.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Storage.Backend == "badger" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the badger backend")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if c.Ingest.FlushInterval <= 0 {
		return fmt.Errorf("ingest.flush_interval must be positive")
	}
	if len(c.Tenants) == 0 {
		return fmt.Errorf("at least one tenant must be configured")
	}

	// Deterministic error order for multi-tenant failures.
	names := make([]string, 0, len(c.Tenants))
	for name := range c.Tenants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tc := c.Tenants[name]
		if tc == nil {
			return fmt.Errorf("tenant %q: empty configuration", name)
		}
		tc.Normalize()
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("tenant %q: %w", name, err)
		}
	}
	return nil
}

// Registry is the engine.TenantRegistry backed by the loaded configuration.
// Tenant contracts are immutable once loaded.
type Registry struct {
	tenants map[string]*engine.TenantConfig
}

// NewRegistry builds a registry from a validated configuration.
func NewRegistry(cfg *Config) *Registry {
	tenants := make(map[string]*engine.TenantConfig, len(cfg.Tenants))
	for name, tc := range cfg.Tenants {
		tenants[name] = tc
	}
	return &Registry{tenants: tenants}
}

// Tenant resolves one tenant's contract or engine.ErrUnknownTenant.
func (r *Registry) Tenant(name string) (*engine.TenantConfig, error) {
	tc, ok := r.tenants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownTenant, name)
	}
	return tc, nil
}

// Tenants returns the configured tenant names, sorted.
func (r *Registry) Tenants() []string {
	names := make([]string, 0, len(r.tenants))
	for name := range r.tenants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
