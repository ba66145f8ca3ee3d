// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/selvedge/tessera/internal/engine"
)

const testYAML = `
server:
  port: 9090
storage:
  backend: memory
tenants:
  acme:
    activities:
      view: {stars: 3}
      purchase: {stars: 5, blocking: true}
    attributes:
      genre: {kind: list, similarity_weight: 2, context_filter: true}
    weights:
      HRVoting: {POP: 1, PBCF: 2, CB: 1, UBCF: 1}
      HRChunks: {POP: 1, PBCF: 1, CB: 1, UBCF: 1}
      HRRandom: {POP: 1, PBCF: 1, CB: 1, UBCF: 1}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLayers(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, testYAML))
	t.Setenv("TESSERA_SERVER_HOST", "127.0.0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load unexpected error: %v", err)
	}

	// File overrides the default port; env overrides the default host.
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want env override", cfg.Server.Host)
	}
	// Untouched defaults survive layering.
	if cfg.Cache.Capacity != 4096 {
		t.Errorf("Cache.Capacity = %d, want default 4096", cfg.Cache.Capacity)
	}

	tc, ok := cfg.Tenants["acme"]
	if !ok {
		t.Fatal("tenant acme missing after load")
	}
	if tc.Activities["purchase"].Stars != 5 || !tc.Activities["purchase"].Blocking {
		t.Errorf("purchase mapping = %+v", tc.Activities["purchase"])
	}
	// Normalize filled the thresholds during validation.
	if tc.Thresholds.MinConservative != 4 || tc.Thresholds.RiskFactor != 0.3 {
		t.Errorf("thresholds not normalized: %+v", tc.Thresholds)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no tenants", yaml: "server:\n  port: 8080\n"},
		{
			name: "stars out of range",
			yaml: `
tenants:
  acme:
    activities:
      view: {stars: 9}
`,
		},
		{
			name: "badger without path",
			yaml: `
storage:
  backend: badger
  path: ""
tenants:
  acme:
    activities:
      view: {stars: 3}
`,
		},
		{
			name: "incomplete merger weights",
			yaml: `
tenants:
  acme:
    activities:
      view: {stars: 3}
    weights:
      HRVoting: {POP: 1}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigPathEnvVar, writeConfig(t, tt.yaml))
			if _, err := Load(); err == nil {
				t.Error("Load accepted invalid configuration")
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TESSERA_SERVER_PORT", "server.port"},
		{"TESSERA_STORAGE_SYNC_WRITES", "storage.sync_writes"},
		{"TESSERA_LOGGING_LEVEL", "logging.level"},
		{"TESSERA_INGEST_FLUSH_INTERVAL", "ingest.flush_interval"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, testYAML))
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(cfg)
	if _, err := reg.Tenant("acme"); err != nil {
		t.Errorf("Tenant(acme) unexpected error: %v", err)
	}
	if _, err := reg.Tenant("globex"); !errors.Is(err, engine.ErrUnknownTenant) {
		t.Errorf("Tenant(globex) error = %v, want ErrUnknownTenant", err)
	}
	if names := reg.Tenants(); len(names) != 1 || names[0] != "acme" {
		t.Errorf("Tenants() = %v", names)
	}
}
