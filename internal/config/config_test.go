// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("Cache.DefaultTTL = %v, want 5m", cfg.Cache.DefaultTTL)
	}
	if cfg.Learner.BufferSize != 100 {
		t.Errorf("Learner.BufferSize = %d, want 100", cfg.Learner.BufferSize)
	}
	if cfg.Serving.DefaultN != 10 {
		t.Errorf("Serving.DefaultN = %d, want 10", cfg.Serving.DefaultN)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
cache:
  max_memory_entries: 42
learner:
  buffer_size: 7
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Cache.MaxMemoryEntries != 42 {
		t.Errorf("Cache.MaxMemoryEntries = %d, want 42", cfg.Cache.MaxMemoryEntries)
	}
	if cfg.Learner.BufferSize != 7 {
		t.Errorf("Learner.BufferSize = %d, want 7", cfg.Learner.BufferSize)
	}

	// Untouched sections keep their defaults.
	if cfg.Serving.DefaultN != 10 {
		t.Errorf("Serving.DefaultN = %d, want default 10", cfg.Serving.DefaultN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SUGGESTUS_SERVER_PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from environment", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 0 }, true},
		{"negative cache size", func(c *Config) { c.Cache.MaxMemoryEntries = -1 }, true},
		{"negative buffer size", func(c *Config) { c.Learner.BufferSize = -1 }, true},
		{"zero hybrid weights", func(c *Config) {
			c.Hybrid.Collaborative = 0
			c.Hybrid.ContentBased = 0
			c.Hybrid.Popularity = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
