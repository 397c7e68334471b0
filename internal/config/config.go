// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then SUGGESTUS_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/experiment"
	"github.com/tomtom215/suggestus/internal/learner"
	"github.com/tomtom215/suggestus/internal/oracle"
	"github.com/tomtom215/suggestus/internal/recommend"
	"github.com/tomtom215/suggestus/internal/store"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/suggestus/config.yaml",
	"/etc/suggestus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SUGGESTUS_CONFIG_PATH"

// envPrefix namespaces environment overrides: SUGGESTUS_SERVER_PORT maps to
// server.port.
const envPrefix = "SUGGESTUS_"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port to listen on. Default: 8080
	Port int `koanf:"port"`

	// ReadTimeout bounds request reads. Default: 10s
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds response writes. Default: 30s
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig              `koanf:"server"`
	Logging     LoggingConfig             `koanf:"logging"`
	Database    store.DuckDBConfig        `koanf:"database"`
	Cache       cache.Config              `koanf:"cache"`
	Generator   recommend.GeneratorConfig `koanf:"generator"`
	Serving     recommend.ServiceConfig   `koanf:"serving"`
	Learner     learner.Config            `koanf:"learner"`
	Hybrid      oracle.HybridWeights      `koanf:"hybrid"`
	Experiments []experiment.Experiment   `koanf:"experiments"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: store.DuckDBConfig{
			Path:      "data/suggestus.db",
			MaxMemory: "512MB",
		},
		Cache:     cache.DefaultConfig(),
		Generator: recommend.DefaultGeneratorConfig(),
		Serving:   recommend.DefaultServiceConfig(),
		Learner:   learner.DefaultConfig(),
		Hybrid:    oracle.DefaultHybridWeights(),
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		// SUGGESTUS_CACHE_DEFAULT_TTL -> cache.default_ttl, with one
		// dot after the section name.
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks cross-field constraints not covered by component
// defaulting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.MaxMemoryEntries < 0 {
		return fmt.Errorf("cache.max_memory_entries must not be negative")
	}
	if c.Learner.BufferSize < 0 {
		return fmt.Errorf("learner.buffer_size must not be negative")
	}

	sum := c.Hybrid.Collaborative + c.Hybrid.ContentBased + c.Hybrid.Popularity
	if sum <= 0 {
		return fmt.Errorf("hybrid weights must have a positive sum, got %.3f", sum)
	}
	return nil
}

// Addr returns the server's listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
