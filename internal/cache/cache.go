// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package cache implements the two-tier recommendation cache: a Redis
// external tier (optional, authoritative when present) in front of a bounded
// in-process fallback map.
//
// Caching is best-effort. Any backing-store error degrades to a miss; the
// serving path never fails because the cache is down.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
)

// Entry is a cached recommendation list. ExpiresAt is checked on every read,
// independent of the external tier's native TTL, so a store restart that
// loses TTL metadata cannot serve stale entries.
type Entry struct {
	Recommendations []models.Recommendation `json:"recommendations"`
	CachedAt        time.Time               `json:"cached_at"`
	ExpiresAt       time.Time               `json:"expires_at"`
}

func (e *Entry) valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Config holds cache configuration.
type Config struct {
	// DefaultTTL applies when Set is called without an explicit TTL.
	// Default: 5m
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// MaxMemoryEntries bounds the in-process fallback tier. Default: 1000
	MaxMemoryEntries int `koanf:"max_memory_entries"`

	// Redis configures the external tier. An empty Addr disables it.
	Redis RedisConfig `koanf:"redis"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       5 * time.Minute,
		MaxMemoryEntries: 1000,
	}
}

// Stats is the cache statistics snapshot exposed over the API.
type Stats struct {
	RedisAvailable     bool    `json:"redis_available"`
	MemoryCacheSize    int     `json:"memory_cache_size"`
	MaxMemoryCacheSize int     `json:"max_memory_cache_size"`
	DefaultTTLSeconds  float64 `json:"default_ttl_seconds"`
	Hits               uint64  `json:"hits"`
	Misses             uint64  `json:"misses"`
	TotalRequests      uint64  `json:"total_requests"`
	HitRate            float64 `json:"hit_rate"`
}

// Cache is the two-tier recommendation cache.
type Cache struct {
	cfg      Config
	external externalStore // nil when the external tier is disabled
	memory   *memoryStore
	logger   zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache from configuration. If a Redis address is configured
// but unreachable, the cache still starts and serves from the fallback tier.
func New(cfg Config, logger zerolog.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.MaxMemoryEntries <= 0 {
		cfg.MaxMemoryEntries = 1000
	}

	c := &Cache{
		cfg:    cfg,
		memory: newMemoryStore(cfg.MaxMemoryEntries),
		logger: logger.With().Str("component", "cache").Logger(),
	}

	if cfg.Redis.Addr != "" {
		c.external = newRedisStore(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.external.ping(ctx); err != nil {
			c.logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("redis unreachable, serving from memory tier until it recovers")
		} else {
			c.logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache tier connected")
		}
	} else {
		c.logger.Info().Msg("redis disabled, using memory tier only")
	}

	return c
}

// key builds the composite cache key. Requests that differ in any of user,
// model type, or count are distinct entries.
func key(userID int, modelType string, n int) string {
	return fmt.Sprintf("rec:user:%d:model:%s:n:%d", userID, modelType, n)
}

// userPattern matches every key derived from the user.
func userPattern(userID int) string {
	return fmt.Sprintf("rec:user:%d:*", userID)
}

// userPrefix is the memory-tier equivalent of userPattern.
func userPrefix(userID int) string {
	return fmt.Sprintf("rec:user:%d:", userID)
}

// Get returns the cached recommendation list, or ok=false on a miss. The
// external tier is consulted first; expired entries count as misses.
func (c *Cache) Get(ctx context.Context, userID int, modelType string, n int) ([]models.Recommendation, bool) {
	k := key(userID, modelType, n)
	now := time.Now()

	if c.external != nil {
		entry, found, err := c.external.get(ctx, k)
		if err != nil {
			c.logger.Debug().Err(err).Str("key", k).Msg("external tier get failed")
		} else if found && entry.valid(now) {
			c.hits.Add(1)
			metrics.CacheHits.WithLabelValues("redis").Inc()
			return entry.Recommendations, true
		}
	}

	if entry, found := c.memory.get(k); found && entry.valid(now) {
		c.hits.Add(1)
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return entry.Recommendations, true
	}

	c.misses.Add(1)
	metrics.CacheMisses.Inc()
	return nil, false
}

// Set stores the recommendation list in both tiers with the given TTL
// (DefaultTTL when ttl <= 0). Returns false only if neither tier accepted
// the entry.
func (c *Cache) Set(ctx context.Context, userID int, modelType string, recs []models.Recommendation, n int, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	now := time.Now()
	entry := Entry{
		Recommendations: recs,
		CachedAt:        now,
		ExpiresAt:       now.Add(ttl),
	}
	k := key(userID, modelType, n)

	if c.external != nil {
		if err := c.external.set(ctx, k, entry, ttl); err != nil {
			c.logger.Debug().Err(err).Str("key", k).Msg("external tier set failed")
		}
	}

	c.memory.set(k, entry)
	metrics.CacheMemoryEntries.Set(float64(c.memory.size()))
	return true
}

// Invalidate removes every cached entry for the user across all model types
// and counts.
func (c *Cache) Invalidate(ctx context.Context, userID int) bool {
	ok := true

	if c.external != nil {
		deleted, err := c.external.deletePattern(ctx, userPattern(userID))
		if err != nil {
			c.logger.Warn().Err(err).Int("user_id", userID).Msg("external tier invalidation failed")
			ok = false
		} else if deleted > 0 {
			c.logger.Debug().Int("user_id", userID).Int("deleted", deleted).
				Msg("invalidated external cache entries")
		}
	}

	removed := c.memory.deletePrefix(userPrefix(userID))
	if removed > 0 {
		metrics.CacheMemoryEntries.Set(float64(c.memory.size()))
	}

	metrics.CacheInvalidations.Inc()
	return ok
}

// Stats returns a statistics snapshot.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	redisAvailable := false
	if c.external != nil {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		redisAvailable = c.external.ping(pingCtx) == nil
	}

	return Stats{
		RedisAvailable:     redisAvailable,
		MemoryCacheSize:    c.memory.size(),
		MaxMemoryCacheSize: c.cfg.MaxMemoryEntries,
		DefaultTTLSeconds:  c.cfg.DefaultTTL.Seconds(),
		Hits:               hits,
		Misses:             misses,
		TotalRequests:      total,
		HitRate:            hitRate,
	}
}

// Close releases the external tier's connections.
func (c *Cache) Close() error {
	if c.external != nil {
		return c.external.close()
	}
	return nil
}
