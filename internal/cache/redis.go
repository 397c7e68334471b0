// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// externalStore is the external cache tier. It may be absent (nil) or
// unavailable at runtime; callers treat any error as a miss.
type externalStore interface {
	get(ctx context.Context, key string) (Entry, bool, error)
	set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	deletePattern(ctx context.Context, pattern string) (int, error)
	ping(ctx context.Context) error
	close() error
}

// RedisConfig holds connection settings for the external cache tier.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Empty disables the
	// external tier entirely.
	Addr string `koanf:"addr"`

	// Password for AUTH, if required.
	Password string `koanf:"password"`

	// DB is the Redis logical database number.
	DB int `koanf:"db"`

	// DialTimeout bounds connection establishment. Default: 2s
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// redisStore implements externalStore on go-redis.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(cfg RedisConfig) *redisStore {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	return &redisStore{client: client}
}

func (r *redisStore) get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (r *redisStore) set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// deletePattern removes all keys matching pattern using SCAN, never KEYS, so
// invalidation does not block the server.
func (r *redisStore) deletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("redis del %q: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, nil
}

func (r *redisStore) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisStore) close() error {
	return r.client.Close()
}
