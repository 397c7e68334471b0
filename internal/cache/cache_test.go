// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/models"
)

func testCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c := New(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testRecs(ids ...int) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(ids))
	for i, id := range ids {
		recs = append(recs, models.Recommendation{
			ItemID: id,
			Score:  1 - float64(i)*0.1,
		})
	}
	return recs
}

func TestCacheSetThenGet(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := context.Background()

	want := testRecs(1, 2, 3)
	if !c.Set(ctx, 1, "hybrid", want, 3, 0) {
		t.Fatal("Set() = false")
	}

	got, ok := c.Get(ctx, 1, "hybrid", 3)
	if !ok {
		t.Fatal("Get() miss after Set()")
	}
	if len(got) != len(want) {
		t.Fatalf("Get() returned %d recs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ItemID != want[i].ItemID {
			t.Errorf("rec[%d].ItemID = %d, want %d", i, got[i].ItemID, want[i].ItemID)
		}
	}
}

func TestCacheKeyDistinctByCount(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", testRecs(1, 2, 3), 3, 0)

	if _, ok := c.Get(ctx, 1, "hybrid", 5); ok {
		t.Error("Get() with different n hit the n=3 entry")
	}
	if _, ok := c.Get(ctx, 1, "popularity", 3); ok {
		t.Error("Get() with different model_type hit the hybrid entry")
	}
	if _, ok := c.Get(ctx, 2, "hybrid", 3); ok {
		t.Error("Get() for different user hit user 1's entry")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", testRecs(1), 1, 10*time.Millisecond)

	if _, ok := c.Get(ctx, 1, "hybrid", 1); !ok {
		t.Fatal("Get() miss before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, 1, "hybrid", 1); ok {
		t.Error("Get() hit after expiry")
	}
}

func TestCacheInvalidateUser(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", testRecs(1), 10, 0)
	c.Set(ctx, 1, "popularity", testRecs(2), 5, 0)
	c.Set(ctx, 2, "hybrid", testRecs(3), 10, 0)

	if !c.Invalidate(ctx, 1) {
		t.Fatal("Invalidate() = false")
	}

	if _, ok := c.Get(ctx, 1, "hybrid", 10); ok {
		t.Error("user 1 hybrid entry survived invalidation")
	}
	if _, ok := c.Get(ctx, 1, "popularity", 5); ok {
		t.Error("user 1 popularity entry survived invalidation")
	}
	if _, ok := c.Get(ctx, 2, "hybrid", 10); !ok {
		t.Error("user 2 entry was removed by user 1's invalidation")
	}
}

func TestMemoryStoreInsertionOrderEviction(t *testing.T) {
	m := newMemoryStore(2)
	entry := func(id int) Entry {
		return Entry{
			Recommendations: testRecs(id),
			ExpiresAt:       time.Now().Add(time.Hour),
		}
	}

	m.set("a", entry(1))
	m.set("b", entry(2))

	// Re-reading "a" must not promote it; eviction is insertion-order.
	if _, ok := m.get("a"); !ok {
		t.Fatal("get(a) miss")
	}

	m.set("c", entry(3))

	if _, ok := m.get("a"); ok {
		t.Error("oldest-inserted entry a survived eviction")
	}
	if _, ok := m.get("b"); !ok {
		t.Error("entry b was evicted out of insertion order")
	}
	if _, ok := m.get("c"); !ok {
		t.Error("newly inserted entry c missing")
	}
}

func TestMemoryStoreOverwriteKeepsPosition(t *testing.T) {
	m := newMemoryStore(2)
	entry := Entry{ExpiresAt: time.Now().Add(time.Hour)}

	m.set("a", entry)
	m.set("b", entry)
	m.set("a", entry) // overwrite, still oldest
	m.set("c", entry)

	if _, ok := m.get("a"); ok {
		t.Error("overwritten entry a should still be oldest and evicted")
	}
}

func TestCacheStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryEntries = 50
	c := testCache(t, cfg)
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", testRecs(1), 10, 0)
	c.Get(ctx, 1, "hybrid", 10) // hit
	c.Get(ctx, 2, "hybrid", 10) // miss
	c.Get(ctx, 3, "hybrid", 10) // miss

	stats := c.Stats(ctx)
	if stats.RedisAvailable {
		t.Error("RedisAvailable = true with redis disabled")
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 2 {
		t.Errorf("Misses = %d, want 2", stats.Misses)
	}
	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
	if got := stats.HitRate; got < 0.33 || got > 0.34 {
		t.Errorf("HitRate = %v, want ~0.333", got)
	}
	if stats.MaxMemoryCacheSize != 50 {
		t.Errorf("MaxMemoryCacheSize = %d, want 50", stats.MaxMemoryCacheSize)
	}
	if stats.MemoryCacheSize != 1 {
		t.Errorf("MemoryCacheSize = %d, want 1", stats.MemoryCacheSize)
	}
}

// fakeExternal simulates the external tier for failure-path tests.
type fakeExternal struct {
	entries map[string]Entry
	failing bool
}

func (f *fakeExternal) get(_ context.Context, key string) (Entry, bool, error) {
	if f.failing {
		return Entry{}, false, errors.New("connection refused")
	}
	e, ok := f.entries[key]
	return e, ok, nil
}

func (f *fakeExternal) set(_ context.Context, key string, entry Entry, _ time.Duration) error {
	if f.failing {
		return errors.New("connection refused")
	}
	f.entries[key] = entry
	return nil
}

func (f *fakeExternal) deletePattern(_ context.Context, pattern string) (int, error) {
	if f.failing {
		return 0, errors.New("connection refused")
	}
	prefix := strings.TrimSuffix(pattern, "*")
	deleted := 0
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeExternal) ping(context.Context) error {
	if f.failing {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeExternal) close() error { return nil }

func TestCacheDegradesWhenExternalTierFails(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ext := &fakeExternal{entries: make(map[string]Entry), failing: true}
	c.external = ext
	ctx := context.Background()

	// Set must still succeed via the memory tier.
	if !c.Set(ctx, 1, "hybrid", testRecs(1), 10, 0) {
		t.Fatal("Set() = false with failing external tier")
	}
	if _, ok := c.Get(ctx, 1, "hybrid", 10); !ok {
		t.Error("Get() miss: memory tier did not serve while external failing")
	}

	// Recovery: external tier serves again.
	ext.failing = false
	c.Set(ctx, 2, "hybrid", testRecs(2), 10, 0)
	if _, ok := ext.entries[fmt.Sprintf("rec:user:%d:model:hybrid:n:%d", 2, 10)]; !ok {
		t.Error("external tier not written after recovery")
	}
}

func TestCacheExternalTierPreferred(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ext := &fakeExternal{entries: make(map[string]Entry)}
	c.external = ext
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", testRecs(7), 10, 0)

	// Remove from memory; the external tier must still serve the entry.
	c.memory.deletePrefix("rec:user:1:")
	got, ok := c.Get(ctx, 1, "hybrid", 10)
	if !ok {
		t.Fatal("Get() miss: external tier not consulted")
	}
	if got[0].ItemID != 7 {
		t.Errorf("rec ItemID = %d, want 7", got[0].ItemID)
	}
}
