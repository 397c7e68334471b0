// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/suggestus/internal/models"
)

func ratingEvent(userID, itemID int, rating float64, ts time.Time) *models.Event {
	return &models.Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		ItemID:    itemID,
		Type:      models.EventRate,
		Rating:    &rating,
		Timestamp: ts,
	}
}

func viewEvent(userID, itemID int, ts time.Time) *models.Event {
	return &models.Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		ItemID:    itemID,
		Type:      models.EventView,
		Timestamp: ts,
	}
}

func TestMemoryRatingsByUser(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	mustSave(t, s, ratingEvent(1, 10, 4, now))
	mustSave(t, s, ratingEvent(1, 11, 5, now.Add(time.Minute)))
	mustSave(t, s, viewEvent(1, 12, now))
	mustSave(t, s, ratingEvent(2, 10, 2, now))

	ratings, err := s.RatingsByUser(ctx, 1)
	if err != nil {
		t.Fatalf("RatingsByUser() error = %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("RatingsByUser() len = %d, want 2", len(ratings))
	}
	for _, r := range ratings {
		if r.UserID != 1 {
			t.Errorf("rating UserID = %d, want 1", r.UserID)
		}
	}
}

func TestMemoryRecentRatingsOrderAndLimit(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		mustSave(t, s, ratingEvent(1, 10+i, 3, base.Add(time.Duration(i)*time.Hour)))
	}

	ratings, err := s.RecentRatings(ctx, 3)
	if err != nil {
		t.Fatalf("RecentRatings() error = %v", err)
	}
	if len(ratings) != 3 {
		t.Fatalf("RecentRatings() len = %d, want 3", len(ratings))
	}
	if ratings[0].ItemID != 14 {
		t.Errorf("most recent rating item = %d, want 14", ratings[0].ItemID)
	}
	for i := 1; i < len(ratings); i++ {
		if ratings[i].Timestamp.After(ratings[i-1].Timestamp) {
			t.Error("RecentRatings() not ordered most recent first")
		}
	}
}

func TestMemoryUserHistoryDistinct(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	mustSave(t, s, viewEvent(1, 10, now))
	mustSave(t, s, viewEvent(1, 10, now))
	mustSave(t, s, ratingEvent(1, 11, 4, now))

	history, err := s.UserHistory(ctx, 1)
	if err != nil {
		t.Fatalf("UserHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("UserHistory() len = %d, want 2 distinct items", len(history))
	}
}

func TestMemoryProfileRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if _, err := s.Profile(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Profile() error = %v, want ErrNotFound", err)
	}

	profile := &models.UserProfile{
		UserID:            1,
		TotalInteractions: 3,
		TotalRatings:      2,
		AvgRating:         4.5,
		FirstInteraction:  time.Now().Add(-time.Hour),
		LastInteraction:   time.Now(),
	}
	if err := s.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	got, err := s.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if got.TotalInteractions != 3 || got.AvgRating != 4.5 {
		t.Errorf("Profile() = %+v, want saved values", got)
	}
}

func TestMemoryStats(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	mustSave(t, s, ratingEvent(1, 10, 4, now))
	mustSave(t, s, ratingEvent(1, 11, 5, now))
	mustSave(t, s, ratingEvent(2, 10, 3, now))

	userStats, err := s.UserStats(ctx, 1)
	if err != nil {
		t.Fatalf("UserStats() error = %v", err)
	}
	if userStats.Count != 2 || math.Abs(userStats.AvgRating-4.5) > 1e-9 {
		t.Errorf("UserStats() = %+v, want count 2 avg 4.5", userStats)
	}

	itemStats, err := s.ItemStats(ctx, 10)
	if err != nil {
		t.Fatalf("ItemStats() error = %v", err)
	}
	if itemStats.Count != 2 || math.Abs(itemStats.AvgRating-3.5) > 1e-9 {
		t.Errorf("ItemStats() = %+v, want count 2 avg 3.5", itemStats)
	}

	// Unknown IDs yield zero-count aggregates, not errors.
	empty, err := s.UserStats(ctx, 99)
	if err != nil {
		t.Fatalf("UserStats(99) error = %v", err)
	}
	if empty.Count != 0 || empty.AvgRating != 0 {
		t.Errorf("UserStats(99) = %+v, want zero aggregate", empty)
	}
}

func TestMemoryItems(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.SaveItem(ctx, &models.Item{ID: 1, Title: "Alpha", Genres: []string{"action"}}); err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}

	items, err := s.Items(ctx)
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	if items[1].Title != "Alpha" {
		t.Errorf("item 1 title = %q, want Alpha", items[1].Title)
	}

	// Mutating the returned map must not affect the store.
	delete(items, 1)
	again, _ := s.Items(ctx)
	if _, ok := again[1]; !ok {
		t.Error("Items() returned the internal map")
	}
}

func mustSave(t *testing.T, s Store, e *models.Event) {
	t.Helper()
	if err := s.SaveEvent(context.Background(), e); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}
}
