// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/suggestus/internal/models"
)

// Memory implements Store with in-process maps. Used by tests and by
// deployments that do not need durable event history.
type Memory struct {
	mu       sync.RWMutex
	events   []models.Event
	profiles map[int]models.UserProfile
	items    map[int]models.Item
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[int]models.UserProfile),
		items:    make(map[int]models.Item),
	}
}

// SaveEvent appends the event.
func (m *Memory) SaveEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// RatingsByUser returns the user's ratings in event order.
func (m *Memory) RatingsByUser(_ context.Context, userID int) ([]models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ratings []models.Rating
	for i := range m.events {
		e := &m.events[i]
		if e.UserID == userID && e.IsRating() {
			ratings = append(ratings, models.Rating{
				UserID:    e.UserID,
				ItemID:    e.ItemID,
				Rating:    e.RatingValue(),
				Timestamp: e.Timestamp,
			})
		}
	}
	return ratings, nil
}

// RecentRatings returns up to limit ratings, most recent first.
func (m *Memory) RecentRatings(_ context.Context, limit int) ([]models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ratings []models.Rating
	for i := range m.events {
		e := &m.events[i]
		if e.IsRating() {
			ratings = append(ratings, models.Rating{
				UserID:    e.UserID,
				ItemID:    e.ItemID,
				Rating:    e.RatingValue(),
				Timestamp: e.Timestamp,
			})
		}
	}

	sort.SliceStable(ratings, func(i, j int) bool {
		return ratings[i].Timestamp.After(ratings[j].Timestamp)
	})
	if limit > 0 && len(ratings) > limit {
		ratings = ratings[:limit]
	}
	return ratings, nil
}

// UserHistory returns distinct item IDs the user has interacted with.
func (m *Memory) UserHistory(_ context.Context, userID int) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int]struct{})
	var items []int
	for i := range m.events {
		e := &m.events[i]
		if e.UserID != userID {
			continue
		}
		if _, ok := seen[e.ItemID]; ok {
			continue
		}
		seen[e.ItemID] = struct{}{}
		items = append(items, e.ItemID)
	}
	return items, nil
}

// Profile returns the user's profile, or ErrNotFound.
func (m *Memory) Profile(_ context.Context, userID int) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// SaveProfile inserts or replaces the user's profile.
func (m *Memory) SaveProfile(_ context.Context, profile *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = *profile
	return nil
}

// UserStats returns the user's rating aggregate.
func (m *Memory) UserStats(ctx context.Context, userID int) (models.Stats, error) {
	ratings, err := m.RatingsByUser(ctx, userID)
	if err != nil {
		return models.Stats{}, err
	}
	return aggregate(ratings), nil
}

// ItemStats returns the item's rating aggregate.
func (m *Memory) ItemStats(_ context.Context, itemID int) (models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ratings []models.Rating
	for i := range m.events {
		e := &m.events[i]
		if e.ItemID == itemID && e.IsRating() {
			ratings = append(ratings, models.Rating{Rating: e.RatingValue()})
		}
	}
	return aggregate(ratings), nil
}

func aggregate(ratings []models.Rating) models.Stats {
	if len(ratings) == 0 {
		return models.Stats{}
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Rating
	}
	return models.Stats{
		AvgRating: sum / float64(len(ratings)),
		Count:     len(ratings),
	}
}

// Items returns a copy of the catalog.
func (m *Memory) Items(_ context.Context) (map[int]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make(map[int]models.Item, len(m.items))
	for id, item := range m.items {
		items[id] = item
	}
	return items, nil
}

// SaveItem inserts or replaces a catalog item.
func (m *Memory) SaveItem(_ context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = *item
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
