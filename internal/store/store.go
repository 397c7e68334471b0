// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package store persists interaction events, user profiles, and the item
// catalog. The DuckDB implementation is the production store; the in-memory
// implementation backs tests and catalog-only deployments.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/suggestus/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary for the ingestion and serving paths.
type Store interface {
	// SaveEvent persists an interaction event.
	SaveEvent(ctx context.Context, event *models.Event) error

	// RatingsByUser returns all of the user's ratings, used for the full
	// average recomputation on profile updates.
	RatingsByUser(ctx context.Context, userID int) ([]models.Rating, error)

	// RecentRatings returns up to limit ratings, most recent first. Used
	// for model fitting.
	RecentRatings(ctx context.Context, limit int) ([]models.Rating, error)

	// UserHistory returns the distinct item IDs the user has interacted
	// with, for seen-item exclusion.
	UserHistory(ctx context.Context, userID int) ([]int, error)

	// Profile returns the user's profile, or ErrNotFound.
	Profile(ctx context.Context, userID int) (*models.UserProfile, error)

	// SaveProfile inserts or replaces the user's profile.
	SaveProfile(ctx context.Context, profile *models.UserProfile) error

	// UserStats returns the user's rating aggregate. A user with no
	// ratings yields a zero-count aggregate, not ErrNotFound.
	UserStats(ctx context.Context, userID int) (models.Stats, error)

	// ItemStats returns the item's rating aggregate.
	ItemStats(ctx context.Context, itemID int) (models.Stats, error)

	// Items returns the full item catalog keyed by item ID.
	Items(ctx context.Context) (map[int]models.Item, error)

	// SaveItem inserts or replaces a catalog item.
	SaveItem(ctx context.Context, item *models.Item) error

	// Close releases the store's resources.
	Close() error
}
