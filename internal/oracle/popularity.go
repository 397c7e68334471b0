// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package oracle

import (
	"context"

	"github.com/tomtom215/suggestus/internal/models"
)

// Popularity ranks items by a blend of rating volume and average rating.
// It recommends the same items to every user and serves as the baseline and
// the gap-filling retrieval source.
//
// The popularity score is computed as:
//
//	score(item) = w * count/maxCount + (1-w) * (avg-1)/4
//
// with w defaulting to 0.7 (volume dominates quality).
type Popularity struct {
	base

	countWeight float64
	catalog     map[int]models.Item

	// Fitted model
	ratingCounts map[int]int
	ratingSums   map[int]float64
	scores       map[int]float64
	ranked       []int // item IDs sorted by score descending
}

// PopularityConfig contains configuration for the popularity oracle.
type PopularityConfig struct {
	// CountWeight is the weight of rating volume vs average rating.
	// Default: 0.7
	CountWeight float64
}

// NewPopularity creates a new popularity oracle.
func NewPopularity(cfg PopularityConfig, catalog map[int]models.Item) *Popularity {
	if cfg.CountWeight <= 0 || cfg.CountWeight > 1 {
		cfg.CountWeight = 0.7
	}

	return &Popularity{
		base:         newBase("popularity"),
		countWeight:  cfg.CountWeight,
		catalog:      catalog,
		ratingCounts: make(map[int]int),
		ratingSums:   make(map[int]float64),
	}
}

// Fit computes popularity scores from ratings.
func (p *Popularity) Fit(ctx context.Context, ratings []models.Rating) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ratingCounts = make(map[int]int)
	p.ratingSums = make(map[int]float64)

	for i := range ratings {
		if contextCancelled(ctx) {
			return ctx.Err()
		}
		r := &ratings[i]
		p.ratingCounts[r.ItemID]++
		p.ratingSums[r.ItemID] += r.Rating
	}

	p.rebuildLocked()
	p.markFitted()
	return nil
}

// IncrementRatingCount incorporates a single new rating into the counters
// without a full refit. Used by the online learner's hybrid update path.
// A model that holds counters can serve, so this also marks the oracle
// fitted; a cold-started process becomes ready from live feedback alone.
func (p *Popularity) IncrementRatingCount(itemID int, rating float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ratingCounts[itemID]++
	p.ratingSums[itemID] += rating
	p.rebuildLocked()
	p.markFitted()
}

// rebuildLocked recomputes normalized scores and the ranked order.
// Must be called with mu held.
func (p *Popularity) rebuildLocked() {
	maxCount := 0
	for _, c := range p.ratingCounts {
		if c > maxCount {
			maxCount = c
		}
	}

	p.scores = make(map[int]float64, len(p.ratingCounts))
	for itemID, count := range p.ratingCounts {
		avg := p.ratingSums[itemID] / float64(count)
		normCount := float64(count) / float64(maxCount)
		normAvg := (avg - 1) / 4 // 1-5 rating scale
		p.scores[itemID] = p.countWeight*normCount + (1-p.countWeight)*normAvg
	}

	p.ranked = make([]int, 0, len(p.scores))
	for itemID := range p.scores {
		p.ranked = append(p.ranked, itemID)
	}
	sortByScore(p.ranked, p.scores)
}

// Predict returns the top-n popular items. The user ID only matters for
// history exclusion.
func (p *Popularity) Predict(ctx context.Context, userID, n int, excludeSeen bool, history []int) ([]Prediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.fitted || len(p.ranked) == 0 {
		return nil, nil
	}

	var seen map[int]struct{}
	if excludeSeen {
		seen = excludeSet(history)
	}

	preds := make([]Prediction, 0, n)
	for _, itemID := range p.ranked {
		if len(preds) >= n {
			break
		}
		if _, ok := seen[itemID]; ok {
			continue
		}
		preds = append(preds, Prediction{
			ItemID: itemID,
			Title:  p.catalog[itemID].Title,
			Score:  p.scores[itemID],
			Reason: "popularity",
		})
	}

	return preds, nil
}

// RatingCount returns the fitted rating count for an item.
func (p *Popularity) RatingCount(itemID int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ratingCounts[itemID]
}
