// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package oracle

import (
	"context"
	"fmt"

	"github.com/tomtom215/suggestus/internal/models"
)

// HybridWeights control how much each underlying strategy contributes to the
// blended score.
type HybridWeights struct {
	Collaborative float64 `koanf:"collaborative"`
	ContentBased  float64 `koanf:"content_based"`
	Popularity    float64 `koanf:"popularity"`
}

// DefaultHybridWeights favors personalization over the popularity baseline.
func DefaultHybridWeights() HybridWeights {
	return HybridWeights{
		Collaborative: 0.5,
		ContentBased:  0.3,
		Popularity:    0.2,
	}
}

// Hybrid blends collaborative, content-based, and popularity scores with
// fixed weights. Strategies that cannot score a user (cold start, no genre
// profile) simply contribute nothing, so the blend degrades gracefully toward
// popularity for new users.
type Hybrid struct {
	base

	weights       HybridWeights
	collaborative *Collaborative
	contentBased  *ContentBased
	popularity    *Popularity
}

// NewHybrid creates a hybrid oracle over the three underlying strategies.
func NewHybrid(weights HybridWeights, cf *Collaborative, cb *ContentBased, pop *Popularity) *Hybrid {
	if weights == (HybridWeights{}) {
		weights = DefaultHybridWeights()
	}
	return &Hybrid{
		base:          newBase("hybrid"),
		weights:       weights,
		collaborative: cf,
		contentBased:  cb,
		popularity:    pop,
	}
}

// Fit fits all three underlying strategies on the same ratings.
func (h *Hybrid) Fit(ctx context.Context, ratings []models.Rating) error {
	if err := h.collaborative.Fit(ctx, ratings); err != nil {
		return fmt.Errorf("fit collaborative: %w", err)
	}
	if err := h.contentBased.Fit(ctx, ratings); err != nil {
		return fmt.Errorf("fit content-based: %w", err)
	}
	if err := h.popularity.Fit(ctx, ratings); err != nil {
		return fmt.Errorf("fit popularity: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.markFitted()
	return nil
}

// Predict blends the underlying strategies' scores. Each strategy is asked
// for an over-fetched list so the blend has enough overlap to rank.
func (h *Hybrid) Predict(ctx context.Context, userID, n int, excludeSeen bool, history []int) ([]Prediction, error) {
	type weighted struct {
		oracle Oracle
		weight float64
	}

	strategies := []weighted{
		{h.collaborative, h.weights.Collaborative},
		{h.contentBased, h.weights.ContentBased},
		{h.popularity, h.weights.Popularity},
	}

	// Over-fetch so items scored by only one strategy still compete.
	fetchN := n * 3

	scores := make(map[int]float64)
	titles := make(map[int]string)
	for _, s := range strategies {
		if s.weight <= 0 || !s.oracle.IsReady() {
			continue
		}
		preds, err := s.oracle.Predict(ctx, userID, fetchN, excludeSeen, history)
		if err != nil {
			return nil, fmt.Errorf("hybrid %s: %w", s.oracle.Name(), err)
		}
		for _, p := range preds {
			scores[p.ItemID] += s.weight * p.Score
			if p.Title != "" {
				titles[p.ItemID] = p.Title
			}
		}
	}

	ids := make([]int, 0, len(scores))
	for itemID := range scores {
		ids = append(ids, itemID)
	}
	sortByScore(ids, scores)

	if len(ids) > n {
		ids = ids[:n]
	}

	preds := make([]Prediction, 0, len(ids))
	for _, itemID := range ids {
		preds = append(preds, Prediction{
			ItemID: itemID,
			Title:  titles[itemID],
			Score:  scores[itemID],
			Reason: "blended strategies",
		})
	}
	return preds, nil
}

// Collaborative exposes the underlying collaborative strategy for
// sliding-window refits.
func (h *Hybrid) Collaborative() *Collaborative { return h.collaborative }

// ContentBased exposes the underlying content strategy for incremental
// updates.
func (h *Hybrid) ContentBased() *ContentBased { return h.contentBased }

// Popularity exposes the underlying popularity strategy for incremental
// counter updates.
func (h *Hybrid) Popularity() *Popularity { return h.popularity }
