// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package oracle

import (
	"context"

	"github.com/tomtom215/suggestus/internal/models"
)

// likedThreshold is the minimum rating for an item to count toward a user's
// genre preference profile.
const likedThreshold = 4.0

// ContentBased recommends items whose genres overlap the genres of items the
// user has rated highly. A user's preference profile is the set of genres
// across their liked items; candidates are scored by Jaccard similarity
// between their genre list and that set.
type ContentBased struct {
	base

	catalog map[int]models.Item

	// Fitted model
	userLiked map[int][]int            // user -> liked item IDs
	userSeen  map[int]map[int]struct{} // user -> all rated item IDs
}

// NewContentBased creates a new content-similarity oracle.
func NewContentBased(catalog map[int]models.Item) *ContentBased {
	return &ContentBased{
		base:    newBase("content_based"),
		catalog: catalog,
	}
}

// Fit records which items each user liked so genre profiles can be built at
// prediction time.
func (c *ContentBased) Fit(ctx context.Context, ratings []models.Rating) error {
	userLiked := make(map[int][]int)
	userSeen := make(map[int]map[int]struct{})

	for i := range ratings {
		if contextCancelled(ctx) {
			return ctx.Err()
		}
		r := &ratings[i]

		if userSeen[r.UserID] == nil {
			userSeen[r.UserID] = make(map[int]struct{})
		}
		userSeen[r.UserID][r.ItemID] = struct{}{}

		if r.Rating >= likedThreshold {
			userLiked[r.UserID] = append(userLiked[r.UserID], r.ItemID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.userLiked = userLiked
	c.userSeen = userSeen
	c.markFitted()
	return nil
}

// AddLiked incorporates a single high rating without a full refit. The
// oracle is marked fitted once it holds any signal so incremental feedback
// alone can bring a cold-started model online.
func (c *ContentBased) AddLiked(userID, itemID int, rating float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userSeen == nil {
		c.userSeen = make(map[int]map[int]struct{})
	}
	if c.userSeen[userID] == nil {
		c.userSeen[userID] = make(map[int]struct{})
	}
	c.userSeen[userID][itemID] = struct{}{}

	if rating >= likedThreshold {
		if c.userLiked == nil {
			c.userLiked = make(map[int][]int)
		}
		c.userLiked[userID] = append(c.userLiked[userID], itemID)
	}
	c.markFitted()
}

// Predict scores catalog items by genre overlap with the user's liked items.
func (c *ContentBased) Predict(ctx context.Context, userID, n int, excludeSeen bool, history []int) ([]Prediction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fitted {
		return nil, nil
	}

	liked := c.userLiked[userID]
	if len(liked) == 0 {
		// No positive signal to build a genre profile from.
		return nil, nil
	}

	profile := make(map[string]struct{})
	for _, itemID := range liked {
		for _, g := range c.catalog[itemID].Genres {
			profile[g] = struct{}{}
		}
	}
	if len(profile) == 0 {
		return nil, nil
	}

	seen := excludeSet(history)
	if excludeSeen {
		for itemID := range c.userSeen[userID] {
			seen[itemID] = struct{}{}
		}
	}

	preds := make([]Prediction, 0, n)
	for itemID, item := range c.catalog {
		if contextCancelled(ctx) {
			return nil, ctx.Err()
		}
		if _, ok := seen[itemID]; ok && excludeSeen {
			continue
		}

		score := jaccardSimilarity(item.Genres, profile)
		if score <= 0 {
			continue
		}

		preds = append(preds, Prediction{
			ItemID: itemID,
			Title:  item.Title,
			Score:  score,
			Reason: "matches your genre preferences",
		})
	}

	return topN(preds, n), nil
}
