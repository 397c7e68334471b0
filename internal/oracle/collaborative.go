// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package oracle

import (
	"context"
	"sort"

	"github.com/tomtom215/suggestus/internal/models"
)

// Collaborative implements item-based collaborative filtering. Each item is
// represented as a sparse vector of user ratings; a candidate item's score
// for a user is the similarity-weighted average of the user's own ratings:
//
//	score(u, i) = sum_j sim(i, j) * r(u, j) / sum_j |sim(i, j)|
//
// over the user's rated items j. Scores are mapped to [0, 1].
//
// The fitted rating window is retained and exposed so the online learner can
// refit on a sliding window of old plus new ratings.
type Collaborative struct {
	base

	catalog map[int]models.Item

	// Fitted model
	window      []models.Rating
	itemVectors map[int]map[int]float64 // item -> user -> rating
	userRatings map[int]map[int]float64 // user -> item -> rating
}

// NewCollaborative creates a new collaborative-filtering oracle.
func NewCollaborative(catalog map[int]models.Item) *Collaborative {
	return &Collaborative{
		base:    newBase("collaborative"),
		catalog: catalog,
	}
}

// Fit builds the rating matrix from the given window of ratings.
func (c *Collaborative) Fit(ctx context.Context, ratings []models.Rating) error {
	itemVectors := make(map[int]map[int]float64)
	userRatings := make(map[int]map[int]float64)

	for i := range ratings {
		if contextCancelled(ctx) {
			return ctx.Err()
		}
		r := &ratings[i]

		if itemVectors[r.ItemID] == nil {
			itemVectors[r.ItemID] = make(map[int]float64)
		}
		itemVectors[r.ItemID][r.UserID] = r.Rating

		if userRatings[r.UserID] == nil {
			userRatings[r.UserID] = make(map[int]float64)
		}
		userRatings[r.UserID][r.ItemID] = r.Rating
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = make([]models.Rating, len(ratings))
	copy(c.window, ratings)
	c.itemVectors = itemVectors
	c.userRatings = userRatings
	c.markFitted()
	return nil
}

// Window returns a copy of the rating window the model was fitted on.
func (c *Collaborative) Window() []models.Rating {
	c.mu.RLock()
	defer c.mu.RUnlock()

	window := make([]models.Rating, len(c.window))
	copy(window, c.window)
	return window
}

// Predict scores unrated items for the user by item-item similarity.
func (c *Collaborative) Predict(ctx context.Context, userID, n int, excludeSeen bool, history []int) ([]Prediction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fitted {
		return nil, nil
	}

	rated := c.userRatings[userID]
	if len(rated) == 0 {
		// Cold user: nothing to personalize on.
		return nil, nil
	}

	seen := excludeSet(history)
	if excludeSeen {
		for itemID := range rated {
			seen[itemID] = struct{}{}
		}
	}

	scores := make(map[int]float64)
	for itemID, vector := range c.itemVectors {
		if contextCancelled(ctx) {
			return nil, ctx.Err()
		}
		if _, ok := seen[itemID]; ok && excludeSeen {
			continue
		}

		var weighted, simSum float64
		for ratedID, rating := range rated {
			if ratedID == itemID {
				continue
			}
			sim := cosineSimilarity(vector, c.itemVectors[ratedID])
			if sim <= 0 {
				continue
			}
			weighted += sim * rating
			simSum += sim
		}
		if simSum == 0 {
			continue
		}

		// Predicted rating on the 1-5 scale, mapped to [0, 1].
		predicted := weighted / simSum
		scores[itemID] = (predicted - 1) / 4
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
			Title:  c.catalog[itemID].Title,
			Score:  scores[itemID],
			Reason: "users with similar taste",
		})
	}

	return preds, nil
}

// TrimWindow returns the most recent max ratings from the combined old and
// new windows, newest first by timestamp. Used for sliding-window refits.
func TrimWindow(old, fresh []models.Rating, max int) []models.Rating {
	combined := make([]models.Rating, 0, len(old)+len(fresh))
	combined = append(combined, old...)
	combined = append(combined, fresh...)

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Timestamp.After(combined[j].Timestamp)
	})

	if max > 0 && len(combined) > max {
		combined = combined[:max]
	}
	return combined
}
