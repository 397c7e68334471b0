// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package oracle implements the scoring strategies behind candidate
// retrieval: popularity, collaborative filtering, content similarity, and a
// hybrid blend of the three.
//
// Each strategy implements the Oracle interface. Strategies are consumed as
// black boxes by the candidate generator; an unfitted or failing strategy is
// skipped, never fatal.
//
// # Thread Safety
//
// All oracles are safe for concurrent use. Fitting acquires an exclusive
// lock while prediction uses a shared lock.
package oracle

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/suggestus/internal/models"
)

// Prediction is a single scored item returned by an oracle.
type Prediction struct {
	ItemID int     `json:"item_id"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// Oracle is the scoring capability consumed by the candidate generator:
// given a user, return a ranked item list using one specific strategy.
type Oracle interface {
	// Name returns the strategy identifier ("popularity", "collaborative",
	// "content_based", "hybrid").
	Name() string

	// IsReady reports whether the oracle has been fitted and can predict.
	// Callers must check this before calling Predict.
	IsReady() bool

	// Predict returns up to n items ranked by descending score. Items in
	// history are excluded when excludeSeen is true.
	Predict(ctx context.Context, userID, n int, excludeSeen bool, history []int) ([]Prediction, error)
}

// Trainable is an oracle that can be (re)fitted on rating data. The online
// learner uses this to apply incremental updates.
type Trainable interface {
	Oracle

	// Fit replaces the oracle's model with one fitted on the given ratings.
	Fit(ctx context.Context, ratings []models.Rating) error
}

// base provides shared fitted-state bookkeeping for all oracles.
type base struct {
	name       string
	fitted     bool
	version    int
	lastFitted time.Time
	mu         sync.RWMutex
}

func newBase(name string) base {
	return base{name: name}
}

// Name returns the strategy identifier.
func (b *base) Name() string {
	return b.name
}

// IsReady reports whether the oracle has been fitted.
func (b *base) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fitted
}

// Version returns the fit generation, incremented on each Fit.
func (b *base) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// markFitted updates the fitted state. Must be called with mu held.
func (b *base) markFitted() {
	b.fitted = true
	b.version++
	b.lastFitted = time.Now()
}

// excludeSet builds a lookup set from a history slice.
func excludeSet(history []int) map[int]struct{} {
	set := make(map[int]struct{}, len(history))
	for _, id := range history {
		set[id] = struct{}{}
	}
	return set
}

// topN sorts predictions by descending score and truncates to n.
// Ties break by ascending item ID for determinism.
func topN(preds []Prediction, n int) []Prediction {
	sortPredictions(preds)
	if len(preds) > n {
		preds = preds[:n]
	}
	return preds
}

func sortPredictions(preds []Prediction) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Score != preds[j].Score {
			return preds[i].Score > preds[j].Score
		}
		return preds[i].ItemID < preds[j].ItemID
	})
}

// sortByScore orders item IDs by descending score, breaking ties by
// ascending item ID for determinism.
func sortByScore(ids []int, scores map[int]float64) {
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
}

// cosineSimilarity computes cosine similarity between two sparse vectors
// keyed by user ID.
func cosineSimilarity(a, b map[int]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller map for the dot product.
	if len(b) < len(a) {
		a, b = b, a
	}

	var dot float64
	for k, av := range a {
		if bv, ok := b[k]; ok {
			dot += av * bv
		}
	}
	if dot == 0 {
		return 0
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccardSimilarity computes Jaccard similarity between two string sets.
func jaccardSimilarity(a []string, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for _, s := range a {
		if _, ok := b[s]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// contextCancelled checks if the context has been canceled.
func contextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Ensure all oracles implement the interfaces.
var (
	_ Trainable = (*Popularity)(nil)
	_ Trainable = (*Collaborative)(nil)
	_ Trainable = (*ContentBased)(nil)
	_ Trainable = (*Hybrid)(nil)
)
