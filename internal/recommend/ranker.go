// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
)

// neutralRating is the default user/item average when no statistics exist.
// Midpoint of the 1-5 scale biased slightly positive, matching the global
// rating distribution better than a flat 3.0.
const neutralRating = 3.5

// Model scores a feature vector as a probability of positive interaction.
// Training happens offline; only the fitted artifact is consumed here.
type Model interface {
	// IsReady reports whether the model can score.
	IsReady() bool

	// PredictProba returns the probability of a positive interaction for
	// the feature vector.
	PredictProba(features []float64) (float64, error)
}

// featureCount is the length of the ranking feature vector.
const featureCount = 9

// features assembles the per-(user, candidate) feature vector:
// user rating average and count, item rating average and count, release
// year, the candidate's initial score, the retrieval-channel trust weight,
// and request-time context (hour of day, weekend flag).
func features(c *models.Candidate, userStats, itemStats models.Stats, year int, now time.Time) []float64 {
	userAvg, userCount := statsOrNeutral(userStats)
	itemAvg, itemCount := statsOrNeutral(itemStats)

	weekend := 0.0
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 1.0
	}

	return []float64{
		userAvg,
		userCount,
		itemAvg,
		itemCount,
		float64(year),
		c.InitialScore,
		c.Source.Weight(),
		float64(now.Hour()),
		weekend,
	}
}

// statsOrNeutral substitutes the neutral default for missing statistics so
// the feature vector never carries nulls.
func statsOrNeutral(s models.Stats) (avg, count float64) {
	if s.Count == 0 {
		return neutralRating, 0
	}
	return s.AvgRating, float64(s.Count)
}

// Ranker orders candidates by a trained scoring model, falling back to
// initial-score ordering when no model is available. Ranking never fails the
// request path.
type Ranker struct {
	model   Model // may be nil
	catalog map[int]models.Item
	logger  zerolog.Logger
}

// NewRanker creates a ranker. A nil model means every request uses the
// initial-score fallback.
func NewRanker(model Model, catalog map[int]models.Item, logger zerolog.Logger) *Ranker {
	return &Ranker{
		model:   model,
		catalog: catalog,
		logger:  logger.With().Str("component", "ranker").Logger(),
	}
}

// Rank scores and sorts candidates by descending final score. On any model
// failure the candidates are ordered by descending initial score instead.
func (r *Ranker) Rank(ctx context.Context, userID int, candidates []models.Candidate, userStats models.Stats, itemStats map[int]models.Stats) []models.RankedCandidate {
	if r.model == nil || !r.model.IsReady() {
		return r.fallback(candidates, "model not available")
	}

	now := time.Now()
	ranked := make([]models.RankedCandidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]

		if err := ctx.Err(); err != nil {
			return r.fallback(candidates, "request cancelled")
		}

		f := features(c, userStats, itemStats[c.ItemID], r.catalog[c.ItemID].Year, now)
		score, err := r.model.PredictProba(f)
		if err != nil {
			r.logger.Warn().Err(err).Int("user_id", userID).Int("item_id", c.ItemID).
				Msg("model scoring failed, falling back to initial scores")
			return r.fallback(candidates, "scoring error")
		}

		ranked = append(ranked, models.RankedCandidate{
			Candidate:          *c,
			FinalScore:         score,
			RankerContribution: score - c.InitialScore,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked
}

// fallback orders candidates by descending initial score.
func (r *Ranker) fallback(candidates []models.Candidate, reason string) []models.RankedCandidate {
	metrics.RankerFallbacks.Inc()
	r.logger.Debug().Str("reason", reason).Msg("using initial-score ordering")

	ranked := make([]models.RankedCandidate, 0, len(candidates))
	for i := range candidates {
		ranked = append(ranked, models.RankedCandidate{
			Candidate:          candidates[i],
			FinalScore:         candidates[i].InitialScore,
			RankerContribution: 0,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked
}
