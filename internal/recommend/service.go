// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package recommend implements the serving path: candidate retrieval with
// per-source failure isolation, learned ranking with initial-score fallback,
// and the request-level orchestration over the cache and experiment layers.
//
// The pipeline is availability-first: a request always receives some ordered
// list, worst case a static fallback, never an error from a degraded model
// or store.
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/experiment"
	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/oracle"
	"github.com/tomtom215/suggestus/internal/store"
)

// modelVersionSuffix tags responses with the serving model generation.
const modelVersionSuffix = "_v1.0"

// fallbackChain is the model resolution order when the requested strategy is
// not ready. The chain always terminates: an unfitted tail falls through to
// the static dummy list.
var fallbackChain = []string{"hybrid", "content_based", "collaborative", "popularity"}

// ServiceConfig holds serving-path settings.
type ServiceConfig struct {
	// DefaultN is the recommendation count when the request omits it.
	// Default: 10
	DefaultN int `koanf:"default_n"`

	// PoolMultiplier sizes the candidate pool relative to the requested
	// count so the ranker has items to demote. Default: 3
	PoolMultiplier int `koanf:"pool_multiplier"`

	// CacheTTL overrides the cache's default TTL for serving entries.
	// Zero uses the cache default.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// ExperimentID is the experiment consulted for per-user model
	// overrides. Empty disables experiment-driven strategy selection.
	ExperimentID string `koanf:"experiment_id"`
}

// DefaultServiceConfig returns the default serving settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultN:       10,
		PoolMultiplier: 3,
	}
}

// Request is a recommendation request after API-level defaulting.
type Request struct {
	UserID      int
	N           int
	ExcludeSeen bool
	ModelType   string
}

// Response is an ordered recommendation list with provenance.
type Response struct {
	UserID          int                     `json:"user_id"`
	Recommendations []models.Recommendation `json:"recommendations"`
	ModelVersion    string                  `json:"model_version"`
	Timestamp       time.Time               `json:"timestamp"`
}

// Service orchestrates the read path: experiment resolution, cache lookup,
// candidate generation, ranking, and cache store.
type Service struct {
	cfg       ServiceConfig
	cache     *cache.Cache
	generator *Generator
	ranker    *Ranker
	assigner  *experiment.Assigner
	store     store.Store
	oracles   map[string]oracle.Oracle
	catalog   map[int]models.Item
	logger    zerolog.Logger
}

// NewService wires the serving pipeline. The oracles map is keyed by
// strategy name ("hybrid", "collaborative", "content_based", "popularity").
func NewService(cfg ServiceConfig, c *cache.Cache, gen *Generator, ranker *Ranker, assigner *experiment.Assigner, st store.Store, oracles map[string]oracle.Oracle, catalog map[int]models.Item, logger zerolog.Logger) *Service {
	if cfg.DefaultN <= 0 {
		cfg.DefaultN = 10
	}
	if cfg.PoolMultiplier <= 0 {
		cfg.PoolMultiplier = 3
	}
	return &Service{
		cfg:       cfg,
		cache:     c,
		generator: gen,
		ranker:    ranker,
		assigner:  assigner,
		store:     st,
		oracles:   oracles,
		catalog:   catalog,
		logger:    logger.With().Str("component", "recommend").Logger(),
	}
}

// Recommend serves a recommendation list. The response is never an error for
// model or store degradation; only the surrounding API layer rejects
// malformed requests.
func (s *Service) Recommend(ctx context.Context, req Request) *Response {
	if req.N <= 0 {
		req.N = s.cfg.DefaultN
	}
	if req.ModelType == "" {
		req.ModelType = "hybrid"
	}

	modelType := s.resolveStrategy(req.UserID, req.ModelType)
	timer := time.Now()
	defer func() {
		metrics.RecommendDuration.WithLabelValues(modelType).Observe(time.Since(timer).Seconds())
	}()

	if recs, ok := s.cache.Get(ctx, req.UserID, modelType, req.N); ok {
		metrics.RecommendRequests.WithLabelValues(modelType, "cached").Inc()
		return &Response{
			UserID:          req.UserID,
			Recommendations: recs,
			ModelVersion:    modelType + modelVersionSuffix + "_cached",
			Timestamp:       time.Now(),
		}
	}

	resolved, recs := s.compute(ctx, req, modelType)
	if len(recs) == 0 {
		metrics.RecommendRequests.WithLabelValues(resolved, "fallback").Inc()
		return &Response{
			UserID:          req.UserID,
			Recommendations: s.dummyList(req.N),
			ModelVersion:    "dummy" + modelVersionSuffix,
			Timestamp:       time.Now(),
		}
	}

	s.cache.Set(ctx, req.UserID, resolved, recs, req.N, s.cfg.CacheTTL)
	metrics.RecommendRequests.WithLabelValues(resolved, "computed").Inc()
	return &Response{
		UserID:          req.UserID,
		Recommendations: recs,
		ModelVersion:    resolved + modelVersionSuffix,
		Timestamp:       time.Now(),
	}
}

// resolveStrategy applies any experiment-driven model override.
func (s *Service) resolveStrategy(userID int, requested string) string {
	if s.cfg.ExperimentID == "" || s.assigner == nil {
		return requested
	}
	group, ok := s.assigner.GetGroupConfig(userID, s.cfg.ExperimentID)
	if !ok {
		return requested
	}
	if override, ok := group.Params["model_type"].(string); ok && override != "" {
		s.logger.Debug().Int("user_id", userID).Str("group", group.Name).
			Str("model_type", override).Msg("experiment model override")
		return override
	}
	return requested
}

// compute runs retrieval and ranking. It returns the strategy that actually
// served (after fallback-chain resolution) and the ranked list, which is
// empty when every strategy is unavailable.
func (s *Service) compute(ctx context.Context, req Request, modelType string) (string, []models.Recommendation) {
	resolved, o := s.resolveOracle(modelType)
	if o == nil {
		return modelType, nil
	}

	var history []int
	if req.ExcludeSeen {
		h, err := s.store.UserHistory(ctx, req.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Int("user_id", req.UserID).
				Msg("history lookup failed, serving without seen-item exclusion")
		} else {
			history = h
		}
	}

	var pool []models.Candidate
	if resolved == "hybrid" {
		pool = s.generator.GetCandidates(ctx, req.UserID, req.N*s.cfg.PoolMultiplier, history)
	} else {
		pool = s.singleSourcePool(ctx, req, resolved, o, history)
	}
	if len(pool) == 0 {
		return resolved, nil
	}

	userStats, err := s.store.UserStats(ctx, req.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Int("user_id", req.UserID).Msg("user stats lookup failed")
		userStats = models.Stats{}
	}
	itemStats := make(map[int]models.Stats, len(pool))
	for i := range pool {
		stats, err := s.store.ItemStats(ctx, pool[i].ItemID)
		if err != nil {
			continue // neutral default applies
		}
		itemStats[pool[i].ItemID] = stats
	}

	ranked := s.ranker.Rank(ctx, req.UserID, pool, userStats, itemStats)
	if len(ranked) > req.N {
		ranked = ranked[:req.N]
	}

	recs := make([]models.Recommendation, 0, len(ranked))
	for i := range ranked {
		r := &ranked[i]
		recs = append(recs, models.Recommendation{
			ItemID: r.ItemID,
			Title:  r.Title,
			Score:  r.FinalScore,
			Reason: r.Reason,
			Source: r.Source.String(),
		})
	}
	return resolved, recs
}

// resolveOracle walks the fallback chain starting at the requested strategy
// and returns the first fitted oracle.
func (s *Service) resolveOracle(requested string) (string, oracle.Oracle) {
	if o, ok := s.oracles[requested]; ok && o.IsReady() {
		return requested, o
	}
	for _, name := range fallbackChain {
		if name == requested {
			continue
		}
		if o, ok := s.oracles[name]; ok && o.IsReady() {
			s.logger.Debug().Str("requested", requested).Str("resolved", name).
				Msg("requested strategy not ready, falling back")
			return name, o
		}
	}
	return requested, nil
}

// singleSourcePool serves a non-hybrid strategy directly from its oracle.
func (s *Service) singleSourcePool(ctx context.Context, req Request, name string, o oracle.Oracle, history []int) []models.Candidate {
	preds, err := o.Predict(ctx, req.UserID, req.N*s.cfg.PoolMultiplier, req.ExcludeSeen, history)
	if err != nil {
		s.logger.Warn().Err(err).Str("model_type", name).Int("user_id", req.UserID).
			Msg("oracle prediction failed")
		return nil
	}

	src := map[string]models.CandidateSource{
		"collaborative": models.SourceCollaborative,
		"content_based": models.SourceContentBased,
		"popularity":    models.SourcePopularity,
	}[name]

	pool := make([]models.Candidate, 0, len(preds))
	for _, p := range preds {
		pool = append(pool, models.Candidate{
			ItemID:       p.ItemID,
			Title:        p.Title,
			InitialScore: p.Score,
			Source:       src,
			Reason:       p.Reason,
		})
	}
	return pool
}

// dummyList is the last-resort static fallback: the lowest catalog item IDs
// with synthetic descending scores. Always non-empty when the catalog is.
func (s *Service) dummyList(n int) []models.Recommendation {
	ids := make([]int, 0, len(s.catalog))
	for id := range s.catalog {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if len(ids) > n {
		ids = ids[:n]
	}

	recs := make([]models.Recommendation, 0, len(ids))
	for i, id := range ids {
		recs = append(recs, models.Recommendation{
			ItemID: id,
			Title:  s.catalog[id].Title,
			Score:  1 - float64(i)*0.05,
			Reason: "fallback",
		})
	}
	return recs
}
