// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package recommend

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/oracle"
)

// Retrieval quotas. Collaborative and content-based get fixed shares;
// popularity fills whatever gap remains so the pool reaches the requested
// size even when the personalized sources under-deliver.
const (
	collaborativeShare = 0.4
	contentShare       = 0.3
	popularityShare    = 0.3
)

// GeneratorConfig holds candidate retrieval settings.
type GeneratorConfig struct {
	// SourceTimeout bounds each oracle call. A timeout counts as that
	// source's failure. Default: 500ms
	SourceTimeout time.Duration `koanf:"source_timeout"`

	// FailureThreshold is the consecutive-failure count that opens a
	// source's circuit breaker. Default: 5
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// BreakerTimeout is how long an open breaker waits before probing the
	// source again. Default: 30s
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// DefaultGeneratorConfig returns the default retrieval settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SourceTimeout:    500 * time.Millisecond,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// source pairs an oracle with its retrieval channel identity and breaker.
type source struct {
	oracle  oracle.Oracle
	channel models.CandidateSource
	breaker *gobreaker.CircuitBreaker[[]oracle.Prediction]
}

// Generator assembles the candidate pool from the three retrieval channels.
// Each source is independently bounded by a timeout and a circuit breaker;
// one source failing never aborts retrieval from the others.
type Generator struct {
	cfg        GeneratorConfig
	collab     *source
	content    *source
	popularity *source
	logger     zerolog.Logger
}

// NewGenerator creates a generator over the three retrieval oracles.
func NewGenerator(cfg GeneratorConfig, collab, content, popularity oracle.Oracle, logger zerolog.Logger) *Generator {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 500 * time.Millisecond
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	g := &Generator{
		cfg:    cfg,
		logger: logger.With().Str("component", "generator").Logger(),
	}
	g.collab = g.newSource(collab, models.SourceCollaborative)
	g.content = g.newSource(content, models.SourceContentBased)
	g.popularity = g.newSource(popularity, models.SourcePopularity)
	return g
}

func (g *Generator) newSource(o oracle.Oracle, channel models.CandidateSource) *source {
	settings := gobreaker.Settings{
		Name:    fmt.Sprintf("candidate-source-%s", channel),
		Timeout: g.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("candidate source breaker state changed")
		},
	}
	return &source{
		oracle:  o,
		channel: channel,
		breaker: gobreaker.NewCircuitBreaker[[]oracle.Prediction](settings),
	}
}

// fetch queries one source through its breaker with a bounded timeout. All
// failures (unfitted model, error, timeout, open breaker) return nil.
func (g *Generator) fetch(ctx context.Context, s *source, userID, quota int, history []int) []oracle.Prediction {
	if quota <= 0 {
		return nil
	}
	if !s.oracle.IsReady() {
		g.logger.Debug().Stringer("source", s.channel).Msg("source not fitted, skipping")
		return nil
	}

	preds, err := s.breaker.Execute(func() ([]oracle.Prediction, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.SourceTimeout)
		defer cancel()
		return s.oracle.Predict(callCtx, userID, quota, true, history)
	})
	if err != nil {
		metrics.CandidateSourceFailures.WithLabelValues(s.channel.String()).Inc()
		g.logger.Warn().Err(err).Stringer("source", s.channel).Int("user_id", userID).
			Msg("candidate source failed")
		return nil
	}
	return preds
}

// GetCandidates returns a deduplicated candidate pool of up to nCandidates
// items. Collaborative and content-based sources are queried concurrently;
// popularity runs after them because its quota depends on how many
// candidates the personalized sources delivered.
func (g *Generator) GetCandidates(ctx context.Context, userID, nCandidates int, history []int) []models.Candidate {
	if nCandidates <= 0 {
		return nil
	}

	collabQuota := int(collaborativeShare * float64(nCandidates))
	contentQuota := int(contentShare * float64(nCandidates))

	var collabPreds, contentPreds []oracle.Prediction
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		collabPreds = g.fetch(egCtx, g.collab, userID, collabQuota, history)
		return nil
	})
	eg.Go(func() error {
		contentPreds = g.fetch(egCtx, g.content, userID, contentQuota, history)
		return nil
	})
	_ = eg.Wait() // source errors are swallowed inside fetch

	pool := make([]models.Candidate, 0, nCandidates)
	seen := make(map[int]struct{}, nCandidates)

	// Dedup is first-seen wins; priority order collaborative, content,
	// popularity decides which source owns a shared item.
	pool = appendCandidates(pool, seen, collabPreds, models.SourceCollaborative, nCandidates)
	pool = appendCandidates(pool, seen, contentPreds, models.SourceContentBased, nCandidates)

	// Popularity is the gap filler: at least its fixed share, more when
	// the personalized sources under-delivered.
	popQuota := int(popularityShare * float64(nCandidates))
	if gap := nCandidates - len(pool); gap > popQuota {
		popQuota = gap
	}

	// Over-fetch to survive dedup collisions with the pool.
	popPreds := g.fetch(ctx, g.popularity, userID, popQuota+len(pool), history)
	pool = appendCandidates(pool, seen, popPreds, models.SourcePopularity, nCandidates)

	g.logger.Debug().Int("user_id", userID).Int("requested", nCandidates).
		Int("collected", len(pool)).Msg("candidate pool assembled")
	return pool
}

func appendCandidates(pool []models.Candidate, seen map[int]struct{}, preds []oracle.Prediction, src models.CandidateSource, limit int) []models.Candidate {
	for _, p := range preds {
		if len(pool) >= limit {
			break
		}
		if _, dup := seen[p.ItemID]; dup {
			continue
		}
		seen[p.ItemID] = struct{}{}
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
