// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Command server runs the recommendation serving and ingestion API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/api"
	"github.com/tomtom215/suggestus/internal/bus"
	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/config"
	"github.com/tomtom215/suggestus/internal/experiment"
	"github.com/tomtom215/suggestus/internal/ingest"
	"github.com/tomtom215/suggestus/internal/learner"
	"github.com/tomtom215/suggestus/internal/logging"
	"github.com/tomtom215/suggestus/internal/oracle"
	"github.com/tomtom215/suggestus/internal/recommend"
	"github.com/tomtom215/suggestus/internal/store"
	"github.com/tomtom215/suggestus/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration load failed")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()
	logger.Info().Str("addr", cfg.Server.Addr()).Msg("starting suggestus")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewDuckDB(cfg.Database, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("store initialization failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	catalog, err := st.Items(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("catalog load failed")
	}
	logger.Info().Int("items", len(catalog)).Msg("catalog loaded")

	// Strategy oracles. The hybrid owns the other three as sub-models.
	pop := oracle.NewPopularity(oracle.PopularityConfig{}, catalog)
	cf := oracle.NewCollaborative(catalog)
	cb := oracle.NewContentBased(catalog)
	hybrid := oracle.NewHybrid(cfg.Hybrid, cf, cb, pop)
	oracles := map[string]oracle.Oracle{
		"popularity":    pop,
		"collaborative": cf,
		"content_based": cb,
		"hybrid":        hybrid,
	}

	// Initial fit from persisted ratings. An empty store starts unfitted;
	// the serving path degrades to the static fallback until events
	// arrive and the learner refits.
	ratings, err := st.RecentRatings(ctx, cfg.Learner.MaxWindow)
	if err != nil {
		logger.Warn().Err(err).Msg("initial rating load failed, starting unfitted")
	} else if len(ratings) > 0 {
		if err := hybrid.Fit(ctx, ratings); err != nil {
			logger.Warn().Err(err).Msg("initial model fit failed, starting unfitted")
		} else {
			logger.Info().Int("ratings", len(ratings)).Msg("models fitted")
		}
	}

	recCache := cache.New(cfg.Cache, logger)
	defer func() {
		if err := recCache.Close(); err != nil {
			logger.Warn().Err(err).Msg("cache close failed")
		}
	}()

	pubsub := bus.New(logger)
	defer func() {
		if err := pubsub.Close(); err != nil {
			logger.Warn().Err(err).Msg("bus close failed")
		}
	}()

	lrn := learner.New(cfg.Learner, logger)
	lrn.Register("collaborative", cf)
	lrn.Register("hybrid", hybrid)

	assigner := experiment.NewAssigner(logger)
	for _, exp := range cfg.Experiments {
		// Invalid experiment definitions are a startup error, never a
		// lookup-time surprise.
		if err := assigner.Register(exp); err != nil {
			logging.Fatal().Err(err).Msg("experiment registration failed")
		}
	}

	gen := recommend.NewGenerator(cfg.Generator, cf, cb, pop, logger)
	ranker := recommend.NewRanker(nil, catalog, logger)
	svc := recommend.NewService(cfg.Serving, recCache, gen, ranker, assigner, st, oracles, catalog, logger)
	ingestor := ingest.New(st, recCache, pubsub, logger)

	handlers := api.NewHandlers(svc, ingestor, recCache, lrn, assigner, st, logger)
	router := api.NewRouter(handlers, logger)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig(), logger)
	tree.AddLearning(learner.NewWorker(lrn, pubsub, logger))
	tree.AddAPI(&httpService{
		cfg:    cfg.Server,
		router: router,
		logger: logger,
	})

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor exited")
	}
	logger.Info().Msg("shutdown complete")
}

// httpService runs the HTTP server under the supervision tree.
type httpService struct {
	cfg    config.ServerConfig
	router http.Handler
	logger zerolog.Logger
}

func (s *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
