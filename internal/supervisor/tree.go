// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package supervisor manages the process supervision tree. The tree has two
// child layers so a crash loop in the learning layer cannot take down the
// API layer.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is how long to wait when the threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration
}

// DefaultTreeConfig matches suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
	}
}

// Tree is the two-layer supervision tree: a learning layer for the feedback
// worker and an api layer for the HTTP server.
type Tree struct {
	root     *suture.Supervisor
	learning *suture.Supervisor
	api      *suture.Supervisor
}

// NewTree creates the supervision tree.
func NewTree(cfg TreeConfig, logger zerolog.Logger) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}

	log := logger.With().Str("component", "supervisor").Logger()
	spec := suture.Spec{
		EventHook: func(e suture.Event) {
			switch e.Type() {
			case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
				log.Warn().Interface("event", e.Map()).Msg(e.String())
			default:
				log.Info().Interface("event", e.Map()).Msg(e.String())
			}
		},
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
	}

	t := &Tree{
		root:     suture.New("suggestus", spec),
		learning: suture.New("learning", spec),
		api:      suture.New("api", spec),
	}
	t.root.Add(t.learning)
	t.root.Add(t.api)
	return t
}

// AddLearning adds a service to the learning layer.
func (t *Tree) AddLearning(svc suture.Service) {
	t.learning.Add(svc)
}

// AddAPI adds a service to the api layer.
func (t *Tree) AddAPI(svc suture.Service) {
	t.api.Add(svc)
}

// Serve runs the tree until the context is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
