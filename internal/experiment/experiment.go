// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package experiment implements deterministic A/B test assignment. Users are
// hashed into buckets and mapped to groups by cumulative weight, so the same
// user always lands in the same group without a persisted assignment table.
package experiment

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// buckets is the hash granularity. A user's bucket value lies in [0, 1) with
// a resolution of 1/buckets.
const buckets = 10000

// weightTolerance bounds how far group weights may drift from summing to 1.
const weightTolerance = 0.01

// Group is one arm of an experiment. Params carries strategy overrides, such
// as the model type to serve.
type Group struct {
	Name   string         `json:"name" koanf:"name"`
	Weight float64        `json:"weight" koanf:"weight"`
	Params map[string]any `json:"params,omitempty" koanf:"params"`
}

// Experiment is a weighted split of users into groups over a date window.
// Groups are ordered; assignment walks them in declaration order, so the
// order is part of the experiment's identity.
type Experiment struct {
	ID          string     `json:"id" koanf:"id"`
	Name        string     `json:"name" koanf:"name"`
	Description string     `json:"description,omitempty" koanf:"description"`
	StartDate   time.Time  `json:"start_date" koanf:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty" koanf:"end_date"`
	Groups      []Group    `json:"groups" koanf:"groups"`
}

// active reports whether the experiment's date window contains now.
func (e *Experiment) active(now time.Time) bool {
	if now.Before(e.StartDate) {
		return false
	}
	if e.EndDate != nil && now.After(*e.EndDate) {
		return false
	}
	return true
}

// validate checks the experiment definition at registration time. Weights
// are not re-validated on lookup.
func (e *Experiment) validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment ID is required")
	}
	if len(e.Groups) == 0 {
		return fmt.Errorf("experiment %q has no groups", e.ID)
	}

	sum := 0.0
	seen := make(map[string]struct{}, len(e.Groups))
	for _, g := range e.Groups {
		if g.Name == "" {
			return fmt.Errorf("experiment %q has a group with no name", e.ID)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("experiment %q has duplicate group %q", e.ID, g.Name)
		}
		seen[g.Name] = struct{}{}
		if g.Weight < 0 {
			return fmt.Errorf("experiment %q group %q has negative weight", e.ID, g.Name)
		}
		sum += g.Weight
	}

	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("experiment %q group weights sum to %.4f, must sum to 1.0 (±%.2f)",
			e.ID, sum, weightTolerance)
	}
	return nil
}

// Assigner resolves users to experiment groups.
type Assigner struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	logger      zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewAssigner creates an empty assigner.
func NewAssigner(logger zerolog.Logger) *Assigner {
	return &Assigner{
		experiments: make(map[string]*Experiment),
		logger:      logger.With().Str("component", "experiment").Logger(),
		now:         time.Now,
	}
}

// Register validates and adds an experiment. An invalid definition is
// rejected here, never at lookup time.
func (a *Assigner) Register(exp Experiment) error {
	if err := exp.validate(); err != nil {
		return fmt.Errorf("register experiment: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.experiments[exp.ID] = &exp

	a.logger.Info().Str("experiment_id", exp.ID).Int("groups", len(exp.Groups)).
		Msg("experiment registered")
	return nil
}

// bucket maps (user, experiment) to a stable value in [0, 1).
func bucket(userID int, experimentID string) float64 {
	h := xxhash.Sum64String(fmt.Sprintf("%d:%s", userID, experimentID))
	return float64(h%buckets) / buckets
}

// GetGroup returns the user's group name, or ok=false when the experiment is
// unknown or outside its date window.
func (a *Assigner) GetGroup(userID int, experimentID string) (string, bool) {
	g, ok := a.assign(userID, experimentID)
	if !ok {
		return "", false
	}
	return g.Name, true
}

// GetGroupConfig returns the user's full group configuration, or ok=false
// when the experiment is unknown or inactive.
func (a *Assigner) GetGroupConfig(userID int, experimentID string) (Group, bool) {
	return a.assign(userID, experimentID)
}

func (a *Assigner) assign(userID int, experimentID string) (Group, bool) {
	a.mu.RLock()
	exp, ok := a.experiments[experimentID]
	a.mu.RUnlock()
	if !ok || !exp.active(a.now()) {
		return Group{}, false
	}

	value := bucket(userID, experimentID)
	cumulative := 0.0
	for _, g := range exp.Groups {
		cumulative += g.Weight
		if value < cumulative {
			return g, true
		}
	}

	// Weights summing slightly under 1 can leave a sliver of bucket space
	// unclaimed; the last group absorbs it.
	return exp.Groups[len(exp.Groups)-1], true
}

// List returns all registered experiments.
func (a *Assigner) List() []Experiment {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Experiment, 0, len(a.experiments))
	for _, exp := range a.experiments {
		out = append(out, *exp)
	}
	return out
}
