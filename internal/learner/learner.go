// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package learner implements online model updates from buffered rating
// feedback. Feedback accumulates in a shared buffer; when the buffer fills
// or enough time has passed since the last update, the buffer is drained
// atomically and the registered models are refitted.
package learner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/oracle"
)

// Config holds online-learning settings.
type Config struct {
	// BufferSize is the feedback count that triggers an update.
	// Default: 100
	BufferSize int `koanf:"buffer_size"`

	// UpdateInterval is the wall-clock trigger. It only arms after the
	// first update has occurred. Default: 5m
	UpdateInterval time.Duration `koanf:"update_interval"`

	// MaxWindow caps the sliding rating window retained for
	// collaborative refits. Default: 10000
	MaxWindow int `koanf:"max_window"`

	// AutoUpdate enables trigger evaluation on AddFeedback. When false,
	// updates only happen via an explicit TriggerUpdate call.
	AutoUpdate bool `koanf:"auto_update"`
}

// DefaultConfig returns the default online-learning settings.
func DefaultConfig() Config {
	return Config{
		BufferSize:     100,
		UpdateInterval: 5 * time.Minute,
		MaxWindow:      10000,
		AutoUpdate:     true,
	}
}

// AddResult reports the buffer state after a feedback append.
type AddResult struct {
	BufferSize   int    `json:"buffer_size"`
	ShouldUpdate bool   `json:"should_update"`
	Reason       string `json:"reason,omitempty"`
}

// UpdateResult reports the outcome of a buffer drain.
type UpdateResult struct {
	Updated           bool     `json:"updated"`
	ModelsUpdated     []string `json:"models_updated,omitempty"`
	FeedbackCount     int      `json:"feedback_count"`
	UpdateTimeSeconds float64  `json:"update_time_seconds"`
	TotalUpdates      int      `json:"total_updates"`
	Reason            string   `json:"reason,omitempty"`
}

// Stats is the learner state snapshot exposed over the API.
type Stats struct {
	BufferSize            int        `json:"buffer_size"`
	BufferCapacity        int        `json:"buffer_capacity"`
	UpdateIntervalSeconds float64    `json:"update_interval_seconds"`
	AutoUpdate            bool       `json:"auto_update"`
	TotalUpdates          int        `json:"total_updates"`
	LastUpdate            *time.Time `json:"last_update,omitempty"`
}

// Learner buffers rating feedback and applies incremental model updates.
// Appends are cheap and concurrent; a drain holds the lock only for the
// buffer copy-and-clear, not for the refit itself.
type Learner struct {
	cfg    Config
	logger zerolog.Logger

	mu           sync.Mutex
	buffer       []models.Rating
	lastUpdate   time.Time
	totalUpdates int

	// updateMu serializes drains so two triggers cannot refit
	// concurrently on overlapping windows.
	updateMu sync.Mutex

	modelsMu sync.RWMutex
	models   map[string]oracle.Trainable
}

// New creates a learner with no registered models.
func New(cfg Config, logger zerolog.Logger) *Learner {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 5 * time.Minute
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = 10000
	}
	return &Learner{
		cfg:    cfg,
		logger: logger.With().Str("component", "learner").Logger(),
		models: make(map[string]oracle.Trainable),
	}
}

// Register adds a model to the update set.
func (l *Learner) Register(name string, model oracle.Trainable) {
	l.modelsMu.Lock()
	defer l.modelsMu.Unlock()
	l.models[name] = model
}

// AddFeedback appends a rating to the buffer and reports whether an update
// should run. The time trigger only arms after the first drain.
func (l *Learner) AddFeedback(userID, itemID int, rating float64, ts time.Time) AddResult {
	if ts.IsZero() {
		ts = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, models.Rating{
		UserID:    userID,
		ItemID:    itemID,
		Rating:    rating,
		Timestamp: ts,
	})
	size := len(l.buffer)
	metrics.FeedbackBufferSize.Set(float64(size))

	res := AddResult{BufferSize: size}
	if !l.cfg.AutoUpdate {
		return res
	}

	switch {
	case size >= l.cfg.BufferSize:
		res.ShouldUpdate = true
		res.Reason = "buffer_full"
	case l.totalUpdates > 0 && time.Since(l.lastUpdate) >= l.cfg.UpdateInterval:
		res.ShouldUpdate = true
		res.Reason = "interval_elapsed"
	}
	return res
}

// TriggerUpdate drains the buffer and refits the registered models. An empty
// buffer is a no-op. A failure in one model's update neither blocks other
// models nor prevents the buffer from clearing.
func (l *Learner) TriggerUpdate(ctx context.Context) UpdateResult {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	// Atomic copy-and-clear: concurrent AddFeedback calls land in the
	// fresh buffer, never lost, never double-counted.
	l.mu.Lock()
	if len(l.buffer) == 0 {
		total := l.totalUpdates
		l.mu.Unlock()
		return UpdateResult{Updated: false, TotalUpdates: total, Reason: "buffer_empty"}
	}
	feedback := l.buffer
	l.buffer = nil
	l.mu.Unlock()
	metrics.FeedbackBufferSize.Set(0)

	start := time.Now()
	var updated []string

	l.modelsMu.RLock()
	registered := make(map[string]oracle.Trainable, len(l.models))
	for name, m := range l.models {
		registered[name] = m
	}
	l.modelsMu.RUnlock()

	for name, model := range registered {
		if err := l.updateModel(ctx, name, model, feedback); err != nil {
			metrics.ModelUpdates.WithLabelValues(name, "error").Inc()
			l.logger.Error().Err(err).Str("model", name).Msg("model update failed")
			continue
		}
		metrics.ModelUpdates.WithLabelValues(name, "ok").Inc()
		updated = append(updated, name)
	}

	elapsed := time.Since(start)
	metrics.ModelUpdateDuration.Observe(elapsed.Seconds())

	// The last-update timestamp advances even when every model failed;
	// the drain itself is the update event.
	l.mu.Lock()
	l.lastUpdate = time.Now()
	l.totalUpdates++
	total := l.totalUpdates
	l.mu.Unlock()

	l.logger.Info().Int("feedback", len(feedback)).Strs("models", updated).
		Dur("elapsed", elapsed).Msg("online update completed")

	return UpdateResult{
		Updated:           true,
		ModelsUpdated:     updated,
		FeedbackCount:     len(feedback),
		UpdateTimeSeconds: elapsed.Seconds(),
		TotalUpdates:      total,
	}
}

// updateModel applies the per-family update strategy.
func (l *Learner) updateModel(ctx context.Context, name string, model oracle.Trainable, feedback []models.Rating) error {
	switch m := model.(type) {
	case *oracle.Collaborative:
		return l.refitCollaborative(ctx, m, feedback)
	case *oracle.Hybrid:
		return l.updateHybrid(ctx, m, feedback)
	default:
		// Unknown families refit on the fresh feedback alone.
		return model.Fit(ctx, feedback)
	}
}

// refitCollaborative merges the feedback into the model's bounded sliding
// window (most recent retained) and refits on that window.
func (l *Learner) refitCollaborative(ctx context.Context, m *oracle.Collaborative, feedback []models.Rating) error {
	window := oracle.TrimWindow(m.Window(), feedback, l.cfg.MaxWindow)
	return m.Fit(ctx, window)
}

// updateHybrid updates the collaborative sub-model on its sliding window
// first, then folds the feedback into the popularity counters and genre
// profiles incrementally. A hybrid that was never fitted (empty store at
// startup) gets a full fit on the merged window instead, so live feedback
// alone brings the whole family online.
func (l *Learner) updateHybrid(ctx context.Context, m *oracle.Hybrid, feedback []models.Rating) error {
	if !m.IsReady() {
		window := oracle.TrimWindow(m.Collaborative().Window(), feedback, l.cfg.MaxWindow)
		return m.Fit(ctx, window)
	}

	if err := l.refitCollaborative(ctx, m.Collaborative(), feedback); err != nil {
		return err
	}
	for i := range feedback {
		f := &feedback[i]
		m.Popularity().IncrementRatingCount(f.ItemID, f.Rating)
		m.ContentBased().AddLiked(f.UserID, f.ItemID, f.Rating)
	}
	return nil
}

// GetStats returns a state snapshot.
func (l *Learner) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		BufferSize:            len(l.buffer),
		BufferCapacity:        l.cfg.BufferSize,
		UpdateIntervalSeconds: l.cfg.UpdateInterval.Seconds(),
		AutoUpdate:            l.cfg.AutoUpdate,
		TotalUpdates:          l.totalUpdates,
	}
	if !l.lastUpdate.IsZero() {
		t := l.lastUpdate
		s.LastUpdate = &t
	}
	return s
}
