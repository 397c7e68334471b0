// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package ingest implements the write path: event validation, persistence,
// per-user profile maintenance, cache invalidation, and feedback forwarding
// to the online learner.
//
// Profile updates for the same user serialize on a per-user mutex; events
// for different users proceed in parallel.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/learner"
	"github.com/tomtom215/suggestus/internal/metrics"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/store"
)

// Result reports the outcome of event processing.
type Result struct {
	Status  string `json:"status"` // "success" or "error"
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationError marks a rejected event. The event had no side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Reason
}

// Ingestor processes interaction events.
type Ingestor struct {
	store     store.Store
	cache     *cache.Cache
	publisher message.Publisher // nil disables feedback forwarding
	validate  *validator.Validate
	logger    zerolog.Logger

	// userLocks serializes profile updates per user.
	userLocks sync.Map // int -> *sync.Mutex

	// hourCounts tracks per-user activity histograms for the
	// most-active-hour profile field. In-process state; rebuilt from
	// scratch on restart.
	hoursMu    sync.Mutex
	hourCounts map[int]*[24]int
}

// New creates an ingestor. The publisher may be nil when online learning is
// disabled.
func New(st store.Store, c *cache.Cache, publisher message.Publisher, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:      st,
		cache:      c,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "ingest").Logger(),
		hourCounts: make(map[int]*[24]int),
	}
}

// ProcessEvent validates and records one event. On success the event is
// persisted, the user's profile updated, their cache entries invalidated,
// and rating feedback forwarded to the learner. A validation or persistence
// failure leaves no partial state.
func (i *Ingestor) ProcessEvent(ctx context.Context, event *models.Event) Result {
	if err := i.validateEvent(event); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		i.logger.Debug().Err(err).Msg("event rejected")
		return Result{Status: "error", Message: err.Error()}
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	lock := i.userLock(event.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Persistence first: no profile update without a persisted event.
	if err := i.store.SaveEvent(ctx, event); err != nil {
		metrics.EventsRejected.WithLabelValues("persistence").Inc()
		i.logger.Error().Err(err).Str("event_id", event.ID).Msg("event persistence failed")
		return Result{Status: "error", Message: "event could not be persisted"}
	}

	if err := i.updateProfile(ctx, event); err != nil {
		// The event is durable; a profile write failure degrades the
		// profile, not the ingestion outcome.
		i.logger.Error().Err(err).Int("user_id", event.UserID).Msg("profile update failed")
	}

	i.cache.Invalidate(ctx, event.UserID)
	metrics.EventsIngested.WithLabelValues(string(event.Type)).Inc()

	if event.IsRating() {
		i.forwardFeedback(event)
	}

	i.logger.Debug().Str("event_id", event.ID).Int("user_id", event.UserID).
		Str("event_type", string(event.Type)).Msg("event processed")
	return Result{Status: "success", EventID: event.ID}
}

func (i *Ingestor) validateEvent(event *models.Event) error {
	if err := i.validate.Struct(event); err != nil {
		return &ValidationError{Reason: validationReason(err)}
	}
	if !event.Type.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown event_type %q", event.Type)}
	}
	if event.Type == models.EventRate {
		if event.Rating == nil {
			return &ValidationError{Reason: "rate events require a rating"}
		}
		if *event.Rating < 1 || *event.Rating > 5 {
			return &ValidationError{Reason: "rating must be between 1 and 5"}
		}
	}
	return nil
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed %s validation", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}

func (i *Ingestor) userLock(userID int) *sync.Mutex {
	lock, _ := i.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// updateProfile increments the user's counters. The rating average is
// recomputed from the user's full rating history rather than maintained as a
// running mean, so corrections and re-rates are reflected exactly.
func (i *Ingestor) updateProfile(ctx context.Context, event *models.Event) error {
	profile, err := i.store.Profile(ctx, event.UserID)
	if errors.Is(err, store.ErrNotFound) {
		profile = &models.UserProfile{
			UserID:           event.UserID,
			FirstInteraction: event.Timestamp,
		}
	} else if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	profile.TotalInteractions++
	profile.LastInteraction = event.Timestamp
	if profile.FirstInteraction.IsZero() || event.Timestamp.Before(profile.FirstInteraction) {
		profile.FirstInteraction = event.Timestamp
	}

	if event.IsRating() {
		ratings, err := i.store.RatingsByUser(ctx, event.UserID)
		if err != nil {
			return fmt.Errorf("load ratings: %w", err)
		}
		profile.TotalRatings = len(ratings)
		if len(ratings) > 0 {
			sum := 0.0
			for _, r := range ratings {
				sum += r.Rating
			}
			profile.AvgRating = sum / float64(len(ratings))
		}
	}

	profile.MostActiveHour = i.recordHour(event.UserID, event.Timestamp.Hour())

	if err := i.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// recordHour updates the user's activity histogram and returns the current
// most active hour.
func (i *Ingestor) recordHour(userID, hour int) int {
	i.hoursMu.Lock()
	defer i.hoursMu.Unlock()

	counts, ok := i.hourCounts[userID]
	if !ok {
		counts = &[24]int{}
		i.hourCounts[userID] = counts
	}
	counts[hour]++

	best := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best
}

func (i *Ingestor) forwardFeedback(event *models.Event) {
	if i.publisher == nil {
		return
	}
	rating := models.Rating{
		UserID:    event.UserID,
		ItemID:    event.ItemID,
		Rating:    event.RatingValue(),
		Timestamp: event.Timestamp,
	}
	if err := learner.PublishFeedback(i.publisher, event.ID, rating); err != nil {
		i.logger.Warn().Err(err).Str("event_id", event.ID).Msg("feedback forwarding failed")
	}
}
