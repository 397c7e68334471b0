// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package learner

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/bus"
	"github.com/tomtom215/suggestus/internal/models"
)

// Worker consumes rating feedback from the message bus and drives the
// learner. It runs under the supervision tree; returning an error restarts
// it with a fresh subscription.
type Worker struct {
	learner    *Learner
	subscriber message.Subscriber
	logger     zerolog.Logger
}

// NewWorker creates a feedback worker over the given subscriber.
func NewWorker(l *Learner, subscriber message.Subscriber, logger zerolog.Logger) *Worker {
	return &Worker{
		learner:    l,
		subscriber: subscriber,
		logger:     logger.With().Str("component", "learner-worker").Logger(),
	}
}

// Serve consumes feedback until the context is cancelled. Implements the
// supervision tree's service contract.
func (w *Worker) Serve(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, bus.TopicRatingFeedback)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.TopicRatingFeedback, err)
	}

	w.logger.Info().Str("topic", bus.TopicRatingFeedback).Msg("feedback worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("feedback subscription closed")
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	// Malformed messages are acked and dropped; redelivery cannot fix
	// them.
	defer msg.Ack()

	var rating models.Rating
	if err := json.Unmarshal(msg.Payload, &rating); err != nil {
		w.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed feedback")
		return
	}

	res := w.learner.AddFeedback(rating.UserID, rating.ItemID, rating.Rating, rating.Timestamp)
	if !res.ShouldUpdate {
		return
	}

	w.logger.Info().Str("reason", res.Reason).Int("buffer_size", res.BufferSize).
		Msg("update triggered")
	w.learner.TriggerUpdate(ctx)
}

// PublishFeedback encodes a rating and publishes it to the feedback topic.
// Used by the ingestion path.
func PublishFeedback(publisher message.Publisher, uuid string, rating models.Rating) error {
	payload, err := json.Marshal(rating)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	if err := publisher.Publish(bus.TopicRatingFeedback, message.NewMessage(uuid, payload)); err != nil {
		return fmt.Errorf("publish feedback: %w", err)
	}
	return nil
}
