// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package models defines the core entities shared across the serving and
// ingestion pipelines: interaction events, user profiles, candidates, and
// ranked recommendations.
package models

import (
	"time"
)

// EventType classifies user interaction events.
type EventType string

const (
	// EventView indicates the user viewed an item.
	EventView EventType = "view"
	// EventClick indicates the user clicked an item.
	EventClick EventType = "click"
	// EventRate indicates the user rated an item.
	EventRate EventType = "rate"
	// EventPurchase indicates the user purchased an item.
	EventPurchase EventType = "purchase"
)

// Valid reports whether the event type is one of the known types.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventClick, EventRate, EventPurchase:
		return true
	default:
		return false
	}
}

// EventTypes lists all known event types.
func EventTypes() []EventType {
	return []EventType{EventView, EventClick, EventRate, EventPurchase}
}

// Event represents a single user-item interaction. Events are immutable once
// created; they are retained for profile recomputation and online-learning
// replay.
type Event struct {
	// ID is a unique event identifier assigned at ingestion.
	ID string `json:"id"`

	// UserID is the user who performed the interaction.
	UserID int `json:"user_id" validate:"required,gt=0"`

	// ItemID is the item that was interacted with.
	ItemID int `json:"item_id" validate:"required,gt=0"`

	// Type classifies the interaction.
	Type EventType `json:"event_type" validate:"required"`

	// Rating is the user's rating for rate events (1-5 scale).
	// Nil for non-rating events.
	Rating *float64 `json:"rating,omitempty"`

	// Timestamp is when the interaction occurred.
	Timestamp time.Time `json:"timestamp"`

	// SessionID groups interactions within a session.
	SessionID string `json:"session_id,omitempty"`

	// Source identifies the client surface that produced the event.
	Source string `json:"source,omitempty"`

	// Metadata carries opaque client-supplied key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RatingValue returns the event's rating, or 0 if unset.
func (e *Event) RatingValue() float64 {
	if e.Rating == nil {
		return 0
	}
	return *e.Rating
}

// IsRating reports whether the event carries rating feedback.
func (e *Event) IsRating() bool {
	return e.Type == EventRate && e.Rating != nil
}

// UserProfile aggregates a user's interaction history. One profile exists per
// user, created lazily on the first event and updated incrementally on every
// subsequent event.
type UserProfile struct {
	UserID            int       `json:"user_id"`
	TotalInteractions int       `json:"total_interactions"`
	TotalRatings      int       `json:"total_ratings"`
	AvgRating         float64   `json:"avg_rating"`
	FirstInteraction  time.Time `json:"first_interaction"`
	LastInteraction   time.Time `json:"last_interaction"`
	MostActiveHour    int       `json:"most_active_hour"`
}

// CandidateSource identifies which retrieval channel proposed a candidate.
type CandidateSource int

const (
	// SourceCollaborative is the collaborative-filtering channel.
	SourceCollaborative CandidateSource = iota
	// SourceContentBased is the content-similarity channel.
	SourceContentBased
	// SourcePopularity is the popularity baseline channel.
	SourcePopularity
)

// String returns the wire name for the candidate source.
func (s CandidateSource) String() string {
	switch s {
	case SourceCollaborative:
		return "collaborative"
	case SourceContentBased:
		return "content_based"
	case SourcePopularity:
		return "popularity"
	default:
		return "unknown"
	}
}

// Weight returns the ranker's trust constant for the retrieval channel.
// Collaborative candidates carry the strongest prior, popularity the weakest.
func (s CandidateSource) Weight() float64 {
	switch s {
	case SourceCollaborative:
		return 1.5
	case SourceContentBased:
		return 1.2
	case SourcePopularity:
		return 0.8
	default:
		return 1.0
	}
}

// Candidate is an item proposed for recommendation before final ranking.
// Candidates are ephemeral, created per request and deduplicated by item ID.
type Candidate struct {
	ItemID       int             `json:"item_id"`
	Title        string          `json:"title,omitempty"`
	Genres       []string        `json:"genres,omitempty"`
	InitialScore float64         `json:"initial_score"`
	Source       CandidateSource `json:"source"`
	Reason       string          `json:"reason,omitempty"`
}

// RankedCandidate is a candidate with its learned final score.
type RankedCandidate struct {
	Candidate

	// FinalScore is the ranker's probability of positive interaction.
	FinalScore float64 `json:"final_score"`

	// RankerContribution is FinalScore minus InitialScore, retained as a
	// debuggability signal.
	RankerContribution float64 `json:"ranker_contribution"`
}

// Recommendation is the wire shape of a single recommended item.
type Recommendation struct {
	ItemID int     `json:"item_id"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
	Source string  `json:"source,omitempty"`
}

// Rating is a (user, item, rating) triple used for model fitting and
// online-learning replay.
type Rating struct {
	UserID    int       `json:"user_id"`
	ItemID    int       `json:"item_id"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Item holds item metadata used for display and content similarity.
type Item struct {
	ID     int      `json:"id"`
	Title  string   `json:"title"`
	Genres []string `json:"genres,omitempty"`
	Year   int      `json:"year,omitempty"`
}

// Stats holds a rating aggregate for a user or an item, consumed as a
// serving-time ranking feature.
type Stats struct {
	AvgRating float64 `json:"avg_rating"`
	Count     int     `json:"count"`
}
