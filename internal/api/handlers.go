// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/experiment"
	"github.com/tomtom215/suggestus/internal/ingest"
	"github.com/tomtom215/suggestus/internal/learner"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/recommend"
	"github.com/tomtom215/suggestus/internal/store"
)

// Handlers carries the HTTP layer's dependencies.
type Handlers struct {
	service  *recommend.Service
	ingestor *ingest.Ingestor
	cache    *cache.Cache
	learner  *learner.Learner
	assigner *experiment.Assigner
	store    store.Store
	logger   zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(service *recommend.Service, ingestor *ingest.Ingestor, c *cache.Cache, l *learner.Learner, assigner *experiment.Assigner, st store.Store, logger zerolog.Logger) *Handlers {
	return &Handlers{
		service:  service,
		ingestor: ingestor,
		cache:    c,
		learner:  l,
		assigner: assigner,
		store:    st,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// recommendRequest is the wire shape of a recommendation request.
// exclude_seen defaults to true when omitted.
type recommendRequest struct {
	UserID           int    `json:"user_id"`
	NRecommendations int    `json:"n_recommendations"`
	ExcludeSeen      *bool  `json:"exclude_seen"`
	ModelType        string `json:"model_type"`
}

// handleRecommend serves POST /api/v1/recommend.
func (h *Handlers) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}

	excludeSeen := true
	if req.ExcludeSeen != nil {
		excludeSeen = *req.ExcludeSeen
	}

	resp := h.service.Recommend(r.Context(), recommend.Request{
		UserID:      req.UserID,
		N:           req.NRecommendations,
		ExcludeSeen: excludeSeen,
		ModelType:   req.ModelType,
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleEvent serves POST /api/v1/events.
func (h *Handlers) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.ingestor.ProcessEvent(r.Context(), &event)
	if res.Status != "success" {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleCacheStats serves GET /api/v1/cache/stats.
func (h *Handlers) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// handleCacheInvalidate serves DELETE /api/v1/cache/{userID}.
func (h *Handlers) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userID must be a positive integer")
		return
	}

	if !h.cache.Invalidate(r.Context(), userID) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleLearnerUpdate serves POST /api/v1/learner/update.
func (h *Handlers) handleLearnerUpdate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.learner.TriggerUpdate(r.Context()))
}

// handleLearnerStats serves GET /api/v1/learner/stats.
func (h *Handlers) handleLearnerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.learner.GetStats())
}

// handleExperiments serves GET /api/v1/experiments.
func (h *Handlers) handleExperiments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"experiments": h.assigner.List(),
	})
}

// handleUserProfile serves GET /api/v1/users/{userID}/profile.
func (h *Handlers) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userID must be a positive integer")
		return
	}

	profile, err := h.store.Profile(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", userID).Msg("profile lookup failed")
		writeError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleHealth serves GET /health.
func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
