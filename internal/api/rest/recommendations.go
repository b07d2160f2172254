package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetscope/fleetscope-backend/internal/analytics"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
)

// listRecommendations serves GET /api/v1/recommendations. Generation runs
// over the recent sample window first, so results reflect current trends.
func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				"invalid query parameter limit: "+limitStr, logger.FromContext(r.Context()))
			return
		}
		limit = parsed
	}

	recs, err := h.analytics.GetRecommendations(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}

// dismissRecommendation serves POST /api/v1/recommendations/{id}/dismiss.
func (h *Handler) dismissRecommendation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid request body: "+err.Error(), logger.FromContext(r.Context()))
		return
	}

	if err := h.analytics.DismissRecommendation(r.Context(), id, body.Reason); err != nil {
		h.respondRecommendationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.RecommendationDismissed)})
}

// scheduleRecommendation serves POST /api/v1/recommendations/{id}/schedule.
func (h *Handler) scheduleRecommendation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		ExecuteAt time.Time `json:"execute_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid request body: "+err.Error(), logger.FromContext(r.Context()))
		return
	}
	if body.ExecuteAt.IsZero() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"execute_at is required", logger.FromContext(r.Context()))
		return
	}

	action, err := h.analytics.ScheduleRecommendation(r.Context(), id, body.ExecuteAt)
	if err != nil {
		h.respondRecommendationError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, action)
}

// respondRecommendationError maps illegal lifecycle transitions to 409 rather
// than 500; everything else falls through to the shared mapping.
func (h *Handler) respondRecommendationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, analytics.ErrInvalidTransition) {
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), logger.FromContext(r.Context()))
		return
	}
	h.respondServiceError(w, r, err)
}
