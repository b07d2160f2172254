package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
	"github.com/fleetscope/fleetscope-backend/internal/scheduler"
)

type createScheduleRequest struct {
	ID        string                      `json:"id,omitempty"` // generated when absent
	ExecuteAt time.Time                   `json:"execute_at"`
	Action    models.RecommendationAction `json:"action"`
}

// createSchedule serves POST /api/v1/schedules.
func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())
	var body createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid request body: "+err.Error(), reqID)
		return
	}
	if body.ExecuteAt.IsZero() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "execute_at is required", reqID)
		return
	}
	if body.Action.Kind == "" || body.Action.ClusterID == "" || body.Action.Target == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"action requires kind, cluster_id, and target", reqID)
		return
	}
	if body.ID == "" {
		body.ID = scheduler.NewID()
	}

	action, err := h.analytics.ScheduleAction(r.Context(), body.ID, body.ExecuteAt, body.Action)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, action)
}

// listSchedules serves GET /api/v1/schedules.
func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	actions, err := h.analytics.ListActions(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if actions == nil {
		actions = []*models.ScheduledAction{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"schedules": actions})
}

// getSchedule serves GET /api/v1/schedules/{id}.
func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	action, err := h.analytics.GetAction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, action)
}

// cancelSchedule serves DELETE /api/v1/schedules/{id}. Cancelling an unknown
// or already-terminal action is a no-op, matching the scheduler's semantics.
func (h *Handler) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.analytics.CancelAction(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
