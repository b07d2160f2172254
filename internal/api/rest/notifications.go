package rest

import (
	"encoding/json"
	"net/http"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
)

// listChannels serves GET /api/v1/notifications/channels.
func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"channels": h.notifier.Channels()})
}

// configureChannel serves PUT /api/v1/notifications/channels: upsert by id.
func (h *Handler) configureChannel(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())
	var ch models.NotificationChannel
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid request body: "+err.Error(), reqID)
		return
	}

	if err := h.notifier.ConfigureChannel(ch); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), reqID)
		return
	}
	respondJSON(w, http.StatusOK, ch)
}
