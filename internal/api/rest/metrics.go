package rest

import (
	"encoding/json"
	"net/http"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
)

// queryMetrics serves POST /api/v1/metrics/query. A query without a time
// range reads live cluster state; with one it reads stored samples.
func (h *Handler) queryMetrics(w http.ResponseWriter, r *http.Request) {
	var q models.MetricsQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid query body: "+err.Error(), logger.FromContext(r.Context()))
		return
	}
	if q.TimeRange != nil && !q.TimeRange.End.After(q.TimeRange.Start) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"time_range end must be after start", logger.FromContext(r.Context()))
		return
	}

	samples, err := h.analytics.QueryMetrics(r.Context(), q)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if samples == nil {
		samples = []models.MetricSample{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// queryAggregates serves POST /api/v1/metrics/aggregates/query.
func (h *Handler) queryAggregates(w http.ResponseWriter, r *http.Request) {
	var q models.AggregatedQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid query body: "+err.Error(), logger.FromContext(r.Context()))
		return
	}

	aggregates, err := h.analytics.QueryAggregates(r.Context(), q)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if aggregates == nil {
		aggregates = []models.AggregatedMetric{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"aggregates": aggregates})
}
