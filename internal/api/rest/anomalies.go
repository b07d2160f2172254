package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
)

// listAnomalies serves GET /api/v1/anomalies. Detection runs over the query
// window before results are returned, so the response always reflects the
// samples currently in the store.
func (h *Handler) listAnomalies(w http.ResponseWriter, r *http.Request) {
	filter, err := anomalyFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			err.Error(), logger.FromContext(r.Context()))
		return
	}

	anomalies, err := h.analytics.GetAnomalies(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"anomalies": anomalies})
}

func anomalyFilterFromQuery(r *http.Request) (models.AnomalyFilter, error) {
	q := r.URL.Query()
	filter := models.AnomalyFilter{
		ClusterID:  q.Get("cluster_id"),
		ResourceID: q.Get("resource_id"),
	}

	switch sev := q.Get("min_severity"); sev {
	case "":
	case string(models.SeverityInfo), string(models.SeverityWarning), string(models.SeverityCritical):
		filter.MinSeverity = models.Severity(sev)
	default:
		return filter, &queryParamError{"min_severity", sev}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return filter, &queryParamError{"limit", limitStr}
		}
		filter.Limit = limit
	}

	tr, err := timeRangeFromQuery(q.Get("start"), q.Get("end"))
	if err != nil {
		return filter, err
	}
	filter.TimeRange = tr
	return filter, nil
}

// timeRangeFromQuery parses optional RFC3339 start/end params. Both must be
// present or absent together.
func timeRangeFromQuery(startStr, endStr string) (*models.TimeRange, error) {
	if startStr == "" && endStr == "" {
		return nil, nil
	}
	if startStr == "" || endStr == "" {
		return nil, &queryParamError{"start/end", "both are required"}
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, &queryParamError{"start", startStr}
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return nil, &queryParamError{"end", endStr}
	}
	if !end.After(start) {
		return nil, &queryParamError{"end", "must be after start"}
	}
	return &models.TimeRange{Start: start, End: end}, nil
}

type queryParamError struct {
	param, value string
}

func (e *queryParamError) Error() string {
	return "invalid query parameter " + e.param + ": " + e.value
}
