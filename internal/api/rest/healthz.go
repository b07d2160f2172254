package rest

import "net/http"

// healthz serves GET /healthz. The process is "degraded" rather than down
// when storage fails the probe; per-cluster breaker state is informational
// and never affects the status code.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	snapshot := h.analytics.Health(r.Context())

	status := http.StatusOK
	for _, c := range snapshot.Components {
		if !c.Healthy {
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, snapshot)
}
