package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
)

// listClusters serves GET /api/v1/clusters.
func (h *Handler) listClusters(w http.ResponseWriter, r *http.Request) {
	clusters := h.manager.ListClusters()
	if clusters == nil {
		clusters = []models.Cluster{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"clusters": clusters})
}

// registerCluster serves POST /api/v1/clusters. Registration verifies
// connectivity before the cluster joins the fleet.
func (h *Handler) registerCluster(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())
	var body struct {
		KubeconfigPath string `json:"kubeconfig_path,omitempty"`
		Context        string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid request body: "+err.Error(), reqID)
		return
	}

	clusterInfo, err := h.manager.AddCluster(r.Context(), body.KubeconfigPath, body.Context)
	if err != nil {
		respondError(w, http.StatusBadGateway, ErrCodeClusterDown, err.Error(), reqID)
		return
	}
	respondJSON(w, http.StatusCreated, clusterInfo)
}

// removeCluster serves DELETE /api/v1/clusters/{id}.
func (h *Handler) removeCluster(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RemoveCluster(mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// clustersHealth serves GET /api/v1/clusters/health with per-cluster breaker
// state and failure counts.
func (h *Handler) clustersHealth(w http.ResponseWriter, r *http.Request) {
	health := h.manager.ClustersHealth()
	if health == nil {
		health = []models.ClusterHealth{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"clusters": health})
}
