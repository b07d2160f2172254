// Package rest exposes the analytics control plane over HTTP.
package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetscope/fleetscope-backend/internal/analytics"
	"github.com/fleetscope/fleetscope-backend/internal/api/middleware"
	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/notification"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
	"github.com/fleetscope/fleetscope-backend/internal/scheduler"
)

// Handler wires the API surface to the analytics facade, the cluster manager,
// and the notification service.
type Handler struct {
	analytics *analytics.Service
	manager   *cluster.Manager
	notifier  *notification.Service
	logger    *slog.Logger
}

// NewHandler creates the REST handler.
func NewHandler(svc *analytics.Service, manager *cluster.Manager, notifier *notification.Service, log *slog.Logger) *Handler {
	return &Handler{
		analytics: svc,
		manager:   manager,
		notifier:  notifier,
		logger:    log.With("component", "rest"),
	}
}

// SetupRoutes registers every route plus the ambient middleware chain.
func (h *Handler) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.Tracing)
	r.Use(middleware.StructuredLog)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/metrics/query", h.queryMetrics).Methods(http.MethodPost)
	api.HandleFunc("/metrics/aggregates/query", h.queryAggregates).Methods(http.MethodPost)

	api.HandleFunc("/anomalies", h.listAnomalies).Methods(http.MethodGet)

	api.HandleFunc("/recommendations", h.listRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/recommendations/{id}/dismiss", h.dismissRecommendation).Methods(http.MethodPost)
	api.HandleFunc("/recommendations/{id}/schedule", h.scheduleRecommendation).Methods(http.MethodPost)

	api.HandleFunc("/schedules", h.createSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules", h.listSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", h.getSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", h.cancelSchedule).Methods(http.MethodDelete)

	api.HandleFunc("/clusters", h.listClusters).Methods(http.MethodGet)
	api.HandleFunc("/clusters", h.registerCluster).Methods(http.MethodPost)
	api.HandleFunc("/clusters/{id}", h.removeCluster).Methods(http.MethodDelete)
	api.HandleFunc("/clusters/health", h.clustersHealth).Methods(http.MethodGet)

	api.HandleFunc("/notifications/channels", h.listChannels).Methods(http.MethodGet)
	api.HandleFunc("/notifications/channels", h.configureChannel).Methods(http.MethodPut)
}

// respondServiceError maps domain errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), reqID)
	case errors.Is(err, scheduler.ErrEmptyID):
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), reqID)
	case errors.Is(err, cluster.ErrClusterNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), reqID)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), reqID)
	}
}
