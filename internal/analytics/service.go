// Package analytics is the query/command facade over storage, the cluster
// manager, and the inference engines. It owns no state of its own: every call
// delegates and composes.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/ml"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
	"github.com/fleetscope/fleetscope-backend/internal/scheduler"
)

// detectionWindow is how far back detection and recommendation queries look
// when the caller does not narrow the range.
const detectionWindow = 24 * time.Hour

// ErrInvalidTransition marks a recommendation lifecycle change that its
// current status does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// Service is the analytics facade.
type Service struct {
	store     repository.Storage
	manager   *cluster.Manager
	scheduler *scheduler.Service
	detector  *ml.AnomalyDetector
	rootCause *ml.RootCauseEngine
	predictor *ml.ScalingPredictor
	recommend *ml.RecommendationEngine
	logger    *slog.Logger
	now       func() time.Time
}

// New composes the facade.
func New(store repository.Storage, manager *cluster.Manager, sched *scheduler.Service, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		manager:   manager,
		scheduler: sched,
		detector:  ml.NewAnomalyDetector(),
		rootCause: ml.NewRootCauseEngine(),
		predictor: ml.NewScalingPredictor(),
		recommend: ml.NewRecommendationEngine(),
		logger:    logger.With("component", "analytics"),
		now:       time.Now,
	}
}

// SetDetectionPolicy overrides the anomaly detector's sigma threshold and
// baseline window. Non-positive values leave the defaults in place.
func (s *Service) SetDetectionPolicy(sigmaThreshold float64, baselineWindow int) {
	if sigmaThreshold > 0 {
		s.detector.SigmaThreshold = sigmaThreshold
	}
	if baselineWindow > 0 {
		s.detector.BaselineWindow = baselineWindow
	}
}

// QueryMetrics serves stored samples when the query carries a time range and
// a live fleet read when it does not. Live reads degrade per cluster: samples
// from healthy clusters are returned even when others are down.
func (s *Service) QueryMetrics(ctx context.Context, q models.MetricsQuery) ([]models.MetricSample, error) {
	if q.TimeRange != nil {
		return s.store.QuerySamples(ctx, q)
	}

	result, err := s.manager.SampleFleet(ctx, q.ClusterID)
	if err != nil {
		return nil, err
	}
	var out []models.MetricSample
	for _, clusterSamples := range result.Samples {
		for _, sample := range clusterSamples {
			if q.MatchesSample(sample) {
				out = append(out, sample)
			}
		}
	}
	return out, nil
}

// QueryAggregates serves stored hourly rollups.
func (s *Service) QueryAggregates(ctx context.Context, q models.AggregatedQuery) ([]models.AggregatedMetric, error) {
	return s.store.QueryAggregates(ctx, q)
}

// GetAnomalies runs detection over stored samples in the filter's window,
// persists new findings (idempotently), and returns the stored anomalies
// matching the filter. Detection on the same window is deterministic, so
// repeated queries do not multiply anomalies.
func (s *Service) GetAnomalies(ctx context.Context, f models.AnomalyFilter) ([]models.Anomaly, error) {
	window := f.TimeRange
	if window == nil {
		now := s.now().UTC()
		window = &models.TimeRange{Start: now.Add(-detectionWindow), End: now}
	}

	samples, err := s.store.QuerySamples(ctx, models.MetricsQuery{
		ClusterID: f.ClusterID,
		TimeRange: window,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read samples for detection: %w", err)
	}

	detected := s.detector.Detect(models.GroupSeries(samples))
	for i := range detected {
		analysis := s.rootCause.Analyze(detected[i], detected)
		if len(analysis.Causes) > 0 {
			detected[i].RootCause = analysis.Summary
			for _, cause := range analysis.Causes {
				detected[i].RelatedMetrics = append(detected[i].RelatedMetrics,
					cause.ResourceID+":"+string(cause.MetricType))
			}
		}
		if err := s.store.InsertAnomaly(ctx, detected[i]); err != nil {
			return nil, fmt.Errorf("failed to persist anomaly: %w", err)
		}
		metrics.AnomaliesDetectedTotal.WithLabelValues(detected[i].ClusterID, string(detected[i].Severity)).Inc()
	}

	if f.TimeRange == nil {
		f.TimeRange = window
	}
	return s.store.ListAnomalies(ctx, f)
}

// GetRecommendations regenerates recommendations from the recent sample
// window, persists the new ones, and returns the newest stored ones. Ids are
// stable per (cluster, target, type), and rows that already exist are left
// alone: their lifecycle status is owned by dismiss/schedule, so repeated
// queries neither multiply rows nor resurrect dismissed recommendations.
func (s *Service) GetRecommendations(ctx context.Context, limit int) ([]models.Recommendation, error) {
	now := s.now().UTC()
	window := &models.TimeRange{Start: now.Add(-detectionWindow), End: now}

	samples, err := s.store.QuerySamples(ctx, models.MetricsQuery{TimeRange: window})
	if err != nil {
		return nil, fmt.Errorf("failed to read samples for recommendations: %w", err)
	}

	series := models.GroupSeries(samples)
	var predictions []models.ScalingPrediction
	for _, ts := range series {
		if pred := s.predictor.Predict(ts); pred != nil {
			predictions = append(predictions, *pred)
		}
	}

	anomalies, err := s.store.ListAnomalies(ctx, models.AnomalyFilter{TimeRange: window})
	if err != nil {
		return nil, fmt.Errorf("failed to read anomalies for recommendations: %w", err)
	}

	recs := s.recommend.Generate(ml.Input{
		Predictions: predictions,
		Anomalies:   anomalies,
	}, now)
	for _, rec := range recs {
		if _, err := s.store.GetRecommendation(ctx, rec.ID); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to read recommendation %s: %w", rec.ID, err)
		}
		if err := s.store.UpsertRecommendation(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to persist recommendation: %w", err)
		}
	}

	return s.store.ListRecommendations(ctx, limit)
}

// DismissRecommendation moves a recommendation to dismissed with a reason.
func (s *Service) DismissRecommendation(ctx context.Context, id, reason string) error {
	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.CanTransitionTo(models.RecommendationDismissed) {
		return fmt.Errorf("recommendation %s is %s and cannot be dismissed: %w", id, rec.Status.Kind, ErrInvalidTransition)
	}
	rec.Status = models.RecommendationStatus{Kind: models.RecommendationDismissed, Reason: reason}
	return s.store.UpsertRecommendation(ctx, *rec)
}

// ScheduleRecommendation persists the recommendation's action as a scheduled
// action and marks the recommendation scheduled.
func (s *Service) ScheduleRecommendation(ctx context.Context, id string, executeAt time.Time) (*models.ScheduledAction, error) {
	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransitionTo(models.RecommendationScheduled) {
		return nil, fmt.Errorf("recommendation %s is %s and cannot be scheduled: %w", id, rec.Status.Kind, ErrInvalidTransition)
	}

	action, err := s.scheduler.Schedule(ctx, scheduler.NewID(), executeAt, rec.Action)
	if err != nil {
		return nil, err
	}

	at := executeAt.UTC()
	rec.Status = models.RecommendationStatus{Kind: models.RecommendationScheduled, ExecuteAt: &at}
	if err := s.store.UpsertRecommendation(ctx, *rec); err != nil {
		return nil, err
	}
	return action, nil
}

// ScheduleAction persists an ad hoc remediation action.
func (s *Service) ScheduleAction(ctx context.Context, id string, executeAt time.Time, action models.RecommendationAction) (*models.ScheduledAction, error) {
	return s.scheduler.Schedule(ctx, id, executeAt, action)
}

// CancelAction cancels a pending scheduled action.
func (s *Service) CancelAction(ctx context.Context, id string) error {
	return s.scheduler.Cancel(ctx, id)
}

// GetAction returns one scheduled action.
func (s *Service) GetAction(ctx context.Context, id string) (*models.ScheduledAction, error) {
	return s.scheduler.Get(ctx, id)
}

// ListActions returns all scheduled actions.
func (s *Service) ListActions(ctx context.Context) ([]*models.ScheduledAction, error) {
	return s.scheduler.List(ctx)
}

// Health assembles the full health snapshot: per-cluster breaker state plus
// a storage probe.
func (s *Service) Health(ctx context.Context) models.HealthSnapshot {
	now := s.now().UTC()
	snapshot := models.HealthSnapshot{
		Clusters:  s.manager.ClustersHealth(),
		Timestamp: now,
	}

	storageHealth := models.ComponentHealthStatus{Component: "storage", Healthy: true, CheckedAt: now}
	if _, err := s.store.ListSchedules(ctx); err != nil {
		storageHealth.Healthy = false
		storageHealth.Message = err.Error()
	}
	snapshot.Components = append(snapshot.Components, storageHealth)
	return snapshot
}
