package analytics

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
	"github.com/fleetscope/fleetscope-backend/internal/scheduler"
)

var svcNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, repository.Storage) {
	t.Helper()
	store := repository.NewMemoryStorage()
	manager := cluster.NewManagerForTest(cluster.Options{}, slog.Default(), nil)
	sched := scheduler.New(store, scheduler.ExecutorFunc(
		func(context.Context, models.RecommendationAction) error { return nil },
	), time.Minute, slog.Default())

	s := New(store, manager, sched, slog.Default())
	s.now = func() time.Time { return svcNow }
	return s, store
}

// seedSpikedCPU inserts an alternating 98/102 series with one large spike.
func seedSpikedCPU(t *testing.T, store repository.Storage, resource string, spikeValue float64) {
	t.Helper()
	start := svcNow.Add(-4 * time.Hour)
	samples := make([]models.MetricSample, 0, 200)
	for i := 0; i < 200; i++ {
		value := 98.0
		if i%2 == 1 {
			value = 102.0
		}
		if i == 100 {
			value = spikeValue
		}
		samples = append(samples, models.MetricSample{
			ClusterID:    "prod",
			ResourceID:   resource,
			ResourceType: models.ResourceTypePod,
			MetricType:   models.MetricCPUUsage,
			Value:        value,
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, store.InsertSamples(context.Background(), samples))
}

func TestQueryMetricsStoredPath(t *testing.T) {
	s, store := newService(t)
	seedSpikedCPU(t, store, "default/api", 115)

	got, err := s.QueryMetrics(context.Background(), models.MetricsQuery{
		ClusterID: "prod",
		TimeRange: &models.TimeRange{Start: svcNow.Add(-5 * time.Hour), End: svcNow},
	})
	require.NoError(t, err)
	assert.Len(t, got, 200)
}

func TestGetAnomaliesDetectsAndIsIdempotent(t *testing.T) {
	s, store := newService(t)
	seedSpikedCPU(t, store, "default/api", 115)
	ctx := context.Background()

	anomalies, err := s.GetAnomalies(ctx, models.AnomalyFilter{ClusterID: "prod"})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.SeverityCritical, anomalies[0].Severity)
	assert.GreaterOrEqual(t, anomalies[0].DeviationSigma, 3.0)

	// Re-querying the same window must not duplicate stored anomalies.
	again, err := s.GetAnomalies(ctx, models.AnomalyFilter{ClusterID: "prod"})
	require.NoError(t, err)
	assert.Len(t, again, 1)

	stored, err := store.ListAnomalies(ctx, models.AnomalyFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestGetAnomaliesEnrichesRootCause(t *testing.T) {
	s, store := newService(t)
	// Two resources spiking in the same window correlate with each other.
	seedSpikedCPU(t, store, "default/api", 115)
	seedSpikedCPU(t, store, "default/db", 120)

	anomalies, err := s.GetAnomalies(context.Background(), models.AnomalyFilter{})
	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	for _, a := range anomalies {
		assert.NotEmpty(t, a.RootCause)
		assert.NotEmpty(t, a.RelatedMetrics)
	}
}

// seedGrowthCPU inserts steady growth: 100 + 5/min over an hour, so the 30m
// projection adds ~38% on top of the final value.
func seedGrowthCPU(t *testing.T, store repository.Storage, resource string) {
	t.Helper()
	start := svcNow.Add(-time.Hour)
	var samples []models.MetricSample
	for i := 0; i < 60; i++ {
		samples = append(samples, models.MetricSample{
			ClusterID:    "prod",
			ResourceID:   resource,
			ResourceType: models.ResourceTypePod,
			MetricType:   models.MetricCPUUsage,
			Value:        100 + 5*float64(i),
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, store.InsertSamples(context.Background(), samples))
}

func TestGetRecommendationsFromGrowthTrend(t *testing.T) {
	s, store := newService(t)
	seedGrowthCPU(t, store, "default/api")

	recs, err := s.GetRecommendations(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, models.RecommendScaleUp, recs[0].Type)
	assert.Equal(t, models.RecommendationPending, recs[0].Status.Kind)
}

func TestGetRecommendationsDoesNotMultiplyRows(t *testing.T) {
	s, store := newService(t)
	seedGrowthCPU(t, store, "default/api")
	ctx := context.Background()

	first, err := s.GetRecommendations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The fleet state has not changed, so re-querying addresses the same
	// stored row rather than growing the table one row per query.
	for i := 0; i < 3; i++ {
		again, err := s.GetRecommendations(ctx, 0)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, first[0].ID, again[0].ID)
	}

	stored, err := store.ListRecommendations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestGetRecommendationsKeepsDismissedStatus(t *testing.T) {
	s, store := newService(t)
	seedGrowthCPU(t, store, "default/api")
	ctx := context.Background()

	first, err := s.GetRecommendations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, s.DismissRecommendation(ctx, first[0].ID, "operator declined"))

	// Regeneration over the same window must not flip it back to pending.
	after, err := s.GetRecommendations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, first[0].ID, after[0].ID)
	assert.Equal(t, models.RecommendationDismissed, after[0].Status.Kind)
}

func TestRecommendationLifecycle(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	replicas := int32(2)
	rec := models.Recommendation{
		ID:        "rec-1",
		ClusterID: "prod",
		CreatedAt: svcNow,
		Type:      models.RecommendScaleUp,
		Priority:  models.PriorityHigh,
		Action: models.RecommendationAction{
			Kind: models.ActionScaleDeployment, ClusterID: "prod",
			Namespace: "default", Target: "api", Replicas: &replicas,
		},
		Status: models.RecommendationStatus{Kind: models.RecommendationPending},
	}
	require.NoError(t, store.UpsertRecommendation(ctx, rec))

	action, err := s.ScheduleRecommendation(ctx, "rec-1", svcNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, action.Status)

	got, err := store.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationScheduled, got.Status.Kind)

	// Scheduled can still be dismissed; dismissed is terminal.
	require.NoError(t, s.DismissRecommendation(ctx, "rec-1", "operator declined"))
	assert.Error(t, s.DismissRecommendation(ctx, "rec-1", "again"))
}

func TestScheduleAndCancelActions(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	replicas := int32(1)
	action := models.RecommendationAction{
		Kind: models.ActionScaleDeployment, ClusterID: "prod",
		Namespace: "default", Target: "api", Replicas: &replicas,
	}

	scheduled, err := s.ScheduleAction(ctx, "act-1", svcNow.Add(time.Hour), action)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, scheduled.Status)

	_, err = s.ScheduleAction(ctx, "", svcNow, action)
	assert.ErrorIs(t, err, scheduler.ErrEmptyID)

	require.NoError(t, s.CancelAction(ctx, "act-1"))
	got, err := s.GetAction(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, got.Status)

	list, err := s.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHealthSnapshot(t *testing.T) {
	s, _ := newService(t)

	snapshot := s.Health(context.Background())
	require.Len(t, snapshot.Components, 1)
	assert.Equal(t, "storage", snapshot.Components[0].Component)
	assert.True(t, snapshot.Components[0].Healthy)
	assert.Empty(t, snapshot.Clusters)
	assert.True(t, snapshot.Timestamp.Equal(svcNow))
}
