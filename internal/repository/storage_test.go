package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/migrations"
)

// forEachStorage runs fn against every Storage implementation so the memory
// store and the SQL store cannot drift apart.
func forEachStorage(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStorage())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		schema, err := migrations.FS.ReadFile("001_initial_schema.sql")
		require.NoError(t, err)
		require.NoError(t, s.RunMigrations(string(schema)))

		fn(t, s)
	})
}

func sampleAt(cluster, resource string, metric models.MetricType, value float64, ts time.Time) models.MetricSample {
	return models.MetricSample{
		ClusterID:    cluster,
		ResourceID:   resource,
		ResourceType: models.ResourceTypePod,
		MetricType:   metric,
		Value:        value,
		Timestamp:    ts,
	}
}

func TestSampleRoundTripAndFilters(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

		require.NoError(t, s.InsertSamples(ctx, []models.MetricSample{
			sampleAt("prod", "default/api", models.MetricCPUUsage, 100, base),
			sampleAt("prod", "default/api", models.MetricMemoryUsage, 512, base),
			sampleAt("prod", "default/worker", models.MetricCPUUsage, 50, base.Add(time.Minute)),
			sampleAt("staging", "default/api", models.MetricCPUUsage, 10, base),
		}))

		got, err := s.QuerySamples(ctx, models.MetricsQuery{
			ClusterID:   "prod",
			MetricTypes: []models.MetricType{models.MetricCPUUsage},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, sm := range got {
			assert.Equal(t, "prod", sm.ClusterID)
			assert.Equal(t, models.MetricCPUUsage, sm.MetricType)
		}

		// Half-open range: End is exclusive.
		got, err = s.QuerySamples(ctx, models.MetricsQuery{
			TimeRange: &models.TimeRange{Start: base, End: base.Add(time.Minute)},
		})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestPruneSamplesRespectsCutoff(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		cutoff := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.InsertSamples(ctx, []models.MetricSample{
			sampleAt("prod", "default/api", models.MetricCPUUsage, 1, cutoff.Add(-time.Hour)),
			sampleAt("prod", "default/api", models.MetricCPUUsage, 2, cutoff), // exactly at cutoff: kept
			sampleAt("prod", "default/api", models.MetricCPUUsage, 3, cutoff.Add(time.Hour)),
		}))

		pruned, err := s.PruneSamples(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), pruned)

		got, err := s.QuerySamples(ctx, models.MetricsQuery{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestUpsertAggregateReplacesOnKey(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		hour := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

		agg := models.AggregatedMetric{
			ClusterID:  "prod",
			ResourceID: "default/api",
			MetricType: models.MetricCPUUsage,
			HourBucket: hour,
			Count:      60,
			Min:        10, Max: 90, Mean: 50, StdDev: 12,
		}
		require.NoError(t, s.UpsertAggregate(ctx, agg))

		// Re-aggregating the same hour replaces, never appends.
		agg.Count = 61
		agg.Mean = 51
		require.NoError(t, s.UpsertAggregate(ctx, agg))

		got, err := s.QueryAggregates(ctx, models.AggregatedQuery{ClusterID: "prod"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(61), got[0].Count)
		assert.Equal(t, 51.0, got[0].Mean)
		assert.True(t, got[0].HourBucket.Equal(hour))
	})
}

func TestInsertAnomalyIgnoresDuplicates(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		at := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

		a := models.Anomaly{
			ID:             uuid.New().String(),
			ClusterID:      "prod",
			ResourceID:     "default/api",
			DetectedAt:     at,
			MetricType:     models.MetricCPUUsage,
			Severity:       models.SeverityCritical,
			Confidence:     0.99,
			BaselineValue:  50,
			ObservedValue:  400,
			DeviationSigma: 5.2,
			Description:    "cpu_usage spiked 5.2 sigma above baseline",
			RelatedMetrics: []string{"memory_usage"},
		}
		require.NoError(t, s.InsertAnomaly(ctx, a))

		// Same natural key, fresh id: must be a no-op.
		dup := a
		dup.ID = uuid.New().String()
		require.NoError(t, s.InsertAnomaly(ctx, dup))

		got, err := s.ListAnomalies(ctx, models.AnomalyFilter{ClusterID: "prod"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, []string{"memory_usage"}, got[0].RelatedMetrics)
	})
}

func TestListAnomaliesOrderSeverityAndLimit(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		base := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

		severities := []models.Severity{models.SeverityInfo, models.SeverityWarning, models.SeverityCritical}
		for i, sev := range severities {
			require.NoError(t, s.InsertAnomaly(ctx, models.Anomaly{
				ID:          uuid.New().String(),
				ClusterID:   "prod",
				ResourceID:  "default/api",
				DetectedAt:  base.Add(time.Duration(i) * time.Minute),
				MetricType:  models.MetricCPUUsage,
				Severity:    sev,
				Description: string(sev),
			}))
		}

		got, err := s.ListAnomalies(ctx, models.AnomalyFilter{MinSeverity: models.SeverityWarning})
		require.NoError(t, err)
		require.Len(t, got, 2)
		// Newest first.
		assert.Equal(t, models.SeverityCritical, got[0].Severity)
		assert.Equal(t, models.SeverityWarning, got[1].Severity)

		got, err = s.ListAnomalies(ctx, models.AnomalyFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, models.SeverityCritical, got[0].Severity)
	})
}

func TestRecommendationRoundTrip(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		replicas := int32(5)

		rec := models.Recommendation{
			ID:         uuid.New().String(),
			ClusterID:  "prod",
			CreatedAt:  time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
			Type:       models.RecommendScaleUp,
			Priority:   models.PriorityHigh,
			Confidence: 0.8,
			CostImpact: models.CostImpact{MonthlySavingsUSD: -42.5, Description: "adds one replica"},
			Action: models.RecommendationAction{
				Kind:      models.ActionScaleDeployment,
				ClusterID: "prod",
				Namespace: "default",
				Target:    "api",
				Replicas:  &replicas,
			},
			Status: models.RecommendationStatus{Kind: models.RecommendationPending},
		}
		require.NoError(t, s.UpsertRecommendation(ctx, rec))

		got, err := s.GetRecommendation(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.CostImpact, got.CostImpact)
		require.NotNil(t, got.Action.Replicas)
		assert.Equal(t, replicas, *got.Action.Replicas)
		assert.Equal(t, models.RecommendationPending, got.Status.Kind)

		// Upsert with the same id overwrites.
		rec.Status = models.RecommendationStatus{Kind: models.RecommendationDismissed, Reason: "operator declined"}
		require.NoError(t, s.UpsertRecommendation(ctx, rec))

		list, err := s.ListRecommendations(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.RecommendationDismissed, list[0].Status.Kind)

		_, err = s.GetRecommendation(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestScheduleCRUD(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		replicas := int32(3)

		action := &models.ScheduledAction{
			ID:        uuid.New().String(),
			ExecuteAt: now.Add(time.Hour),
			Status:    models.SchedulePending,
			Action: models.RecommendationAction{
				Kind:      models.ActionScaleDeployment,
				ClusterID: "prod",
				Namespace: "default",
				Target:    "api",
				Replicas:  &replicas,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.InsertSchedule(ctx, action))

		got, err := s.GetSchedule(ctx, action.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SchedulePending, got.Status)
		assert.Equal(t, models.ActionScaleDeployment, got.Action.Kind)

		got.Status = models.ScheduleCancelled
		got.UpdatedAt = now.Add(time.Minute)
		require.NoError(t, s.UpdateSchedule(ctx, got))

		list, err := s.ListSchedules(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.ScheduleCancelled, list[0].Status)

		missing := &models.ScheduledAction{ID: "missing", Status: models.SchedulePending}
		assert.ErrorIs(t, s.UpdateSchedule(ctx, missing), ErrNotFound)

		_, err = s.GetSchedule(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
