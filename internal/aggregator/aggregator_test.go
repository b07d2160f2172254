package aggregator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

var aggNow = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

func newAggregator(store repository.Storage) *Aggregator {
	return New(store, repository.RetentionPolicy{RawDays: 7, AggregatedDays: 30}, time.Hour, slog.Default())
}

func insertCPU(t *testing.T, store repository.Storage, resource string, ts time.Time, values ...float64) {
	t.Helper()
	samples := make([]models.MetricSample, 0, len(values))
	for i, v := range values {
		samples = append(samples, models.MetricSample{
			ClusterID:    "prod",
			ResourceID:   resource,
			ResourceType: models.ResourceTypePod,
			MetricType:   models.MetricCPUUsage,
			Value:        v,
			Timestamp:    ts.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, store.InsertSamples(context.Background(), samples))
}

func TestRunOnceAggregatesCompletedHoursOnly(t *testing.T) {
	store := repository.NewMemoryStorage()
	completed := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	current := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	insertCPU(t, store, "default/api", completed, 10, 20, 30)
	insertCPU(t, store, "default/api", current, 500) // still accumulating

	require.NoError(t, newAggregator(store).RunOnce(context.Background(), aggNow))

	aggs, err := store.QueryAggregates(context.Background(), models.AggregatedQuery{})
	require.NoError(t, err)
	require.Len(t, aggs, 1)

	agg := aggs[0]
	assert.True(t, agg.HourBucket.Equal(completed))
	assert.Equal(t, int64(3), agg.Count)
	assert.Equal(t, 10.0, agg.Min)
	assert.Equal(t, 30.0, agg.Max)
	assert.InDelta(t, 20.0, agg.Mean, 0.001)
	assert.InDelta(t, 8.165, agg.StdDev, 0.001)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStorage()
	completed := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	insertCPU(t, store, "default/api", completed, 10, 20, 30)

	agg := newAggregator(store)
	require.NoError(t, agg.RunOnce(context.Background(), aggNow))
	first, err := store.QueryAggregates(context.Background(), models.AggregatedQuery{})
	require.NoError(t, err)

	require.NoError(t, agg.RunOnce(context.Background(), aggNow))
	second, err := store.QueryAggregates(context.Background(), models.AggregatedQuery{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunOncePrunesExpiredData(t *testing.T) {
	store := repository.NewMemoryStorage()
	ctx := context.Background()

	// Raw sample past the 7-day window and an aggregate past the 30-day window.
	insertCPU(t, store, "default/old", aggNow.Add(-8*24*time.Hour), 1)
	insertCPU(t, store, "default/fresh", aggNow.Add(-2*time.Hour), 2)
	require.NoError(t, store.UpsertAggregate(ctx, models.AggregatedMetric{
		ClusterID: "prod", ResourceID: "default/ancient", MetricType: models.MetricCPUUsage,
		HourBucket: aggNow.Add(-31 * 24 * time.Hour).Truncate(time.Hour), Count: 1,
	}))

	require.NoError(t, newAggregator(store).RunOnce(ctx, aggNow))

	samples, err := store.QuerySamples(ctx, models.MetricsQuery{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "default/fresh", samples[0].ResourceID)

	aggs, err := store.QueryAggregates(ctx, models.AggregatedQuery{})
	require.NoError(t, err)
	for _, a := range aggs {
		assert.NotEqual(t, "default/ancient", a.ResourceID)
	}
}

func TestBucketSamplesSplitsByKeyAndHour(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	samples := []models.MetricSample{
		{ClusterID: "prod", ResourceID: "a", MetricType: models.MetricCPUUsage, Value: 1, Timestamp: base},
		{ClusterID: "prod", ResourceID: "a", MetricType: models.MetricCPUUsage, Value: 3, Timestamp: base.Add(time.Minute)},
		{ClusterID: "prod", ResourceID: "a", MetricType: models.MetricCPUUsage, Value: 5, Timestamp: base.Add(time.Hour)},
		{ClusterID: "prod", ResourceID: "b", MetricType: models.MetricCPUUsage, Value: 7, Timestamp: base},
	}

	buckets := bucketSamples(samples)
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(2), buckets[0].Count)
	assert.Equal(t, 2.0, buckets[0].Mean)
}
