package ml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// syntheticSeries builds an alternating 98/102 cpu series (mean 100, stddev 2)
// with a single spike injected at spikeIndex.
func syntheticSeries(n, spikeIndex int, spikeValue float64) models.TimeSeries {
	base := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	ts := models.TimeSeries{
		ClusterID:  "prod",
		ResourceID: "default/api",
		MetricType: models.MetricCPUUsage,
	}
	for i := 0; i < n; i++ {
		value := 98.0
		if i%2 == 1 {
			value = 102.0
		}
		if i == spikeIndex {
			value = spikeValue
		}
		ts.Points = append(ts.Points, models.TimeSeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     value,
		})
	}
	return ts
}

func TestDetectFlagsSingleSpike(t *testing.T) {
	// 200 samples, one 7.5 sigma spike: exactly one Critical anomaly.
	series := syntheticSeries(200, 100, 115)

	anomalies := NewAnomalyDetector().Detect([]models.TimeSeries{series})
	require.Len(t, anomalies, 1)

	a := anomalies[0]
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.GreaterOrEqual(t, a.DeviationSigma, 3.0)
	assert.Equal(t, 115.0, a.ObservedValue)
	assert.InDelta(t, 100.0, a.BaselineValue, 0.01)
	assert.True(t, a.DetectedAt.Equal(series.Points[100].Timestamp))
	assert.Equal(t, "prod", a.ClusterID)
	assert.Equal(t, "default/api", a.ResourceID)
}

func TestDetectIsDeterministic(t *testing.T) {
	series := []models.TimeSeries{
		syntheticSeries(200, 50, 120),
		syntheticSeries(200, 150, 80),
	}

	d := NewAnomalyDetector()
	first := d.Detect(series)
	second := d.Detect(series)

	require.Equal(t, len(first), len(second))
	for i := range first {
		a, b := first[i], second[i]
		// Identical except for the generated id.
		b.ID = a.ID
		assert.Equal(t, a, b)
	}
}

func TestDetectQuietSeriesProducesNothing(t *testing.T) {
	series := syntheticSeries(200, -1, 0)
	assert.Empty(t, NewAnomalyDetector().Detect([]models.TimeSeries{series}))
}

func TestDetectSkipsShortWindows(t *testing.T) {
	series := syntheticSeries(8, 5, 500)
	assert.Empty(t, NewAnomalyDetector().Detect([]models.TimeSeries{series}))
}

func TestSeverityThresholds(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, models.SeverityForSigma(3.0))
	assert.Equal(t, models.SeverityWarning, models.SeverityForSigma(2.5))
	assert.Equal(t, models.SeverityInfo, models.SeverityForSigma(1.9))
}
