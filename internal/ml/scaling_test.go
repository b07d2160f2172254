package ml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

func trendSeries(start, slopePerMinute float64, n int) models.TimeSeries {
	base := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	ts := models.TimeSeries{
		ClusterID:  "prod",
		ResourceID: "default/api",
		MetricType: models.MetricCPUUsage,
	}
	for i := 0; i < n; i++ {
		ts.Points = append(ts.Points, models.TimeSeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     start + slopePerMinute*float64(i),
		})
	}
	return ts
}

func TestPredictExtrapolatesLinearTrend(t *testing.T) {
	// 100 + 2/min over 60 points; a perfect fit.
	pred := NewScalingPredictor().Predict(trendSeries(100, 2, 60))
	require.NotNil(t, pred)

	assert.InDelta(t, 2.0, pred.SlopePerMinute, 0.001)
	assert.InDelta(t, 218.0, pred.CurrentValue, 0.001) // 100 + 2*59
	// 30m ahead: 218 + 2*30.
	assert.InDelta(t, 278.0, pred.PredictedValue, 0.01)
	assert.InDelta(t, 1.0, pred.Confidence, 0.001)
	assert.Equal(t, "30m", pred.Horizon)
}

func TestPredictFlatSeriesHasZeroSlope(t *testing.T) {
	pred := NewScalingPredictor().Predict(trendSeries(500, 0, 30))
	require.NotNil(t, pred)
	assert.InDelta(t, 0.0, pred.SlopePerMinute, 0.001)
	assert.InDelta(t, 500.0, pred.PredictedValue, 0.001)
}

func TestPredictDecliningTrendClampsAtZero(t *testing.T) {
	// 50 - 5/min hits zero well before the horizon.
	pred := NewScalingPredictor().Predict(trendSeries(50, -5, 20))
	require.NotNil(t, pred)
	assert.Equal(t, 0.0, pred.PredictedValue)
}

func TestPredictTooFewPoints(t *testing.T) {
	assert.Nil(t, NewScalingPredictor().Predict(trendSeries(100, 1, 5)))
}
