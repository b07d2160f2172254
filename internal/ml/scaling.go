package ml

import (
	"fmt"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// defaultHorizon is how far ahead demand is projected.
const defaultHorizon = 30 * time.Minute

// minTrendPoints is the smallest window a trend fit is attempted over.
const minTrendPoints = 10

// ScalingPredictor projects near-future demand from the historical trend of
// one series using an ordinary least-squares fit.
type ScalingPredictor struct {
	Horizon time.Duration
}

// NewScalingPredictor returns a predictor with the default 30m horizon.
func NewScalingPredictor() *ScalingPredictor {
	return &ScalingPredictor{Horizon: defaultHorizon}
}

// Predict fits a linear trend over the series and extrapolates it across the
// horizon. Returns nil when the window is too small for a meaningful fit.
// Confidence is the fit's R², so noisy series yield low-confidence predictions.
func (p *ScalingPredictor) Predict(ts models.TimeSeries) *models.ScalingPrediction {
	if len(ts.Points) < minTrendPoints {
		return nil
	}

	// x in minutes since the first point keeps slope in value/minute.
	origin := ts.Points[0].Timestamp
	n := float64(len(ts.Points))
	var sumX, sumY, sumXY, sumXX float64
	for _, pt := range ts.Points {
		x := pt.Timestamp.Sub(origin).Minutes()
		sumX += x
		sumY += pt.Value
		sumXY += x * pt.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// R² of the fit.
	meanY := sumY / n
	var ssRes, ssTot float64
	for _, pt := range ts.Points {
		x := pt.Timestamp.Sub(origin).Minutes()
		fitted := intercept + slope*x
		ssRes += (pt.Value - fitted) * (pt.Value - fitted)
		ssTot += (pt.Value - meanY) * (pt.Value - meanY)
	}
	confidence := 0.0
	if ssTot > 0 {
		confidence = 1 - ssRes/ssTot
		if confidence < 0 {
			confidence = 0
		}
	}

	last := ts.Points[len(ts.Points)-1]
	lastX := last.Timestamp.Sub(origin).Minutes()
	predicted := intercept + slope*(lastX+p.Horizon.Minutes())
	if predicted < 0 {
		predicted = 0
	}

	return &models.ScalingPrediction{
		ClusterID:      ts.ClusterID,
		ResourceID:     ts.ResourceID,
		MetricType:     ts.MetricType,
		CurrentValue:   last.Value,
		PredictedValue: predicted,
		Horizon:        formatHorizon(p.Horizon),
		SlopePerMinute: slope,
		Confidence:     confidence,
	}
}

func formatHorizon(d time.Duration) string {
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
