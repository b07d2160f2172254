// Package ml holds the inference engines: anomaly detection, root-cause
// ranking, scaling prediction, and recommendation generation. Every engine is
// a pure function over sample windows — no I/O, and deterministic given the
// same input (generated ids excluded).
package ml

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

const (
	// defaultSigmaThreshold flags points at least this many standard
	// deviations from the rolling baseline.
	defaultSigmaThreshold = 2.0
	// defaultBaselineWindow is how many preceding points form the baseline.
	defaultBaselineWindow = 20
	// minBaselinePoints below which no detection is attempted.
	minBaselinePoints = 10
)

// AnomalyDetector flags points that deviate from a rolling mean/stddev
// baseline computed over the preceding window.
type AnomalyDetector struct {
	SigmaThreshold float64
	BaselineWindow int
}

// NewAnomalyDetector returns a detector with the default 2σ / 20-point policy.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{
		SigmaThreshold: defaultSigmaThreshold,
		BaselineWindow: defaultBaselineWindow,
	}
}

// Detect scans each series and returns one anomaly per flagged point. The
// baseline for a point is the window strictly before it, so a spike does not
// mask itself and points after a spike see an inflated (protective) stddev.
func (d *AnomalyDetector) Detect(series []models.TimeSeries) []models.Anomaly {
	var out []models.Anomaly
	for _, ts := range series {
		out = append(out, d.detectSeries(ts)...)
	}
	return out
}

func (d *AnomalyDetector) detectSeries(ts models.TimeSeries) []models.Anomaly {
	var out []models.Anomaly
	for i := range ts.Points {
		start := i - d.BaselineWindow
		if start < 0 {
			start = 0
		}
		baseline := ts.Points[start:i]
		if len(baseline) < minBaselinePoints {
			continue
		}

		mean, stddev := meanStdDev(baseline)
		if stddev == 0 {
			// Flat baseline: any change is infinitely many sigmas; treat a
			// nonzero delta as exactly the threshold to avoid dividing by zero.
			if ts.Points[i].Value == mean {
				continue
			}
			stddev = math.Abs(ts.Points[i].Value-mean) / d.SigmaThreshold
		}

		sigma := math.Abs(ts.Points[i].Value-mean) / stddev
		if sigma < d.SigmaThreshold {
			continue
		}

		out = append(out, models.Anomaly{
			ID:             uuid.New().String(),
			ClusterID:      ts.ClusterID,
			ResourceID:     ts.ResourceID,
			DetectedAt:     ts.Points[i].Timestamp,
			MetricType:     ts.MetricType,
			Severity:       models.SeverityForSigma(sigma),
			Confidence:     confidenceForSigma(sigma),
			BaselineValue:  mean,
			ObservedValue:  ts.Points[i].Value,
			DeviationSigma: sigma,
			Description: fmt.Sprintf("%s deviated %.1f sigma from baseline (observed %.2f, baseline %.2f)",
				ts.MetricType, sigma, ts.Points[i].Value, mean),
		})
	}
	return out
}

// confidenceForSigma maps deviation to a 0..1 confidence, saturating at 5σ.
func confidenceForSigma(sigma float64) float64 {
	c := sigma / 5
	if c > 1 {
		return 1
	}
	return c
}

// meanStdDev returns the mean and population standard deviation of the window.
func meanStdDev(points []models.TimeSeriesPoint) (float64, float64) {
	if len(points) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))

	var variance float64
	for _, p := range points {
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(len(points))
	return mean, math.Sqrt(variance)
}
