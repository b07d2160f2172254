package ml

import (
	"fmt"
	"sort"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// correlationWindow bounds how far apart two anomalies may be detected and
// still count as concurrent.
const correlationWindow = 5 * time.Minute

// RootCauseEngine ranks candidate explanations for an anomaly by correlating
// it with other anomalies detected around the same time in the same cluster.
type RootCauseEngine struct{}

// NewRootCauseEngine returns the default engine.
func NewRootCauseEngine() *RootCauseEngine {
	return &RootCauseEngine{}
}

// Analyze scores every concurrent anomaly in the same cluster as a candidate
// cause. Candidates on the same resource rank above cross-resource ones, and
// closer-in-time, higher-severity candidates rank higher. The ranking is
// fully ordered so repeated runs over the same input agree.
func (e *RootCauseEngine) Analyze(target models.Anomaly, concurrent []models.Anomaly) models.RootCauseAnalysis {
	analysis := models.RootCauseAnalysis{AnomalyID: target.ID}

	for _, candidate := range concurrent {
		if candidate.ID == target.ID || candidate.ClusterID != target.ClusterID {
			continue
		}
		gap := candidate.DetectedAt.Sub(target.DetectedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > correlationWindow {
			continue
		}

		// Proximity in time dominates, severity breaks near ties, and a
		// candidate on the same resource is the strongest signal of all.
		score := 0.5 * (1 - float64(gap)/float64(correlationWindow))
		score += 0.2 * severityWeight(candidate.Severity)
		if candidate.ResourceID == target.ResourceID {
			score += 0.3
		}

		analysis.Causes = append(analysis.Causes, models.RankedCause{
			ResourceID: candidate.ResourceID,
			MetricType: candidate.MetricType,
			Score:      score,
			Explanation: fmt.Sprintf("%s anomaly on %s detected %s apart",
				candidate.MetricType, candidate.ResourceID, gap.Round(time.Second)),
		})
	}

	sort.Slice(analysis.Causes, func(i, j int) bool {
		a, b := analysis.Causes[i], analysis.Causes[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.MetricType < b.MetricType
	})

	if len(analysis.Causes) == 0 {
		analysis.Summary = fmt.Sprintf("no correlated anomalies found for %s on %s", target.MetricType, target.ResourceID)
	} else {
		top := analysis.Causes[0]
		analysis.Summary = fmt.Sprintf("most likely cause: %s shift on %s (score %.2f)", top.MetricType, top.ResourceID, top.Score)
	}
	return analysis
}

func severityWeight(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return 1
	case models.SeverityWarning:
		return 0.6
	default:
		return 0.3
	}
}
