package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// Pricing assumptions for cost impact estimates, in USD per month. These are
// deliberately coarse: the point is ranking recommendations, not billing.
const (
	cpuCostPerCoreMonth   = 15.0
	memoryCostPerGiMonth  = 2.0
	scaleUpGrowthFactor   = 1.3 // predicted/current ratio that triggers scale-up
	scaleDownIdleFraction = 0.5 // predicted/current ratio that triggers scale-down
	minPredictConfidence  = 0.6
	limitsHeadroomFactor  = 1.2 // proposed limit = observed peak * headroom
)

// Input is everything the recommendation engine consumes in one run.
type Input struct {
	Predictions []models.ScalingPrediction
	Anomalies   []models.Anomaly
	// Replicas maps resource id to current replica count for workloads the
	// caller resolved; resources missing here are assumed to run 1 replica.
	Replicas map[string]int32
}

// RecommendationEngine converts predictor and detector output into concrete,
// costed recommendations.
type RecommendationEngine struct{}

// NewRecommendationEngine returns the default engine.
func NewRecommendationEngine() *RecommendationEngine {
	return &RecommendationEngine{}
}

// Generate produces at most one recommendation per (resource, concern).
// Output is sorted by cluster then resource, and ids derive from the
// recommendation's natural key, so repeated runs over the same input produce
// the same list. now stamps CreatedAt.
func (e *RecommendationEngine) Generate(input Input, now time.Time) []models.Recommendation {
	var out []models.Recommendation

	for _, pred := range input.Predictions {
		if pred.Confidence < minPredictConfidence || pred.CurrentValue <= 0 {
			continue
		}
		namespace, name, ok := splitResourceID(pred.ResourceID)
		if !ok {
			// Nodes and other non-namespaced resources cannot be scaled here.
			continue
		}
		replicas := input.Replicas[pred.ResourceID]
		if replicas <= 0 {
			replicas = 1
		}

		ratio := pred.PredictedValue / pred.CurrentValue
		switch {
		case pred.MetricType == models.MetricCPUUsage && ratio >= scaleUpGrowthFactor:
			proposed := replicas + 1
			out = append(out, e.scaleRecommendation(
				models.RecommendScaleUp, pred, namespace, name, proposed, now,
				fmt.Sprintf("cpu demand projected to grow %.0f%% over %s", (ratio-1)*100, pred.Horizon),
			))

		case pred.MetricType == models.MetricCPUUsage && ratio <= scaleDownIdleFraction && replicas > 1:
			proposed := replicas - 1
			out = append(out, e.scaleRecommendation(
				models.RecommendScaleDown, pred, namespace, name, proposed, now,
				fmt.Sprintf("cpu demand projected to shrink to %.0f%% of current over %s", ratio*100, pred.Horizon),
			))
		}
	}

	for _, a := range input.Anomalies {
		if a.MetricType != models.MetricMemoryUsage || a.Severity == models.SeverityInfo {
			continue
		}
		if a.ObservedValue <= a.BaselineValue {
			continue
		}
		namespace, name, ok := splitResourceID(a.ResourceID)
		if !ok {
			continue
		}

		proposedMi := int64(math.Ceil(a.ObservedValue * limitsHeadroomFactor))
		extraGi := float64(proposedMi)/1024 - a.BaselineValue/1024
		out = append(out, models.Recommendation{
			ID:         recommendationID(a.ClusterID, namespace, name, models.RecommendAdjustLimits),
			ClusterID:  a.ClusterID,
			CreatedAt:  now,
			Type:       models.RecommendAdjustLimits,
			Priority:   priorityForSeverity(a.Severity),
			Confidence: a.Confidence,
			CostImpact: models.CostImpact{
				MonthlySavingsUSD: -extraGi * memoryCostPerGiMonth,
				Description:       fmt.Sprintf("raises memory limit to %d Mi to absorb observed spikes", proposedMi),
			},
			Action: models.RecommendationAction{
				Kind:      models.ActionUpdateResourceLimits,
				ClusterID: a.ClusterID,
				Namespace: namespace,
				Target:    name,
				Limits:    &models.ResourceLimits{MemoryMi: proposedMi},
			},
			Status: models.RecommendationStatus{Kind: models.RecommendationPending},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ClusterID != b.ClusterID {
			return a.ClusterID < b.ClusterID
		}
		if a.Action.Namespace != b.Action.Namespace {
			return a.Action.Namespace < b.Action.Namespace
		}
		if a.Action.Target != b.Action.Target {
			return a.Action.Target < b.Action.Target
		}
		return a.Type < b.Type
	})
	return out
}

func (e *RecommendationEngine) scaleRecommendation(
	kind models.RecommendationType, pred models.ScalingPrediction,
	namespace, name string, replicas int32, now time.Time, reason string,
) models.Recommendation {
	// One replica's worth of the currently observed cpu, costed per month.
	replicaCoreCost := (pred.CurrentValue / 1000) * cpuCostPerCoreMonth
	savings := replicaCoreCost
	priority := models.PriorityMedium
	if kind == models.RecommendScaleUp {
		savings = -replicaCoreCost
		priority = models.PriorityHigh
	}

	return models.Recommendation{
		ID:         recommendationID(pred.ClusterID, namespace, name, kind),
		ClusterID:  pred.ClusterID,
		CreatedAt:  now,
		Type:       kind,
		Priority:   priority,
		Confidence: pred.Confidence,
		CostImpact: models.CostImpact{
			MonthlySavingsUSD: savings,
			Description:       reason,
		},
		Action: models.RecommendationAction{
			Kind:      models.ActionScaleDeployment,
			ClusterID: pred.ClusterID,
			Namespace: namespace,
			Target:    name,
			Replicas:  &replicas,
		},
		Status: models.RecommendationStatus{Kind: models.RecommendationPending},
	}
}

// recommendationID derives a stable id from the recommendation's natural key.
// Regenerating over the same fleet state addresses the same stored row
// instead of minting a new one each run.
func recommendationID(clusterID, namespace, target string, kind models.RecommendationType) string {
	key := clusterID + "/" + namespace + "/" + target + "/" + string(kind)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func priorityForSeverity(s models.Severity) models.Priority {
	switch s {
	case models.SeverityCritical:
		return models.PriorityCritical
	case models.SeverityWarning:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

// splitResourceID splits "namespace/name" ids; bare ids (nodes) return false.
func splitResourceID(id string) (namespace, name string, ok bool) {
	i := strings.IndexByte(id, '/')
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
