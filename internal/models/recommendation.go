package models

import "time"

// RecommendationType classifies what a recommendation proposes.
type RecommendationType string

const (
	RecommendScaleUp             RecommendationType = "scale_up"
	RecommendScaleDown           RecommendationType = "scale_down"
	RecommendOptimizeResources   RecommendationType = "optimize_resources"
	RecommendAdjustLimits        RecommendationType = "adjust_limits"
	RecommendStorageOptimization RecommendationType = "storage_optimization"
)

// Priority orders recommendations for operators.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// CostImpact estimates the monthly cost effect of applying a recommendation.
// Positive savings mean the action reduces spend.
type CostImpact struct {
	MonthlySavingsUSD float64 `json:"monthly_savings_usd"`
	Description       string  `json:"description,omitempty"`
}

// ResourceLimits carries proposed container resource settings.
type ResourceLimits struct {
	CPUMillicores int64 `json:"cpu_millicores"`
	MemoryMi      int64 `json:"memory_mi"`
}

// ActionKind identifies the concrete remediation an action performs.
type ActionKind string

const (
	ActionScaleDeployment      ActionKind = "scale_deployment"
	ActionUpdateResourceLimits ActionKind = "update_resource_limits"
	ActionReclaimStorage       ActionKind = "reclaim_storage"
)

// RecommendationAction is the executable payload of a recommendation or
// scheduled action. Fields beyond Kind/ClusterID/Namespace/Target apply only
// to the kinds that use them.
type RecommendationAction struct {
	Kind      ActionKind      `json:"kind"`
	ClusterID string          `json:"cluster_id"`
	Namespace string          `json:"namespace,omitempty"`
	Target    string          `json:"target"` // deployment name, or PVC name for reclaim_storage
	Replicas  *int32          `json:"replicas,omitempty"`
	Limits    *ResourceLimits `json:"limits,omitempty"`
}

// RecommendationStatusKind is the lifecycle phase of a recommendation.
// Every transition is one-way: pending → scheduled → applied, or → dismissed.
type RecommendationStatusKind string

const (
	RecommendationPending   RecommendationStatusKind = "pending"
	RecommendationScheduled RecommendationStatusKind = "scheduled"
	RecommendationApplied   RecommendationStatusKind = "applied"
	RecommendationDismissed RecommendationStatusKind = "dismissed"
)

// RecommendationStatus is a flattened status variant; the time/reason fields
// are set only for the kinds that carry them.
type RecommendationStatus struct {
	Kind      RecommendationStatusKind `json:"kind"`
	ExecuteAt *time.Time               `json:"execute_at,omitempty"` // scheduled
	AppliedAt *time.Time               `json:"applied_at,omitempty"` // applied
	Reason    string                   `json:"reason,omitempty"`     // dismissed
}

// CanTransitionTo reports whether the one-way status change is allowed.
func (s RecommendationStatus) CanTransitionTo(next RecommendationStatusKind) bool {
	switch s.Kind {
	case RecommendationPending:
		return next == RecommendationScheduled || next == RecommendationApplied || next == RecommendationDismissed
	case RecommendationScheduled:
		return next == RecommendationApplied || next == RecommendationDismissed
	default: // applied, dismissed are terminal
		return false
	}
}

// Recommendation is a generated, operator-actionable proposal with an
// estimated cost impact and a concrete action.
type Recommendation struct {
	ID         string               `json:"id"          db:"id"`
	ClusterID  string               `json:"cluster_id"  db:"cluster_id"`
	CreatedAt  time.Time            `json:"created_at"  db:"created_at"`
	Type       RecommendationType   `json:"type"        db:"type"`
	Priority   Priority             `json:"priority"    db:"priority"`
	Confidence float64              `json:"confidence"  db:"confidence"`
	CostImpact CostImpact           `json:"cost_impact" db:"-"`
	Action     RecommendationAction `json:"action"      db:"-"`
	Status     RecommendationStatus `json:"status"      db:"-"`

	// DB projections of the nested structs (JSON-encoded).
	CostImpactRaw string `json:"-" db:"cost_impact"`
	ActionRaw     string `json:"-" db:"action"`
	StatusRaw     string `json:"-" db:"status"`
}
