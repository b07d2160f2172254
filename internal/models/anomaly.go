package models

import "time"

// Severity scores an anomaly; it is a monotonic function of deviation sigma.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityForSigma maps a deviation to a severity: >=3σ critical, >=2σ warning.
func SeverityForSigma(sigma float64) Severity {
	switch {
	case sigma >= 3:
		return SeverityCritical
	case sigma >= 2:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Anomaly is a detected deviation of one metric from its rolling baseline.
// Read-only after creation; re-detection creates a new anomaly.
type Anomaly struct {
	ID             string     `json:"id"              db:"id"`
	ClusterID      string     `json:"cluster_id"      db:"cluster_id"`
	ResourceID     string     `json:"resource_id"     db:"resource_id"`
	DetectedAt     time.Time  `json:"detected_at"     db:"detected_at"`
	MetricType     MetricType `json:"metric_type"     db:"metric_type"`
	Severity       Severity   `json:"severity"        db:"severity"`
	Confidence     float64    `json:"confidence"      db:"confidence"`
	BaselineValue  float64    `json:"baseline_value"  db:"baseline_value"`
	ObservedValue  float64    `json:"observed_value"  db:"observed_value"`
	DeviationSigma float64    `json:"deviation_sigma" db:"deviation_sigma"`
	Description    string     `json:"description"     db:"description"`
	RelatedMetrics []string   `json:"related_metrics,omitempty" db:"-"`
	RelatedRaw     string     `json:"-"               db:"related_metrics"` // JSON-encoded, stored in DB
	RootCause      string     `json:"root_cause,omitempty" db:"root_cause"`
}

// AnomalyFilter narrows anomaly queries. Zero-value fields match everything.
type AnomalyFilter struct {
	ClusterID   string     `json:"cluster_id,omitempty"`
	ResourceID  string     `json:"resource_id,omitempty"`
	MinSeverity Severity   `json:"min_severity,omitempty"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// severityRank orders severities for MinSeverity filtering.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Matches reports whether the anomaly passes every set filter (Limit excluded).
func (f AnomalyFilter) Matches(a Anomaly) bool {
	if f.ClusterID != "" && f.ClusterID != a.ClusterID {
		return false
	}
	if f.ResourceID != "" && f.ResourceID != a.ResourceID {
		return false
	}
	if f.MinSeverity != "" && severityRank(a.Severity) < severityRank(f.MinSeverity) {
		return false
	}
	if f.TimeRange != nil && !f.TimeRange.Contains(a.DetectedAt) {
		return false
	}
	return true
}

// RankedCause is one candidate explanation for an anomaly, ranked by score.
type RankedCause struct {
	ResourceID  string     `json:"resource_id"`
	MetricType  MetricType `json:"metric_type"`
	Score       float64    `json:"score"` // 0..1, higher = more likely cause
	Explanation string     `json:"explanation"`
}

// RootCauseAnalysis is the ranked output of the root-cause engine for one anomaly.
type RootCauseAnalysis struct {
	AnomalyID string        `json:"anomaly_id"`
	Causes    []RankedCause `json:"causes"`
	Summary   string        `json:"summary"`
}
