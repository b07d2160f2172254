// Package models defines the canonical analytics domain model for fleetscope.
// Samples are immutable once written; everything else is derived from them.
package models

import "time"

// MetricType identifies the measured quantity of a sample (lowercase, stable —
// stored in the database and used as a query key).
type MetricType string

const (
	MetricCPUUsage    MetricType = "cpu_usage"    // millicores
	MetricMemoryUsage MetricType = "memory_usage" // Mi
	MetricNetworkIn   MetricType = "network_in"   // bytes/s
	MetricNetworkOut  MetricType = "network_out"  // bytes/s
	MetricDiskRead    MetricType = "disk_read"    // bytes/s
	MetricDiskWrite   MetricType = "disk_write"   // bytes/s
)

// AllMetricTypes lists every known metric type, in stable order.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricCPUUsage, MetricMemoryUsage,
		MetricNetworkIn, MetricNetworkOut,
		MetricDiskRead, MetricDiskWrite,
	}
}

// ResourceType is the canonical Kubernetes resource kind a sample belongs to
// (lowercase, singular).
type ResourceType string

const (
	ResourceTypePod        ResourceType = "pod"
	ResourceTypeNode       ResourceType = "node"
	ResourceTypeDeployment ResourceType = "deployment"
	ResourceTypeNamespace  ResourceType = "namespace"
)

// MetricSample is the atomic unit of ingestion: one measured value for one
// resource in one cluster at one instant. Immutable once written.
type MetricSample struct {
	ClusterID    string       `json:"cluster_id"    db:"cluster_id"`
	ResourceID   string       `json:"resource_id"   db:"resource_id"` // "namespace/name" for namespaced resources, bare name for nodes
	ResourceType ResourceType `json:"resource_type" db:"resource_type"`
	MetricType   MetricType   `json:"metric_type"   db:"metric_type"`
	Value        float64      `json:"value"         db:"value"`
	Timestamp    time.Time    `json:"timestamp"     db:"timestamp"`
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// MetricsQuery selects stored or live samples. Zero-value fields mean "all":
// an empty ClusterID fans out to every registered cluster, empty MetricTypes
// matches every type, a nil TimeRange queries live cluster state instead of
// the store.
type MetricsQuery struct {
	ClusterID    string       `json:"cluster_id,omitempty"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceIDs  []string     `json:"resource_ids,omitempty"`
	MetricTypes  []MetricType `json:"metric_types,omitempty"`
	TimeRange    *TimeRange   `json:"time_range,omitempty"`
}

// MatchesSample reports whether the sample satisfies every set filter.
func (q MetricsQuery) MatchesSample(s MetricSample) bool {
	if q.ClusterID != "" && q.ClusterID != s.ClusterID {
		return false
	}
	if q.ResourceType != "" && q.ResourceType != s.ResourceType {
		return false
	}
	if len(q.ResourceIDs) > 0 && !containsString(q.ResourceIDs, s.ResourceID) {
		return false
	}
	if len(q.MetricTypes) > 0 && !containsMetricType(q.MetricTypes, s.MetricType) {
		return false
	}
	if q.TimeRange != nil && !q.TimeRange.Contains(s.Timestamp) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsMetricType(list []MetricType, v MetricType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
