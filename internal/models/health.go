package models

import "time"

// ComponentHealthStatus is a point-in-time health rollup for one control-plane
// component (collector, aggregator, scheduler, notifier, storage).
type ComponentHealthStatus struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ClusterHealth exposes per-cluster failure-isolation state so callers can
// distinguish "no data" from "cluster down" without inspecting breaker
// internals.
type ClusterHealth struct {
	ClusterID           string    `json:"cluster_id"`
	BreakerState        string    `json:"breaker_state"` // closed | open | half-open
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
}

// HealthSnapshot is the full health view served by the facade.
type HealthSnapshot struct {
	Components []ComponentHealthStatus `json:"components"`
	Clusters   []ClusterHealth         `json:"clusters"`
	Timestamp  time.Time               `json:"timestamp"`
}
