package models

import "time"

// Cluster is one registered Kubernetes cluster. The context name doubles as
// the stable ClusterID joining live clients, stored samples, and breaker state.
type Cluster struct {
	ID             string    `json:"id"`              // kubeconfig context name
	KubeconfigPath string    `json:"kubeconfig_path"` // empty = default kubeconfig
	RegisteredAt   time.Time `json:"registered_at"`
}
