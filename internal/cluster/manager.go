// Package cluster tracks registered Kubernetes clusters and fans queries out
// across them. One Manager owns every per-cluster client; a cluster that is
// down never fails a fleet-wide operation, it just goes missing from the
// result with its error recorded.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetscope/fleetscope-backend/internal/k8s"
	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// ErrClusterNotFound is returned when an operation names an unregistered cluster.
var ErrClusterNotFound = fmt.Errorf("cluster not found")

// Options tunes the per-cluster client protections.
type Options struct {
	// CallTimeout bounds each outbound K8s API call. 0 disables.
	CallTimeout time.Duration
	// RateLimit is outbound calls/sec per cluster. 0 disables.
	RateLimit float64
	// RateBurst is the limiter burst size; only used when RateLimit > 0.
	RateBurst int
}

type entry struct {
	cluster models.Cluster
	client  *k8s.Client
}

// Manager is the registry of connected clusters.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    Options
	logger  *slog.Logger

	// newClient is swappable so tests can inject fake clientsets.
	newClient func(kubeconfigPath, kubeContext string) (*k8s.Client, error)
}

// NewManager creates an empty manager.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		entries:   make(map[string]*entry),
		opts:      opts,
		logger:    logger.With("component", "cluster-manager"),
		newClient: k8s.NewClient,
	}
}

// NewManagerForTest creates a manager whose clients come from newClient.
func NewManagerForTest(opts Options, logger *slog.Logger, newClient func(kubeconfigPath, kubeContext string) (*k8s.Client, error)) *Manager {
	m := NewManager(opts, logger)
	m.newClient = newClient
	return m
}

// AddCluster registers a cluster under its kubeconfig context name and
// verifies connectivity. Registering an already-known id replaces its client.
func (m *Manager) AddCluster(ctx context.Context, kubeconfigPath, kubeContext string) (models.Cluster, error) {
	client, err := m.newClient(kubeconfigPath, kubeContext)
	if err != nil {
		return models.Cluster{}, fmt.Errorf("failed to create client for %s: %w", kubeContext, err)
	}
	if m.opts.CallTimeout > 0 {
		client.SetTimeout(m.opts.CallTimeout)
	}
	if m.opts.RateLimit > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(m.opts.RateLimit), m.opts.RateBurst))
	}

	if err := client.TestConnection(ctx); err != nil {
		return models.Cluster{}, fmt.Errorf("connection test failed for %s: %w", kubeContext, err)
	}

	c := models.Cluster{
		ID:             kubeContext,
		KubeconfigPath: kubeconfigPath,
		RegisteredAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.entries[c.ID] = &entry{cluster: c, client: client}
	m.mu.Unlock()

	m.logger.Info("cluster registered", "cluster", c.ID)
	return c, nil
}

// RemoveCluster deregisters a cluster. Stored samples are unaffected.
func (m *Manager) RemoveCluster(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrClusterNotFound
	}
	delete(m.entries, id)
	m.logger.Info("cluster removed", "cluster", id)
	return nil
}

// ListClusters returns registered clusters sorted by id.
func (m *Manager) ListClusters() []models.Cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Cluster, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.cluster)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Client returns the live client for one cluster.
func (m *Manager) Client(id string) (*k8s.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	return e.client, nil
}

// FleetResult is the outcome of a fan-out: per-cluster samples for clusters
// that answered, per-cluster errors for those that did not.
type FleetResult struct {
	Samples map[string][]models.MetricSample
	Errors  map[string]error
}

// SampleFleet reads live metrics from every registered cluster concurrently.
// A clusterID narrows to one cluster; empty fans out to all. Partial failure
// is normal operation: the result carries both sides.
func (m *Manager) SampleFleet(ctx context.Context, clusterID string) (FleetResult, error) {
	m.mu.RLock()
	targets := make(map[string]*k8s.Client)
	for id, e := range m.entries {
		if clusterID == "" || clusterID == id {
			targets[id] = e.client
		}
	}
	m.mu.RUnlock()

	if clusterID != "" && len(targets) == 0 {
		return FleetResult{}, fmt.Errorf("%w: %s", ErrClusterNotFound, clusterID)
	}

	result := FleetResult{
		Samples: make(map[string][]models.MetricSample, len(targets)),
		Errors:  make(map[string]error),
	}

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	for id, client := range targets {
		wg.Add(1)
		go func(id string, client *k8s.Client) {
			defer wg.Done()
			samples, err := client.SampleMetrics(ctx)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Errors[id] = err
				return
			}
			result.Samples[id] = samples
		}(id, client)
	}
	wg.Wait()

	for id, err := range result.Errors {
		m.logger.Warn("cluster sampling failed", "cluster", id, "error", err)
	}
	return result, nil
}

// ClustersHealth reports per-cluster connection health, sorted by cluster id,
// so callers can distinguish "no data" from "cluster down".
func (m *Manager) ClustersHealth() []models.ClusterHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ClusterHealth, 0, len(m.entries))
	for id, e := range m.entries {
		state, failures, lastSuccess, lastErr := e.client.HealthStatus()
		h := models.ClusterHealth{
			ClusterID:           id,
			BreakerState:        state.String(),
			ConsecutiveFailures: failures,
			LastSuccess:         lastSuccess,
		}
		if lastErr != nil {
			h.LastError = lastErr.Error()
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out
}
