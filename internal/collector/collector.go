// Package collector runs the periodic metric collection loop: fan out to
// every registered cluster, flatten the successful results, and persist them.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

// Collector polls clusters on a fixed interval and writes samples to storage.
// Per-cluster failures only shrink a cycle's sample set; they never stop the
// loop. Failure detail lives in the circuit breaker / health view, not here.
type Collector struct {
	manager  *cluster.Manager
	store    repository.SampleRepository
	interval time.Duration
	logger   *slog.Logger
}

// New creates a collector polling at the given interval.
func New(manager *cluster.Manager, store repository.SampleRepository, interval time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		manager:  manager,
		store:    store,
		interval: interval,
		logger:   logger.With("component", "collector"),
	}
}

// CollectOnce runs a single collection cycle and returns the stored samples.
func (c *Collector) CollectOnce(ctx context.Context) ([]models.MetricSample, error) {
	result, err := c.manager.SampleFleet(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fleet sampling failed: %w", err)
	}

	var samples []models.MetricSample
	for id, clusterSamples := range result.Samples {
		samples = append(samples, clusterSamples...)
		metrics.CollectionCyclesTotal.WithLabelValues(id, "success").Inc()
		metrics.SamplesCollectedTotal.WithLabelValues(id).Add(float64(len(clusterSamples)))
	}
	for id := range result.Errors {
		metrics.CollectionCyclesTotal.WithLabelValues(id, "failure").Inc()
	}

	if len(samples) == 0 {
		return nil, nil
	}
	if err := c.store.InsertSamples(ctx, samples); err != nil {
		return nil, fmt.Errorf("failed to store samples: %w", err)
	}

	c.logger.Debug("collection cycle complete",
		"samples", len(samples),
		"clusters_ok", len(result.Samples),
		"clusters_failed", len(result.Errors))
	return samples, nil
}

// Run polls until ctx is cancelled. Storage errors are logged and retried on
// the next cycle; the loop only exits on cancellation.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("collector started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped")
			return
		case <-ticker.C:
			if _, err := c.CollectOnce(ctx); err != nil {
				c.logger.Error("collection cycle failed", "error", err)
			}
		}
	}
}
