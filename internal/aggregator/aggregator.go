// Package aggregator rolls raw samples into hourly aggregates and enforces
// the retention policy.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

// Aggregator computes hourly rollups over completed hour buckets and prunes
// data outside the retention window. Runs are idempotent: aggregation is a
// replace-on-key upsert, so re-running a bucket never double-counts.
type Aggregator struct {
	store     repository.Storage
	retention repository.RetentionPolicy
	interval  time.Duration
	logger    *slog.Logger
}

// New creates an aggregator running at the given cadence (normally hourly).
func New(store repository.Storage, retention repository.RetentionPolicy, interval time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "aggregator"),
	}
}

// RunOnce aggregates every completed hour bucket still inside the raw
// retention window, then prunes expired rows. now is injected for testability.
func (a *Aggregator) RunOnce(ctx context.Context, now time.Time) error {
	if err := a.aggregate(ctx, now); err != nil {
		metrics.AggregationRunsTotal.WithLabelValues("failure").Inc()
		return err
	}
	if err := a.prune(ctx, now); err != nil {
		metrics.AggregationRunsTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.AggregationRunsTotal.WithLabelValues("success").Inc()
	return nil
}

func (a *Aggregator) aggregate(ctx context.Context, now time.Time) error {
	// Only completed hours: the current hour is still accumulating samples
	// and would produce a rollup that changes under readers.
	end := now.UTC().Truncate(time.Hour)
	start := end.Add(-time.Duration(a.retention.RawDays) * 24 * time.Hour)

	samples, err := a.store.QuerySamples(ctx, models.MetricsQuery{
		TimeRange: &models.TimeRange{Start: start, End: end},
	})
	if err != nil {
		return fmt.Errorf("failed to read samples for aggregation: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	buckets := bucketSamples(samples)
	for _, agg := range buckets {
		if err := a.store.UpsertAggregate(ctx, agg); err != nil {
			return fmt.Errorf("failed to upsert aggregate: %w", err)
		}
	}

	a.logger.Debug("aggregation complete", "samples", len(samples), "buckets", len(buckets))
	return nil
}

func (a *Aggregator) prune(ctx context.Context, now time.Time) error {
	rawCutoff := now.UTC().Add(-time.Duration(a.retention.RawDays) * 24 * time.Hour)
	aggCutoff := now.UTC().Add(-time.Duration(a.retention.AggregatedDays) * 24 * time.Hour)

	prunedSamples, err := a.store.PruneSamples(ctx, rawCutoff)
	if err != nil {
		return fmt.Errorf("failed to prune samples: %w", err)
	}
	metrics.RowsPrunedTotal.WithLabelValues("metric_samples").Add(float64(prunedSamples))

	prunedAggs, err := a.store.PruneAggregates(ctx, aggCutoff)
	if err != nil {
		return fmt.Errorf("failed to prune aggregates: %w", err)
	}
	metrics.RowsPrunedTotal.WithLabelValues("aggregated_metrics").Add(float64(prunedAggs))

	if prunedSamples > 0 || prunedAggs > 0 {
		a.logger.Info("retention pruning complete",
			"samples_pruned", prunedSamples, "aggregates_pruned", prunedAggs)
	}
	return nil
}

// bucketSamples groups samples by (cluster, resource, metric, hour) and
// computes the rollup statistics for each group.
func bucketSamples(samples []models.MetricSample) []models.AggregatedMetric {
	type key struct {
		cluster, resource string
		metric            models.MetricType
		hour              int64
	}
	groups := make(map[key][]float64)
	order := make([]key, 0)
	hours := make(map[key]time.Time)

	for _, s := range samples {
		hour := s.Timestamp.UTC().Truncate(time.Hour)
		k := key{s.ClusterID, s.ResourceID, s.MetricType, hour.Unix()}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
			hours[k] = hour
		}
		groups[k] = append(groups[k], s.Value)
	}

	out := make([]models.AggregatedMetric, 0, len(order))
	for _, k := range order {
		values := groups[k]
		out = append(out, models.AggregatedMetric{
			ClusterID:  k.cluster,
			ResourceID: k.resource,
			MetricType: k.metric,
			HourBucket: hours[k],
			Count:      int64(len(values)),
			Min:        minOf(values),
			Max:        maxOf(values),
			Mean:       meanOf(values),
			StdDev:     stdDevOf(values),
		})
	}
	return out
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDevOf(values []float64) float64 {
	mean := meanOf(values)
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

// Run executes aggregation on the configured cadence until ctx is cancelled.
// Errors are logged and retried next cycle.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Info("aggregator started", "interval", a.interval)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return
		case <-ticker.C:
			if err := a.RunOnce(ctx, time.Now()); err != nil {
				a.logger.Error("aggregation run failed", "error", err)
			}
		}
	}
}
