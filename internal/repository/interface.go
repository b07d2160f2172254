// Package repository provides durable storage for samples, rollups, anomalies,
// recommendations, and scheduled actions. One production SQL implementation
// (SQLite or Postgres via sqlx) and one in-memory implementation for tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("not found")

// RetentionPolicy bounds how long raw samples and hourly rollups are kept.
type RetentionPolicy struct {
	RawDays        int
	AggregatedDays int
}

// SampleRepository stores raw metric samples. Inserts for different samples
// never conflict; samples are immutable once written.
type SampleRepository interface {
	InsertSamples(ctx context.Context, samples []models.MetricSample) error
	QuerySamples(ctx context.Context, q models.MetricsQuery) ([]models.MetricSample, error)
	// PruneSamples deletes samples with timestamp < olderThan, returning the count.
	PruneSamples(ctx context.Context, olderThan time.Time) (int64, error)
}

// AggregateRepository stores hourly rollups. UpsertAggregate replaces on the
// (cluster, resource, metric, hour) key so re-aggregation never double-counts.
type AggregateRepository interface {
	UpsertAggregate(ctx context.Context, agg models.AggregatedMetric) error
	QueryAggregates(ctx context.Context, q models.AggregatedQuery) ([]models.AggregatedMetric, error)
	PruneAggregates(ctx context.Context, olderThan time.Time) (int64, error)
}

// AnomalyRepository stores detected anomalies. InsertAnomaly ignores
// duplicates on the (cluster, resource, metric, detected_at) natural key so
// detect-on-query stays idempotent.
type AnomalyRepository interface {
	InsertAnomaly(ctx context.Context, a models.Anomaly) error
	ListAnomalies(ctx context.Context, f models.AnomalyFilter) ([]models.Anomaly, error)
}

// RecommendationRepository stores generated recommendations keyed by id.
type RecommendationRepository interface {
	UpsertRecommendation(ctx context.Context, rec models.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	ListRecommendations(ctx context.Context, limit int) ([]models.Recommendation, error)
}

// ScheduleRepository stores deferred remediation actions. Updates are
// read-modify-write; the single scheduler loop is the only writer after
// insert, so lost updates cannot occur in practice.
type ScheduleRepository interface {
	InsertSchedule(ctx context.Context, action *models.ScheduledAction) error
	UpdateSchedule(ctx context.Context, action *models.ScheduledAction) error
	GetSchedule(ctx context.Context, id string) (*models.ScheduledAction, error)
	ListSchedules(ctx context.Context) ([]*models.ScheduledAction, error)
}

// Storage aggregates every repository behind one handle.
type Storage interface {
	SampleRepository
	AggregateRepository
	AnomalyRepository
	RecommendationRepository
	ScheduleRepository
	Close() error
}
