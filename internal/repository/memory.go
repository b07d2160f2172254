package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// MemoryStorage is the in-memory Storage implementation used by tests and by
// the control-plane loops when no database is configured. Each table has its
// own lock so unrelated writes (collector samples vs. scheduler updates)
// proceed concurrently, matching the SQL implementations' behavior.
type MemoryStorage struct {
	samplesMu sync.RWMutex
	samples   []models.MetricSample

	aggMu sync.RWMutex
	aggs  map[aggKey]models.AggregatedMetric

	anomalyMu sync.RWMutex
	anomalies []models.Anomaly
	anomalyBy map[anomalyKey]struct{}

	recMu sync.RWMutex
	recs  map[string]models.Recommendation

	schedMu   sync.RWMutex
	schedules map[string]models.ScheduledAction
}

type aggKey struct {
	cluster, resource string
	metric            models.MetricType
	hour              int64
}

type anomalyKey struct {
	cluster, resource string
	metric            models.MetricType
	detectedAt        int64
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		aggs:      make(map[aggKey]models.AggregatedMetric),
		anomalyBy: make(map[anomalyKey]struct{}),
		recs:      make(map[string]models.Recommendation),
		schedules: make(map[string]models.ScheduledAction),
	}
}

func (m *MemoryStorage) InsertSamples(ctx context.Context, samples []models.MetricSample) error {
	m.samplesMu.Lock()
	defer m.samplesMu.Unlock()
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *MemoryStorage) QuerySamples(ctx context.Context, q models.MetricsQuery) ([]models.MetricSample, error) {
	m.samplesMu.RLock()
	defer m.samplesMu.RUnlock()
	var out []models.MetricSample
	for _, s := range m.samples {
		if q.MatchesSample(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStorage) PruneSamples(ctx context.Context, olderThan time.Time) (int64, error) {
	m.samplesMu.Lock()
	defer m.samplesMu.Unlock()
	kept := m.samples[:0]
	var pruned int64
	for _, s := range m.samples {
		if s.Timestamp.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return pruned, nil
}

func (m *MemoryStorage) UpsertAggregate(ctx context.Context, agg models.AggregatedMetric) error {
	m.aggMu.Lock()
	defer m.aggMu.Unlock()
	k := aggKey{agg.ClusterID, agg.ResourceID, agg.MetricType, agg.HourBucket.UTC().Unix()}
	m.aggs[k] = agg
	return nil
}

func (m *MemoryStorage) QueryAggregates(ctx context.Context, q models.AggregatedQuery) ([]models.AggregatedMetric, error) {
	m.aggMu.RLock()
	defer m.aggMu.RUnlock()
	var out []models.AggregatedMetric
	for _, a := range m.aggs {
		if q.ClusterID != "" && q.ClusterID != a.ClusterID {
			continue
		}
		if q.ResourceID != "" && q.ResourceID != a.ResourceID {
			continue
		}
		if q.MetricType != "" && q.MetricType != a.MetricType {
			continue
		}
		if q.TimeRange != nil && !q.TimeRange.Contains(a.HourBucket) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourBucket.Before(out[j].HourBucket) })
	return out, nil
}

func (m *MemoryStorage) PruneAggregates(ctx context.Context, olderThan time.Time) (int64, error) {
	m.aggMu.Lock()
	defer m.aggMu.Unlock()
	var pruned int64
	for k, a := range m.aggs {
		if a.HourBucket.Before(olderThan) {
			delete(m.aggs, k)
			pruned++
		}
	}
	return pruned, nil
}

func (m *MemoryStorage) InsertAnomaly(ctx context.Context, a models.Anomaly) error {
	m.anomalyMu.Lock()
	defer m.anomalyMu.Unlock()
	k := anomalyKey{a.ClusterID, a.ResourceID, a.MetricType, a.DetectedAt.UTC().UnixMilli()}
	if _, dup := m.anomalyBy[k]; dup {
		return nil
	}
	m.anomalyBy[k] = struct{}{}
	m.anomalies = append(m.anomalies, a)
	return nil
}

func (m *MemoryStorage) ListAnomalies(ctx context.Context, f models.AnomalyFilter) ([]models.Anomaly, error) {
	m.anomalyMu.RLock()
	defer m.anomalyMu.RUnlock()
	var out []models.Anomaly
	for _, a := range m.anomalies {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStorage) UpsertRecommendation(ctx context.Context, rec models.Recommendation) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStorage) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	m.recMu.RLock()
	defer m.recMu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStorage) ListRecommendations(ctx context.Context, limit int) ([]models.Recommendation, error) {
	m.recMu.RLock()
	defer m.recMu.RUnlock()
	out := make([]models.Recommendation, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) InsertSchedule(ctx context.Context, action *models.ScheduledAction) error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	m.schedules[action.ID] = *action
	return nil
}

func (m *MemoryStorage) UpdateSchedule(ctx context.Context, action *models.ScheduledAction) error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if _, ok := m.schedules[action.ID]; !ok {
		return ErrNotFound
	}
	m.schedules[action.ID] = *action
	return nil
}

func (m *MemoryStorage) GetSchedule(ctx context.Context, id string) (*models.ScheduledAction, error) {
	m.schedMu.RLock()
	defer m.schedMu.RUnlock()
	action, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &action, nil
}

func (m *MemoryStorage) ListSchedules(ctx context.Context) ([]*models.ScheduledAction, error) {
	m.schedMu.RLock()
	defer m.schedMu.RUnlock()
	out := make([]*models.ScheduledAction, 0, len(m.schedules))
	for id := range m.schedules {
		action := m.schedules[id]
		out = append(out, &action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) Close() error { return nil }
