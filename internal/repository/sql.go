package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// SQLStorage implements Storage on top of sqlx. The same implementation serves
// SQLite and Postgres: queries are written with `?` placeholders and rebound
// per driver, and every upsert uses ON CONFLICT, which both dialects accept.
type SQLStorage struct {
	db *sqlx.DB
}

// RunMigrations applies the schema. Statements are idempotent
// (CREATE ... IF NOT EXISTS), so re-running on startup is safe.
func (s *SQLStorage) RunMigrations(migrationSQL string) error {
	if _, err := s.db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) InsertSamples(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sample insert: %w", err)
	}
	defer tx.Rollback()

	query := s.db.Rebind(`
		INSERT INTO metric_samples (cluster_id, resource_id, resource_type, metric_type, value, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samples {
		if _, err := stmt.ExecContext(ctx,
			sm.ClusterID, sm.ResourceID, sm.ResourceType, sm.MetricType, sm.Value, sm.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStorage) QuerySamples(ctx context.Context, q models.MetricsQuery) ([]models.MetricSample, error) {
	query := `SELECT * FROM metric_samples WHERE 1=1`
	args := []interface{}{}

	if q.ClusterID != "" {
		query += " AND cluster_id = ?"
		args = append(args, q.ClusterID)
	}
	if q.ResourceType != "" {
		query += " AND resource_type = ?"
		args = append(args, q.ResourceType)
	}
	if len(q.ResourceIDs) > 0 {
		query += " AND resource_id IN (?)"
		args = append(args, q.ResourceIDs)
	}
	if len(q.MetricTypes) > 0 {
		query += " AND metric_type IN (?)"
		args = append(args, q.MetricTypes)
	}
	if q.TimeRange != nil {
		query += " AND timestamp >= ? AND timestamp < ?"
		args = append(args, q.TimeRange.Start.UTC(), q.TimeRange.End.UTC())
	}
	query += " ORDER BY timestamp ASC"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sample query: %w", err)
	}

	var samples []models.MetricSample
	if err := s.db.SelectContext(ctx, &samples, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	return samples, nil
}

func (s *SQLStorage) PruneSamples(ctx context.Context, olderThan time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM metric_samples WHERE timestamp < ?`)
	res, err := s.db.ExecContext(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStorage) UpsertAggregate(ctx context.Context, agg models.AggregatedMetric) error {
	query := s.db.Rebind(`
		INSERT INTO aggregated_metrics (cluster_id, resource_id, metric_type, hour_bucket, sample_count, min_value, max_value, mean_value, stddev_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cluster_id, resource_id, metric_type, hour_bucket) DO UPDATE SET
			sample_count = excluded.sample_count,
			min_value    = excluded.min_value,
			max_value    = excluded.max_value,
			mean_value   = excluded.mean_value,
			stddev_value = excluded.stddev_value
	`)
	_, err := s.db.ExecContext(ctx, query,
		agg.ClusterID, agg.ResourceID, agg.MetricType, agg.HourBucket.UTC(),
		agg.Count, agg.Min, agg.Max, agg.Mean, agg.StdDev,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}
	return nil
}

func (s *SQLStorage) QueryAggregates(ctx context.Context, q models.AggregatedQuery) ([]models.AggregatedMetric, error) {
	query := `SELECT * FROM aggregated_metrics WHERE 1=1`
	args := []interface{}{}

	if q.ClusterID != "" {
		query += " AND cluster_id = ?"
		args = append(args, q.ClusterID)
	}
	if q.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, q.ResourceID)
	}
	if q.MetricType != "" {
		query += " AND metric_type = ?"
		args = append(args, q.MetricType)
	}
	if q.TimeRange != nil {
		query += " AND hour_bucket >= ? AND hour_bucket < ?"
		args = append(args, q.TimeRange.Start.UTC(), q.TimeRange.End.UTC())
	}
	query += " ORDER BY hour_bucket ASC"

	var aggs []models.AggregatedMetric
	if err := s.db.SelectContext(ctx, &aggs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	return aggs, nil
}

func (s *SQLStorage) PruneAggregates(ctx context.Context, olderThan time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM aggregated_metrics WHERE hour_bucket < ?`)
	res, err := s.db.ExecContext(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune aggregates: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStorage) InsertAnomaly(ctx context.Context, a models.Anomaly) error {
	related, err := json.Marshal(a.RelatedMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode related metrics: %w", err)
	}

	// DO NOTHING on the natural key keeps re-detection of the same window
	// from duplicating rows.
	query := s.db.Rebind(`
		INSERT INTO anomalies (id, cluster_id, resource_id, detected_at, metric_type, severity, confidence, baseline_value, observed_value, deviation_sigma, description, related_metrics, root_cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cluster_id, resource_id, metric_type, detected_at) DO NOTHING
	`)
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.ClusterID, a.ResourceID, a.DetectedAt.UTC(), a.MetricType,
		a.Severity, a.Confidence, a.BaselineValue, a.ObservedValue, a.DeviationSigma,
		a.Description, string(related), a.RootCause,
	)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

func (s *SQLStorage) ListAnomalies(ctx context.Context, f models.AnomalyFilter) ([]models.Anomaly, error) {
	query := `SELECT * FROM anomalies WHERE 1=1`
	args := []interface{}{}

	if f.ClusterID != "" {
		query += " AND cluster_id = ?"
		args = append(args, f.ClusterID)
	}
	if f.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, f.ResourceID)
	}
	if f.TimeRange != nil {
		query += " AND detected_at >= ? AND detected_at < ?"
		args = append(args, f.TimeRange.Start.UTC(), f.TimeRange.End.UTC())
	}
	query += " ORDER BY detected_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var anomalies []models.Anomaly
	if err := s.db.SelectContext(ctx, &anomalies, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}

	out := anomalies[:0]
	for _, a := range anomalies {
		if a.RelatedRaw != "" {
			if err := json.Unmarshal([]byte(a.RelatedRaw), &a.RelatedMetrics); err != nil {
				return nil, fmt.Errorf("failed to decode related metrics for anomaly %s: %w", a.ID, err)
			}
		}
		// MinSeverity is an ordering over an enum, not a column comparison;
		// filter after the scan.
		if f.MinSeverity != "" && !f.Matches(a) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLStorage) UpsertRecommendation(ctx context.Context, rec models.Recommendation) error {
	costImpact, err := json.Marshal(rec.CostImpact)
	if err != nil {
		return fmt.Errorf("failed to encode cost impact: %w", err)
	}
	action, err := json.Marshal(rec.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	status, err := json.Marshal(rec.Status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO recommendations (id, cluster_id, created_at, type, priority, confidence, cost_impact, action, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			cluster_id  = excluded.cluster_id,
			created_at  = excluded.created_at,
			type        = excluded.type,
			priority    = excluded.priority,
			confidence  = excluded.confidence,
			cost_impact = excluded.cost_impact,
			action      = excluded.action,
			status      = excluded.status
	`)
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.ClusterID, rec.CreatedAt.UTC(), rec.Type, rec.Priority, rec.Confidence,
		string(costImpact), string(action), string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recommendation: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	var rec models.Recommendation
	query := s.db.Rebind(`SELECT * FROM recommendations WHERE id = ?`)
	err := s.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	if err := decodeRecommendation(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStorage) ListRecommendations(ctx context.Context, limit int) ([]models.Recommendation, error) {
	query := `SELECT * FROM recommendations ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var recs []models.Recommendation
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	for i := range recs {
		if err := decodeRecommendation(&recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func decodeRecommendation(rec *models.Recommendation) error {
	if err := json.Unmarshal([]byte(rec.CostImpactRaw), &rec.CostImpact); err != nil {
		return fmt.Errorf("failed to decode cost impact for recommendation %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(rec.ActionRaw), &rec.Action); err != nil {
		return fmt.Errorf("failed to decode action for recommendation %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(rec.StatusRaw), &rec.Status); err != nil {
		return fmt.Errorf("failed to decode status for recommendation %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStorage) InsertSchedule(ctx context.Context, action *models.ScheduledAction) error {
	payload, err := json.Marshal(action.Action)
	if err != nil {
		return fmt.Errorf("failed to encode scheduled action: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO scheduled_actions (id, execute_at, status, error, action, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		action.ID, action.ExecuteAt.UTC(), action.Status, action.Error,
		string(payload), action.CreatedAt.UTC(), action.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *SQLStorage) UpdateSchedule(ctx context.Context, action *models.ScheduledAction) error {
	payload, err := json.Marshal(action.Action)
	if err != nil {
		return fmt.Errorf("failed to encode scheduled action: %w", err)
	}

	query := s.db.Rebind(`
		UPDATE scheduled_actions
		SET execute_at = ?, status = ?, error = ?, action = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := s.db.ExecContext(ctx, query,
		action.ExecuteAt.UTC(), action.Status, action.Error, string(payload),
		action.UpdatedAt.UTC(), action.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) GetSchedule(ctx context.Context, id string) (*models.ScheduledAction, error) {
	var action models.ScheduledAction
	query := s.db.Rebind(`SELECT * FROM scheduled_actions WHERE id = ?`)
	err := s.db.GetContext(ctx, &action, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(action.ActionRaw), &action.Action); err != nil {
		return nil, fmt.Errorf("failed to decode scheduled action %s: %w", action.ID, err)
	}
	return &action, nil
}

func (s *SQLStorage) ListSchedules(ctx context.Context) ([]*models.ScheduledAction, error) {
	var actions []*models.ScheduledAction
	query := `SELECT * FROM scheduled_actions ORDER BY created_at ASC`
	if err := s.db.SelectContext(ctx, &actions, query); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	for _, action := range actions {
		if err := json.Unmarshal([]byte(action.ActionRaw), &action.Action); err != nil {
			return nil, fmt.Errorf("failed to decode scheduled action %s: %w", action.ID, err)
		}
	}
	return actions, nil
}
