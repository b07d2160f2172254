package models

import "time"

// AggregatedMetric is an hourly rollup of raw samples, keyed by
// (cluster, resource, metric, hour bucket). Produced only by the aggregator;
// re-aggregating a bucket replaces the row rather than appending.
type AggregatedMetric struct {
	ClusterID  string     `json:"cluster_id"  db:"cluster_id"`
	ResourceID string     `json:"resource_id" db:"resource_id"`
	MetricType MetricType `json:"metric_type" db:"metric_type"`
	HourBucket time.Time  `json:"hour_bucket" db:"hour_bucket"` // truncated to the hour, UTC
	Count      int64      `json:"count"       db:"sample_count"`
	Min        float64    `json:"min"         db:"min_value"`
	Max        float64    `json:"max"         db:"max_value"`
	Mean       float64    `json:"mean"        db:"mean_value"`
	StdDev     float64    `json:"std_dev"     db:"stddev_value"`
}

// AggregatedQuery selects stored rollups.
type AggregatedQuery struct {
	ClusterID  string     `json:"cluster_id,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	MetricType MetricType `json:"metric_type,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
}

// TimeSeriesPoint is one (timestamp, value) observation.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ordered sample window for a single
// (cluster, resource, metric) — the input unit for every ML engine.
type TimeSeries struct {
	ClusterID  string            `json:"cluster_id"`
	ResourceID string            `json:"resource_id"`
	MetricType MetricType        `json:"metric_type"`
	Points     []TimeSeriesPoint `json:"points"`
}

// GroupSeries partitions samples into per-(cluster, resource, metric) series,
// preserving input order within each series. Series are returned sorted by key
// so repeated calls over the same input yield the same order.
func GroupSeries(samples []MetricSample) []TimeSeries {
	type key struct {
		cluster, resource string
		metric            MetricType
	}
	index := make(map[key]int)
	var out []TimeSeries
	for _, s := range samples {
		k := key{s.ClusterID, s.ResourceID, s.MetricType}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, TimeSeries{
				ClusterID:  s.ClusterID,
				ResourceID: s.ResourceID,
				MetricType: s.MetricType,
			})
		}
		out[i].Points = append(out[i].Points, TimeSeriesPoint{Timestamp: s.Timestamp, Value: s.Value})
	}
	sortSeries(out)
	return out
}

func sortSeries(series []TimeSeries) {
	for i := 1; i < len(series); i++ {
		for j := i; j > 0 && seriesKeyLess(series[j], series[j-1]); j-- {
			series[j], series[j-1] = series[j-1], series[j]
		}
	}
}

func seriesKeyLess(a, b TimeSeries) bool {
	if a.ClusterID != b.ClusterID {
		return a.ClusterID < b.ClusterID
	}
	if a.ResourceID != b.ResourceID {
		return a.ResourceID < b.ResourceID
	}
	return a.MetricType < b.MetricType
}

// ScalingPrediction projects near-future demand for one resource metric.
type ScalingPrediction struct {
	ClusterID      string     `json:"cluster_id"`
	ResourceID     string     `json:"resource_id"`
	MetricType     MetricType `json:"metric_type"`
	CurrentValue   float64    `json:"current_value"`
	PredictedValue float64    `json:"predicted_value"`
	Horizon        string     `json:"horizon"` // e.g. "30m"
	SlopePerMinute float64    `json:"slope_per_minute"`
	Confidence     float64    `json:"confidence"` // 0..1, from trend fit quality
}
