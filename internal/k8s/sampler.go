package k8s

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// SampleMetrics reads current pod and node usage from metrics-server and
// converts it into domain samples. Every sample in one call carries the same
// timestamp so downstream grouping sees a consistent snapshot.
func (c *Client) SampleMetrics(ctx context.Context) ([]models.MetricSample, error) {
	var podMetrics *metricsv1beta1.PodMetricsList
	var nodeMetrics *metricsv1beta1.NodeMetricsList

	err := c.guarded(ctx, func(ctx context.Context) error {
		var err error
		podMetrics, err = c.Metrics.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list pod metrics: %w", err)
		}
		nodeMetrics, err = c.Metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list node metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	samples := make([]models.MetricSample, 0, 2*(len(podMetrics.Items)+len(nodeMetrics.Items)))

	for _, pod := range podMetrics.Items {
		var cpuMillis, memoryMi float64
		for _, container := range pod.Containers {
			cpuMillis += float64(container.Usage.Cpu().MilliValue())
			memoryMi += float64(container.Usage.Memory().Value()) / (1024 * 1024)
		}
		resourceID := pod.Namespace + "/" + pod.Name
		samples = append(samples,
			c.sample(resourceID, models.ResourceTypePod, models.MetricCPUUsage, cpuMillis, now),
			c.sample(resourceID, models.ResourceTypePod, models.MetricMemoryUsage, memoryMi, now),
		)
	}

	for _, node := range nodeMetrics.Items {
		cpuMillis := float64(node.Usage.Cpu().MilliValue())
		memoryMi := float64(node.Usage.Memory().Value()) / (1024 * 1024)
		samples = append(samples,
			c.sample(node.Name, models.ResourceTypeNode, models.MetricCPUUsage, cpuMillis, now),
			c.sample(node.Name, models.ResourceTypeNode, models.MetricMemoryUsage, memoryMi, now),
		)
	}

	return samples, nil
}

func (c *Client) sample(resourceID string, rt models.ResourceType, mt models.MetricType, value float64, ts time.Time) models.MetricSample {
	return models.MetricSample{
		ClusterID:    c.Context,
		ResourceID:   resourceID,
		ResourceType: rt,
		MetricType:   mt,
		Value:        value,
		Timestamp:    ts,
	}
}
