package collector

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/k8s"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

// newFleet registers cluster "a" (healthy) and cluster "b" (every metrics
// read fails with a network error).
func newFleet(t *testing.T) *cluster.Manager {
	t.Helper()

	m := cluster.NewManagerForTest(cluster.Options{}, slog.Default(), func(_, kubeContext string) (*k8s.Client, error) {
		clientset := k8sfake.NewSimpleClientset(
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}},
		)
		// The metrics fake does not serve seeded objects through list, so the
		// healthy cluster answers node usage via a reactor.
		metricsClientset := metricsfake.NewSimpleClientset()
		if kubeContext == "b" {
			for _, res := range []string{"pods", "nodes"} {
				metricsClientset.PrependReactor("list", res,
					func(k8stesting.Action) (bool, runtime.Object, error) {
						return true, nil, errors.New("dial tcp 10.0.0.9:6443: i/o timeout")
					})
			}
		} else {
			metricsClientset.PrependReactor("list", "nodes",
				func(k8stesting.Action) (bool, runtime.Object, error) {
					return true, &metricsv1beta1.NodeMetricsList{
						Items: []metricsv1beta1.NodeMetrics{{
							ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
							Usage: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("1"),
								corev1.ResourceMemory: resource.MustParse("1Gi"),
							},
						}},
					}, nil
				})
		}
		return k8s.NewClientForTest(kubeContext, clientset, metricsClientset), nil
	})

	ctx := context.Background()
	_, err := m.AddCluster(ctx, "", "a")
	require.NoError(t, err)
	_, err = m.AddCluster(ctx, "", "b")
	require.NoError(t, err)
	return m
}

func TestCollectOnceHealthyAndFailingCluster(t *testing.T) {
	manager := newFleet(t)
	store := repository.NewMemoryStorage()
	c := New(manager, store, time.Minute, slog.Default())

	samples, err := c.CollectOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, samples)

	// Samples exist only for the healthy cluster.
	stored, err := store.QuerySamples(context.Background(), models.MetricsQuery{})
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	for _, s := range stored {
		assert.Equal(t, "a", s.ClusterID)
	}

	// The failing cluster's breaker recorded exactly one failure.
	for _, h := range manager.ClustersHealth() {
		switch h.ClusterID {
		case "a":
			assert.Equal(t, 0, h.ConsecutiveFailures)
			assert.Equal(t, "closed", h.BreakerState)
		case "b":
			assert.Equal(t, 1, h.ConsecutiveFailures)
			assert.NotEmpty(t, h.LastError)
		}
	}
}

func TestCollectOnceEmptyFleetStoresNothing(t *testing.T) {
	manager := cluster.NewManagerForTest(cluster.Options{}, slog.Default(), nil)
	store := repository.NewMemoryStorage()
	c := New(manager, store, time.Minute, slog.Default())

	samples, err := c.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestRunStopsOnCancel(t *testing.T) {
	manager := cluster.NewManagerForTest(cluster.Options{}, slog.Default(), nil)
	c := New(manager, repository.NewMemoryStorage(), 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on cancellation")
	}
}
