package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// newMetricsFake builds a metrics clientset whose list calls return the given
// readings. The fake's tracker does not serve seeded metrics objects through
// list, so the lists are answered by reactors.
func newMetricsFake(pods []metricsv1beta1.PodMetrics, nodes []metricsv1beta1.NodeMetrics) *metricsfake.Clientset {
	clientset := metricsfake.NewSimpleClientset()
	clientset.PrependReactor("list", "pods",
		func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, &metricsv1beta1.PodMetricsList{Items: pods}, nil
		})
	clientset.PrependReactor("list", "nodes",
		func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, &metricsv1beta1.NodeMetricsList{Items: nodes}, nil
		})
	return clientset
}

// supportScaleSubresource wires get/update of the deployment scale
// subresource through the fake's tracker, which has no native support for it.
func supportScaleSubresource(clientset *k8sfake.Clientset) {
	gvr := appsv1.SchemeGroupVersion.WithResource("deployments")

	clientset.PrependReactor("get", "deployments",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			if action.GetSubresource() != "scale" {
				return false, nil, nil
			}
			name := action.(k8stesting.GetAction).GetName()
			obj, err := clientset.Tracker().Get(gvr, action.GetNamespace(), name)
			if err != nil {
				return true, nil, err
			}
			deploy := obj.(*appsv1.Deployment)
			var replicas int32
			if deploy.Spec.Replicas != nil {
				replicas = *deploy.Spec.Replicas
			}
			return true, &autoscalingv1.Scale{
				ObjectMeta: metav1.ObjectMeta{Name: deploy.Name, Namespace: deploy.Namespace},
				Spec:       autoscalingv1.ScaleSpec{Replicas: replicas},
			}, nil
		})

	clientset.PrependReactor("update", "deployments",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			if action.GetSubresource() != "scale" {
				return false, nil, nil
			}
			scale := action.(k8stesting.UpdateAction).GetObject().(*autoscalingv1.Scale)
			obj, err := clientset.Tracker().Get(gvr, action.GetNamespace(), scale.Name)
			if err != nil {
				return true, nil, err
			}
			deploy := obj.(*appsv1.Deployment).DeepCopy()
			deploy.Spec.Replicas = &scale.Spec.Replicas
			if err := clientset.Tracker().Update(gvr, deploy, action.GetNamespace()); err != nil {
				return true, nil, err
			}
			return true, scale, nil
		})
}

func TestSampleMetricsConvertsPodAndNodeUsage(t *testing.T) {
	podMetrics := &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "api-0", Namespace: "default"},
		Containers: []metricsv1beta1.ContainerMetrics{
			{
				Name: "app",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("250m"),
					corev1.ResourceMemory: resource.MustParse("128Mi"),
				},
			},
			{
				Name: "sidecar",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("50m"),
					corev1.ResourceMemory: resource.MustParse("64Mi"),
				},
			},
		},
	}
	nodeMetrics := &metricsv1beta1.NodeMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
		Usage: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("2"),
			corev1.ResourceMemory: resource.MustParse("4Gi"),
		},
	}

	client := NewClientForTest("prod",
		k8sfake.NewSimpleClientset(),
		newMetricsFake(
			[]metricsv1beta1.PodMetrics{*podMetrics},
			[]metricsv1beta1.NodeMetrics{*nodeMetrics},
		),
	)

	samples, err := client.SampleMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 4)

	byKey := map[string]models.MetricSample{}
	for _, s := range samples {
		assert.Equal(t, "prod", s.ClusterID)
		byKey[s.ResourceID+"/"+string(s.MetricType)] = s
	}

	// Container usage sums per pod.
	assert.Equal(t, 300.0, byKey["default/api-0/cpu_usage"].Value)
	assert.Equal(t, 192.0, byKey["default/api-0/memory_usage"].Value)
	assert.Equal(t, models.ResourceTypePod, byKey["default/api-0/cpu_usage"].ResourceType)

	assert.Equal(t, 2000.0, byKey["node-1/cpu_usage"].Value)
	assert.Equal(t, 4096.0, byKey["node-1/memory_usage"].Value)
	assert.Equal(t, models.ResourceTypeNode, byKey["node-1/cpu_usage"].ResourceType)

	// One snapshot, one timestamp.
	for _, s := range samples {
		assert.True(t, s.Timestamp.Equal(samples[0].Timestamp))
	}
}

func TestScaleDeploymentUpdatesReplicas(t *testing.T) {
	replicas := int32(2)
	deploy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "default"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	}
	clientset := k8sfake.NewSimpleClientset(deploy)
	supportScaleSubresource(clientset)
	client := NewClientForTest("prod", clientset, metricsfake.NewSimpleClientset())

	require.NoError(t, client.ScaleDeployment(context.Background(), "default", "api", 5))

	got, err := clientset.AppsV1().Deployments("default").Get(context.Background(), "api", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got.Spec.Replicas)
	assert.Equal(t, int32(5), *got.Spec.Replicas)
}
