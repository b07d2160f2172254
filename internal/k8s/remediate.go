package k8s

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// ScaleDeployment sets the replica count of a deployment via the scale
// subresource, so it composes with HPA and other controllers.
func (c *Client) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	return c.guarded(ctx, func(ctx context.Context) error {
		scale, err := c.Clientset.AppsV1().Deployments(namespace).GetScale(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("failed to get scale for %s/%s: %w", namespace, name, err)
		}
		scale.Spec.Replicas = replicas
		_, err = c.Clientset.AppsV1().Deployments(namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("failed to update scale for %s/%s: %w", namespace, name, err)
		}
		return nil
	})
}

// UpdateResourceLimits patches requests and limits on every container of a
// deployment to the proposed values. Only proposed resources go into the
// patch: a strategic merge leaves resource names absent from the patch as
// deployed, so a memory-only proposal cannot clobber cpu.
func (c *Client) UpdateResourceLimits(ctx context.Context, namespace, name string, limits models.ResourceLimits) error {
	resources := corev1.ResourceList{}
	if limits.CPUMillicores > 0 {
		resources[corev1.ResourceCPU] = *resource.NewMilliQuantity(limits.CPUMillicores, resource.DecimalSI)
	}
	if limits.MemoryMi > 0 {
		resources[corev1.ResourceMemory] = *resource.NewQuantity(limits.MemoryMi*1024*1024, resource.BinarySI)
	}
	if len(resources) == 0 {
		return fmt.Errorf("no resource values proposed for %s/%s", namespace, name)
	}

	return c.guarded(ctx, func(ctx context.Context) error {
		deploy, err := c.Clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
		}

		type containerPatch struct {
			Name      string                      `json:"name"`
			Resources corev1.ResourceRequirements `json:"resources"`
		}
		patches := make([]containerPatch, 0, len(deploy.Spec.Template.Spec.Containers))
		for _, container := range deploy.Spec.Template.Spec.Containers {
			patches = append(patches, containerPatch{
				Name: container.Name,
				Resources: corev1.ResourceRequirements{
					Requests: resources,
					Limits:   resources,
				},
			})
		}

		patch := map[string]interface{}{
			"spec": map[string]interface{}{
				"template": map[string]interface{}{
					"spec": map[string]interface{}{
						"containers": patches,
					},
				},
			},
		}
		body, err := json.Marshal(patch)
		if err != nil {
			return fmt.Errorf("failed to encode resource patch: %w", err)
		}

		_, err = c.Clientset.AppsV1().Deployments(namespace).Patch(ctx, name, types.StrategicMergePatchType, body, metav1.PatchOptions{})
		if err != nil {
			return fmt.Errorf("failed to patch resources for %s/%s: %w", namespace, name, err)
		}
		return nil
	})
}

// ReclaimStorage deletes an unbound PersistentVolumeClaim. Bound claims are
// refused so remediation can never detach storage from a running workload.
func (c *Client) ReclaimStorage(ctx context.Context, namespace, name string) error {
	return c.guarded(ctx, func(ctx context.Context) error {
		pvc, err := c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("failed to get pvc %s/%s: %w", namespace, name, err)
		}
		if pvc.Status.Phase == corev1.ClaimBound {
			return fmt.Errorf("pvc %s/%s is bound, refusing to reclaim", namespace, name)
		}
		if err := c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("failed to delete pvc %s/%s: %w", namespace, name, err)
		}
		return nil
	})
}
