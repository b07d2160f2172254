package scheduler

import (
	"context"
	"fmt"

	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/models"
)

// ClusterExecutor applies remediation actions through the cluster manager's
// live clients.
type ClusterExecutor struct {
	manager *cluster.Manager
}

// NewClusterExecutor creates the production executor.
func NewClusterExecutor(manager *cluster.Manager) *ClusterExecutor {
	return &ClusterExecutor{manager: manager}
}

func (e *ClusterExecutor) Execute(ctx context.Context, action models.RecommendationAction) error {
	client, err := e.manager.Client(action.ClusterID)
	if err != nil {
		return err
	}

	switch action.Kind {
	case models.ActionScaleDeployment:
		if action.Replicas == nil {
			return fmt.Errorf("scale_deployment action for %s/%s carries no replica count", action.Namespace, action.Target)
		}
		return client.ScaleDeployment(ctx, action.Namespace, action.Target, *action.Replicas)

	case models.ActionUpdateResourceLimits:
		if action.Limits == nil {
			return fmt.Errorf("update_resource_limits action for %s/%s carries no limits", action.Namespace, action.Target)
		}
		return client.UpdateResourceLimits(ctx, action.Namespace, action.Target, *action.Limits)

	case models.ActionReclaimStorage:
		return client.ReclaimStorage(ctx, action.Namespace, action.Target)

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}
