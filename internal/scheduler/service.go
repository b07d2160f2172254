// Package scheduler persists deferred remediation actions and executes them
// when due. The scheduler loop is the only writer of schedule rows after
// insert, which is what makes the read-modify-write updates safe.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

// ErrEmptyID rejects schedule commands that carry no identifier.
var ErrEmptyID = fmt.Errorf("schedule id must not be empty")

// Executor applies a remediation action against live cluster state. The
// production implementation talks to the cluster manager; tests stub it.
type Executor interface {
	Execute(ctx context.Context, action models.RecommendationAction) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action models.RecommendationAction) error

func (f ExecutorFunc) Execute(ctx context.Context, action models.RecommendationAction) error {
	return f(ctx, action)
}

// Service owns the schedule lifecycle:
//
//	pending --(due & tick)--> executing --> completed | failed
//	pending --(cancel)--> cancelled
//
// Executing is written before the action runs, so a crash mid-execution
// leaves the row visibly stuck; Tick recovers such rows by failing them once
// their lease (one loop interval) has expired.
type Service struct {
	store    repository.ScheduleRepository
	executor Executor
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a scheduler ticking at the given interval.
func New(store repository.ScheduleRepository, executor Executor, interval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		executor: executor,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Schedule persists a new pending action. An empty id is rejected before any
// state mutation; a missing id is not invented for the caller.
func (s *Service) Schedule(ctx context.Context, id string, executeAt time.Time, action models.RecommendationAction) (*models.ScheduledAction, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	now := s.now().UTC()
	scheduled := &models.ScheduledAction{
		ID:        id,
		ExecuteAt: executeAt.UTC(),
		Status:    models.SchedulePending,
		Action:    action,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertSchedule(ctx, scheduled); err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}
	s.logger.Info("action scheduled", "id", id, "execute_at", scheduled.ExecuteAt)
	return scheduled, nil
}

// NewID returns a fresh schedule identifier for callers that don't supply one.
func NewID() string {
	return uuid.New().String()
}

// Cancel moves a pending action to cancelled. Unknown ids and already
// terminal or executing actions are a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	action, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil
		}
		return err
	}
	if !models.CanTransition(action.Status, models.ScheduleCancelled) {
		return nil
	}
	action.Status = models.ScheduleCancelled
	action.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSchedule(ctx, action); err != nil {
		return fmt.Errorf("failed to cancel schedule: %w", err)
	}
	s.logger.Info("action cancelled", "id", id)
	return nil
}

// Get returns one scheduled action.
func (s *Service) Get(ctx context.Context, id string) (*models.ScheduledAction, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return s.store.GetSchedule(ctx, id)
}

// List returns all scheduled actions in creation order.
func (s *Service) List(ctx context.Context) ([]*models.ScheduledAction, error) {
	return s.store.ListSchedules(ctx)
}

// Tick runs one scheduler pass: recover expired Executing leases, then
// execute every due pending action. Each action's terminal status is written
// before the next action runs.
func (s *Service) Tick(ctx context.Context) error {
	actions, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan schedules: %w", err)
	}

	now := s.now().UTC()
	for _, action := range actions {
		switch {
		case action.Status == models.ScheduleExecuting && now.Sub(action.UpdatedAt) > s.interval:
			// A previous run died mid-execution; the side effect may or may
			// not have happened, so the honest terminal state is failed.
			action.Status = models.ScheduleFailed
			action.Error = "execution lease expired"
			action.UpdatedAt = now
			if err := s.store.UpdateSchedule(ctx, action); err != nil {
				s.logger.Error("failed to recover stuck action", "id", action.ID, "error", err)
				continue
			}
			metrics.ScheduledExecutionsTotal.WithLabelValues("lease_expired").Inc()
			s.logger.Warn("recovered stuck executing action", "id", action.ID)

		case action.Status == models.SchedulePending && !action.ExecuteAt.After(now):
			s.execute(ctx, action)
		}
	}
	return nil
}

func (s *Service) execute(ctx context.Context, action *models.ScheduledAction) {
	action.Status = models.ScheduleExecuting
	action.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSchedule(ctx, action); err != nil {
		s.logger.Error("failed to mark action executing", "id", action.ID, "error", err)
		return
	}

	execErr := s.executor.Execute(ctx, action.Action)

	action.UpdatedAt = s.now().UTC()
	if execErr != nil {
		action.Status = models.ScheduleFailed
		action.Error = execErr.Error()
		metrics.ScheduledExecutionsTotal.WithLabelValues("failure").Inc()
		s.logger.Error("scheduled action failed", "id", action.ID, "error", execErr)
	} else {
		action.Status = models.ScheduleCompleted
		metrics.ScheduledExecutionsTotal.WithLabelValues("success").Inc()
		s.logger.Info("scheduled action completed", "id", action.ID)
	}
	if err := s.store.UpdateSchedule(ctx, action); err != nil {
		s.logger.Error("failed to record action outcome", "id", action.ID, "error", err)
	}
}

// Run ticks until ctx is cancelled. Tick errors are logged and retried.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}
