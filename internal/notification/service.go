// Package notification converts newly detected anomalies into notifications
// and dispatches them to configured channels.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

// InAppSink receives notifications destined for connected UI clients.
// The websocket hub implements this.
type InAppSink interface {
	Push(n models.Notification)
}

// Service owns the mutable channel list and the anomaly watch loop. Channels
// are configured at startup and may be reconfigured at runtime; everything
// else reaches them only through this service.
type Service struct {
	store    repository.AnomalyRepository
	interval time.Duration
	logger   *slog.Logger
	client   *http.Client
	inApp    InAppSink
	now      func() time.Time

	mu       sync.RWMutex
	channels map[string]models.NotificationChannel

	// lastCheck is the exclusive lower bound of the next watch window. It
	// advances only after a successful scan, so a failed query re-scans the
	// same window next cycle (at-least-once, duplicates acceptable).
	lastCheck time.Time
}

// New creates a notification service watching at the given interval.
func New(store repository.AnomalyRepository, interval time.Duration, inApp InAppSink, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		interval: interval,
		logger:   logger.With("component", "notifier"),
		client:   &http.Client{Timeout: 10 * time.Second},
		inApp:    inApp,
		now:      time.Now,
		channels: make(map[string]models.NotificationChannel),
	}
}

// ConfigureChannel upserts a channel by id: a known id is replaced in place,
// a new id is added.
func (s *Service) ConfigureChannel(ch models.NotificationChannel) error {
	if ch.ID == "" {
		return fmt.Errorf("channel id must not be empty")
	}
	switch ch.Type {
	case models.ChannelInApp, models.ChannelSystem:
	case models.ChannelWebhook, models.ChannelSlack:
		if ch.URL == "" {
			return fmt.Errorf("%s channel %s requires a url", ch.Type, ch.ID)
		}
	default:
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}

	s.mu.Lock()
	s.channels[ch.ID] = ch
	s.mu.Unlock()
	s.logger.Info("notification channel configured", "id", ch.ID, "type", ch.Type, "enabled", ch.Enabled)
	return nil
}

// Channels returns the configured channels sorted by id.
func (s *Service) Channels() []models.NotificationChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NotificationChannel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notify dispatches one notification to every enabled channel. Delivery
// failures are per-channel: one webhook being down never blocks the rest.
func (s *Service) Notify(ctx context.Context, n models.Notification) {
	for _, ch := range s.Channels() {
		if !ch.Enabled {
			continue
		}
		if err := s.dispatch(ctx, ch, n); err != nil {
			metrics.NotificationsDispatchedTotal.WithLabelValues(string(ch.Type), "failure").Inc()
			s.logger.Warn("notification delivery failed", "channel", ch.ID, "type", ch.Type, "error", err)
			continue
		}
		metrics.NotificationsDispatchedTotal.WithLabelValues(string(ch.Type), "success").Inc()
	}
}

func (s *Service) dispatch(ctx context.Context, ch models.NotificationChannel, n models.Notification) error {
	switch ch.Type {
	case models.ChannelSystem:
		s.logger.Info("notification",
			"title", n.Title, "severity", n.Severity,
			"cluster", n.ClusterID, "resource", n.ResourceID, "message", n.Message)
		return nil

	case models.ChannelInApp:
		if s.inApp == nil {
			return fmt.Errorf("no in-app sink attached")
		}
		s.inApp.Push(n)
		return nil

	case models.ChannelWebhook:
		return s.post(ctx, ch.URL, n)

	case models.ChannelSlack:
		payload := map[string]string{
			"text": fmt.Sprintf("[%s] %s — %s", n.Severity, n.Title, n.Message),
		}
		return s.post(ctx, ch.URL, payload)

	default:
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}
}

func (s *Service) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery returned status %d", resp.StatusCode)
	}
	return nil
}

// WatchOnce scans for anomalies detected inside the current window and
// dispatches one notification per anomaly. The window advances only when the
// scan succeeds.
func (s *Service) WatchOnce(ctx context.Context) error {
	now := s.now().UTC()
	if s.lastCheck.IsZero() {
		// First cycle establishes the window; old anomalies are not replayed.
		s.lastCheck = now
		return nil
	}

	anomalies, err := s.store.ListAnomalies(ctx, models.AnomalyFilter{
		TimeRange: &models.TimeRange{Start: s.lastCheck, End: now},
	})
	if err != nil {
		return fmt.Errorf("anomaly scan failed: %w", err)
	}

	for _, a := range anomalies {
		s.Notify(ctx, anomalyNotification(a))
	}

	s.lastCheck = now
	return nil
}

func anomalyNotification(a models.Anomaly) models.Notification {
	return models.Notification{
		ID:         uuid.New().String(),
		Title:      fmt.Sprintf("%s anomaly on %s", a.MetricType, a.ResourceID),
		Message:    a.Description,
		Severity:   a.Severity,
		Timestamp:  a.DetectedAt,
		ClusterID:  a.ClusterID,
		ResourceID: a.ResourceID,
	}
}

// Run watches until ctx is cancelled. Scan errors are logged; the window
// stays put so the next cycle retries it.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("notification watcher started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notification watcher stopped")
			return
		case <-ticker.C:
			if err := s.WatchOnce(ctx); err != nil {
				s.logger.Error("anomaly watch failed", "error", err)
			}
		}
	}
}
