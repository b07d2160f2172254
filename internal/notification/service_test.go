package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
)

type fakeSink struct {
	mu   sync.Mutex
	seen []models.Notification
}

func (f *fakeSink) Push(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, n)
}

// flakyStore fails the first ListAnomalies calls, then delegates to the
// memory store.
type flakyStore struct {
	*repository.MemoryStorage
	failures int
}

func (f *flakyStore) ListAnomalies(ctx context.Context, filter models.AnomalyFilter) ([]models.Anomaly, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("storage unavailable")
	}
	return f.MemoryStorage.ListAnomalies(ctx, filter)
}

func testAnomaly(at time.Time) models.Anomaly {
	return models.Anomaly{
		ID:          "a-" + at.Format(time.RFC3339Nano),
		ClusterID:   "prod",
		ResourceID:  "default/api",
		DetectedAt:  at,
		MetricType:  models.MetricCPUUsage,
		Severity:    models.SeverityCritical,
		Description: "cpu_usage deviated 5.0 sigma from baseline",
	}
}

func TestConfigureChannelUpsertsById(t *testing.T) {
	s := New(repository.NewMemoryStorage(), time.Minute, nil, slog.Default())

	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "ops", Type: models.ChannelWebhook, URL: "http://example.com/hook", Enabled: true,
	}))
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "ops", Type: models.ChannelWebhook, URL: "http://example.com/hook2", Enabled: false,
	}))

	channels := s.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, "http://example.com/hook2", channels[0].URL)
	assert.False(t, channels[0].Enabled)
}

func TestConfigureChannelValidation(t *testing.T) {
	s := New(repository.NewMemoryStorage(), time.Minute, nil, slog.Default())

	assert.Error(t, s.ConfigureChannel(models.NotificationChannel{Type: models.ChannelSystem}))
	assert.Error(t, s.ConfigureChannel(models.NotificationChannel{ID: "w", Type: models.ChannelWebhook}))
	assert.Error(t, s.ConfigureChannel(models.NotificationChannel{ID: "x", Type: "pager"}))
}

func TestNotifyDispatchesToWebhookAndSlack(t *testing.T) {
	var mu sync.Mutex
	var webhookBodies, slackBodies []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == "/slack" {
			slackBodies = append(slackBodies, body)
		} else {
			webhookBodies = append(webhookBodies, body)
		}
	}))
	defer server.Close()

	sink := &fakeSink{}
	s := New(repository.NewMemoryStorage(), time.Minute, sink, slog.Default())
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "hook", Type: models.ChannelWebhook, URL: server.URL + "/hook", Enabled: true,
	}))
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "slack", Type: models.ChannelSlack, URL: server.URL + "/slack", Enabled: true,
	}))
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "ui", Type: models.ChannelInApp, Enabled: true,
	}))
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "off", Type: models.ChannelWebhook, URL: server.URL + "/never", Enabled: false,
	}))

	s.Notify(context.Background(), models.Notification{
		ID: "n-1", Title: "cpu_usage anomaly on default/api",
		Message: "observed 400", Severity: models.SeverityCritical,
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, webhookBodies, 1)
	assert.Equal(t, "cpu_usage anomaly on default/api", webhookBodies[0]["title"])
	require.Len(t, slackBodies, 1)
	assert.Contains(t, slackBodies[0]["text"], "critical")
	require.Len(t, sink.seen, 1)
}

func TestWatchOnceDispatchesNewAnomaliesOnly(t *testing.T) {
	store := repository.NewMemoryStorage()
	sink := &fakeSink{}
	s := New(store, time.Minute, sink, slog.Default())
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "ui", Type: models.ChannelInApp, Enabled: true,
	}))

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	// First cycle only establishes the window.
	require.NoError(t, store.InsertAnomaly(ctx, testAnomaly(base.Add(-time.Hour))))
	require.NoError(t, s.WatchOnce(ctx))
	assert.Empty(t, sink.seen)

	// An anomaly inside the next window is dispatched once.
	require.NoError(t, store.InsertAnomaly(ctx, testAnomaly(base.Add(30*time.Second))))
	clock = base.Add(time.Minute)
	require.NoError(t, s.WatchOnce(ctx))
	require.Len(t, sink.seen, 1)
	assert.Equal(t, "cpu_usage anomaly on default/api", sink.seen[0].Title)

	// Already-notified anomalies are not replayed in later windows.
	clock = base.Add(2 * time.Minute)
	require.NoError(t, s.WatchOnce(ctx))
	assert.Len(t, sink.seen, 1)
}

func TestWatchOnceRetriesSameWindowAfterFailure(t *testing.T) {
	store := &flakyStore{MemoryStorage: repository.NewMemoryStorage(), failures: 1}
	sink := &fakeSink{}
	s := New(store, time.Minute, sink, slog.Default())
	require.NoError(t, s.ConfigureChannel(models.NotificationChannel{
		ID: "ui", Type: models.ChannelInApp, Enabled: true,
	}))

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.WatchOnce(ctx)) // establish window

	require.NoError(t, store.InsertAnomaly(ctx, testAnomaly(base.Add(10*time.Second))))
	clock = base.Add(time.Minute)
	require.Error(t, s.WatchOnce(ctx)) // scan fails, window must not advance
	assert.Empty(t, sink.seen)

	clock = base.Add(2 * time.Minute)
	require.NoError(t, s.WatchOnce(ctx))
	// The anomaly from the failed window is still delivered.
	require.Len(t, sink.seen, 1)
}
