package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/fleetscope/fleetscope-backend/internal/aggregator"
	"github.com/fleetscope/fleetscope-backend/internal/analytics"
	"github.com/fleetscope/fleetscope-backend/internal/api/rest"
	"github.com/fleetscope/fleetscope-backend/internal/api/websocket"
	"github.com/fleetscope/fleetscope-backend/internal/cluster"
	"github.com/fleetscope/fleetscope-backend/internal/collector"
	"github.com/fleetscope/fleetscope-backend/internal/config"
	"github.com/fleetscope/fleetscope-backend/internal/models"
	"github.com/fleetscope/fleetscope-backend/internal/notification"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/logger"
	"github.com/fleetscope/fleetscope-backend/internal/pkg/tracing"
	"github.com/fleetscope/fleetscope-backend/internal/repository"
	"github.com/fleetscope/fleetscope-backend/internal/scheduler"
	"github.com/fleetscope/fleetscope-backend/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.StdLogger(cfg.LogLevel)
	log.Info("starting fleetscope backend", "port", cfg.Port, "driver", cfg.DatabaseDriver)

	shutdownTracing, err := tracing.Init("fleetscope-backend", cfg.OTLPEndpoint, cfg.TraceSamplingRate)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownTracing()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := cluster.NewManager(cluster.Options{
		CallTimeout: time.Duration(cfg.K8sTimeoutSec) * time.Second,
		RateLimit:   cfg.K8sRateLimitPerSec,
		RateBurst:   cfg.K8sRateLimitBurst,
	}, log)
	for _, kubeContext := range cfg.ClusterContexts {
		if _, err := manager.AddCluster(ctx, cfg.KubeconfigPath, kubeContext); err != nil {
			// A cluster being down at boot is not fatal; it can be re-added
			// through the API once reachable.
			log.Warn("failed to register cluster at startup", "context", kubeContext, "error", err)
		}
	}

	retention := repository.RetentionPolicy{
		RawDays:        cfg.RetentionRawDays,
		AggregatedDays: cfg.RetentionAggregatedDays,
	}

	sched := scheduler.New(store, scheduler.NewClusterExecutor(manager), cfg.SchedulerInterval(), log)
	coll := collector.New(manager, store, cfg.CollectionInterval(), log)
	agg := aggregator.New(store, retention, cfg.AggregationInterval(), log)

	hub := websocket.NewHub(ctx, log)
	go hub.Run()
	defer hub.Stop()

	notifier := notification.New(store, cfg.NotificationInterval(), hub, log)
	for _, ch := range cfg.NotificationChannels {
		if err := notifier.ConfigureChannel(models.NotificationChannel{
			ID:      ch.ID,
			Name:    ch.Name,
			Type:    models.NotificationChannelType(ch.Type),
			URL:     ch.URL,
			Enabled: ch.Enabled,
		}); err != nil {
			return fmt.Errorf("invalid notification channel %q: %w", ch.ID, err)
		}
	}
	svc := analytics.New(store, manager, sched, log)
	svc.SetDetectionPolicy(cfg.AnomalySigmaThreshold, cfg.AnomalyBaselineWindow)

	go coll.Run(ctx)
	go agg.Run(ctx)
	go sched.Run(ctx)
	go notifier.Run(ctx)

	router := mux.NewRouter()
	handler := rest.NewHandler(svc, manager, notifier, log)
	handler.SetupRoutes(router)

	wsHandler := websocket.NewHandler(ctx, hub, nil)
	router.HandleFunc("/ws/notifications", wsHandler.ServeWS)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsHandler,
		ReadTimeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// openStorage opens the configured backend and applies migrations. The memory
// driver is for development only: nothing survives a restart.
func openStorage(cfg *config.Config) (repository.Storage, error) {
	if cfg.DatabaseDriver == "memory" {
		return repository.NewMemoryStorage(), nil
	}

	schema, err := migrations.FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var store *repository.SQLStorage
	switch cfg.DatabaseDriver {
	case "sqlite":
		store, err = repository.NewSQLiteStorage(cfg.DatabasePath)
	case "postgres":
		store, err = repository.NewPostgresStorage(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.RunMigrations(string(schema)); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
