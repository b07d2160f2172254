// Package config loads the backend configuration from file and environment.
// Everything here is read once at startup; the only live-reconfigurable
// surface is the notification channel list, which goes through the API.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Storage. Driver is sqlite, postgres, or memory (tests/dev only).
	DatabaseDriver string `mapstructure:"database_driver"`
	DatabasePath   string `mapstructure:"database_path"` // sqlite
	DatabaseDSN    string `mapstructure:"database_dsn"`  // postgres

	// Cluster registration: kubeconfig contexts to connect at startup.
	KubeconfigPath  string   `mapstructure:"kubeconfig_path"`
	ClusterContexts []string `mapstructure:"cluster_contexts"`

	// Background loop cadences, in seconds.
	CollectionIntervalSec   int `mapstructure:"collection_interval_sec"`
	AggregationIntervalSec  int `mapstructure:"aggregation_interval_sec"`
	SchedulerIntervalSec    int `mapstructure:"scheduler_interval_sec"`
	NotificationIntervalSec int `mapstructure:"notification_interval_sec"`

	// Notification channels registered at startup. The same channels can be
	// reconfigured live through the API afterwards.
	NotificationChannels []NotificationChannelConfig `mapstructure:"notification_channels"`

	// Retention windows, in days.
	RetentionRawDays        int `mapstructure:"retention_raw_days"`
	RetentionAggregatedDays int `mapstructure:"retention_aggregated_days"`

	// Anomaly detection policy.
	AnomalySigmaThreshold float64 `mapstructure:"anomaly_sigma_threshold"`
	AnomalyBaselineWindow int     `mapstructure:"anomaly_baseline_window"`

	// Outbound K8s call protections.
	K8sTimeoutSec      int     `mapstructure:"k8s_timeout_sec"`
	K8sRateLimitPerSec float64 `mapstructure:"k8s_rate_limit_per_sec"` // 0 = no limit
	K8sRateLimitBurst  int     `mapstructure:"k8s_rate_limit_burst"`

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"`

	// Tracing. Empty endpoint disables the exporter.
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`
}

// NotificationChannelConfig declares one delivery channel in the config file.
// Type is in_app, system, webhook, or slack; webhook and slack require a url.
type NotificationChannelConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/fleetscope/")
	viper.AddConfigPath("$HOME/.fleetscope")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("database_path", "./fleetscope.db")
	viper.SetDefault("database_dsn", "")
	viper.SetDefault("kubeconfig_path", "")
	viper.SetDefault("cluster_contexts", []string{})
	viper.SetDefault("collection_interval_sec", 60)
	viper.SetDefault("aggregation_interval_sec", 3600)
	viper.SetDefault("scheduler_interval_sec", 60)
	viper.SetDefault("notification_interval_sec", 60)
	viper.SetDefault("retention_raw_days", 7)
	viper.SetDefault("retention_aggregated_days", 30)
	viper.SetDefault("anomaly_sigma_threshold", 2.0)
	viper.SetDefault("anomaly_baseline_window", 20)
	viper.SetDefault("k8s_timeout_sec", 30)
	viper.SetDefault("k8s_rate_limit_per_sec", 0)
	viper.SetDefault("k8s_rate_limit_burst", 0)
	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("trace_sampling_rate", 1.0)

	viper.SetEnvPrefix("FLEETSCOPE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; defaults and env vars apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "memory":
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database_dsn is required when database_driver is postgres")
		}
	default:
		return fmt.Errorf("unknown database_driver %q", c.DatabaseDriver)
	}
	if c.RetentionRawDays <= 0 || c.RetentionAggregatedDays <= 0 {
		return fmt.Errorf("retention windows must be positive")
	}
	if c.RetentionAggregatedDays < c.RetentionRawDays {
		return fmt.Errorf("retention_aggregated_days must not be shorter than retention_raw_days")
	}
	if c.AnomalySigmaThreshold <= 0 {
		return fmt.Errorf("anomaly_sigma_threshold must be positive")
	}
	if c.AnomalyBaselineWindow <= 0 {
		return fmt.Errorf("anomaly_baseline_window must be positive")
	}
	return nil
}

// CollectionInterval returns the collector cadence as a duration.
func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSec) * time.Second
}

// AggregationInterval returns the aggregator cadence as a duration.
func (c *Config) AggregationInterval() time.Duration {
	return time.Duration(c.AggregationIntervalSec) * time.Second
}

// SchedulerInterval returns the scheduler cadence as a duration.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSec) * time.Second
}

// NotificationInterval returns the notifier cadence as a duration.
func (c *Config) NotificationInterval() time.Duration {
	return time.Duration(c.NotificationIntervalSec) * time.Second
}
