package config

import "time"

// Default values for configuration fields.
const (
	// Quota defaults
	DefaultModel             = "gemini-2.0-flash"
	DefaultWatchCatalog      = false
	DefaultReconcileInterval = 5 * time.Second

	// Storage defaults
	DefaultStorageBackend           = "sqlite"
	DefaultSQLitePath               = "ganymede-state.db"
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute

	// History defaults
	DefaultHistoryEnabled       = true
	DefaultHistoryPath          = "ganymede-history.db"
	DefaultHistoryRetentionDays = 30

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = false
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
)

// ApplyDefaults fills in default values for any unset configuration
// fields. Boolean fields cannot be distinguished from an explicit false,
// so defaults that are true are handled in DefaultConfig instead.
func ApplyDefaults(cfg *Config) {
	// Quota defaults
	if cfg.Quota.DefaultModel == "" {
		cfg.Quota.DefaultModel = DefaultModel
	}
	if cfg.Quota.ReconcileInterval <= 0 {
		cfg.Quota.ReconcileInterval = DefaultReconcileInterval
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.BusyTimeout <= 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SQLite.CheckpointInterval < 0 {
		cfg.Storage.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}

	// History defaults
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.History.RetentionDays < 0 {
		cfg.History.RetentionDays = DefaultHistoryRetentionDays
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}

// DefaultConfig returns a configuration with all default values applied,
// including the true-valued booleans ApplyDefaults cannot set.
func DefaultConfig() *Config {
	cfg := &Config{
		Quota: QuotaConfig{
			WatchCatalog: DefaultWatchCatalog,
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				CheckpointInterval: DefaultSQLiteCheckpointInterval,
			},
		},
		History: HistoryConfig{
			Enabled:       DefaultHistoryEnabled,
			RetentionDays: DefaultHistoryRetentionDays,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
