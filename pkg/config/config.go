package config

import "time"

// Config is the root configuration structure for Ganymede. It contains
// all configuration sections for quota tracking, persistence, usage
// history, and telemetry.
type Config struct {
	// Quota contains quota tracking configuration including the default
	// model, catalog file, and reconcile cadence.
	Quota QuotaConfig `yaml:"quota"`

	// Storage contains quota state persistence configuration.
	Storage StorageConfig `yaml:"storage"`

	// History contains usage history journal configuration.
	History HistoryConfig `yaml:"history"`

	// Telemetry contains observability configuration: logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// QuotaConfig contains quota tracking configuration.
type QuotaConfig struct {
	// DefaultModel is the model id selected when no persisted state exists.
	// Default: "gemini-2.0-flash"
	DefaultModel string `yaml:"default_model"`

	// CatalogPath is the path to a YAML limit catalog. When empty the
	// built-in catalog is used.
	CatalogPath string `yaml:"catalog_path"`

	// WatchCatalog enables live reload of the catalog file on change.
	// It has no effect when CatalogPath is empty.
	// Default: false
	WatchCatalog bool `yaml:"watch_catalog"`

	// ReconcileInterval is the cadence of the background reconcile loop.
	// Default: 5s
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// StorageConfig contains quota state persistence configuration.
type StorageConfig struct {
	// Backend selects the persistence backend: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "ganymede-state.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a locked database is retried before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is the WAL checkpoint cadence. Zero disables the
	// background checkpoint loop.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// HistoryConfig contains usage history journal configuration.
type HistoryConfig struct {
	// Enabled controls whether usage events are journaled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the journal database file path.
	// Default: "ganymede-history.db"
	Path string `yaml:"path"`

	// RetentionDays is how many days of history to keep. Zero keeps
	// everything.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address and port for the metrics server.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
