package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow
// the naming convention GANYMEDE_SECTION_FIELD (e.g.,
// GANYMEDE_QUOTA_DEFAULT_MODEL). Environment variables always take
// precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Quota overrides
	if val := os.Getenv("GANYMEDE_QUOTA_DEFAULT_MODEL"); val != "" {
		cfg.Quota.DefaultModel = val
	}
	if val := os.Getenv("GANYMEDE_QUOTA_CATALOG_PATH"); val != "" {
		cfg.Quota.CatalogPath = val
	}
	if val := os.Getenv("GANYMEDE_QUOTA_WATCH_CATALOG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Quota.WatchCatalog = b
		}
	}
	if val := os.Getenv("GANYMEDE_QUOTA_RECONCILE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Quota.ReconcileInterval = d
		}
	}

	// Storage overrides
	if val := os.Getenv("GANYMEDE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("GANYMEDE_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}
	if val := os.Getenv("GANYMEDE_STORAGE_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.SQLite.BusyTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_STORAGE_SQLITE_CHECKPOINT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.SQLite.CheckpointInterval = d
		}
	}

	// History overrides
	if val := os.Getenv("GANYMEDE_HISTORY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.History.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_HISTORY_PATH"); val != "" {
		cfg.History.Path = val
	}
	if val := os.Getenv("GANYMEDE_HISTORY_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.History.RetentionDays = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
