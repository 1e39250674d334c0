// Package config provides configuration management for Ganymede.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD.
// For example:
//
//   - GANYMEDE_QUOTA_DEFAULT_MODEL overrides quota.default_model
//   - GANYMEDE_STORAGE_SQLITE_PATH overrides storage.sqlite.path
//   - GANYMEDE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	quota:
//	  default_model: "gemini-2.0-flash"
//	  catalog_path: "./limits.yaml"
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "ganymede-state.db"
//
//	history:
//	  enabled: true
//	  path: "ganymede-history.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// For testing, prefer dependency injection with explicit Config instances.
package config
