package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/quota"
	"mercator-hq/ganymede/pkg/quota/catalog"
	"mercator-hq/ganymede/pkg/quota/history"
	"mercator-hq/ganymede/pkg/quota/storage"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// appRuntime bundles the wired components a command needs: configuration,
// logger, catalog, tracker, and (optionally) the history journal.
type appRuntime struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	tracker *quota.Tracker
	journal *history.Journal
	metrics *quota.Metrics
}

// loadConfiguration loads the config file named by --config. A missing
// file is not an error: commands fall back to the built-in defaults so
// ganymede works out of the box.
func loadConfiguration() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Config{
		Level:  level,
		Format: cfg.Telemetry.Logging.Format,
	})
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Quota.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.Quota.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load limit catalog: %w", err)
	}
	return cat, nil
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		return storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:           cfg.Storage.SQLite.Path,
			BusyTimeout:      cfg.Storage.SQLite.BusyTimeout,
			SnapshotInterval: cfg.Storage.SQLite.CheckpointInterval,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// buildRuntime wires the full component stack. The caller must invoke
// close when done. withMetrics additionally registers Prometheus metrics
// with the default registry.
func buildRuntime(ctx context.Context, withMetrics bool) (*appRuntime, func(), error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	cat, err := openCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	var journal *history.Journal
	if cfg.History.Enabled {
		journal, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("failed to open usage history: %w", err)
		}
	}

	var metrics *quota.Metrics
	if withMetrics {
		metrics = quota.NewMetrics(nil)
	}

	tracker := quota.NewTracker(quota.TrackerConfig{
		Catalog:      cat,
		Backend:      backend,
		Journal:      journal,
		Metrics:      metrics,
		Logger:       logger,
		DefaultModel: cfg.Quota.DefaultModel,
	})

	cleanup := func() {
		tracker.Close()
		if journal != nil {
			journal.Close()
		}
	}

	if err := tracker.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize quota tracker: %w", err)
	}

	return &appRuntime{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		tracker: tracker,
		journal: journal,
		metrics: metrics,
	}, cleanup, nil
}
