package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/quota"
	"mercator-hq/ganymede/pkg/quota/catalog"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch quota state live",
	Long: `Run the quota tracker in the foreground: reconcile windows on a fixed
cadence, print a snapshot line on every change, reload the limit catalog
on file change, and optionally serve Prometheus metrics.

Examples:
  # Watch with the default configuration
  ganymede watch

  # Watch with metrics enabled via environment override
  GANYMEDE_TELEMETRY_METRICS_ENABLED=true ganymede watch`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	rt, cleanup, err := buildRuntime(ctx, true)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}
	defer cleanup()

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("✓ Configuration loaded from %s\n", cfgFile)
	fmt.Printf("✓ Quota tracker initialized (model %s)\n", rt.tracker.Snapshot().ModelID)

	// Apply the history retention policy on startup.
	if rt.journal != nil && rt.cfg.History.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -rt.cfg.History.RetentionDays)
		if n, err := rt.journal.Prune(ctx, cutoff); err != nil {
			rt.logger.Warn("failed to prune usage history", "error", err)
		} else if n > 0 {
			rt.logger.Info("pruned usage history", "entries", n, "older_than", cutoff)
		}
	}

	scheduler := quota.NewScheduler(rt.tracker, rt.cfg.Quota.ReconcileInterval, rt.logger)
	if err := scheduler.Start(); err != nil {
		return cli.NewCommandError("watch", err)
	}
	defer scheduler.Stop()

	// Catalog live reload.
	if rt.cfg.Quota.WatchCatalog && rt.cfg.Quota.CatalogPath != "" {
		watcher, err := catalog.NewWatcher(rt.catalog, rt.cfg.Quota.CatalogPath, rt.logger)
		if err != nil {
			return cli.NewCommandError("watch", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				rt.logger.Error("catalog watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Printf("✓ Watching limit catalog %s\n", rt.cfg.Quota.CatalogPath)
	}

	// Metrics endpoint.
	var metricsServer *http.Server
	if rt.cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(rt.cfg.Telemetry.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              rt.cfg.Telemetry.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server failed", "error", err)
			}
		}()
		fmt.Printf("✓ Metrics: http://%s%s\n", rt.cfg.Telemetry.Metrics.ListenAddress, rt.cfg.Telemetry.Metrics.Path)
	}

	id, snapshots := rt.tracker.Subscribe(64)
	defer rt.tracker.Unsubscribe(id)

	fmt.Println("\nPress Ctrl+C to stop")
	printSnapshotLine(rt.tracker.Snapshot())

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			printSnapshotLine(snap)
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					rt.logger.Error("metrics server shutdown failed", "error", err)
				}
			}
			return nil
		}
	}
}

func printSnapshotLine(snap quota.Snapshot) {
	state := "ok"
	if snap.OverLimit {
		state = fmt.Sprintf("OVER LIMIT (~%ds)", snap.SecondsUntilCapacity)
	}
	fmt.Printf("[%s] %s  req %d/%d min %d/%d day  tok %d/%d min %d/%d day  %s\n",
		snap.Taken.Format("15:04:05"),
		snap.ModelID,
		snap.RequestsThisMinute, snap.Limits.RequestsPerMinute,
		snap.RequestsToday, snap.Limits.RequestsPerDay,
		snap.TokensThisMinute, snap.Limits.TokensPerMinute,
		snap.TokensToday, snap.Limits.TokensPerDay,
		state,
	)
}
