package quota

import (
	"context"
	"log/slog"
	"time"
)

// AdmissionController gates outbound work on the tracker's quota state.
// Callers invoke AwaitCapacity before each remote operation; when the
// quota is exhausted the call blocks for the tracker's wait heuristic,
// then returns so the caller proceeds.
//
// The wait is single-shot and coarse: one sleep sized by
// SecondsUntilCapacity, no re-check loop. The heuristic never undershoots
// a window boundary, so a single wait is sufficient to clear at least one
// window.
type AdmissionController struct {
	tracker *Tracker
	logger  *slog.Logger
	metrics *Metrics
	notify  func(wait time.Duration)

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// AdmissionConfig configures an AdmissionController. Tracker is required.
type AdmissionConfig struct {
	// Tracker supplies the quota state.
	Tracker *Tracker

	// Logger receives structured logs.
	Logger *slog.Logger

	// Metrics, if set, receives admission check and wait metrics.
	Metrics *Metrics

	// Notify, if set, is invoked before each imposed wait, for user-facing
	// "rate limited, waiting Ns" surfaces.
	Notify func(wait time.Duration)
}

// NewAdmissionController creates an admission controller.
func NewAdmissionController(cfg AdmissionConfig) *AdmissionController {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AdmissionController{
		tracker: cfg.Tracker,
		logger:  cfg.Logger.With("component", "quota.admission"),
		metrics: cfg.Metrics,
		notify:  cfg.Notify,
		sleep:   sleepContext,
	}
}

// AwaitCapacity blocks until the quota has capacity for one more
// operation. When capacity exists it returns immediately. When the quota
// is exhausted it waits once for the tracker's heuristic (minimum one
// second), reconciles, and returns. Context cancellation aborts the wait
// with the context's error.
//
// AwaitCapacity never rejects: an over-limit quota delays the caller, it
// does not fail the call.
func (a *AdmissionController) AwaitCapacity(ctx context.Context) error {
	if !a.tracker.OverLimit() {
		if a.metrics != nil {
			a.metrics.ObserveAdmission(true)
		}
		return nil
	}

	waitSecs := a.tracker.SecondsUntilCapacity()
	if waitSecs < 1 {
		waitSecs = 1
	}
	wait := time.Duration(waitSecs) * time.Second

	a.logger.Info("rate limited, waiting for capacity",
		"model", a.tracker.Snapshot().ModelID,
		"wait_seconds", waitSecs,
	)
	if a.notify != nil {
		a.notify(wait)
	}
	if a.metrics != nil {
		a.metrics.ObserveAdmission(false)
		a.metrics.ObserveWait(wait)
	}

	if err := a.sleep(ctx, wait); err != nil {
		return err
	}

	a.tracker.Reconcile()
	return nil
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
