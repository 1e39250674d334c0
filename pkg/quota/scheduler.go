package quota

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReconcileInterval is the cadence of the background reconcile
// loop when none is configured.
const DefaultReconcileInterval = 5 * time.Second

// Scheduler drives periodic reconciliation so window rollovers are
// detected and broadcast even when no caller is active. Without it the
// tracker still reconciles lazily on every operation; the scheduler only
// tightens detection latency for observers.
type Scheduler struct {
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler reconciling tracker every interval.
// A non-positive interval uses DefaultReconcileInterval.
func NewScheduler(tracker *Tracker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tracker:  tracker,
		interval: interval,
		logger:   logger.With("component", "quota.scheduler"),
	}
}

// Start begins the reconcile loop. Starting a running scheduler is an
// error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tracker.Reconcile)
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile job: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("reconcile scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the reconcile loop and waits for an in-flight run to
// finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("reconcile scheduler stopped")
}
