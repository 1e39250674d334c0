package quota

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/quota/catalog"
	"mercator-hq/ganymede/pkg/quota/history"
	"mercator-hq/ganymede/pkg/quota/state"
	"mercator-hq/ganymede/pkg/quota/storage"
)

// Tracker owns the process-wide quota state: it applies the window-reset
// rules, records consumption, answers admission queries, and broadcasts a
// snapshot to subscribers after every change.
//
// There is no ambient global. A Tracker is constructed explicitly,
// initialized once, injected into whatever needs it, and closed when the
// process shuts down.
//
// # Reconciliation
//
// Every public call that reads or mutates state reconciles first, so a
// counter is never read or incremented against an already-elapsed window.
// The Scheduler additionally reconciles on a fixed cadence so subscribers
// see fresh values even when no caller is active.
//
// # Error policy
//
// Over-limit is a normal boolean outcome, never an error. Persistence and
// journal failures are logged and swallowed: the admission path must not
// fail on disk errors. Only lifecycle misuse (not initialized, closed)
// surfaces as an error.
type Tracker struct {
	catalog *catalog.Catalog
	backend storage.Backend
	journal *history.Journal
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.Mutex
	st           *state.QuotaState
	initialized  bool
	closed       bool
	warnedModel  string
	defaultModel string

	subMu   sync.RWMutex
	subs    map[string]chan Snapshot
	dropped atomic.Int64
}

// TrackerConfig configures a Tracker. Zero-value fields get defaults:
// the built-in catalog, an in-memory backend, the default slog logger,
// and the real clock. Journal and Metrics are optional and stay nil when
// unset.
type TrackerConfig struct {
	// Catalog supplies the limit entries governing admission checks.
	Catalog *catalog.Catalog

	// Backend persists the quota state across restarts.
	Backend storage.Backend

	// Journal, if set, receives an append-only record of every usage event.
	Journal *history.Journal

	// Metrics, if set, receives Prometheus metrics.
	Metrics *Metrics

	// Logger receives structured logs.
	Logger *slog.Logger

	// DefaultModel is the model id selected when no persisted state exists.
	DefaultModel string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewTracker creates a tracker. Initialize must be called before use.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Backend == nil {
		cfg.Backend = storage.NewMemoryBackend()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Tracker{
		catalog:      cfg.Catalog,
		backend:      cfg.Backend,
		journal:      cfg.Journal,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("component", "quota.tracker"),
		now:          cfg.Now,
		defaultModel: cfg.DefaultModel,
		subs:         make(map[string]chan Snapshot),
	}
}

// Initialize loads persisted state, or creates a fresh zeroed state
// anchored at now when none exists. Loaded state with elapsed windows is
// reconciled before Initialize returns, so stale counters are never
// visible to any caller. Initialize is idempotent.
func (t *Tracker) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.initialized {
		return nil
	}

	now := t.now()

	loaded, err := t.backend.Load(ctx)
	if err != nil {
		// A corrupt or unreadable record is treated as absent.
		t.logger.Warn("failed to load persisted quota state, starting fresh", "error", err)
		loaded = nil
	}

	if loaded == nil || loaded.MinuteResetAt.IsZero() || loaded.DayResetAt.IsZero() {
		t.st = state.New(t.defaultModel, now)
	} else {
		t.st = loaded
		if t.st.ModelID == "" {
			t.st.ModelID = t.defaultModel
		}
		// Correct any window that elapsed while the process was down.
		t.st.Reconcile(now)
	}

	t.persistLocked(ctx)
	t.initialized = true

	t.logger.Info("quota tracker initialized",
		"model", t.st.ModelID,
		"minute_reset_at", t.st.MinuteResetAt,
		"day_reset_at", t.st.DayResetAt,
	)

	return nil
}

// Reconcile detects elapsed windows and resets them. It is invoked
// internally by every read/mutate operation and externally by the
// Scheduler on its fixed cadence. Changes are persisted and broadcast.
func (t *Tracker) Reconcile() {
	t.mu.Lock()
	if t.st == nil || t.closed {
		t.mu.Unlock()
		return
	}

	changed := t.reconcileLocked(context.Background())
	var snap Snapshot
	if changed {
		snap = t.snapshotLocked()
	}
	t.mu.Unlock()

	if changed {
		t.publish(snap)
	}
}

// Record adds consumed tokens and completed requests to both windows,
// persists the state, and notifies subscribers. Consumption is monotonic
// within a window; Record never decrements.
//
// Persistence and journal failures are logged, not returned: recording
// proceeds with in-memory state.
func (t *Tracker) Record(ctx context.Context, tokens, requests int64) error {
	return t.record(ctx, history.Entry{
		TotalTokens: tokens,
		Requests:    requests,
	})
}

// RecordUsage maps a completed operation's usage triple to
// Record(total, 1), preserving the prompt/completion split in the journal.
func (t *Tracker) RecordUsage(ctx context.Context, u TokenUsage) error {
	return t.record(ctx, history.Entry{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.Total(),
		Requests:         1,
	})
}

func (t *Tracker) record(ctx context.Context, entry history.Entry) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	// Reconcile first: never increment against an elapsed window.
	t.reconcileLocked(ctx)
	t.st.AddUsage(entry.TotalTokens, entry.Requests)
	t.persistLocked(ctx)

	entry.Timestamp = t.now()
	entry.ModelID = t.st.ModelID
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordUsage(entry.TotalTokens)
	}
	if t.journal != nil {
		if err := t.journal.Append(ctx, entry); err != nil {
			t.logger.Warn("failed to append usage history entry", "error", err)
		}
	}

	t.publish(snap)
	return nil
}

// OverLimit reports whether any of the four counters has reached or
// exceeded its ceiling. A single breached dimension is sufficient.
// An uninitialized tracker reports false.
func (t *Tracker) OverLimit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.st == nil {
		return false
	}
	t.reconcileLocked(context.Background())

	breached := t.breachedLocked()
	if t.metrics != nil {
		for _, d := range breached {
			t.metrics.RecordLimitHit(d)
		}
	}
	return len(breached) > 0
}

// SecondsUntilCapacity returns the smaller of the two window remainders,
// rounded up to whole seconds and floored at zero. It is a heuristic
// upper bound: the wait may overshoot the true moment of capacity but
// never undershoots a window boundary.
func (t *Tracker) SecondsUntilCapacity() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.st == nil {
		return 0
	}
	t.reconcileLocked(context.Background())

	now := t.now()
	minute := ceilSeconds(t.st.MinuteResetAt.Sub(now))
	day := ceilSeconds(t.st.DayResetAt.Sub(now))
	if minute < day {
		return minute
	}
	return day
}

// SetModel switches the active model id without touching counters: the
// counters are process-wide accumulators, and only the governing limit
// entry changes. The change is persisted and broadcast.
func (t *Tracker) SetModel(ctx context.Context, modelID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	t.reconcileLocked(ctx)
	t.st.ModelID = modelID
	t.persistLocked(ctx)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.publish(snap)
	return nil
}

// Snapshot returns a consistent read-only view of the state plus derived
// values. Like every read, it reconciles first.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.st == nil {
		return Snapshot{Taken: t.now()}
	}
	t.reconcileLocked(context.Background())
	return t.snapshotLocked()
}

// Subscribe registers a snapshot subscriber and returns its subscription
// id and a receive-only channel with the given buffer (minimum 1).
// Delivery is best-effort: a full channel drops the snapshot rather than
// blocking the mutation path. The channel is closed on Unsubscribe or
// Close.
func (t *Tracker) Subscribe(buffer int) (string, <-chan Snapshot) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Snapshot, buffer)
	id := uuid.NewString()

	t.subMu.Lock()
	t.subs[id] = ch
	t.subMu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are a no-op.
func (t *Tracker) Unsubscribe(id string) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

// Dropped returns the number of snapshots dropped on full subscriber
// channels since the tracker was created.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Close closes all subscriber channels and the storage backend. The
// tracker cannot be used afterwards.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.subMu.Lock()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.subMu.Unlock()

	return t.backend.Close()
}

// reconcileLocked applies the window-reset rules and persists on change.
// Caller must hold t.mu.
func (t *Tracker) reconcileLocked(ctx context.Context) bool {
	minuteRolled, dayRolled := t.st.Reconcile(t.now())
	if minuteRolled || dayRolled {
		t.logger.Debug("quota window rolled over",
			"minute", minuteRolled,
			"day", dayRolled,
		)
		t.persistLocked(ctx)
		return true
	}
	return false
}

// persistLocked saves the state, logging (not returning) failures.
// Caller must hold t.mu.
func (t *Tracker) persistLocked(ctx context.Context) {
	if err := t.backend.Save(ctx, t.st); err != nil {
		t.logger.Error("failed to persist quota state, continuing in memory", "error", err)
		if t.metrics != nil {
			t.metrics.RecordPersistFailure()
		}
	}
}

// lookupLocked resolves the limit entry for the active model, warning
// once per model id on a catalog miss. Caller must hold t.mu.
func (t *Tracker) lookupLocked() catalog.LimitEntry {
	entry, found := t.catalog.Lookup(t.st.ModelID)
	if !found {
		if t.warnedModel != t.st.ModelID {
			t.warnedModel = t.st.ModelID
			t.logger.Warn("model not in catalog, using default limits", "model", t.st.ModelID)
		}
		if t.metrics != nil {
			t.metrics.RecordCatalogMiss()
		}
	}
	return entry
}

// breachedLocked returns the dimensions at or above their ceiling.
// Caller must hold t.mu.
func (t *Tracker) breachedLocked() []Dimension {
	entry := t.lookupLocked()

	var breached []Dimension
	if t.st.RequestsThisMinute >= entry.RequestsPerMinute {
		breached = append(breached, DimensionRequestsPerMinute)
	}
	if t.st.RequestsToday >= entry.RequestsPerDay {
		breached = append(breached, DimensionRequestsPerDay)
	}
	if t.st.TokensThisMinute >= entry.TokensPerMinute {
		breached = append(breached, DimensionTokensPerMinute)
	}
	if t.st.TokensToday >= entry.TokensPerDay {
		breached = append(breached, DimensionTokensPerDay)
	}
	return breached
}

// snapshotLocked builds a snapshot with derived values. Caller must hold
// t.mu and must have reconciled already.
func (t *Tracker) snapshotLocked() Snapshot {
	now := t.now()
	entry := t.lookupLocked()

	percent := Percentages{
		RequestsPerMinute: ratio(t.st.RequestsThisMinute, entry.RequestsPerMinute),
		RequestsPerDay:    ratio(t.st.RequestsToday, entry.RequestsPerDay),
		TokensPerMinute:   ratio(t.st.TokensThisMinute, entry.TokensPerMinute),
		TokensPerDay:      ratio(t.st.TokensToday, entry.TokensPerDay),
	}

	minute := ceilSeconds(t.st.MinuteResetAt.Sub(now))
	day := ceilSeconds(t.st.DayResetAt.Sub(now))
	wait := minute
	if day < wait {
		wait = day
	}

	if t.metrics != nil {
		t.metrics.SetUsage(percent)
	}

	return Snapshot{
		ModelID:              t.st.ModelID,
		TokensThisMinute:     t.st.TokensThisMinute,
		TokensToday:          t.st.TokensToday,
		RequestsThisMinute:   t.st.RequestsThisMinute,
		RequestsToday:        t.st.RequestsToday,
		MinuteResetAt:        t.st.MinuteResetAt,
		DayResetAt:           t.st.DayResetAt,
		Limits:               entry,
		Percent:              percent,
		OverLimit:            len(t.breachedLocked()) > 0,
		SecondsUntilCapacity: wait,
		Taken:                now,
	}
}

// publish delivers a snapshot to all subscribers without blocking.
func (t *Tracker) publish(snap Snapshot) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()

	for _, ch := range t.subs {
		select {
		case ch <- snap:
		default:
			t.dropped.Add(1)
			if t.metrics != nil {
				t.metrics.RecordSnapshotDrop()
			}
		}
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

func ratio(current, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(current) / float64(limit)
}
