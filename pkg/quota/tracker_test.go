package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/quota/catalog"
	"mercator-hq/ganymede/pkg/quota/state"
	"mercator-hq/ganymede/pkg/quota/storage"
)

// =============================================================================
// Test fixtures
// =============================================================================

// fakeClock is a manually advanced clock injected via TrackerConfig.Now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingBackend fails every Save but loads cleanly.
type failingBackend struct {
	storage.Backend
	saves int
}

func (b *failingBackend) Save(ctx context.Context, s *state.QuotaState) error {
	b.saves++
	return errors.New("disk full")
}

// corruptBackend simulates an undecodable persisted record.
type corruptBackend struct {
	storage.Backend
}

func (b *corruptBackend) Load(ctx context.Context) (*state.QuotaState, error) {
	return nil, fmt.Errorf("decode: %w", storage.ErrCorruptState)
}

func testCatalog(t *testing.T, entry catalog.LimitEntry) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(map[string]catalog.LimitEntry{"test-model": entry}, catalog.DefaultEntry)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestTracker builds an initialized tracker with a fake clock, a tiny
// limit entry, and an in-memory backend.
func newTestTracker(t *testing.T, entry catalog.LimitEntry) (*Tracker, *fakeClock) {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	tr := NewTracker(TrackerConfig{
		Catalog:      testCatalog(t, entry),
		Backend:      storage.NewMemoryBackend(),
		Logger:       quietLogger(),
		DefaultModel: "test-model",
		Now:          clock.Now,
	})
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, clock
}

var roomyEntry = catalog.LimitEntry{
	RequestsPerMinute: 100,
	RequestsPerDay:    1000,
	TokensPerMinute:   10000,
	TokensPerDay:      100000,
}

// =============================================================================
// Initialization
// =============================================================================

func TestTracker_InitializeFresh(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)

	snap := tr.Snapshot()
	if snap.ModelID != "test-model" {
		t.Errorf("ModelID = %q, want test-model", snap.ModelID)
	}
	if snap.TokensThisMinute != 0 || snap.RequestsToday != 0 {
		t.Error("fresh state must have zero counters")
	}
	wantMinute := clock.Now().Add(time.Minute)
	if !snap.MinuteResetAt.Equal(wantMinute) {
		t.Errorf("MinuteResetAt = %v, want %v", snap.MinuteResetAt, wantMinute)
	}
	wantDay := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !snap.DayResetAt.Equal(wantDay) {
		t.Errorf("DayResetAt = %v, want %v", snap.DayResetAt, wantDay)
	}
}

func TestTracker_InitializeIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)

	if err := tr.Record(context.Background(), 100, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := tr.Snapshot().TokensThisMinute; got != 100 {
		t.Errorf("TokensThisMinute = %d after re-Initialize, want 100", got)
	}
}

func TestTracker_InitializeReloadsPersistedState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	backend := storage.NewMemoryBackend()
	cat := testCatalog(t, roomyEntry)

	first := NewTracker(TrackerConfig{
		Catalog: cat, Backend: backend, Logger: quietLogger(),
		DefaultModel: "test-model", Now: clock.Now,
	})
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := first.Record(ctx, 500, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Simulate a restart within the same windows.
	clock.Advance(10 * time.Second)
	second := NewTracker(TrackerConfig{
		Catalog: cat, Backend: backend, Logger: quietLogger(),
		DefaultModel: "test-model", Now: clock.Now,
	})
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize after restart: %v", err)
	}

	snap := second.Snapshot()
	if snap.TokensThisMinute != 500 || snap.RequestsThisMinute != 3 {
		t.Errorf("restart lost counters: tokens=%d requests=%d", snap.TokensThisMinute, snap.RequestsThisMinute)
	}
}

func TestTracker_InitializeReconcilesStaleState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	backend := storage.NewMemoryBackend()
	cat := testCatalog(t, roomyEntry)

	first := NewTracker(TrackerConfig{
		Catalog: cat, Backend: backend, Logger: quietLogger(),
		DefaultModel: "test-model", Now: clock.Now,
	})
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := first.Record(ctx, 500, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Restart two days later: both windows elapsed.
	clock.Advance(48 * time.Hour)
	second := NewTracker(TrackerConfig{
		Catalog: cat, Backend: backend, Logger: quietLogger(),
		DefaultModel: "test-model", Now: clock.Now,
	})
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize after restart: %v", err)
	}

	snap := second.Snapshot()
	if snap.TokensThisMinute != 0 || snap.TokensToday != 0 {
		t.Errorf("stale counters survived restart: %+v", snap)
	}
	if !snap.MinuteResetAt.After(clock.Now()) || !snap.DayResetAt.After(clock.Now()) {
		t.Error("reset times must be re-anchored in the future")
	}
}

func TestTracker_InitializeCorruptStateStartsFresh(t *testing.T) {
	tr := NewTracker(TrackerConfig{
		Backend:      &corruptBackend{Backend: storage.NewMemoryBackend()},
		Logger:       quietLogger(),
		DefaultModel: "test-model",
	})
	t.Cleanup(func() { tr.Close() })

	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize must tolerate a corrupt record, got %v", err)
	}
	if tr.Snapshot().TokensToday != 0 {
		t.Error("corrupt record must yield a zeroed state")
	}
}

// =============================================================================
// Recording and monotonicity
// =============================================================================

func TestTracker_RecordAccumulates(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)
	ctx := context.Background()

	if err := tr.Record(ctx, 100, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record(ctx, 50, 2); err != nil {
		t.Fatalf("Record: %v", err)
	}

	snap := tr.Snapshot()
	if snap.TokensThisMinute != 150 || snap.TokensToday != 150 {
		t.Errorf("tokens = (%d, %d), want (150, 150)", snap.TokensThisMinute, snap.TokensToday)
	}
	if snap.RequestsThisMinute != 3 || snap.RequestsToday != 3 {
		t.Errorf("requests = (%d, %d), want (3, 3)", snap.RequestsThisMinute, snap.RequestsToday)
	}
}

func TestTracker_RecordUsageDerivesTotal(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)

	err := tr.RecordUsage(context.Background(), TokenUsage{PromptTokens: 80, CompletionTokens: 20})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	snap := tr.Snapshot()
	if snap.TokensThisMinute != 100 {
		t.Errorf("TokensThisMinute = %d, want 100 (prompt + completion)", snap.TokensThisMinute)
	}
	if snap.RequestsThisMinute != 1 {
		t.Errorf("RequestsThisMinute = %d, want 1", snap.RequestsThisMinute)
	}
}

func TestTracker_RecordBeforeInitialize(t *testing.T) {
	tr := NewTracker(TrackerConfig{Logger: quietLogger()})
	if err := tr.Record(context.Background(), 1, 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Record before Initialize = %v, want ErrNotInitialized", err)
	}
}

func TestTracker_RecordPersistFailureNonFatal(t *testing.T) {
	backend := &failingBackend{Backend: storage.NewMemoryBackend()}
	tr := NewTracker(TrackerConfig{
		Backend:      backend,
		Logger:       quietLogger(),
		DefaultModel: "test-model",
	})
	t.Cleanup(func() { tr.Close() })

	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := tr.Record(context.Background(), 100, 1); err != nil {
		t.Fatalf("Record must not fail on persistence errors, got %v", err)
	}
	if got := tr.Snapshot().TokensThisMinute; got != 100 {
		t.Errorf("in-memory state must advance despite persist failure, got %d tokens", got)
	}
	if backend.saves == 0 {
		t.Error("Save must have been attempted")
	}
}

// =============================================================================
// Window rollovers
// =============================================================================

func TestTracker_MinuteRolloverClearsMinuteCountersOnly(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)
	ctx := context.Background()

	if err := tr.Record(ctx, 100, 5); err != nil {
		t.Fatalf("Record: %v", err)
	}

	clock.Advance(61 * time.Second)
	snap := tr.Snapshot()

	if snap.TokensThisMinute != 0 || snap.RequestsThisMinute != 0 {
		t.Errorf("minute counters = (%d, %d) after rollover, want (0, 0)",
			snap.TokensThisMinute, snap.RequestsThisMinute)
	}
	if snap.TokensToday != 100 || snap.RequestsToday != 5 {
		t.Errorf("day counters = (%d, %d) after minute rollover, want (100, 5)",
			snap.TokensToday, snap.RequestsToday)
	}
}

func TestTracker_MinuteWindowAnchorsToRollover(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)

	// Let the window go 150s stale, then reconcile. The new window must
	// end one minute after the reconcile, not on a grid multiple of the
	// original anchor.
	clock.Advance(150 * time.Second)
	snap := tr.Snapshot()

	want := clock.Now().Add(time.Minute)
	if !snap.MinuteResetAt.Equal(want) {
		t.Errorf("MinuteResetAt = %v, want %v (anchored to rollover time)", snap.MinuteResetAt, want)
	}
}

func TestTracker_DayRolloverClearsDayCounters(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)
	ctx := context.Background()

	if err := tr.Record(ctx, 100, 5); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Cross local midnight.
	clock.Advance(10 * time.Hour)
	snap := tr.Snapshot()

	if snap.TokensToday != 0 || snap.RequestsToday != 0 {
		t.Errorf("day counters = (%d, %d) after midnight, want (0, 0)", snap.TokensToday, snap.RequestsToday)
	}
	wantDay := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	if !snap.DayResetAt.Equal(wantDay) {
		t.Errorf("DayResetAt = %v, want %v", snap.DayResetAt, wantDay)
	}
}

// =============================================================================
// Over-limit semantics
// =============================================================================

func TestTracker_OverLimitSingleDimension(t *testing.T) {
	tests := []struct {
		name     string
		entry    catalog.LimitEntry
		tokens   int64
		requests int64
		want     bool
	}{
		{
			name:  "under all ceilings",
			entry: roomyEntry, tokens: 10, requests: 1,
			want: false,
		},
		{
			name: "requests per minute at ceiling",
			entry: catalog.LimitEntry{
				RequestsPerMinute: 3, RequestsPerDay: 1000,
				TokensPerMinute: 10000, TokensPerDay: 100000,
			},
			tokens: 10, requests: 3,
			want: true,
		},
		{
			name: "tokens per minute above ceiling",
			entry: catalog.LimitEntry{
				RequestsPerMinute: 100, RequestsPerDay: 1000,
				TokensPerMinute: 50, TokensPerDay: 100000,
			},
			tokens: 60, requests: 1,
			want: true,
		},
		{
			name: "tokens per day at ceiling",
			entry: catalog.LimitEntry{
				RequestsPerMinute: 100, RequestsPerDay: 1000,
				TokensPerMinute: 10000, TokensPerDay: 75,
			},
			tokens: 75, requests: 1,
			want: true,
		},
		{
			name: "requests per day at ceiling",
			entry: catalog.LimitEntry{
				RequestsPerMinute: 100, RequestsPerDay: 2,
				TokensPerMinute: 10000, TokensPerDay: 100000,
			},
			tokens: 1, requests: 2,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t, tt.entry)
			if err := tr.Record(context.Background(), tt.tokens, tt.requests); err != nil {
				t.Fatalf("Record: %v", err)
			}
			if got := tr.OverLimit(); got != tt.want {
				t.Errorf("OverLimit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_OverLimitClearsAfterMinuteRollover(t *testing.T) {
	entry := catalog.LimitEntry{
		RequestsPerMinute: 2, RequestsPerDay: 1000,
		TokensPerMinute: 10000, TokensPerDay: 100000,
	}
	tr, clock := newTestTracker(t, entry)

	if err := tr.Record(context.Background(), 10, 2); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !tr.OverLimit() {
		t.Fatal("tracker must be over limit at the minute request ceiling")
	}

	clock.Advance(61 * time.Second)
	if tr.OverLimit() {
		t.Error("minute rollover must clear a minute-dimension breach")
	}
}

func TestTracker_TokenCeilingEndToEnd(t *testing.T) {
	entry := catalog.LimitEntry{
		RequestsPerMinute: 30,
		RequestsPerDay:    14400,
		TokensPerMinute:   6000,
		TokensPerDay:      500000,
	}
	tr, clock := newTestTracker(t, entry)
	ctx := context.Background()

	if err := tr.Record(ctx, 5999, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if tr.OverLimit() {
		t.Fatal("5999 tokens is under the 6000 token/minute ceiling")
	}

	if err := tr.Record(ctx, 2, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !tr.OverLimit() {
		t.Fatal("6001 tokens must breach the 6000 token/minute ceiling")
	}

	// The wait equals the remaining minute window.
	clock.Advance(15 * time.Second)
	if got := tr.SecondsUntilCapacity(); got != 45 {
		t.Errorf("SecondsUntilCapacity = %d, want 45 (remainder of the minute window)", got)
	}
}

func TestTracker_UnknownModelUsesDefaultLimits(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)
	ctx := context.Background()

	if err := tr.SetModel(ctx, "never-heard-of-it"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}

	snap := tr.Snapshot()
	if snap.Limits != catalog.DefaultEntry {
		t.Errorf("Limits = %+v for unknown model, want the catalog default", snap.Limits)
	}
	if snap.OverLimit {
		t.Error("zeroed counters cannot be over limit under the default entry")
	}
}

// =============================================================================
// Wait heuristic
// =============================================================================

func TestTracker_SecondsUntilCapacity(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)

	// Fresh state: minute remainder is exactly 60s and is the smaller window.
	if got := tr.SecondsUntilCapacity(); got != 60 {
		t.Errorf("SecondsUntilCapacity = %d on fresh state, want 60", got)
	}

	// Partway through the window the remainder is rounded up.
	clock.Advance(30*time.Second + 500*time.Millisecond)
	if got := tr.SecondsUntilCapacity(); got != 30 {
		t.Errorf("SecondsUntilCapacity = %d, want 30 (29.5s rounded up)", got)
	}
}

func TestTracker_SecondsUntilCapacityNeverNegative(t *testing.T) {
	tr, clock := newTestTracker(t, roomyEntry)

	// Even straddling a rollover, the reconcile-first read keeps the
	// result non-negative.
	clock.Advance(5 * time.Minute)
	if got := tr.SecondsUntilCapacity(); got < 0 {
		t.Errorf("SecondsUntilCapacity = %d, must never be negative", got)
	}
}

// =============================================================================
// Model switching
// =============================================================================

func TestTracker_SetModelPreservesCounters(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	cat, err := catalog.New(map[string]catalog.LimitEntry{
		"model-a": roomyEntry,
		"model-b": {RequestsPerMinute: 5, RequestsPerDay: 50, TokensPerMinute: 500, TokensPerDay: 5000},
	}, catalog.DefaultEntry)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	tr := NewTracker(TrackerConfig{
		Catalog: cat, Logger: quietLogger(),
		DefaultModel: "model-a", Now: clock.Now,
	})
	t.Cleanup(func() { tr.Close() })
	if err := tr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := tr.Record(ctx, 600, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if tr.OverLimit() {
		t.Fatal("600 tokens is under model-a's ceilings")
	}

	if err := tr.SetModel(ctx, "model-b"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}

	snap := tr.Snapshot()
	if snap.TokensThisMinute != 600 || snap.RequestsThisMinute != 3 {
		t.Errorf("counters changed on model switch: %+v", snap)
	}
	// The same counters now compare against model-b's tighter ceilings.
	if !snap.OverLimit {
		t.Error("600 tokens must breach model-b's 500 token/minute ceiling")
	}
}

// =============================================================================
// Subscriptions
// =============================================================================

func TestTracker_SubscribeReceivesSnapshots(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)

	id, ch := tr.Subscribe(4)
	defer tr.Unsubscribe(id)

	if err := tr.Record(context.Background(), 100, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	select {
	case snap := <-ch:
		if snap.TokensThisMinute != 100 {
			t.Errorf("snapshot TokensThisMinute = %d, want 100", snap.TokensThisMinute)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestTracker_SlowSubscriberDropsSnapshots(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)
	ctx := context.Background()

	id, _ := tr.Subscribe(1)
	defer tr.Unsubscribe(id)

	// First fill the buffer, then overflow it. Record must not block.
	for i := 0; i < 3; i++ {
		if err := tr.Record(ctx, 1, 1); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if tr.Dropped() == 0 {
		t.Error("overflowing a buffer-1 subscriber must count drops")
	}
}

func TestTracker_UnsubscribeClosesChannel(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)

	id, ch := tr.Subscribe(1)
	tr.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel must be closed after Unsubscribe")
	}

	// Unknown id is a no-op.
	tr.Unsubscribe("no-such-subscription")
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestTracker_CloseRejectsFurtherUse(t *testing.T) {
	tr, _ := newTestTracker(t, roomyEntry)

	_, ch := tr.Subscribe(1)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("Close must close subscriber channels")
	}
	if err := tr.Record(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after Close = %v, want ErrClosed", err)
	}
}
