package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/quota/state"
)

func testState() *state.QuotaState {
	s := state.New("gemini-2.0-flash", time.Now())
	s.AddUsage(1234, 3)
	return s
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
	}
}

func TestBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := testState()
			if err := b.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := b.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got == nil {
				t.Fatal("Load returned nil after Save")
			}
			if got.ModelID != want.ModelID || got.TokensThisMinute != want.TokensThisMinute ||
				got.RequestsToday != want.RequestsToday {
				t.Errorf("Load = %+v, want %+v", got, want)
			}
			if !got.MinuteResetAt.Equal(want.MinuteResetAt) {
				t.Errorf("MinuteResetAt = %v, want %v", got.MinuteResetAt, want.MinuteResetAt)
			}
		})
	}
}

func TestBackend_LoadAbsent(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := b.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got != nil {
				t.Errorf("Load on empty backend = %+v, want nil", got)
			}
		})
	}
}

func TestBackend_Delete(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Save(ctx, testState()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := b.Delete(ctx); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, err := b.Load(ctx)
			if err != nil || got != nil {
				t.Errorf("Load after Delete = (%+v, %v), want (nil, nil)", got, err)
			}

			// Delete on absent record is a no-op.
			if err := b.Delete(ctx); err != nil {
				t.Errorf("Delete on absent record: %v", err)
			}
		})
	}
}

func TestMemoryBackend_SaveIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	st := testState()
	if err := b.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutations after Save must not leak into the stored copy.
	st.AddUsage(100000, 100)

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TokensThisMinute != 1234 {
		t.Errorf("stored state mutated through caller reference: %d", got.TokensThisMinute)
	}
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.db")

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	want := testState()
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if got == nil || got.TokensThisMinute != want.TokensThisMinute {
		t.Errorf("Load after reopen = %+v, want tokens %d", got, want.TokensThisMinute)
	}
}

func TestSQLiteBackend_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.db")

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	if _, err := b.db.Exec(
		`INSERT INTO quota_state (id, payload, updated_at) VALUES (1, 'not-json', 0)`,
	); err != nil {
		t.Fatalf("insert corrupt payload: %v", err)
	}

	_, err = b.Load(ctx)
	if !errors.Is(err, ErrCorruptState) {
		t.Errorf("Load = %v, want ErrCorruptState", err)
	}
}

func TestSQLiteBackend_CloseIdempotent(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
