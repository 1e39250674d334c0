package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/ganymede/pkg/quota/state"
)

// SQLiteBackend implements Backend using SQLite for persistence.
// It provides durable storage suitable for a single-instance deployment
// where the quota record must survive restarts.
//
// The backend uses a write-ahead log for better write performance with a
// periodic passive checkpoint.
type SQLiteBackend struct {
	db               *sql.DB
	dbPath           string
	snapshotInterval time.Duration
	done             chan struct{}
	mu               sync.RWMutex
	closeOnce        sync.Once

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
}

var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// SnapshotInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	SnapshotInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:               db,
		dbPath:           cfg.DBPath,
		snapshotInterval: cfg.SnapshotInterval,
		done:             make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
// The table holds exactly one row; the CHECK constraint enforces it.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quota_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO quota_state (id, payload, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`SELECT payload FROM quota_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM quota_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return nil
}

// Save persists the quota state as a single JSON record.
func (s *SQLiteBackend) Save(ctx context.Context, st *state.QuotaState) error {
	if st == nil {
		return fmt.Errorf("state cannot be nil")
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal quota state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.saveStmt.ExecContext(ctx, string(payload), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save quota state: %w", err)
	}

	return nil
}

// Load retrieves the persisted quota state. A missing row yields
// (nil, nil); an undecodable payload yields an error wrapping
// ErrCorruptState so callers can reinitialize instead of crashing.
func (s *SQLiteBackend) Load(ctx context.Context) (*state.QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.loadStmt.QueryRowContext(ctx).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quota state: %w", err)
	}

	var st state.QuotaState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	return &st, nil
}

// Delete removes the persisted record.
func (s *SQLiteBackend) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deleteStmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to delete quota state: %w", err)
	}
	return nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		if s.saveStmt != nil {
			s.saveStmt.Close()
		}
		if s.loadStmt != nil {
			s.loadStmt.Close()
		}
		if s.deleteStmt != nil {
			s.deleteStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
