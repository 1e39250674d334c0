package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded consumption event.
type Entry struct {
	// ID is a UUID assigned when the entry is appended.
	ID string

	// Timestamp is when the usage was recorded.
	Timestamp time.Time

	// ModelID is the model that was active when the usage was recorded.
	ModelID string

	// PromptTokens is the token count of the prompt.
	PromptTokens int64

	// CompletionTokens is the token count of the completion.
	CompletionTokens int64

	// TotalTokens is the total token count charged against the quota.
	TotalTokens int64

	// Requests is the number of completed requests this entry covers.
	Requests int64
}

// ModelTotals aggregates journal entries for one model.
type ModelTotals struct {
	ModelID  string
	Tokens   int64
	Requests int64
	Entries  int64
}

// Journal is an append-only SQLite log of usage events. It exists for
// inspection and reporting; the admission path never reads it, and a
// failed append must never fail the caller's record operation.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex

	insertStmt *sql.Stmt
}

// Open opens (creating if needed) a journal at the given path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{
		db:     db,
		logger: logger.With("component", "quota.history"),
	}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	j.insertStmt, err = db.Prepare(`
		INSERT INTO usage_history
			(id, recorded_at, model_id, prompt_tokens, completion_tokens, total_tokens, requests)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_history (
		id TEXT PRIMARY KEY,
		recorded_at INTEGER NOT NULL,
		model_id TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		requests INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_recorded_at ON usage_history(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_history(model_id);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Append writes one entry. A zero ID is assigned a fresh UUID and a zero
// timestamp is stamped with the current time.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.insertStmt.ExecContext(ctx,
		e.ID,
		e.Timestamp.UnixMilli(),
		e.ModelID,
		e.PromptTokens,
		e.CompletionTokens,
		e.TotalTokens,
		e.Requests,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage entry: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, recorded_at, model_id, prompt_tokens, completion_tokens, total_tokens, requests
		FROM usage_history
		ORDER BY recorded_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.ModelID, &e.PromptTokens,
			&e.CompletionTokens, &e.TotalTokens, &e.Requests); err != nil {
			return nil, fmt.Errorf("failed to scan usage entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage history: %w", err)
	}

	return entries, nil
}

// TotalsByModel aggregates all entries per model id.
func (j *Journal) TotalsByModel(ctx context.Context) ([]ModelTotals, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT model_id, SUM(total_tokens), SUM(requests), COUNT(*)
		FROM usage_history
		GROUP BY model_id
		ORDER BY SUM(total_tokens) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}
	defer rows.Close()

	var totals []ModelTotals
	for rows.Next() {
		var t ModelTotals
		if err := rows.Scan(&t.ModelID, &t.Tokens, &t.Requests, &t.Entries); err != nil {
			return nil, fmt.Errorf("failed to scan usage totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage totals: %w", err)
	}

	return totals, nil
}

// Prune deletes entries older than the cutoff and reports how many were
// removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx,
		`DELETE FROM usage_history WHERE recorded_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	if j.insertStmt != nil {
		j.insertStmt.Close()
	}
	return j.db.Close()
}
