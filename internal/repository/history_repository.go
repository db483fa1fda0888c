package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/mediabot/internal/domain"
)

// Fixed-width so text ordering in SQLite matches time ordering.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteHistoryRepository implements HistoryRepository on SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository opens (or creates) the history database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteHistoryRepository(path string) (*SQLiteHistoryRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			job_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			title TEXT,
			strategy TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id, created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Record appends an entry. Re-recording a job ID replaces the entry.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, e domain.HistoryEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history (job_id, kind, user_id, source, title, strategy, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID.String(), string(e.Kind), e.UserID, e.Source, e.Title, e.Strategy, e.SizeBytes,
		e.CreatedAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent entries, newest first.
func (r *SQLiteHistoryRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, kind, user_id, source, title, strategy, size_bytes, created_at
		FROM history WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e                      domain.HistoryEntry
			jobID, kind, createdAt string
			title, strategy        sql.NullString
		)
		if err := rows.Scan(&jobID, &kind, &e.UserID, &e.Source, &title, &strategy, &e.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.JobID = domain.JobID(jobID)
		e.Kind = domain.JobKind(kind)
		e.Title = title.String
		e.Strategy = strategy.String
		if t, err := time.Parse(historyTimeLayout, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of entries.
func (r *SQLiteHistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}
