// Package history provides SQLite-backed persistence for routed queries and
// their outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one recorded route outcome.
type Entry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Provider  string    `json:"provider,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Source    string    `json:"source"`
	Attempts  int       `json:"attempts"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides access to the route history database. A nil Store is valid
// and drops writes, so the gateway runs without persistence configured.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS route_history (
		id TEXT PRIMARY KEY,
		request_id TEXT,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		provider TEXT,
		operation TEXT,
		source TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_route_history_created_at ON route_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_route_history_provider ON route_history(provider);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores one route outcome and returns the persisted entry.
func (s *Store) Record(ctx context.Context, e Entry) (*Entry, error) {
	if s == nil {
		return nil, nil
	}
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_history (id, request_id, query, answer, provider, operation, source, attempts, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Query, e.Answer, e.Provider, e.Operation, e.Source, e.Attempts, e.LatencyMS, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert route history: %w", err)
	}
	return &e, nil
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, query, answer, provider, operation, source, attempts, latency_ms, created_at
		FROM route_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query route history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// RecentByProvider returns the latest entries handled by one provider,
// newest first.
func (s *Store) RecentByProvider(ctx context.Context, provider string, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, query, answer, provider, operation, source, attempts, latency_ms, created_at
		FROM route_history
		WHERE provider = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, provider, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query route history by provider: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// PurgeOlderThan deletes entries older than the given age and reports how
// many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-age)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM route_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge route history: %w", err)
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Query, &e.Answer, &e.Provider, &e.Operation,
			&e.Source, &e.Attempts, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan route history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
