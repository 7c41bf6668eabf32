package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure-Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Enable WAL mode and set busy timeout.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time. Limit connections to avoid
	// contention and keep a small idle pool for read concurrency.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying sql.DB handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			cache_status TEXT NOT NULL DEFAULT '',
			url_host TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 200,
			suggested INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_model ON request_logs(model)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LogRequest(ctx context.Context, entry RequestLog) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	suggestedInt := 0
	if entry.Suggested {
		suggestedInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_logs (timestamp, model, provider, cache_status, url_host, latency_ms, status_code, suggested, error_kind, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), entry.Model, entry.Provider, entry.CacheStatus,
		entry.URLHost, entry.LatencyMs, entry.StatusCode, suggestedInt, entry.ErrorKind, entry.RequestID)
	return err
}

func (s *SQLiteStore) ListRequestLogs(ctx context.Context, limit int, offset int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, model, provider, cache_status, url_host, latency_ms, status_code, suggested, error_kind, request_id
		 FROM request_logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRequestLogs(rows)
}

func (s *SQLiteStore) CountRequestLogs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_logs`).Scan(&n)
	return n, err
}

// RecentRequestLogs returns logs newer than the given time, oldest first, so
// the stats collector can be seeded in insertion order on startup.
func (s *SQLiteStore) RecentRequestLogs(ctx context.Context, since time.Time) ([]RequestLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, model, provider, cache_status, url_host, latency_ms, status_code, suggested, error_kind, request_id
		 FROM request_logs WHERE timestamp > ? ORDER BY timestamp ASC`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRequestLogs(rows)
}

// PruneRequestLogs deletes logs older than the given time and reports how many
// rows were removed.
func (s *SQLiteStore) PruneRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM request_logs WHERE timestamp < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRequestLogs(rows *sql.Rows) ([]RequestLog, error) {
	var logs []RequestLog
	for rows.Next() {
		var l RequestLog
		var ts string
		var suggestedInt int
		if err := rows.Scan(&l.ID, &ts, &l.Model, &l.Provider, &l.CacheStatus,
			&l.URLHost, &l.LatencyMs, &l.StatusCode, &suggestedInt, &l.ErrorKind, &l.RequestID); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		l.Suggested = suggestedInt != 0
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
