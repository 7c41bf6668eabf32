// Package store persists completion request metadata for the logs and stats
// endpoints. Only request metadata is stored; user keystroke text, prompts,
// and generated completions never touch the database.
package store

import (
	"context"
	"time"
)

// Store defines the persistence interface for the gateway.
type Store interface {
	// Request log (for the logs endpoint and stats seeding)
	LogRequest(ctx context.Context, entry RequestLog) error
	ListRequestLogs(ctx context.Context, limit int, offset int) ([]RequestLog, error)
	CountRequestLogs(ctx context.Context) (int64, error)
	RecentRequestLogs(ctx context.Context, since time.Time) ([]RequestLog, error)
	PruneRequestLogs(ctx context.Context, before time.Time) (int64, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RequestLog captures a single completion request's metadata.
type RequestLog struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	CacheStatus string    `json:"cache_status"` // hit, miss, coalesced, negative
	URLHost     string    `json:"url_host"`     // host component only, never the full page URL
	LatencyMs   int64     `json:"latency_ms"`
	StatusCode  int       `json:"status_code"`
	Suggested   bool      `json:"suggested"` // a non-empty ghost text was served
	ErrorKind   string    `json:"error_kind,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}
