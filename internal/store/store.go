// Package store provides a SQLite-backed, append-only query history. Each
// answered query is persisted with its answer and citations, keyed by
// requester and timestamp, and can be listed newest first.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/specqa-go/internal/rag"
)

const (
	// DefaultPageSize is used when List is called with limit <= 0.
	DefaultPageSize = 10
	// MaxPageSize caps the limit accepted by List.
	MaxPageSize = 100
)

// QueryRecord is one persisted question and its response.
type QueryRecord struct {
	// ID is the row identifier.
	ID int64 `json:"id"`
	// Requester identifies who asked.
	Requester string `json:"requester"`
	// Query is the question text.
	Query string `json:"query"`
	// Answer is the generated answer.
	Answer string `json:"response"`
	// Sources are the citations returned with the answer.
	Sources []rag.Citation `json:"sources"`
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time `json:"createdAt"`
}

// QueryHistory persists and lists answered queries. Implementations must be
// safe for concurrent use.
type QueryHistory interface {
	// Append persists resp as the answer to query asked by requester.
	Append(ctx context.Context, requester, query string, resp *rag.Response) error
	// List returns one page of requester's history, newest first. page is
	// 1-based.
	List(ctx context.Context, requester string, page, limit int) ([]QueryRecord, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryHistory backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// DefaultDBPath returns the default path for the history database. It
// resolves to ~/.specqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".specqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes and keeps
	// ":memory:" databases alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    requester    TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    response     TEXT    NOT NULL,
    sources      TEXT    NOT NULL DEFAULT '[]',  -- JSON array of citations
    created_at   INTEGER NOT NULL                -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_requester_created
    ON queries (requester, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists resp as the answer to query asked by requester.
func (s *SQLiteStore) Append(ctx context.Context, requester, query string, resp *rag.Response) error {
	if resp == nil {
		return fmt.Errorf("store: append: response must not be nil")
	}
	sources := resp.Sources
	if sources == nil {
		sources = []rag.Citation{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("store: append: marshal sources: %w", err)
	}

	const q = `INSERT INTO queries (requester, query, response, sources, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, requester, query, resp.Answer, string(raw), s.now().UnixMilli()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// List returns one page of requester's history, newest first. page < 1 is
// treated as 1; limit <= 0 selects DefaultPageSize and is capped at
// MaxPageSize.
func (s *SQLiteStore) List(ctx context.Context, requester string, page, limit int) ([]QueryRecord, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	const q = `
SELECT id, requester, query, response, sources, created_at
FROM   queries
WHERE  requester = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, requester, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	records := []QueryRecord{}
	for rows.Next() {
		var (
			r   QueryRecord
			raw string
			ts  int64
		)
		if err := rows.Scan(&r.ID, &r.Requester, &r.Query, &r.Answer, &raw, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Sources); err != nil {
			return nil, fmt.Errorf("store: list: decode sources of query %d: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(ts)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return records, nil
}

// Ping checks that the database is reachable. Used by readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
