package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/alphaops/resilient/failure"
)

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file. ":memory:" gives a private in-process DB.
	Path string

	// MaxConns caps open connections. Default: 1; SQLite serializes writes
	// anyway and a single connection avoids SQLITE_BUSY under concurrency.
	MaxConns int
}

// SQLiteStore implements failure.Store over an embedded SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS failures (
	id            TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	error_type    TEXT NOT NULL,
	error_message TEXT NOT NULL,
	operation     TEXT NOT NULL,
	strategy_name TEXT NOT NULL DEFAULT '',
	context_json  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_failures_operation ON failures(operation, timestamp);
CREATE INDEX IF NOT EXISTS idx_failures_timestamp ON failures(timestamp);

CREATE TABLE IF NOT EXISTS blacklist (
	strategy_name   TEXT NOT NULL,
	operation       TEXT NOT NULL,
	reason          TEXT NOT NULL,
	failure_count   INTEGER NOT NULL DEFAULT 0,
	first_failed_at INTEGER NOT NULL,
	last_failed_at  INTEGER NOT NULL,
	expires_at      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (strategy_name, operation)
);
`

// Open opens (creating if needed) the database at cfg.Path and bootstraps
// the schema.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// failureRow is the failures table shape. Timestamps are unix nanoseconds
// so ordering and comparisons stay driver-independent.
type failureRow struct {
	ID           string `db:"id"`
	Timestamp    int64  `db:"timestamp"`
	ErrorType    string `db:"error_type"`
	ErrorMessage string `db:"error_message"`
	Operation    string `db:"operation"`
	Strategy     string `db:"strategy_name"`
	ContextJSON  string `db:"context_json"`
}

func (r *failureRow) record() (*failure.Record, error) {
	rec := &failure.Record{
		ID:           r.ID,
		Timestamp:    time.Unix(0, r.Timestamp).UTC(),
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
		Operation:    r.Operation,
		Strategy:     r.Strategy,
	}
	if r.ContextJSON != "" && r.ContextJSON != "{}" {
		if err := json.Unmarshal([]byte(r.ContextJSON), &rec.Context); err != nil {
			return nil, fmt.Errorf("failed to decode failure context: %w", err)
		}
	}
	return rec, nil
}

// SaveFailure appends one failure record. The context map round-trips
// through JSON, so values come back per encoding/json rules: numbers read
// back as float64 regardless of the saved Go type.
func (s *SQLiteStore) SaveFailure(ctx context.Context, rec *failure.Record) error {
	contextJSON := "{}"
	if len(rec.Context) > 0 {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("failed to encode failure context: %w", err)
		}
		contextJSON = string(data)
	}

	query := `
		INSERT INTO failures (id, timestamp, error_type, error_message, operation, strategy_name, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp.UnixNano(),
		rec.ErrorType,
		rec.ErrorMessage,
		rec.Operation,
		rec.Strategy,
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save failure: %w", err)
	}
	return nil
}

// Failures returns matching records, newest-first.
func (s *SQLiteStore) Failures(ctx context.Context, f failure.Filter) ([]*failure.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = failure.DefaultQueryLimit
	}

	var (
		conds []string
		args  []any
	)
	if f.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.ErrorType != "" {
		conds = append(conds, "error_type = ?")
		args = append(args, f.ErrorType)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `
		SELECT id, timestamp, error_type, error_message, operation, strategy_name, context_json
		FROM failures
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	var rows []failureRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}

	out := make([]*failure.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountFailures returns the total number of stored records.
func (s *SQLiteStore) CountFailures(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM failures`); err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return count, nil
}

// CleanupFailures deletes records older than cutoff.
func (s *SQLiteStore) CleanupFailures(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup failures: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup count: %w", err)
	}
	return deleted, nil
}

// blacklistRow is the blacklist table shape.
type blacklistRow struct {
	Strategy      string `db:"strategy_name"`
	Operation     string `db:"operation"`
	Reason        string `db:"reason"`
	FailureCount  int    `db:"failure_count"`
	FirstFailedAt int64  `db:"first_failed_at"`
	LastFailedAt  int64  `db:"last_failed_at"`
	ExpiresAt     int64  `db:"expires_at"`
}

func (r *blacklistRow) entry() *failure.BlacklistEntry {
	e := &failure.BlacklistEntry{
		Strategy:      r.Strategy,
		Operation:     r.Operation,
		Reason:        r.Reason,
		FailureCount:  r.FailureCount,
		FirstFailedAt: time.Unix(0, r.FirstFailedAt).UTC(),
		LastFailedAt:  time.Unix(0, r.LastFailedAt).UTC(),
	}
	if r.ExpiresAt != 0 {
		e.ExpiresAt = time.Unix(0, r.ExpiresAt).UTC()
	}
	return e
}

// UpsertBlacklist inserts or replaces the entry keyed by (strategy, operation).
func (s *SQLiteStore) UpsertBlacklist(ctx context.Context, e *failure.BlacklistEntry) error {
	var expires int64
	if !e.ExpiresAt.IsZero() {
		expires = e.ExpiresAt.UnixNano()
	}

	query := `
		INSERT INTO blacklist (strategy_name, operation, reason, failure_count, first_failed_at, last_failed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (strategy_name, operation) DO UPDATE SET
			reason = excluded.reason,
			failure_count = excluded.failure_count,
			last_failed_at = excluded.last_failed_at,
			expires_at = excluded.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		e.Strategy,
		e.Operation,
		e.Reason,
		e.FailureCount,
		e.FirstFailedAt.UnixNano(),
		e.LastFailedAt.UnixNano(),
		expires,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert blacklist entry: %w", err)
	}
	return nil
}

// RemoveBlacklist deletes the entry. Idempotent: no error on miss.
func (s *SQLiteStore) RemoveBlacklist(ctx context.Context, strategy, operation string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blacklist WHERE strategy_name = ? AND operation = ?`,
		strategy, operation,
	)
	if err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	return nil
}

// GetBlacklist returns the entry for (strategy, operation), or (nil, nil)
// when absent.
func (s *SQLiteStore) GetBlacklist(ctx context.Context, strategy, operation string) (*failure.BlacklistEntry, error) {
	var row blacklistRow
	err := s.db.GetContext(ctx, &row,
		`SELECT strategy_name, operation, reason, failure_count, first_failed_at, last_failed_at, expires_at
		 FROM blacklist WHERE strategy_name = ? AND operation = ?`,
		strategy, operation,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blacklist entry: %w", err)
	}
	return row.entry(), nil
}

// Blacklist returns all entries.
func (s *SQLiteStore) Blacklist(ctx context.Context) ([]*failure.BlacklistEntry, error) {
	var rows []blacklistRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT strategy_name, operation, reason, failure_count, first_failed_at, last_failed_at, expires_at
		 FROM blacklist ORDER BY operation, strategy_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}

	out := make([]*failure.BlacklistEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entry())
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements failure.Store
var _ failure.Store = (*SQLiteStore)(nil)
