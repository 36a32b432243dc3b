package failure

import (
	"context"
	"time"
)

// Filter narrows a failure query. Zero values mean "no constraint".
type Filter struct {
	Operation string
	ErrorType string
	Since     time.Time

	// Limit caps the number of records returned. Default: 1000.
	Limit int
}

// DefaultQueryLimit is applied when Filter.Limit is zero.
const DefaultQueryLimit = 1000

// DefaultRetentionDays is the recommended retention for periodic cleanup.
// Cleanup is caller-driven; pass this to Analyzer.CleanupOldFailures.
const DefaultRetentionDays = 30

// Store persists failure records and the blacklist.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use; writes are
//   individually atomic (single-row insert/upsert semantics).
// - Ordering: Failures returns records newest-first.
// - Errors: persistence errors are returned, never swallowed; the Analyzer
//   decides how to degrade.
type Store interface {
	// SaveFailure appends one failure record.
	SaveFailure(ctx context.Context, rec *Record) error

	// Failures returns records matching the filter, newest-first.
	Failures(ctx context.Context, f Filter) ([]*Record, error)

	// CountFailures returns the total number of stored failure records.
	CountFailures(ctx context.Context) (int64, error)

	// CleanupFailures deletes records with a timestamp before cutoff and
	// returns the number deleted.
	CleanupFailures(ctx context.Context, cutoff time.Time) (int64, error)

	// UpsertBlacklist inserts or replaces the entry keyed by
	// (strategy, operation).
	UpsertBlacklist(ctx context.Context, e *BlacklistEntry) error

	// RemoveBlacklist deletes the entry keyed by (strategy, operation).
	// Idempotent: removing a missing entry is not an error.
	RemoveBlacklist(ctx context.Context, strategy, operation string) error

	// GetBlacklist returns the entry for (strategy, operation), or
	// (nil, nil) when absent.
	GetBlacklist(ctx context.Context, strategy, operation string) (*BlacklistEntry, error)

	// Blacklist returns all entries.
	Blacklist(ctx context.Context) ([]*BlacklistEntry, error)

	// Close releases store resources.
	Close() error
}
