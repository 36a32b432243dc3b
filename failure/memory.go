package failure

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It backs analyzers with
// persistence disabled and is the degradation target when a durable store
// fails. All state is lost on process exit.
type MemoryStore struct {
	mu       sync.RWMutex
	failures []*Record // append order == chronological order
	entries  map[string]*BlacklistEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*BlacklistEntry),
	}
}

func blacklistKey(strategy, operation string) string {
	return strategy + "@" + operation
}

// SaveFailure appends one failure record.
func (s *MemoryStore) SaveFailure(_ context.Context, rec *Record) error {
	s.mu.Lock()
	s.failures = append(s.failures, rec)
	s.mu.Unlock()
	return nil
}

// Failures returns matching records, newest-first.
func (s *MemoryStore) Failures(_ context.Context, f Filter) ([]*Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, limit)
	for i := len(s.failures) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.failures[i]
		if f.Operation != "" && rec.Operation != f.Operation {
			continue
		}
		if f.ErrorType != "" && rec.ErrorType != f.ErrorType {
			continue
		}
		if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountFailures returns the number of stored records.
func (s *MemoryStore) CountFailures(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.failures)), nil
}

// CleanupFailures deletes records older than cutoff.
func (s *MemoryStore) CleanupFailures(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.failures[:0]
	var deleted int64
	for _, rec := range s.failures {
		if rec.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.failures = kept
	return deleted, nil
}

// UpsertBlacklist inserts or replaces the entry for (strategy, operation).
func (s *MemoryStore) UpsertBlacklist(_ context.Context, e *BlacklistEntry) error {
	cp := *e
	s.mu.Lock()
	s.entries[blacklistKey(e.Strategy, e.Operation)] = &cp
	s.mu.Unlock()
	return nil
}

// RemoveBlacklist deletes the entry. Idempotent: no error on miss.
func (s *MemoryStore) RemoveBlacklist(_ context.Context, strategy, operation string) error {
	s.mu.Lock()
	delete(s.entries, blacklistKey(strategy, operation))
	s.mu.Unlock()
	return nil
}

// GetBlacklist returns the entry, or (nil, nil) when absent.
func (s *MemoryStore) GetBlacklist(_ context.Context, strategy, operation string) (*BlacklistEntry, error) {
	s.mu.RLock()
	e, ok := s.entries[blacklistKey(strategy, operation)]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Blacklist returns all entries.
func (s *MemoryStore) Blacklist(_ context.Context) ([]*BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*BlacklistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
