package failure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alphaops/resilient/observe"
)

// AnalyzerConfig configures the failure analyzer.
type AnalyzerConfig struct {
	// PatternThreshold is the minimum number of failures a pattern needs.
	// Default: 3
	PatternThreshold int

	// WindowSize is how many recent failures one analysis examines.
	// Default: 50
	WindowSize int

	// DisableAutoPromotion turns off automatic blacklisting on a repeating
	// pattern. Manual blacklisting stays available either way.
	DisableAutoPromotion bool

	// BlacklistCooldown, when positive, makes auto-promoted entries lapse
	// after this duration. Default: 0 (entries persist until removed).
	BlacklistCooldown time.Duration

	// Logger receives diagnostics. Default: no-op.
	Logger observe.Logger

	// Metrics records promotions. Default: no-op.
	Metrics observe.Metrics
}

// outcome is one attempt result kept in the in-memory interleave window.
// Successes are not persisted, so intermittent/permanent classification
// works off this window only.
type outcome struct {
	at       time.Time
	strategy string
	ok       bool
}

// outcomeWindowCap bounds the per-operation outcome window.
const outcomeWindowCap = 128

// Analyzer detects failure patterns and manages the blacklist.
//
// Persistence errors never propagate to callers: on the first store error
// the analyzer logs it and degrades to an in-memory store for the rest of
// the process lifetime.
type Analyzer struct {
	cfg     AnalyzerConfig
	log     observe.Logger
	metrics observe.Metrics

	mu       sync.Mutex
	store    Store
	degraded bool
	outcomes map[string][]outcome // keyed by operation
}

// NewAnalyzer creates an analyzer over the given store. A nil store means
// in-memory-only operation.
func NewAnalyzer(store Store, cfg AnalyzerConfig) *Analyzer {
	if cfg.PatternThreshold <= 0 {
		cfg.PatternThreshold = 3
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NewNoopMetrics()
	}
	if store == nil {
		store = NewMemoryStore()
	}

	return &Analyzer{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		store:    store,
		outcomes: make(map[string][]outcome),
	}
}

// currentStore returns the store to use for the next call.
func (a *Analyzer) currentStore() Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// degrade switches to an in-memory store after a persistence error.
// Subsequent calls are no-ops.
func (a *Analyzer) degrade(ctx context.Context, cause error) {
	a.mu.Lock()
	if a.degraded {
		a.mu.Unlock()
		return
	}
	a.degraded = true
	a.store = NewMemoryStore()
	a.mu.Unlock()

	a.log.Error(ctx, "failure store unavailable, degrading to in-memory operation",
		observe.Field{Key: "error", Value: cause.Error()})
}

// Degraded reports whether the analyzer has fallen back to in-memory
// operation after a persistence error.
func (a *Analyzer) Degraded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded
}

// RecordFailure stores one failure and feeds the interleave window.
// It never fails: persistence errors degrade the analyzer instead.
func (a *Analyzer) RecordFailure(ctx context.Context, err error, operation, strategy string, fields map[string]any) *Record {
	rec := &Record{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		ErrorType:    ErrorTypeOf(err),
		ErrorMessage: err.Error(),
		Operation:    operation,
		Strategy:     strategy,
		Context:      fields,
	}

	if saveErr := a.currentStore().SaveFailure(ctx, rec); saveErr != nil {
		a.degrade(ctx, saveErr)
		// Best effort into the fallback; a second failure is dropped.
		_ = a.currentStore().SaveFailure(ctx, rec)
	}

	a.pushOutcome(operation, outcome{at: rec.Timestamp, strategy: strategy, ok: false})

	a.log.Debug(ctx, "failure recorded",
		observe.Field{Key: "op.name", Value: operation},
		observe.Field{Key: "op.strategy", Value: strategy},
		observe.Field{Key: "error_type", Value: rec.ErrorType})

	return rec
}

// RecordSuccess feeds the interleave window. Successes are not persisted.
func (a *Analyzer) RecordSuccess(operation, strategy string) {
	a.pushOutcome(operation, outcome{at: time.Now().UTC(), strategy: strategy, ok: true})
}

func (a *Analyzer) pushOutcome(operation string, o outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := append(a.outcomes[operation], o)
	if len(w) > outcomeWindowCap {
		w = w[len(w)-outcomeWindowCap:]
	}
	a.outcomes[operation] = w
}

func (a *Analyzer) outcomeWindow(operation string) []outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.outcomes[operation]
	out := make([]outcome, len(w))
	copy(out, w)
	return out
}

// Analyze classifies the recent failures of an operation. It returns a
// PatternNone analysis rather than an error when there is too little data.
func (a *Analyzer) Analyze(ctx context.Context, operation string) *Analysis {
	recs, err := a.currentStore().Failures(ctx, Filter{
		Operation: operation,
		Limit:     a.cfg.WindowSize,
	})
	if err != nil {
		a.degrade(ctx, err)
		recs = nil
	}

	threshold := a.cfg.PatternThreshold
	if len(recs) < threshold {
		return &Analysis{
			Pattern: PatternNone,
			RootCause: RootCause{
				Description: fmt.Sprintf("insufficient data: %d failures, need %d", len(recs), threshold),
			},
		}
	}

	// Failures arrive newest-first; pattern scans want chronological order.
	chrono := make([]*Record, len(recs))
	for i, rec := range recs {
		chrono[len(recs)-1-i] = rec
	}

	window := a.outcomeWindow(operation)

	if an := detectRepeating(chrono, threshold); an != nil {
		a.maybePromote(ctx, operation, chrono, an)
		return an
	}
	if an := detectCascading(chrono, threshold); an != nil {
		return an
	}
	if an := detectIntermittent(window); an != nil {
		return an
	}
	if an := detectPermanent(chrono, window, threshold); an != nil {
		return an
	}
	if an := detectUnstableService(chrono, threshold); an != nil {
		return an
	}

	return &Analysis{
		Pattern:   PatternNone,
		RootCause: RootCause{Description: "no pattern matched"},
	}
}

// maybePromote blacklists the repeating (strategy, operation) pair unless
// auto-promotion is off or the failures came from an unnamed function.
func (a *Analyzer) maybePromote(ctx context.Context, operation string, chrono []*Record, an *Analysis) {
	if a.cfg.DisableAutoPromotion {
		return
	}

	strategy, errType, count, first, last := repeatingRun(chrono, a.cfg.PatternThreshold)
	if count == 0 || strategy == "" {
		return
	}

	entry := &BlacklistEntry{
		Strategy:      strategy,
		Operation:     operation,
		Reason:        fmt.Sprintf("%d consecutive %q failures between %s and %s", count, errType, first.Format(time.RFC3339), last.Format(time.RFC3339)),
		FailureCount:  count,
		FirstFailedAt: first,
		LastFailedAt:  last,
	}
	if a.cfg.BlacklistCooldown > 0 {
		entry.ExpiresAt = time.Now().UTC().Add(a.cfg.BlacklistCooldown)
	}

	if err := a.currentStore().UpsertBlacklist(ctx, entry); err != nil {
		a.degrade(ctx, err)
		_ = a.currentStore().UpsertBlacklist(ctx, entry)
	}

	a.metrics.RecordBlacklistPromotion(ctx, observe.OpMeta{Operation: operation, Strategy: strategy})
	a.log.Warn(ctx, "strategy blacklisted",
		observe.Field{Key: "op.name", Value: operation},
		observe.Field{Key: "op.strategy", Value: strategy},
		observe.Field{Key: "reason", Value: entry.Reason})
}

// IsBlacklisted reports whether the (strategy, operation) pair is excluded.
// Expired entries are removed lazily.
func (a *Analyzer) IsBlacklisted(ctx context.Context, strategy, operation string) bool {
	entry, err := a.currentStore().GetBlacklist(ctx, strategy, operation)
	if err != nil {
		a.degrade(ctx, err)
		return false
	}
	if entry == nil {
		return false
	}
	if entry.Expired(time.Now().UTC()) {
		_ = a.currentStore().RemoveBlacklist(ctx, strategy, operation)
		return false
	}
	return true
}

// AddToBlacklist manually excludes a (strategy, operation) pair.
func (a *Analyzer) AddToBlacklist(ctx context.Context, strategy, operation, reason string) error {
	now := time.Now().UTC()
	entry := &BlacklistEntry{
		Strategy:      strategy,
		Operation:     operation,
		Reason:        reason,
		FirstFailedAt: now,
		LastFailedAt:  now,
	}
	if err := a.currentStore().UpsertBlacklist(ctx, entry); err != nil {
		a.degrade(ctx, err)
		return a.currentStore().UpsertBlacklist(ctx, entry)
	}
	return nil
}

// RemoveFromBlacklist re-admits a (strategy, operation) pair.
func (a *Analyzer) RemoveFromBlacklist(ctx context.Context, strategy, operation string) error {
	if err := a.currentStore().RemoveBlacklist(ctx, strategy, operation); err != nil {
		a.degrade(ctx, err)
		return a.currentStore().RemoveBlacklist(ctx, strategy, operation)
	}
	return nil
}

// Blacklist returns all current entries, expired ones filtered out.
func (a *Analyzer) Blacklist(ctx context.Context) []*BlacklistEntry {
	entries, err := a.currentStore().Blacklist(ctx)
	if err != nil {
		a.degrade(ctx, err)
		return nil
	}

	now := time.Now().UTC()
	out := entries[:0]
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// RecentFailures returns up to limit of the operation's most recent
// failures, newest-first.
func (a *Analyzer) RecentFailures(ctx context.Context, operation string, limit int) []*Record {
	recs, err := a.currentStore().Failures(ctx, Filter{Operation: operation, Limit: limit})
	if err != nil {
		a.degrade(ctx, err)
		return nil
	}
	return recs
}

// CleanupOldFailures deletes failures older than the given number of days
// and returns how many were removed.
func (a *Analyzer) CleanupOldFailures(ctx context.Context, days int) int64 {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := a.currentStore().CleanupFailures(ctx, cutoff)
	if err != nil {
		a.degrade(ctx, err)
		return 0
	}
	return n
}
