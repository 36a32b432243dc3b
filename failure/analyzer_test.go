package failure

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testAnalyzer(t *testing.T, cfg AnalyzerConfig) *Analyzer {
	t.Helper()
	return NewAnalyzer(NewMemoryStore(), cfg)
}

func TestNewAnalyzer_Defaults(t *testing.T) {
	a := NewAnalyzer(nil, AnalyzerConfig{})

	if a.cfg.PatternThreshold != 3 {
		t.Errorf("PatternThreshold = %d, want 3", a.cfg.PatternThreshold)
	}
	if a.cfg.WindowSize != 50 {
		t.Errorf("WindowSize = %d, want 50", a.cfg.WindowSize)
	}
	if a.currentStore() == nil {
		t.Error("nil store should fall back to an in-memory store")
	}
}

func TestAnalyzer_RecordFailure(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{})
	ctx := context.Background()

	rec := a.RecordFailure(ctx, Typed("timeout", errors.New("deadline")), "fetch", "primary",
		map[string]any{"provider": "deepseek"})

	if rec.ID == "" {
		t.Error("record should get an ID")
	}
	if rec.ErrorType != "timeout" {
		t.Errorf("ErrorType = %q, want %q", rec.ErrorType, "timeout")
	}
	if rec.ErrorMessage != "deadline" {
		t.Errorf("ErrorMessage = %q, want %q", rec.ErrorMessage, "deadline")
	}

	recs := a.RecentFailures(ctx, "fetch", 10)
	if len(recs) != 1 {
		t.Fatalf("RecentFailures len = %d, want 1", len(recs))
	}
	if recs[0].Context["provider"] != "deepseek" {
		t.Errorf("Context = %v, want provider=deepseek", recs[0].Context)
	}
}

func TestAnalyzer_InsufficientData(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	a.RecordFailure(ctx, errors.New("boom"), "fetch", "primary", nil)
	a.RecordFailure(ctx, errors.New("boom"), "fetch", "primary", nil)

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternNone {
		t.Errorf("Pattern = %v, want none", an.Pattern)
	}
}

func TestAnalyzer_Repeating_AutoBlacklists(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordFailure(ctx, Typed("timeout", errors.New("deadline")), "fetch", "primary", nil)
	}

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternRepeating {
		t.Fatalf("Pattern = %v, want repeating", an.Pattern)
	}
	if len(an.Recommendations) == 0 {
		t.Error("repeating analysis should carry recommendations")
	}

	if !a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("(primary, fetch) should be auto-blacklisted after repeating pattern")
	}

	entries := a.Blacklist(ctx)
	if len(entries) != 1 {
		t.Fatalf("blacklist len = %d, want 1", len(entries))
	}
	if entries[0].FailureCount != 3 {
		t.Errorf("FailureCount = %d, want 3", entries[0].FailureCount)
	}
}

func TestAnalyzer_Repeating_PromotionDisabled(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3, DisableAutoPromotion: true})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordFailure(ctx, Typed("timeout", errors.New("deadline")), "fetch", "primary", nil)
	}

	if an := a.Analyze(ctx, "fetch"); an.Pattern != PatternRepeating {
		t.Fatalf("Pattern = %v, want repeating", an.Pattern)
	}
	if a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("auto-promotion disabled: pair must not be blacklisted")
	}
}

func TestAnalyzer_BlacklistCooldown(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3, BlacklistCooldown: 10 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordFailure(ctx, Typed("timeout", errors.New("deadline")), "fetch", "primary", nil)
	}
	a.Analyze(ctx, "fetch")

	if !a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Fatal("pair should be blacklisted immediately after promotion")
	}

	time.Sleep(20 * time.Millisecond)

	if a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("pair should lapse off the blacklist after the cooldown")
	}
}

func TestAnalyzer_Cascading(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	for _, errType := range []string{"timeout", "http_500", "dns", "timeout", "http_500"} {
		a.RecordFailure(ctx, Typed(errType, errors.New(errType)), "fetch", "primary", nil)
	}

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternCascading {
		t.Errorf("Pattern = %v, want cascading", an.Pattern)
	}
}

func TestAnalyzer_Intermittent(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	a.RecordFailure(ctx, Typed("timeout", errors.New("t")), "fetch", "primary", nil)
	a.RecordSuccess("fetch", "primary")
	a.RecordFailure(ctx, Typed("timeout", errors.New("t")), "fetch", "primary", nil)
	a.RecordFailure(ctx, Typed("http_500", errors.New("h")), "fetch", "primary", nil)

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternIntermittent {
		t.Errorf("Pattern = %v, want intermittent", an.Pattern)
	}
}

func TestAnalyzer_Permanent(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	a.RecordFailure(ctx, Typed("timeout", errors.New("t")), "fetch", "primary", nil)
	a.RecordFailure(ctx, Typed("timeout", errors.New("t")), "fetch", "secondary", nil)
	a.RecordFailure(ctx, Typed("http_500", errors.New("h")), "fetch", "primary", nil)

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternPermanent {
		t.Errorf("Pattern = %v, want permanent", an.Pattern)
	}
}

func TestAnalyzer_UnstableService(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{PatternThreshold: 3})
	ctx := context.Background()

	// Paired identical types dodge the repeating and cascading detectors;
	// the trailing success dodges intermittent and permanent.
	for _, errType := range []string{"timeout", "timeout", "http_500", "http_500", "dns", "dns"} {
		a.RecordFailure(ctx, Typed(errType, errors.New(errType)), "fetch", "primary", nil)
	}
	a.RecordSuccess("fetch", "primary")

	an := a.Analyze(ctx, "fetch")
	if an.Pattern != PatternUnstableService {
		t.Errorf("Pattern = %v, want unstable_service", an.Pattern)
	}
}

func TestAnalyzer_ManualBlacklist(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{})
	ctx := context.Background()

	if err := a.AddToBlacklist(ctx, "primary", "fetch", "operator decision"); err != nil {
		t.Fatalf("AddToBlacklist() error = %v", err)
	}
	if !a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("pair should be blacklisted")
	}

	// Idempotence: two reads without writes agree.
	first := a.Blacklist(ctx)
	second := a.Blacklist(ctx)
	if len(first) != len(second) || first[0].Reason != second[0].Reason {
		t.Error("Blacklist() should be stable across reads")
	}

	if err := a.RemoveFromBlacklist(ctx, "primary", "fetch"); err != nil {
		t.Fatalf("RemoveFromBlacklist() error = %v", err)
	}
	if a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("pair should be removed")
	}
}

func TestAnalyzer_Analytics(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordFailure(ctx, Typed("timeout", errors.New("t")), "fetch", "primary", nil)
	}
	a.RecordFailure(ctx, Typed("http_500", errors.New("h")), "parse", "secondary", nil)
	a.AddToBlacklist(ctx, "primary", "fetch", "test")

	got := a.Analytics(ctx)

	if got.TotalFailures != 4 {
		t.Errorf("TotalFailures = %d, want 4", got.TotalFailures)
	}
	if got.BlacklistedStrategies != 1 {
		t.Errorf("BlacklistedStrategies = %d, want 1", got.BlacklistedStrategies)
	}
	if len(got.MostCommonErrors) == 0 || got.MostCommonErrors[0].ErrorType != "timeout" {
		t.Errorf("MostCommonErrors = %v, want timeout ranked first", got.MostCommonErrors)
	}
	if len(got.ProblematicOperations) == 0 || got.ProblematicOperations[0].Operation != "fetch" {
		t.Errorf("ProblematicOperations = %v, want fetch ranked first", got.ProblematicOperations)
	}
	if len(got.DailyTrends) == 0 {
		t.Error("DailyTrends should have at least today's bucket")
	}
}

func TestAnalyzer_CleanupOldFailures(t *testing.T) {
	a := testAnalyzer(t, AnalyzerConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordFailure(ctx, errors.New("boom"), "fetch", "primary", nil)
	}

	t.Run("huge retention deletes none", func(t *testing.T) {
		if n := a.CleanupOldFailures(ctx, 1_000_000); n != 0 {
			t.Errorf("deleted = %d, want 0", n)
		}
	})

	t.Run("zero retention deletes all", func(t *testing.T) {
		if n := a.CleanupOldFailures(ctx, 0); n != 3 {
			t.Errorf("deleted = %d, want 3", n)
		}
		if got := a.Analytics(ctx); got.TotalFailures != 0 {
			t.Errorf("TotalFailures after cleanup = %d, want 0", got.TotalFailures)
		}
	})
}

// brokenStore fails every call, driving the analyzer's degradation path.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) SaveFailure(context.Context, *Record) error          { return errStoreDown }
func (brokenStore) Failures(context.Context, Filter) ([]*Record, error) { return nil, errStoreDown }
func (brokenStore) CountFailures(context.Context) (int64, error)        { return 0, errStoreDown }
func (brokenStore) CleanupFailures(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}
func (brokenStore) UpsertBlacklist(context.Context, *BlacklistEntry) error { return errStoreDown }
func (brokenStore) RemoveBlacklist(context.Context, string, string) error  { return errStoreDown }
func (brokenStore) GetBlacklist(context.Context, string, string) (*BlacklistEntry, error) {
	return nil, errStoreDown
}
func (brokenStore) Blacklist(context.Context) ([]*BlacklistEntry, error) { return nil, errStoreDown }
func (brokenStore) Close() error                                         { return nil }

func TestAnalyzer_DegradesOnStoreFailure(t *testing.T) {
	a := NewAnalyzer(brokenStore{}, AnalyzerConfig{})
	ctx := context.Background()

	// Must not fail the caller; the record lands in the fallback store.
	rec := a.RecordFailure(ctx, errors.New("boom"), "fetch", "primary", nil)
	if rec == nil {
		t.Fatal("RecordFailure returned nil")
	}
	if !a.Degraded() {
		t.Error("analyzer should be degraded after a store failure")
	}

	if got := a.Analytics(ctx); got.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1 (from fallback store)", got.TotalFailures)
	}

	// Blacklisting keeps working in-memory.
	if err := a.AddToBlacklist(ctx, "primary", "fetch", "manual"); err != nil {
		t.Fatalf("AddToBlacklist() after degradation error = %v", err)
	}
	if !a.IsBlacklisted(ctx, "primary", "fetch") {
		t.Error("blacklist should work against the fallback store")
	}
}
