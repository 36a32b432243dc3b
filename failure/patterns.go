package failure

import (
	"fmt"
	"time"
)

// repeatingRun finds the longest run of identical (error type, strategy)
// failures in chronological order. It returns zeros when no run reaches
// the threshold.
func repeatingRun(chrono []*Record, threshold int) (strategy, errType string, count int, first, last time.Time) {
	var (
		runStart  int
		bestStart int
		bestLen   int
	)

	same := func(a, b *Record) bool {
		return a.ErrorType == b.ErrorType && a.Strategy == b.Strategy
	}

	for i := 1; i <= len(chrono); i++ {
		if i == len(chrono) || !same(chrono[i-1], chrono[i]) {
			if i-runStart > bestLen {
				bestStart, bestLen = runStart, i-runStart
			}
			runStart = i
		}
	}

	if bestLen < threshold {
		return "", "", 0, time.Time{}, time.Time{}
	}

	head := chrono[bestStart]
	tail := chrono[bestStart+bestLen-1]
	return head.Strategy, head.ErrorType, bestLen, head.Timestamp, tail.Timestamp
}

func detectRepeating(chrono []*Record, threshold int) *Analysis {
	strategy, errType, count, first, last := repeatingRun(chrono, threshold)
	if count == 0 {
		return nil
	}

	name := strategy
	if name == "" {
		name = "(default)"
	}

	return &Analysis{
		Pattern: PatternRepeating,
		RootCause: RootCause{
			Description: fmt.Sprintf("strategy %s fails repeatedly with %q", name, errType),
			Evidence: []string{
				fmt.Sprintf("%d consecutive identical failures", count),
				fmt.Sprintf("window %s .. %s", first.Format(time.RFC3339), last.Format(time.RFC3339)),
			},
		},
		Recommendations: []string{
			fmt.Sprintf("stop using strategy %s for this operation", name),
			"switch to an alternative strategy",
		},
	}
}

func detectCascading(chrono []*Record, threshold int) *Analysis {
	// A run where every consecutive pair differs in error type points at a
	// shared dependency rather than one bad strategy.
	run := 1
	for i := 1; i < len(chrono); i++ {
		if chrono[i].ErrorType != chrono[i-1].ErrorType {
			run++
		} else {
			run = 1
		}
		if run >= threshold {
			return &Analysis{
				Pattern: PatternCascading,
				RootCause: RootCause{
					Description: "error types vary across consecutive failures; a shared dependency is likely failing",
					Evidence: []string{
						fmt.Sprintf("%d consecutive failures with changing error types ending at %s",
							run, chrono[i].Timestamp.Format(time.RFC3339)),
					},
				},
				Recommendations: []string{
					"check shared dependencies of this operation (network, credentials, quota)",
				},
			}
		}
	}
	return nil
}

func detectIntermittent(window []outcome) *Analysis {
	// Interleaving means at least one success strictly between two failures.
	seenFailure := false
	successAfterFailure := false
	for _, o := range window {
		switch {
		case !o.ok:
			if successAfterFailure {
				return &Analysis{
					Pattern: PatternIntermittent,
					RootCause: RootCause{
						Description: "failures and successes interleave; the target is flapping",
						Evidence:    []string{fmt.Sprintf("%d recent attempts with mixed outcomes", len(window))},
					},
					Recommendations: []string{
						"tune circuit breaker thresholds for this operation",
					},
				}
			}
			seenFailure = true
		case seenFailure:
			successAfterFailure = true
		}
	}
	return nil
}

func detectPermanent(chrono []*Record, window []outcome, threshold int) *Analysis {
	if len(chrono) < threshold {
		return nil
	}

	// No success since the first recorded failure. The window is the only
	// success source, so an empty window counts as "no success observed".
	firstFailure := chrono[0].Timestamp
	for _, o := range window {
		if o.ok && !o.at.Before(firstFailure) {
			return nil
		}
	}

	return &Analysis{
		Pattern: PatternPermanent,
		RootCause: RootCause{
			Description: "every attempt since the first recorded failure has failed",
			Evidence: []string{
				fmt.Sprintf("%d failures since %s with no intervening success",
					len(chrono), firstFailure.Format(time.RFC3339)),
			},
		},
		Recommendations: []string{
			"redesign the strategy for this operation; retries will not help",
		},
	}
}

func detectUnstableService(chrono []*Record, threshold int) *Analysis {
	types := make(map[string]map[string]bool) // strategy -> error types
	for _, rec := range chrono {
		if rec.Strategy == "" {
			continue
		}
		if types[rec.Strategy] == nil {
			types[rec.Strategy] = make(map[string]bool)
		}
		types[rec.Strategy][rec.ErrorType] = true
	}

	for strategy, set := range types {
		if len(set) >= threshold {
			return &Analysis{
				Pattern: PatternUnstableService,
				RootCause: RootCause{
					Description: fmt.Sprintf("strategy %s produces %d distinct error types; its target service is unstable", strategy, len(set)),
					Evidence:    []string{fmt.Sprintf("%d distinct error types within the window", len(set))},
				},
				Recommendations: []string{
					fmt.Sprintf("configure a fallback provider for strategy %s", strategy),
				},
			}
		}
	}
	return nil
}
