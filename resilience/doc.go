// Package resilience implements the "never give up" execution engine: retry
// with backoff, per-strategy circuit breakers, alternative-strategy racing,
// budget enforcement, and blacklist-aware scheduling.
//
// # Overview
//
// The Engine wraps callables with transparent resilience. A single function
// is retried with exponential backoff; a list of Strategy values is tried
// in priority order or raced in parallel. Every failure is recorded with the
// failure analyzer, which detects patterns and blacklists strategies that
// keep failing the same way. A circuit breaker per (strategy, operation)
// pair fast-fails known-bad paths without spending latency or cost on them.
//
// # Usage
//
//	engine, err := resilience.NewEngine(resilience.Config{
//	    MaxAttempts:  3,
//	    BaseDelay:    time.Second,
//	    MaxTotalTime: 2 * time.Minute,
//	})
//	if err != nil {
//	    return err
//	}
//
//	result, err := engine.ExecuteWithAlternatives(ctx, "summarize",
//	    []resilience.Strategy{
//	        {Name: "primary", Priority: 1.0, Invoke: callPrimary},
//	        {Name: "fallback", Priority: 0.5, Invoke: callFallback},
//	    },
//	    resilience.Sequential,
//	)
//	if err != nil {
//	    return err // programming error (empty strategy list, nil callable)
//	}
//	if !result.Success {
//	    log.Println(result.Err, result.Recommendations)
//	}
//
// Runtime failures never surface as errors: the returned Result carries
// success, the value, attempt counts, cost, and analyzer recommendations.
package resilience
