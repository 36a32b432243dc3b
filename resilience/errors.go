package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBudgetExhausted is reported when the time, cost, or attempt budget
	// runs out before any strategy succeeds.
	ErrBudgetExhausted = errors.New("resilience: execution budget exhausted")

	// ErrAllStrategiesFailed is reported when every candidate strategy was
	// attempted and exhausted its retries.
	ErrAllStrategiesFailed = errors.New("resilience: all strategies failed")

	// ErrAllStrategiesBlacklisted is reported when every candidate strategy
	// is blacklisted for the operation.
	ErrAllStrategiesBlacklisted = errors.New("resilience: all strategies blacklisted")

	// ErrStrategyTimeout is recorded when a single strategy attempt exceeds
	// its timeout.
	ErrStrategyTimeout = errors.New("resilience: strategy timed out")

	// ErrNoStrategies is returned at call time for an empty strategy list.
	// This is a programming error, not a runtime failure.
	ErrNoStrategies = errors.New("resilience: no strategies provided")

	// ErrNilFunc is returned at call time for a nil function or strategy
	// callable.
	ErrNilFunc = errors.New("resilience: nil function")

	// ErrAlternativesDisabled is returned when ExecuteWithAlternatives is
	// called on an engine configured with DisableAlternatives.
	ErrAlternativesDisabled = errors.New("resilience: alternative strategies disabled")
)
