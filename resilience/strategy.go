package resilience

import (
	"context"
	"sort"
	"time"
)

// Func is a single operation wrapped by Execute.
type Func func(ctx context.Context) (any, error)

// Strategy is one named way to accomplish an operation. Strategies are
// immutable once constructed and owned by the caller for the duration of
// one ExecuteWithAlternatives call.
type Strategy struct {
	// Name identifies the strategy in results, failures, and the blacklist.
	Name string

	// Invoke performs the work. Cancellation arrives via the context and
	// must be treated as immediate abort.
	Invoke Func

	// Priority orders strategies in sequential mode, higher first.
	// Expected range 0..1.
	Priority float64

	// Description is free-form operator documentation.
	Description string

	// CostHint is the estimated cost of one invocation, charged against
	// the MaxAPICost budget per attempt.
	CostHint float64

	// Timeout bounds a single attempt. Zero means Config.StrategyTimeout.
	Timeout time.Duration
}

// Mode selects how ExecuteWithAlternatives schedules strategies.
type Mode int

const (
	// Sequential tries strategies one at a time in descending priority.
	Sequential Mode = iota
	// Parallel races all strategies; the first success cancels the rest.
	Parallel
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one engine call. Runtime failures are
// reported here, never raised.
type Result struct {
	// Success is true when some strategy returned without error.
	Success bool

	// Value is the successful strategy's return value.
	Value any

	// Err describes why the call failed. Empty on success.
	Err string

	// Attempts counts invocations across all strategies, including
	// fast-failed circuit-open attempts.
	Attempts int

	// StrategiesTried lists strategies in the order they were started.
	// Blacklisted strategies are skipped and do not appear.
	StrategiesTried []string

	// Elapsed is the wall-clock duration of the call.
	Elapsed time.Duration

	// TotalCost is the summed CostHint charged across attempts.
	TotalCost float64

	// Recommendations aggregates analyzer guidance for failed calls.
	Recommendations []string

	// RequiresIntervention is set when the call recorded at least
	// UserInterventionThreshold failures.
	RequiresIntervention bool
}

// byPriority returns a copy sorted descending by priority. The sort is
// stable so equal priorities keep caller order.
func byPriority(strategies []Strategy) []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
