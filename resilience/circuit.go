package resilience

import (
	"sync"
	"time"
)

// State represents a circuit breaker state.
type State int

const (
	// StateClosed means the path is operating normally.
	StateClosed State = iota
	// StateOpen means the path fast-fails without being invoked.
	StateOpen
	// StateHalfOpen means a single trial attempt is allowed.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a breaker set.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailureThreshold int

	// Cooldown is how long an open circuit waits before allowing a trial.
	// Default: 30 seconds
	Cooldown time.Duration

	// OnStateChange is called when any key's state changes.
	OnStateChange func(strategy, operation string, from, to State)
}

// breaker is the per-key state machine.
type breaker struct {
	state        State
	failures     int
	lastFailure  time.Time
	halfOpenBusy bool
	strategy     string
	operation    string
}

// BreakerSet holds one circuit breaker per (strategy, operation) key.
// State lives in memory only and resets on process restart.
type BreakerSet struct {
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewBreakerSet creates an empty breaker set.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return &BreakerSet{
		config:   config,
		breakers: make(map[string]*breaker),
	}
}

func (bs *BreakerSet) get(strategy, operation string) *breaker {
	key := strategy + "@" + operation
	b, ok := bs.breakers[key]
	if !ok {
		b = &breaker{state: StateClosed, strategy: strategy, operation: operation}
		bs.breakers[key] = b
	}
	return b
}

// Allow reports whether an attempt may proceed for (strategy, operation).
// While open and inside the cooldown it returns ErrCircuitOpen without
// allowing the attempt; once the cooldown elapses the circuit moves to
// half-open and exactly one trial attempt is admitted.
func (bs *BreakerSet) Allow(strategy, operation string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)

	if b.state == StateOpen && time.Since(b.lastFailure) >= bs.config.Cooldown {
		bs.setState(b, StateHalfOpen)
		b.halfOpenBusy = false
	}

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenBusy {
			return ErrCircuitOpen
		}
		b.halfOpenBusy = true
	}

	return nil
}

// RecordSuccess notes a successful attempt for (strategy, operation).
func (bs *BreakerSet) RecordSuccess(strategy, operation string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		// Successful trial closes the circuit.
		bs.setState(b, StateClosed)
		b.failures = 0
	}
}

// RecordFailure notes a failed attempt for (strategy, operation).
func (bs *BreakerSet) RecordFailure(strategy, operation string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)

	switch b.state {
	case StateClosed:
		b.failures++
		b.lastFailure = time.Now()
		if b.failures >= bs.config.FailureThreshold {
			bs.setState(b, StateOpen)
		}
	case StateHalfOpen:
		// Failed trial reopens the circuit and restarts the cooldown.
		b.lastFailure = time.Now()
		bs.setState(b, StateOpen)
	}
}

// CancelTrial releases a half-open trial permit without resolving the
// circuit. Used when an admitted attempt aborts before producing a verdict,
// so the next Allow can admit a fresh trial.
func (bs *BreakerSet) CancelTrial(strategy, operation string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)
	if b.state == StateHalfOpen {
		b.halfOpenBusy = false
	}
}

// State returns the current state for (strategy, operation), accounting for
// an elapsed cooldown.
func (bs *BreakerSet) State(strategy, operation string) State {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)
	if b.state == StateOpen && time.Since(b.lastFailure) >= bs.config.Cooldown {
		bs.setState(b, StateHalfOpen)
		b.halfOpenBusy = false
	}
	return b.state
}

// Reset returns (strategy, operation) to the closed state.
func (bs *BreakerSet) Reset(strategy, operation string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.get(strategy, operation)
	if b.state != StateClosed {
		bs.setState(b, StateClosed)
	}
	b.failures = 0
	b.halfOpenBusy = false
}

// States returns a snapshot of every tracked key's state, keyed by
// "strategy@operation".
func (bs *BreakerSet) States() map[string]State {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	out := make(map[string]State, len(bs.breakers))
	for key, b := range bs.breakers {
		out[key] = b.state
	}
	return out
}

func (bs *BreakerSet) setState(b *breaker, state State) {
	from := b.state
	if from == state {
		return
	}
	b.state = state
	if bs.config.OnStateChange != nil {
		bs.config.OnStateChange(b.strategy, b.operation, from, state)
	}
}
