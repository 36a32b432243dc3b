package resilience

import (
	"sync"
	"time"
)

// budget tracks the shared caps of one engine call: wall-clock deadline,
// attempt count, and API cost. Parallel strategies share one budget, so
// every method is safe for concurrent use.
type budget struct {
	mu           sync.Mutex
	deadline     time.Time
	attemptsLeft int
	costLeft     float64

	attempts int
	failures int
	cost     float64
	reason   string
}

func newBudget(cfg *Config, start time.Time) *budget {
	return &budget{
		deadline:     start.Add(cfg.MaxTotalTime),
		attemptsLeft: cfg.MaxTotalAttempts,
		costLeft:     cfg.MaxAPICost,
	}
}

// charge reserves one attempt and its estimated cost. Synthetic attempts
// (circuit fast-fails) charge zero cost. The first exhausted cap wins and
// its reason sticks.
func (b *budget) charge(costHint float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case !time.Now().Before(b.deadline):
		b.exhaust("time limit reached")
		return ErrBudgetExhausted
	case b.attemptsLeft <= 0:
		b.exhaust("attempt limit reached")
		return ErrBudgetExhausted
	case costHint > b.costLeft:
		b.exhaust("cost limit reached")
		return ErrBudgetExhausted
	}

	b.attemptsLeft--
	b.attempts++
	b.costLeft -= costHint
	b.cost += costHint
	return nil
}

// exhaust records the first exhaustion reason.
func (b *budget) exhaust(reason string) {
	if b.reason == "" {
		b.reason = reason
	}
}

// markExhausted records an exhaustion reason from outside the charge path.
func (b *budget) markExhausted(reason string) {
	b.mu.Lock()
	b.exhaust(reason)
	b.mu.Unlock()
}

// noteFailure counts one failed attempt.
func (b *budget) noteFailure() {
	b.mu.Lock()
	b.failures++
	b.mu.Unlock()
}

func (b *budget) attemptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *budget) failureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *budget) totalCost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost
}

func (b *budget) exhaustionReason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reason == "" {
		return "canceled"
	}
	return b.reason
}
