package resilience

import (
	"fmt"
	"time"
)

// Config configures the engine. Zero values take the documented defaults;
// negative values are configuration errors and fail fast in NewEngine.
type Config struct {
	// MaxAttempts is the retry budget per strategy.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 60s
	MaxDelay time.Duration

	// BackoffFactor is the exponential backoff multiplier.
	// Default: 2.0
	BackoffFactor float64

	// MaxTotalTime bounds one Execute/ExecuteWithAlternatives call in wall
	// clock time. Default: 5m
	MaxTotalTime time.Duration

	// MaxAPICost bounds the summed CostHint charged across all attempts.
	// Default: 10.0
	MaxAPICost float64

	// MaxTotalAttempts bounds attempts across all strategies in one call.
	// Default: 10
	MaxTotalAttempts int

	// MaxParallelStrategies bounds concurrent strategies in parallel mode.
	// Default: 3
	MaxParallelStrategies int

	// StrategyTimeout bounds a single attempt when the strategy does not
	// carry its own timeout. Default: 60s
	StrategyTimeout time.Duration

	// DisableAlternatives rejects ExecuteWithAlternatives calls, reducing
	// the engine to a plain retry wrapper.
	DisableAlternatives bool

	// PatternDetectionThreshold is the failure count a pattern needs.
	// Default: 3
	PatternDetectionThreshold int

	// DisableLearning turns off failure recording and pattern analysis
	// entirely; the engine still retries and breaks circuits.
	DisableLearning bool

	// DisableAutoBlacklist keeps repeating failures from being promoted to
	// the blacklist automatically. Manual blacklisting stays available.
	DisableAutoBlacklist bool

	// BlacklistCooldown, when positive, lets auto-blacklisted strategies
	// return after this duration. Default: 0 (no cooldown).
	BlacklistCooldown time.Duration

	// EnablePersistence turns on the durable failure store at DBPath.
	EnablePersistence bool

	// DBPath is the SQLite database file used when persistence is enabled.
	DBPath string

	// FailureThreshold is the consecutive-failure count that opens a
	// circuit. Default: 5
	FailureThreshold int

	// CircuitCooldown is how long an open circuit fast-fails before a trial
	// attempt is allowed. Default: 30s
	CircuitCooldown time.Duration

	// EscalateAfterFailures marks the result for operator escalation once
	// an operation accumulates this many recorded failures. Default: 5
	EscalateAfterFailures int

	// UserInterventionThreshold marks the result as needing user
	// intervention once a single call records this many failures.
	// Default: 10
	UserInterventionThreshold int

	// EnableCreativeSolving lets the engine fall back to a caller-provided
	// creative solver (see WithCreativeSolver) after every ordinary
	// strategy is exhausted.
	EnableCreativeSolving bool

	// CheckpointInterval is how often a long-running call logs a progress
	// checkpoint while retrying. Default: 30s
	CheckpointInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2.0
	}
	if c.MaxTotalTime == 0 {
		c.MaxTotalTime = 5 * time.Minute
	}
	if c.MaxAPICost == 0 {
		c.MaxAPICost = 10.0
	}
	if c.MaxTotalAttempts == 0 {
		c.MaxTotalAttempts = 10
	}
	if c.MaxParallelStrategies == 0 {
		c.MaxParallelStrategies = 3
	}
	if c.StrategyTimeout == 0 {
		c.StrategyTimeout = 60 * time.Second
	}
	if c.PatternDetectionThreshold == 0 {
		c.PatternDetectionThreshold = 3
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = 30 * time.Second
	}
	if c.EscalateAfterFailures == 0 {
		c.EscalateAfterFailures = 5
	}
	if c.UserInterventionThreshold == 0 {
		c.UserInterventionThreshold = 10
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = 30 * time.Second
	}
}

// Validate rejects configurations that can only come from programmer error.
func (c *Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("resilience: MaxAttempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("resilience: delays must not be negative")
	}
	if c.BackoffFactor < 0 {
		return fmt.Errorf("resilience: BackoffFactor must not be negative, got %f", c.BackoffFactor)
	}
	if c.BackoffFactor > 0 && c.BackoffFactor < 1 {
		return fmt.Errorf("resilience: BackoffFactor must be >= 1, got %f", c.BackoffFactor)
	}
	if c.MaxTotalTime < 0 {
		return fmt.Errorf("resilience: MaxTotalTime must not be negative")
	}
	if c.MaxAPICost < 0 {
		return fmt.Errorf("resilience: MaxAPICost must not be negative, got %f", c.MaxAPICost)
	}
	if c.MaxTotalAttempts < 0 {
		return fmt.Errorf("resilience: MaxTotalAttempts must not be negative, got %d", c.MaxTotalAttempts)
	}
	if c.MaxParallelStrategies < 0 {
		return fmt.Errorf("resilience: MaxParallelStrategies must not be negative, got %d", c.MaxParallelStrategies)
	}
	if c.EnablePersistence && c.DBPath == "" {
		return fmt.Errorf("resilience: persistence enabled without DBPath")
	}
	return nil
}
