package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alphaops/resilient/failure"
	"github.com/alphaops/resilient/observe"
	"github.com/alphaops/resilient/store"
)

// CreativeSolver produces a last-resort strategy for an operation after
// every ordinary strategy is exhausted. Typically backed by an external
// code-generation service; only the Strategy contract applies here.
type CreativeSolver func(operation string) (Strategy, bool)

// Engine orchestrates retries, alternative strategies, circuit breakers,
// and the failure analyzer. Engines are safe for concurrent use; multiple
// engines coexist with fully independent state.
type Engine struct {
	cfg      Config
	log      observe.Logger
	metrics  observe.Metrics
	tracer   observe.Tracer
	analyzer *failure.Analyzer
	breakers *BreakerSet
	solver   CreativeSolver

	extStore failure.Store
	ownStore failure.Store // opened by the engine, closed by Close
}

// Option configures an Engine beyond its Config.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l observe.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the engine metrics sink.
func WithMetrics(m observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the engine tracer.
func WithTracer(t observe.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithAnalyzer injects a shared failure analyzer. The engine then ignores
// its persistence configuration.
func WithAnalyzer(a *failure.Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithStore injects a failure store for the engine's own analyzer. The
// caller keeps ownership and closes it.
func WithStore(s failure.Store) Option {
	return func(e *Engine) { e.extStore = s }
}

// WithCreativeSolver registers the creative-solving fallback, consulted
// only when Config.EnableCreativeSolving is set.
func WithCreativeSolver(f CreativeSolver) Option {
	return func(e *Engine) { e.solver = f }
}

// NewEngine creates an engine. Invalid configuration fails fast. A durable
// store that cannot be opened does not: the engine logs it and runs
// in-memory instead.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	e := &Engine{
		cfg:     cfg,
		log:     observe.NoopLogger(),
		metrics: observe.NewNoopMetrics(),
		tracer:  observe.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.breakers = NewBreakerSet(BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.CircuitCooldown,
		OnStateChange: func(strategy, operation string, from, to State) {
			meta := observe.OpMeta{Operation: operation, Strategy: strategy}
			e.metrics.RecordCircuitTransition(context.Background(), meta, from.String(), to.String())
			e.log.Info(context.Background(), "circuit state changed",
				observe.Field{Key: "op.name", Value: operation},
				observe.Field{Key: "op.strategy", Value: strategy},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()})
		},
	})

	if e.analyzer == nil {
		st := e.extStore
		if st == nil && cfg.EnablePersistence {
			s, err := store.Open(context.Background(), store.Config{Path: cfg.DBPath})
			if err != nil {
				// Persistence failures degrade, they never abort; the engine
				// runs in-memory for this process.
				e.log.Error(context.Background(), "failed to open failure store, running in-memory",
					observe.Field{Key: "db_path", Value: cfg.DBPath},
					observe.Field{Key: "error", Value: err.Error()})
			} else {
				st = s
				e.ownStore = s
			}
		}
		e.analyzer = failure.NewAnalyzer(st, failure.AnalyzerConfig{
			PatternThreshold:     cfg.PatternDetectionThreshold,
			DisableAutoPromotion: cfg.DisableAutoBlacklist,
			BlacklistCooldown:    cfg.BlacklistCooldown,
			Logger:               e.log,
			Metrics:              e.metrics,
		})
	}

	return e, nil
}

// Analyzer returns the engine's failure analyzer.
func (e *Engine) Analyzer() *failure.Analyzer { return e.analyzer }

// Breakers returns the engine's circuit breaker set.
func (e *Engine) Breakers() *BreakerSet { return e.breakers }

// Close releases the engine-owned failure store, if any.
func (e *Engine) Close() error {
	if e.ownStore != nil {
		return e.ownStore.Close()
	}
	return nil
}

// defaultStrategyName names the implicit strategy of Execute.
const defaultStrategyName = "default"

// Execute wraps a single function with retry, backoff, circuit breaking,
// and budget enforcement. The returned error is non-nil only for
// programming errors; runtime failures are reported in the Result.
func (e *Engine) Execute(ctx context.Context, operation string, fn Func) (*Result, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	return e.run(ctx, operation, []Strategy{{Name: defaultStrategyName, Invoke: fn}}, Sequential)
}

// ExecuteWithAlternatives tries multiple named strategies, sequentially in
// descending priority order or racing in parallel.
func (e *Engine) ExecuteWithAlternatives(ctx context.Context, operation string, strategies []Strategy, mode Mode) (*Result, error) {
	if e.cfg.DisableAlternatives {
		return nil, ErrAlternativesDisabled
	}
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	for _, s := range strategies {
		if s.Invoke == nil {
			return nil, fmt.Errorf("%w: strategy %q", ErrNilFunc, s.Name)
		}
	}
	return e.run(ctx, operation, byPriority(strategies), mode)
}

func (e *Engine) run(ctx context.Context, operation string, strategies []Strategy, mode Mode) (*Result, error) {
	start := time.Now()
	res := &Result{}
	budget := newBudget(&e.cfg, start)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxTotalTime)
	defer cancel()

	// Blacklisted strategies are skipped before any attempt and consume no
	// budget.
	candidates := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if e.analyzer.IsBlacklisted(ctx, s.Name, operation) {
			e.log.Debug(ctx, "skipping blacklisted strategy",
				observe.Field{Key: "op.name", Value: operation},
				observe.Field{Key: "op.strategy", Value: s.Name})
			continue
		}
		candidates = append(candidates, s)
	}

	if len(candidates) == 0 {
		res.Err = ErrAllStrategiesBlacklisted.Error()
		e.finish(ctx, operation, res, budget, start)
		return res, nil
	}

	var (
		value     any
		ok        bool
		budgetHit bool
	)
	if mode == Parallel {
		value, ok, budgetHit = e.runParallel(ctx, operation, candidates, budget, res)
	} else {
		value, ok, budgetHit = e.runSequential(ctx, operation, candidates, budget, res)
	}

	if !ok && !budgetHit && e.cfg.EnableCreativeSolving && e.solver != nil {
		if s, found := e.solver(operation); found && s.Invoke != nil {
			res.StrategiesTried = append(res.StrategiesTried, s.Name)
			v, err := e.runStrategy(ctx, operation, s, budget)
			switch {
			case err == nil:
				value, ok = v, true
			case errors.Is(err, ErrBudgetExhausted):
				budgetHit = true
			}
		}
	}

	switch {
	case ok:
		res.Success = true
		res.Value = value
	case budgetHit:
		res.Err = ErrBudgetExhausted.Error() + ": " + budget.exhaustionReason()
	default:
		res.Err = ErrAllStrategiesFailed.Error()
	}

	e.finish(ctx, operation, res, budget, start)
	return res, nil
}

func (e *Engine) runSequential(ctx context.Context, operation string, candidates []Strategy, budget *budget, res *Result) (any, bool, bool) {
	for _, s := range candidates {
		res.StrategiesTried = append(res.StrategiesTried, s.Name)

		value, err := e.runStrategy(ctx, operation, s, budget)
		if err == nil {
			return value, true, false
		}
		if errors.Is(err, ErrBudgetExhausted) || ctx.Err() != nil {
			return nil, false, true
		}
	}
	return nil, false, false
}

func (e *Engine) runParallel(ctx context.Context, operation string, candidates []Strategy, budget *budget, res *Result) (any, bool, bool) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(e.cfg.MaxParallelStrategies))

	type outcome struct {
		value any
		err   error
	}
	results := make(chan outcome, len(candidates))

	var wg sync.WaitGroup
	for _, s := range candidates {
		res.StrategiesTried = append(res.StrategiesTried, s.Name)

		wg.Add(1)
		go func(s Strategy) {
			defer wg.Done()
			if err := sem.Acquire(raceCtx, 1); err != nil {
				results <- outcome{err: err}
				return
			}
			defer sem.Release(1)

			value, err := e.runStrategy(raceCtx, operation, s, budget)
			results <- outcome{value: value, err: err}
		}(s)
	}

	var (
		value     any
		ok        bool
		budgetHit bool
	)
	for range candidates {
		out := <-results
		switch {
		case out.err == nil && !ok:
			value, ok = out.value, true
			// First success wins; everyone else gets canceled.
			cancel()
		case errors.Is(out.err, ErrBudgetExhausted):
			budgetHit = true
		}
	}

	// Await cancellation acknowledgment so no strategy work outlives the
	// call.
	wg.Wait()

	return value, ok, budgetHit && !ok
}

// runStrategy is one strategy's retry loop. It returns the successful value
// or the last error; ErrBudgetExhausted aborts the whole call.
func (e *Engine) runStrategy(ctx context.Context, operation string, s Strategy, budget *budget) (any, error) {
	meta := observe.OpMeta{Operation: operation, Strategy: s.Name}
	log := e.log.WithOp(meta)
	lastCheckpoint := time.Now()

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.mapContextErr(ctx, budget)
		}

		// Circuit gate: an open circuit fast-fails the attempt without
		// invoking the strategy or charging cost.
		if err := e.breakers.Allow(s.Name, operation); err != nil {
			if chErr := budget.charge(0); chErr != nil {
				return nil, chErr
			}
			synthetic := failure.Typed("circuit_open", fmt.Errorf("%w for strategy %q", ErrCircuitOpen, s.Name))
			e.recordFailure(ctx, synthetic, operation, s.Name, budget, map[string]any{"attempt": attempt})
			lastErr = synthetic
		} else {
			if chErr := budget.charge(s.CostHint); chErr != nil {
				// The admitted attempt never ran; release any half-open
				// trial permit so the breaker is not wedged.
				e.breakers.CancelTrial(s.Name, operation)
				return nil, chErr
			}

			value, err := e.invoke(ctx, s, meta)
			if err == nil {
				e.breakers.RecordSuccess(s.Name, operation)
				if !e.cfg.DisableLearning {
					e.analyzer.RecordSuccess(operation, s.Name)
				}
				return value, nil
			}

			lastErr = err

			// Cancellation propagated from the call's own context is an
			// abort, not evidence against the strategy: a healthy loser of
			// a parallel race must not trip its breaker or accrue failure
			// records.
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				e.breakers.CancelTrial(s.Name, operation)
				return nil, e.mapContextErr(ctx, budget)
			}

			e.breakers.RecordFailure(s.Name, operation)
			e.recordFailure(ctx, err, operation, s.Name, budget, map[string]any{"attempt": attempt})

			if ctx.Err() != nil {
				return nil, e.mapContextErr(ctx, budget)
			}
		}

		if attempt+1 >= e.cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(&e.cfg, attempt)
		if time.Since(lastCheckpoint) >= e.cfg.CheckpointInterval {
			lastCheckpoint = time.Now()
			log.Info(ctx, "still retrying",
				observe.Field{Key: "attempt", Value: attempt + 1},
				observe.Field{Key: "next_delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "last_error", Value: lastErr.Error()})
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, e.mapContextErr(ctx, budget)
		}
	}

	return nil, lastErr
}

// invoke runs one attempt under the strategy's timeout, with a span and
// attempt metrics around it. On attempt timeout the strategy goroutine is
// abandoned and observes cancellation via its context; on caller or race
// cancellation invoke waits for it to acknowledge, so no strategy work
// outlives the call.
func (e *Engine) invoke(ctx context.Context, s Strategy, meta observe.OpMeta) (any, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = e.cfg.StrategyTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spanCtx, span := e.tracer.StartSpan(attemptCtx, meta)
	start := time.Now()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := s.Invoke(spanCtx)
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out.err = ErrStrategyTimeout
		} else {
			// Await acknowledgment. A success that lands after cancellation
			// is reported as canceled: the race already has a winner.
			out = <-done
			if out.err == nil {
				out.value, out.err = nil, attemptCtx.Err()
			}
		}
	}

	e.tracer.EndSpan(span, out.err)
	e.metrics.RecordAttempt(context.WithoutCancel(ctx), meta, time.Since(start), out.err)
	return out.value, out.err
}

// recordFailure forwards a failure to the analyzer. Recording must survive
// the call's own cancellation, hence WithoutCancel.
func (e *Engine) recordFailure(ctx context.Context, err error, operation, strategy string, budget *budget, fields map[string]any) {
	budget.noteFailure()
	if e.cfg.DisableLearning {
		return
	}
	e.analyzer.RecordFailure(context.WithoutCancel(ctx), err, operation, strategy, fields)
}

// mapContextErr distinguishes "our deadline fired" from "the caller
// canceled"; both end the call but only the former is a budget matter.
func (e *Engine) mapContextErr(ctx context.Context, budget *budget) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		budget.markExhausted("time limit reached")
		return ErrBudgetExhausted
	}
	budget.markExhausted("canceled")
	return ErrBudgetExhausted
}

// finish stamps the result with timing, cost, and guidance.
func (e *Engine) finish(ctx context.Context, operation string, res *Result, budget *budget, start time.Time) {
	res.Elapsed = time.Since(start)
	res.Attempts = budget.attemptCount()
	res.TotalCost = budget.totalCost()
	res.RequiresIntervention = budget.failureCount() >= e.cfg.UserInterventionThreshold

	if res.Success {
		e.log.Info(ctx, "operation succeeded",
			observe.Field{Key: "op.name", Value: operation},
			observe.Field{Key: "attempts", Value: res.Attempts},
			observe.Field{Key: "elapsed_ms", Value: res.Elapsed.Milliseconds()})
		return
	}

	if !e.cfg.DisableLearning {
		rctx := context.WithoutCancel(ctx)
		an := e.analyzer.Analyze(rctx, operation)
		res.Recommendations = append(res.Recommendations, an.Recommendations...)

		recent := e.analyzer.RecentFailures(rctx, operation, e.cfg.EscalateAfterFailures)
		if len(recent) >= e.cfg.EscalateAfterFailures {
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("escalate: operation %q has %d or more recorded failures", operation, e.cfg.EscalateAfterFailures))
		}
	}
	if res.RequiresIntervention {
		res.Recommendations = append(res.Recommendations,
			"user intervention recommended: repeated failures within a single call")
	}

	e.log.Warn(ctx, "operation failed",
		observe.Field{Key: "op.name", Value: operation},
		observe.Field{Key: "error", Value: res.Err},
		observe.Field{Key: "attempts", Value: res.Attempts},
		observe.Field{Key: "strategies", Value: res.StrategiesTried})
}
