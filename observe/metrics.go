package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience execution metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAttempt records one strategy attempt with duration and error status.
	RecordAttempt(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordCircuitTransition records a circuit breaker state change.
	RecordCircuitTransition(ctx context.Context, meta OpMeta, from, to string)

	// RecordBlacklistPromotion records an automatic blacklist promotion.
	RecordBlacklistPromotion(ctx context.Context, meta OpMeta)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter           metric.Meter
	attemptCount    metric.Int64Counter
	failureCount    metric.Int64Counter
	durationHist    metric.Float64Histogram
	transitionCount metric.Int64Counter
	promotionCount  metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	attemptCount, err := meter.Int64Counter(
		"resilience.attempts",
		metric.WithDescription("Total number of strategy attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failureCount, err := meter.Int64Counter(
		"resilience.failures",
		metric.WithDescription("Total number of failed strategy attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"resilience.attempt.duration_ms",
		metric.WithDescription("Strategy attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitionCount, err := meter.Int64Counter(
		"resilience.circuit.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	promotionCount, err := meter.Int64Counter(
		"resilience.blacklist.promotions",
		metric.WithDescription("Total number of automatic blacklist promotions"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:           meter,
		attemptCount:    attemptCount,
		failureCount:    failureCount,
		durationHist:    durationHist,
		transitionCount: transitionCount,
		promotionCount:  promotionCount,
	}, nil
}

func (m *metricsImpl) attrs(meta OpMeta) metric.MeasurementOption {
	kvs := []attribute.KeyValue{
		attribute.String("op.name", meta.Operation),
	}
	if meta.Strategy != "" {
		kvs = append(kvs, attribute.String("op.strategy", meta.Strategy))
	}
	return metric.WithAttributes(kvs...)
}

// RecordAttempt records metrics for one strategy attempt.
func (m *metricsImpl) RecordAttempt(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := m.attrs(meta)

	m.attemptCount.Add(ctx, 1, opt)
	if err != nil {
		m.failureCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordCircuitTransition records a circuit breaker state change.
func (m *metricsImpl) RecordCircuitTransition(ctx context.Context, meta OpMeta, from, to string) {
	kvs := []attribute.KeyValue{
		attribute.String("op.name", meta.Operation),
		attribute.String("circuit.from", from),
		attribute.String("circuit.to", to),
	}
	if meta.Strategy != "" {
		kvs = append(kvs, attribute.String("op.strategy", meta.Strategy))
	}
	m.transitionCount.Add(ctx, 1, metric.WithAttributes(kvs...))
}

// RecordBlacklistPromotion records an automatic blacklist promotion.
func (m *metricsImpl) RecordBlacklistPromotion(ctx context.Context, meta OpMeta) {
	m.promotionCount.Add(ctx, 1, m.attrs(meta))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NewNoopMetrics creates a no-op Metrics.
func NewNoopMetrics() Metrics { return &noopMetrics{} }

func (m *noopMetrics) RecordAttempt(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordCircuitTransition(ctx context.Context, meta OpMeta, from, to string) {}
func (m *noopMetrics) RecordBlacklistPromotion(ctx context.Context, meta OpMeta)                {}
