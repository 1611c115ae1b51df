package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricLookupTotal  = "proccache.lookup.total"
	MetricStoreErrors  = "proccache.store.errors"
	MetricExecTotal    = "proccache.exec.total"
	MetricExecErrors   = "proccache.exec.errors"
	MetricExecDuration = "proccache.exec.duration_ms"
)

// Metrics records cache and execution metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts one cache lookup by outcome (hit, miss, ...).
	RecordLookup(ctx context.Context, outcome string)

	// RecordStoreError counts a failed store operation ("get", "put", "encode").
	RecordStoreError(ctx context.Context, op string)

	// RecordExecution records one underlying execution.
	RecordExecution(ctx context.Context, meta RunMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	storeErrors  metric.Int64Counter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookups, err := meter.Int64Counter(
		MetricLookupTotal,
		metric.WithDescription("Cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		MetricStoreErrors,
		metric.WithDescription("Failed cache store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	totalCount, err := meter.Int64Counter(
		MetricExecTotal,
		metric.WithDescription("Underlying process executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		MetricExecErrors,
		metric.WithDescription("Underlying executions that failed to run"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		MetricExecDuration,
		metric.WithDescription("Underlying execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		storeErrors:  storeErrors,
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, outcome string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metricsImpl) RecordStoreError(ctx context.Context, op string) {
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta RunMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("run.executor", meta.Executor))

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

type noopMetrics struct{}

// NoopMetrics returns Metrics that record nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordLookup(context.Context, string)                           {}
func (noopMetrics) RecordStoreError(context.Context, string)                       {}
func (noopMetrics) RecordExecution(context.Context, RunMeta, time.Duration, error) {}
