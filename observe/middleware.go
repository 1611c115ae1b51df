package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonwraymond/proccache/process"
)

// Middleware instruments a process.Executor with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap returns an Executor as safe as the one it wraps.
//   - Errors: errors from the wrapped executor are recorded and returned unchanged.
//   - Ownership: requests and results pass through unmodified.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NoopTracer()
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if logger == nil {
		logger = NoopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap instruments next. name identifies the executor in telemetry.
func (m *Middleware) Wrap(name string, next process.Executor) (process.Executor, error) {
	if next == nil {
		return nil, ErrNilExecutor
	}
	return process.ExecutorFunc(func(ctx context.Context, req process.Request) (process.Result, error) {
		meta := MetaFor(req)
		meta.Executor = name

		ctx, span := m.tracer.StartSpan(ctx, SpanExec, meta)
		start := time.Now()

		result, err := next.Run(ctx, req)

		duration := time.Since(start)
		if err == nil {
			span.SetAttributes(attribute.Int("run.exit_code", result.ExitCode))
		}
		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, meta, duration, err)

		logger := m.logger.WithRun(meta)
		fields := []Field{{Key: "duration_ms", Value: float64(duration.Milliseconds())}}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "process execution failed", fields...)
		} else {
			fields = append(fields, Field{Key: "exit_code", Value: result.ExitCode})
			logger.Info(ctx, "process execution completed", fields...)
		}
		return result, err
	}), nil
}
