package runner

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/proccache/codec"
	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/fingerprint"
	"github.com/jonwraymond/proccache/observe"
	"github.com/jonwraymond/proccache/process"
	"github.com/jonwraymond/proccache/store"
)

// ErrNilExecutor is returned by New when no underlying executor is given.
var ErrNilExecutor = errors.New("runner: executor is nil")

// Runner is a caching process.Executor.
//
// Contract:
//   - Concurrency: safe for concurrent use if the executor and store are.
//   - Context: ctx is passed to the store and executor; a request whose
//     ctx is done after execution is not written to the store.
//   - Errors: only fingerprint and executor errors are returned, both
//     unchanged. Store and codec failures never reach the caller. With
//     single-flight, a caller whose ctx ends while waiting on another
//     caller's execution gets the bare ctx.Err(), not an
//     *process.ExecutorError.
//   - Ownership: the store is borrowed; the Runner never closes it.
type Runner struct {
	exec          process.Executor
	store         store.Store
	fingerprinter *fingerprint.Fingerprinter
	codec         *codec.Codec
	policy        Policy
	logger        observe.Logger
	metrics       observe.Metrics
	tracer        observe.Tracer

	singleFlight bool
	group        singleflight.Group
}

// New creates a Runner over exec and st.
func New(exec process.Executor, st store.Store, opts ...Option) (*Runner, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	if st == nil {
		return nil, store.ErrNilStore
	}

	r := &Runner{
		exec:          exec,
		store:         st,
		fingerprinter: fingerprint.Default(),
		codec:         codec.Default(),
		policy:        DefaultPolicy(),
		logger:        observe.NoopLogger(),
		metrics:       observe.NoopMetrics(),
		tracer:        observe.NoopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Fingerprint returns the cache key for req.
func (r *Runner) Fingerprint(req process.Request) (digest.Digest, error) {
	return r.fingerprinter.Fingerprint(req)
}

// Run returns the cached result for req, or runs it and caches the result.
func (r *Runner) Run(ctx context.Context, req process.Request) (result process.Result, err error) {
	meta := observe.MetaFor(req)
	ctx, span := r.tracer.StartSpan(ctx, observe.SpanRun, meta)
	defer func() { r.tracer.EndSpan(span, err) }()

	key, err := r.fingerprinter.Fingerprint(req)
	if err != nil {
		r.logger.WithRun(meta).Debug(ctx, "request cannot be fingerprinted", observe.Field{Key: "error", Value: err.Error()})
		return process.Result{}, err
	}
	meta.Fingerprint = key.String()
	span.SetAttributes(attribute.String("run.fingerprint", meta.Fingerprint))
	logger := r.logger.WithRun(meta)

	outcome := OutcomeBypass
	if r.policy.Read {
		var hit bool
		result, outcome, hit = r.lookup(ctx, key, logger)
		if hit {
			span.SetAttributes(attribute.String("cache.outcome", string(outcome)))
			r.metrics.RecordLookup(ctx, string(outcome))
			logger.Info(ctx, "cache hit")
			return result, nil
		}
	}
	span.SetAttributes(attribute.String("cache.outcome", string(outcome)))
	r.metrics.RecordLookup(ctx, string(outcome))
	logger.Debug(ctx, "executing", observe.Field{Key: "outcome", Value: string(outcome)})

	if r.singleFlight {
		return r.executeShared(ctx, key, req, logger)
	}
	return r.execute(ctx, key, req, logger)
}

// lookup reports a hit only for an entry that decodes cleanly. Every
// other case is a miss with a reason.
func (r *Runner) lookup(ctx context.Context, key digest.Digest, logger observe.Logger) (process.Result, Outcome, bool) {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.metrics.RecordStoreError(ctx, "get")
		logger.Warn(ctx, "cache read failed; executing", observe.Field{Key: "error", Value: err.Error()})
		return process.Result{}, OutcomeReadError, false
	}
	if !ok {
		return process.Result{}, OutcomeMiss, false
	}

	result, err := r.codec.Decode(ctx, data)
	if err != nil {
		logger.Warn(ctx, "discarding unreadable cache entry", observe.Field{Key: "error", Value: err.Error()})
		return process.Result{}, OutcomeCorrupt, false
	}
	return result, OutcomeHit, true
}

func (r *Runner) execute(ctx context.Context, key digest.Digest, req process.Request, logger observe.Logger) (process.Result, error) {
	result, err := r.exec.Run(ctx, req)
	if err != nil {
		logger.Debug(ctx, "execution failed; nothing cached", observe.Field{Key: "error", Value: err.Error()})
		return result, err
	}
	if r.policy.Write {
		r.write(ctx, key, result, logger)
	}
	return result, nil
}

// write stores result under key. Failures are reported, never returned.
func (r *Runner) write(ctx context.Context, key digest.Digest, result process.Result, logger observe.Logger) {
	if err := ctx.Err(); err != nil {
		logger.Debug(ctx, "request cancelled; skipping cache write")
		return
	}

	entry, err := r.codec.Encode(ctx, result)
	if err != nil {
		r.metrics.RecordStoreError(ctx, "encode")
		logger.Warn(ctx, "encoding cache entry failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}
	if err := r.store.Put(ctx, key, entry); err != nil {
		r.metrics.RecordStoreError(ctx, "put")
		logger.Warn(ctx, "cache write failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}
	logger.Debug(ctx, "cached result", observe.Field{Key: "entry_bytes", Value: len(entry)})
}

// executeShared collapses concurrent executions of the same fingerprint.
// The first caller's ctx drives the execution; later callers wait on
// their own ctx and return its error unwrapped when it ends first.
func (r *Runner) executeShared(ctx context.Context, key digest.Digest, req process.Request, logger observe.Logger) (process.Result, error) {
	ch := r.group.DoChan(key.String(), func() (any, error) {
		return r.execute(ctx, key, req, logger)
	})

	select {
	case <-ctx.Done():
		return process.Result{}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(process.Result)
		if !res.Shared {
			return result, res.Err
		}
		// The leader gave up; this caller is still willing to wait.
		if res.Err != nil && isCancellation(res.Err) && ctx.Err() == nil {
			logger.Debug(ctx, "shared execution was cancelled; executing")
			return r.execute(ctx, key, req, logger)
		}
		return result.Clone(), res.Err
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Ensure Runner implements process.Executor
var _ process.Executor = (*Runner)(nil)
