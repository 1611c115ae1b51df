// Package guard wraps a store.Store with failure isolation.
//
// A cache store is an optimization: when it is slow or down, callers should
// lose the speedup, not stall. Guarded stores bound each call with a
// timeout, retry transient failures with backoff, stop calling a failing
// store via a circuit breaker, and cap concurrent calls with a bulkhead.
//
// Layers apply outside in:
//
//	bulkhead -> breaker -> retry -> timeout -> store
//
// Errors produced by the guard itself (open circuit, full bulkhead,
// timeout) match store.ErrStoreUnavailable as well as their own sentinel.
//
//	st := guard.New(fileStore,
//	    guard.WithTimeout(2*time.Second),
//	    guard.WithRetry(guard.NewRetry(guard.RetryConfig{MaxAttempts: 3})),
//	    guard.WithBreaker(guard.NewBreaker(guard.BreakerConfig{Threshold: 5})),
//	)
package guard
