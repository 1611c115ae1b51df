// Package health reports whether the cache's collaborators are usable.
//
// A Checker reports Healthy, Degraded or Unhealthy. StoreChecker probes a
// store with a write and read-back; BreakerChecker reflects a guard
// breaker. The Aggregator runs checkers together and renders a Report,
// which the HTTP handlers and the CLI expose.
//
// Because the cache fails open, an unusable store degrades performance
// rather than correctness:
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker("store", st, 0))
//	agg.Register("breaker", health.NewBreakerChecker("breaker", guarded.Breaker()))
//	report := agg.Report(ctx)
package health
