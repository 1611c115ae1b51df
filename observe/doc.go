// Package observe provides logging, metrics and tracing for cached process
// execution.
//
// It is a pure instrumentation library. The runner reports lookup outcomes
// and store failures through Metrics; Middleware instruments any
// process.Executor with a span, execution metrics and a structured log line.
package observe
