// Package runner implements a cache-aside process executor.
//
// A Runner wraps an underlying process.Executor and a store.Store and
// implements process.Executor itself, so it can replace the executor
// anywhere. Each Run walks one request through:
//
//	Start -> Lookup -> Hit | Miss -> Execute -> Store -> Done
//
// The cache never changes what a request produces, only how fast:
//
//   - Malformed requests fail before the store is touched.
//   - Store read errors and undecodable entries are treated as misses.
//   - Executor errors are returned unchanged and never cached. A non-zero
//     exit code is a result, not an error, and is cached.
//   - Store write errors are logged; the result is still returned.
//
// With WithSingleFlight, concurrent misses for the same fingerprint share a
// single execution.
package runner
