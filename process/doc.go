// Package process defines execution requests, execution results, and the
// Executor capability shared by every layer that runs processes.
//
// A caching layer, a local executor, and an instrumented executor all
// implement the same Executor interface, so any of them can stand in for
// another.
//
// # Ownership
//
// A Request is owned by the caller and must not be mutated by an Executor.
// A Result is owned by whichever layer returns it; layers that only need to
// serialize a Result borrow it.
package process
