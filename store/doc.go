// Package store provides content-addressed key-value storage for cache
// entries and blobs.
//
// A Store maps a digest.Digest to an opaque byte blob. Two implementations
// are provided: MemoryStore for tests and single-process use, and FileStore,
// which persists blobs under a directory tree and never exposes a partially
// written blob.
//
// Eviction and expiry are not handled here.
package store
