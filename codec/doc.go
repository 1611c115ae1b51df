// Package codec converts execution results to and from the bytes persisted
// as cache entries.
//
// Entries are a versioned protobuf-wire envelope. Small stdout and stderr
// streams are inlined; larger ones are written to a content-addressed blob
// store and referenced by digest, the same way output files are stored.
//
// Decode is strict: truncated bytes, unknown versions, missing required
// fields and dangling or mismatched blob references all yield a
// *DecodeError. Callers treat any DecodeError as "no usable entry".
package codec
