// Package fingerprint turns execution requests into cache keys.
//
// A request is first normalized into the Command and Action messages of the
// remote execution API (arguments in order, environment sorted by name,
// outputs sorted, platform properties sorted) and the Action is hashed. Two
// requests that a remote execution service would treat as the same unit of
// work therefore share a fingerprint, and requests that differ only in map
// iteration order or in their Description do too.
//
// Platform properties participate in the fingerprint. A Fingerprinter can
// add default properties and a salt so that caches shared between machines
// that must not exchange results stay apart.
package fingerprint
