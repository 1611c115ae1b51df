// Package digest identifies blobs and execution requests by content.
//
// A Digest is a SHA-256 hash plus the byte length of the hashed content,
// the same pair the remote execution protocol uses to address blobs. It is
// the key type for every store in this module.
package digest
