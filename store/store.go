package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/proccache/digest"
)

// Sentinel errors for store operations.
var (
	ErrNilStore         = errors.New("store: store is nil")
	ErrInvalidKey       = errors.New("store: key is invalid")
	ErrStoreUnavailable = errors.New("store: store is unavailable")
)

// Store is a content-addressed key-value store.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use. A
//     partially written value must never be observable by Get.
//   - Context: methods must honor cancellation; a cancelled Put must not
//     leave a value behind.
//   - Errors: Get returns (nil, false, nil) on a miss. Put is idempotent:
//     writing the same key twice with the same bytes succeeds.
type Store interface {
	// Get loads the value stored under key.
	Get(ctx context.Context, key digest.Digest) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key digest.Digest, value []byte) error
}

// ValidateKey checks that key can address a stored value.
func ValidateKey(key digest.Digest) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}
