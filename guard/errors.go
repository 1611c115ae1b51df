package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/proccache/store"
)

// Sentinel errors for guarded store calls.
var (
	// ErrCircuitOpen is returned while the breaker is rejecting calls.
	ErrCircuitOpen = errors.New("guard: circuit breaker is open")

	// ErrBulkheadFull is returned when no concurrency slot is available.
	ErrBulkheadFull = errors.New("guard: bulkhead at capacity")

	// ErrTimeout is returned when a store call exceeds its deadline.
	ErrTimeout = errors.New("guard: store call timed out")
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

// IsTransient reports whether err is worth retrying or counting against
// the breaker. Invalid keys and caller cancellation are not store faults.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrBulkheadFull):
		return false
	}
	return true
}
