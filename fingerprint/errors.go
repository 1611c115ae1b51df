package fingerprint

import (
	"errors"
	"fmt"
)

// ErrMalformedRequest matches every MalformedRequestError via errors.Is.
var ErrMalformedRequest = errors.New("fingerprint: malformed request")

// MalformedRequestError reports a request that cannot be canonicalized.
// It indicates a caller bug and is not retried.
type MalformedRequestError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRequestError) Error() string {
	msg := fmt.Sprintf("fingerprint: malformed request: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrMalformedRequest.
func (e *MalformedRequestError) Is(target error) bool {
	return target == ErrMalformedRequest
}

func (e *MalformedRequestError) Unwrap() error {
	return e.Err
}

func malformed(field, format string, args ...any) *MalformedRequestError {
	return &MalformedRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
