package codec

import (
	"errors"
	"fmt"
)

// ErrDecode matches every *DecodeError via errors.Is.
var ErrDecode = errors.New("codec: entry cannot be decoded")

// ErrEncode is returned when a result cannot be encoded, which only
// happens when a large stream cannot be written to the blob store.
var ErrEncode = errors.New("codec: result cannot be encoded")

// DecodeError reports why a stored entry is unusable.
type DecodeError struct {
	// Field is the envelope field being decoded, if known.
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "codec: decode"
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(field string, err error, format string, args ...any) *DecodeError {
	return &DecodeError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
