package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check timed out.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrProbeMismatch indicates a store returned different bytes than were written.
	ErrProbeMismatch = errors.New("health: probe read back different bytes")

	// ErrProbeMissing indicates a store lost a value it just accepted.
	ErrProbeMissing = errors.New("health: probe not found after write")
)
