package domain

import "errors"

// Error taxonomy shared by collaborators. Implementations wrap these with context
// (fmt.Errorf("...: %w", ErrNotFound)) and callers test with errors.Is.
var (
	// ErrValidation marks input rejected before any backend call (e.g. a too-short query).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup that completed but matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable marks network failures, timeouts and non-2xx responses.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrDecode marks a malformed stored or received field.
	ErrDecode = errors.New("decode failed")
)
