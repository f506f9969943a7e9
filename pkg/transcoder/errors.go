package transcoder

import "errors"

var (
	// ErrBinaryNotFound is returned when the transcoder binary cannot be resolved
	ErrBinaryNotFound = errors.New("transcoder binary not found")

	// ErrInvocationFailed is returned when the transcoder exits non-zero
	ErrInvocationFailed = errors.New("transcoder invocation failed")

	// ErrInvocationTimeout is returned when an invocation exceeds the configured timeout
	ErrInvocationTimeout = errors.New("transcoder invocation timed out")

	// ErrInvalidTimeout is returned when the timeout is negative
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")
)
