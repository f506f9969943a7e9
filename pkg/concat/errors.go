package concat

import (
	"errors"
	"fmt"
)

// Failure kinds. Their messages are the wire reasons; the indexed kinds get
// the offending segment index appended by Error.
var (
	// ErrInvalidOptions is returned for missing or malformed input
	ErrInvalidOptions = errors.New("invalid_options")

	// ErrSegmentNotFound is returned when a segment source file does not exist
	ErrSegmentNotFound = errors.New("segment_file_not_found")

	// ErrSegmentFailed is returned when trimming a segment fails
	ErrSegmentFailed = errors.New("segment_file_failed")

	// ErrConcatFailed is returned when joining the trimmed segments fails
	ErrConcatFailed = errors.New("concat_failed")

	// ErrFinalEncodingFailed is returned when the final re-encode fails
	ErrFinalEncodingFailed = errors.New("final_encoding_failed")
)

// Error is a pipeline failure. Index is the offending segment for
// ErrSegmentNotFound and ErrSegmentFailed and -1 otherwise.
type Error struct {
	Kind  error
	Index int
	// Err is the underlying cause, if any
	Err error
}

func (e *Error) indexed() bool {
	return e.Kind == ErrSegmentNotFound || e.Kind == ErrSegmentFailed
}

// Error returns the wire reason, e.g. "segment_file_not_found_1"
func (e *Error) Error() string {
	if e.indexed() {
		return fmt.Sprintf("%s_%d", e.Kind.Error(), e.Index)
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, index int, cause error) *Error {
	return &Error{Kind: kind, Index: index, Err: cause}
}

// Reason returns the wire reason for err. Errors that did not come from the
// pipeline pass through with their own message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}
