package recording

import "errors"

// Error messages double as the wire codes returned to callers.
var (
	// ErrAlreadyRecording is returned by Start while a session is active
	ErrAlreadyRecording = errors.New("ALREADY_RECORDING")

	// ErrMicrophoneUnavailable is returned when the capture device is busy
	ErrMicrophoneUnavailable = errors.New("MICROPHONE_NOT_AVAILABLE")

	// ErrInvalidPath is returned when Start gets no output path
	ErrInvalidPath = errors.New("INVALID_PATH")

	// ErrMissingPermission is returned when the recording capability is denied
	ErrMissingPermission = errors.New("MISSING_PERMISSION")

	// ErrNotRecording is returned by operations that need an active session
	ErrNotRecording = errors.New("NOT_RECORDING")
)

var codedErrors = []error{
	ErrAlreadyRecording,
	ErrMicrophoneUnavailable,
	ErrInvalidPath,
	ErrMissingPermission,
	ErrNotRecording,
}

// Code returns the wire code for err. Capture I/O errors have no code and
// pass through with the device's own message.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, coded := range codedErrors {
		if errors.Is(err, coded) {
			return coded.Error()
		}
	}
	return err.Error()
}
