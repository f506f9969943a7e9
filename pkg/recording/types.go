package recording

import "strings"

// State is the session lifecycle state
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Capability names a host capability guarded by the permission gate
type Capability string

// CapabilityRecording allows microphone capture and writing the output file
const CapabilityRecording Capability = "recording"

// EventRecordDuration is pushed to the listener with the current duration
const EventRecordDuration = "recordDuration"

// Audio capture defaults: AAC at 32 kHz / 32 kbps.
const (
	DefaultSampleRate = 32000
	DefaultBitrate    = 32000
	DefaultCodec      = "aac"
)

// PermissionGate checks and requests host capabilities
type PermissionGate interface {
	// IsGranted reports whether the capability is currently granted
	IsGranted(c Capability) bool

	// RequestGrant asks for the capability. onResult is called exactly once,
	// possibly from another goroutine, once the request is resolved.
	RequestGrant(c Capability, onResult func(granted bool))
}

// DeviceProbe reports whether the capture device can be acquired
type DeviceProbe interface {
	IsCaptureDeviceFree() bool
}

// CaptureSpec describes the capture handle to open
type CaptureSpec struct {
	Path       string
	SampleRate int
	Bitrate    int
	Codec      string
}

// Capture is an open capture handle writing into one file
type Capture interface {
	Pause() error
	Resume() error
	Stop() error
	Release() error
}

// CaptureFactory opens capture handles
type CaptureFactory interface {
	Open(spec CaptureSpec) (Capture, error)
}

// DurationEvent is the payload of EventRecordDuration
type DurationEvent struct {
	Duration float64 `json:"duration"`
}

// Listener receives duration events. Notify must not call back into the session.
type Listener interface {
	Notify(event string, payload DurationEvent)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(event string, payload DurationEvent)

// Notify calls f(event, payload)
func (f ListenerFunc) Notify(event string, payload DurationEvent) {
	f(event, payload)
}

// StartOptions holds the start request parameters
type StartOptions struct {
	Path       string `json:"path"`
	CancelLast bool   `json:"cancelLast"`
}

// StopResult is returned by Stop
type StopResult struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

const fileScheme = "file://"

// StripFileScheme removes a leading file:// from a path
func StripFileScheme(path string) string {
	return strings.TrimPrefix(path, fileScheme)
}
