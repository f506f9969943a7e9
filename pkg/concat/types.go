package concat

import "context"

// Segment is one recorded file with optional trim bounds in seconds.
// A non-positive bound leaves that side unbounded.
type Segment struct {
	Path string  `json:"path"`
	From float64 `json:"from,omitempty"`
	To   float64 `json:"to,omitempty"`
}

// HasFrom reports whether the start side is trimmed
func (s Segment) HasFrom() bool {
	return s.From > 0
}

// HasTo reports whether the end side is trimmed
func (s Segment) HasTo() bool {
	return s.To > 0
}

// Request is a full concatenation request as received from callers
type Request struct {
	Segments []Segment `json:"segments"`
	Path     string    `json:"path"`
}

// Transcoder runs one blocking transcoder invocation
type Transcoder interface {
	Invoke(ctx context.Context, args []string) error
}

// TranscoderFunc adapts a function to Transcoder
type TranscoderFunc func(ctx context.Context, args []string) error

// Invoke calls f(ctx, args)
func (f TranscoderFunc) Invoke(ctx context.Context, args []string) error {
	return f(ctx, args)
}
