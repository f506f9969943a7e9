// Package transcoder runs the external ffmpeg binary as a blocking call.
package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBinary is resolved through PATH
const DefaultBinary = "ffmpeg"

// DefaultGlobalArgs precede every invocation. -y lets the final encode
// overwrite a destination that reappeared after it was removed.
var DefaultGlobalArgs = []string{"-y", "-hide_banner", "-loglevel", "error"}

// maxStderrTail bounds the stderr excerpt carried in errors
const maxStderrTail = 512

// Config configures the ffmpeg runner
type Config struct {
	// Binary is a command name or absolute path
	Binary string
	// GlobalArgs are prepended to every argument list; nil means DefaultGlobalArgs
	GlobalArgs []string
	// Timeout bounds one invocation; 0 disables it
	Timeout time.Duration
}

// FFmpeg invokes the transcoder binary. It is safe for concurrent use.
type FFmpeg struct {
	binary     string
	globalArgs []string
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewFFmpeg resolves the binary and returns a runner
func NewFFmpeg(cfg Config, logger zerolog.Logger) (*FFmpeg, error) {
	if cfg.Timeout < 0 {
		return nil, ErrInvalidTimeout
	}

	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, binary, err)
	}

	globalArgs := cfg.GlobalArgs
	if globalArgs == nil {
		globalArgs = DefaultGlobalArgs
	}

	return &FFmpeg{
		binary:     resolved,
		globalArgs: append([]string(nil), globalArgs...),
		timeout:    cfg.Timeout,
		logger:     logger.With().Str("component", "transcoder").Logger(),
	}, nil
}

// Binary returns the resolved binary path
func (f *FFmpeg) Binary() string {
	return f.binary
}

// Invoke runs the transcoder with args and blocks until it exits.
// A non-zero exit yields an error wrapping ErrInvocationFailed.
func (f *FFmpeg) Invoke(ctx context.Context, args []string) error {
	execCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	full := make([]string, 0, len(f.globalArgs)+len(args))
	full = append(full, f.globalArgs...)
	full = append(full, args...)

	cmd := exec.CommandContext(execCtx, f.binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	// Check for timeout first
	if f.timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		f.logger.Warn().
			Strs("args", args).
			Dur("timeout", f.timeout).
			Msg("Transcoder invocation timed out")
		return fmt.Errorf("%w after %s", ErrInvocationTimeout, f.timeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("%w: %v", ErrInvocationFailed, err)
		}
	}

	f.logger.Debug().
		Strs("args", args).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("Transcoder invoked")

	if exitCode != 0 {
		return fmt.Errorf("%w: exit code %d: %s", ErrInvocationFailed, exitCode, stderrTail(stderr.String()))
	}
	return nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		s = "..." + s[len(s)-maxStderrTail:]
	}
	return s
}
