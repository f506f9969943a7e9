// Package capture records microphone input through an ffmpeg subprocess.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
)

const (
	// DefaultBinary is resolved through PATH
	DefaultBinary = "ffmpeg"

	// DefaultStopTimeout bounds how long Stop waits for ffmpeg to finalize
	DefaultStopTimeout = 5 * time.Second
)

// FactoryConfig configures an FFmpegFactory
type FactoryConfig struct {
	Binary string
	// InputFormat is the ffmpeg input device format, e.g. pulse, alsa, avfoundation
	InputFormat string
	// Device is the input device name, e.g. default or :0
	Device      string
	Lock        *DeviceLock
	StopTimeout time.Duration
	Logger      zerolog.Logger
}

// FFmpegFactory opens captures by spawning ffmpeg
type FFmpegFactory struct {
	binary      string
	inputFormat string
	device      string
	lock        *DeviceLock
	stopTimeout time.Duration
	logger      zerolog.Logger
}

// NewFFmpegFactory creates a factory
func NewFFmpegFactory(cfg FactoryConfig) (*FFmpegFactory, error) {
	if cfg.InputFormat == "" {
		return nil, fmt.Errorf("input format is required")
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("input device is required")
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	return &FFmpegFactory{
		binary:      cfg.Binary,
		inputFormat: cfg.InputFormat,
		device:      cfg.Device,
		lock:        cfg.Lock,
		stopTimeout: cfg.StopTimeout,
		logger:      cfg.Logger.With().Str("component", "capture").Logger(),
	}, nil
}

// Args returns the ffmpeg argument list for spec
func (f *FFmpegFactory) Args(spec recording.CaptureSpec) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-f", f.inputFormat,
		"-i", f.device,
		"-ac", "1",
		"-ar", strconv.Itoa(spec.SampleRate),
		"-c:a", spec.Codec,
		"-b:a", strconv.Itoa(spec.Bitrate),
		spec.Path,
	}
}

// Open implements recording.CaptureFactory
func (f *FFmpegFactory) Open(spec recording.CaptureSpec) (recording.Capture, error) {
	if f.lock != nil {
		if err := f.lock.Acquire(); err != nil {
			if errors.Is(err, ErrDeviceBusy) {
				return nil, fmt.Errorf("%w: %w", recording.ErrMicrophoneUnavailable, err)
			}
			return nil, err
		}
	}

	cmd := exec.Command(f.binary, f.Args(spec)...)
	c := &ffmpegCapture{
		cmd:         cmd,
		path:        spec.Path,
		lock:        f.lock,
		stopTimeout: f.stopTimeout,
		logger:      f.logger.With().Str("path", spec.Path).Logger(),
		done:        make(chan struct{}),
	}
	cmd.Stderr = &c.stderr

	if err := cmd.Start(); err != nil {
		f.releaseLock()
		return nil, fmt.Errorf("failed to start %s: %w", f.binary, err)
	}

	go c.wait()

	c.logger.Debug().Int("pid", cmd.Process.Pid).Msg("Capture process started")
	return c, nil
}

func (f *FFmpegFactory) releaseLock() {
	if f.lock == nil {
		return
	}
	if err := f.lock.Release(); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to release device lock")
	}
}

// ffmpegCapture is one running ffmpeg process
type ffmpegCapture struct {
	cmd         *exec.Cmd
	path        string
	lock        *DeviceLock
	stopTimeout time.Duration
	logger      zerolog.Logger

	stderr  bytes.Buffer
	done    chan struct{}
	waitErr error

	mu       sync.Mutex
	paused   bool
	stopped  bool
	released bool
}

func (c *ffmpegCapture) wait() {
	c.waitErr = c.cmd.Wait()
	close(c.done)
}

func (c *ffmpegCapture) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// exitError describes an unexpected exit. Only valid after done is closed.
func (c *ffmpegCapture) exitError() error {
	msg := strings.TrimSpace(c.stderr.String())
	if c.waitErr == nil {
		return fmt.Errorf("capture process exited early: %s", msg)
	}
	if msg == "" {
		return fmt.Errorf("capture process exited: %w", c.waitErr)
	}
	return fmt.Errorf("capture process exited: %w: %s", c.waitErr, msg)
}

func (c *ffmpegCapture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.exited() {
		return c.exitError()
	}
	if c.paused {
		return nil
	}
	if err := suspend(c.cmd.Process); err != nil {
		return fmt.Errorf("failed to suspend capture: %w", err)
	}
	c.paused = true
	return nil
}

func (c *ffmpegCapture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.exited() {
		return c.exitError()
	}
	if !c.paused {
		return nil
	}
	if err := resume(c.cmd.Process); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}
	c.paused = false
	return nil
}

// Stop asks ffmpeg to finalize the output and waits for it to exit
func (c *ffmpegCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	if c.exited() {
		return c.exitError()
	}

	if c.paused {
		if err := resume(c.cmd.Process); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to continue suspended capture before stop")
		}
		c.paused = false
	}

	if err := interrupt(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Warn().Err(err).Msg("Failed to interrupt capture process")
	}

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		// ffmpeg exits non-zero when interrupted; the output is still finalized
		c.logger.Debug().Msg("Capture process finished")
		return nil
	case <-timer.C:
		_ = c.cmd.Process.Kill()
		<-c.done
		return fmt.Errorf("capture process did not finish within %s", c.stopTimeout)
	}
}

// Release kills the process if it is still running and frees the device lock
func (c *ffmpegCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true
	c.stopped = true

	if !c.exited() {
		if c.paused {
			_ = resume(c.cmd.Process)
		}
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.logger.Warn().Err(err).Msg("Failed to kill capture process")
		}
		<-c.done
	}

	if c.lock != nil {
		return c.lock.Release()
	}
	return nil
}
