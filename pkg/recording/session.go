package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/harun/fieldrec/internal/metrics"
	"github.com/rs/zerolog"
)

// Config holds the session collaborators and capture settings
type Config struct {
	Permissions PermissionGate
	Probe       DeviceProbe
	Factory     CaptureFactory
	Listener    Listener
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger

	SampleRate int
	Bitrate    int
	Codec      string

	// TickInterval is the duration event cadence while recording
	TickInterval time.Duration
	// JoinTimeout bounds the wait for the notifier on Stop
	JoinTimeout time.Duration

	// Clock is injectable for testing; defaults to time.Now.
	Clock func() time.Time
}

// Session is the recording state machine. It owns the capture handle, the
// output path and the duration clock.
type Session struct {
	permissions PermissionGate
	probe       DeviceProbe
	factory     CaptureFactory
	listener    Listener
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	sampleRate   int
	bitrate      int
	codec        string
	tickInterval time.Duration
	joinTimeout  time.Duration

	// mu guards every field below
	mu       sync.Mutex
	state    State
	path     string
	handle   Capture
	clock    durationClock
	notifier *durationNotifier

	// emitSlot serializes listener calls; a send takes it
	emitSlot chan struct{}

	// backlog holds events queued behind a busy listener, in order
	backlogMu sync.Mutex
	backlog   []DurationEvent
	draining  bool
}

// NewSession creates an idle session
func NewSession(cfg Config) (*Session, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("capture factory is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultBitrate
	}
	if cfg.Codec == "" {
		cfg.Codec = DefaultCodec
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Listener == nil {
		cfg.Listener = ListenerFunc(func(string, DurationEvent) {})
	}

	return &Session{
		permissions:  cfg.Permissions,
		probe:        cfg.Probe,
		factory:      cfg.Factory,
		listener:     cfg.Listener,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "recording").Logger(),
		sampleRate:   cfg.SampleRate,
		bitrate:      cfg.Bitrate,
		codec:        cfg.Codec,
		tickInterval: cfg.TickInterval,
		joinTimeout:  cfg.JoinTimeout,
		clock:        newDurationClock(cfg.Clock),
		emitSlot:     make(chan struct{}, 1),
	}, nil
}

// Start begins a recording into opts.Path. The returned channel is buffered
// and receives exactly one result.
//
// If the recording capability is not granted, the request is parked and
// re-issued once the permission gate resolves it; a denial yields
// ErrMissingPermission. Start never blocks on the grant.
func (s *Session) Start(opts StartOptions) <-chan error {
	result := make(chan error, 1)

	if s.permissions != nil && !s.permissions.IsGranted(CapabilityRecording) {
		s.logger.Info().Str("path", opts.Path).Msg("Recording permission not granted, parking start request")

		s.permissions.RequestGrant(CapabilityRecording, func(granted bool) {
			if !granted || !s.permissions.IsGranted(CapabilityRecording) {
				s.logger.Warn().Msg("Recording permission denied")
				s.metrics.RecordStart(ErrMissingPermission.Error())
				result <- ErrMissingPermission
				return
			}
			s.logger.Info().Msg("Recording permission granted, resuming start request")
			result <- s.start(opts)
		})
		return result
	}

	result <- s.start(opts)
	return result
}

// StartWait calls Start and waits for its result. Cancelling ctx stops the
// wait only: a parked request still runs if the grant arrives later.
func (s *Session) StartWait(ctx context.Context, opts StartOptions) error {
	select {
	case err := <-s.Start(opts):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) start(opts StartOptions) error {
	err := s.startLocked(opts)
	if err != nil {
		s.metrics.RecordStart(Code(err))
		return err
	}
	s.metrics.RecordStart("ok")
	return nil
}

func (s *Session) startLocked(opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && !opts.CancelLast {
		return ErrAlreadyRecording
	}

	if opts.Path == "" {
		return ErrInvalidPath
	}
	path := StripFileScheme(opts.Path)

	if s.state != StateIdle {
		s.discardLocked()
	}

	if s.probe != nil && !s.probe.IsCaptureDeviceFree() {
		return ErrMicrophoneUnavailable
	}

	handle, err := s.factory.Open(CaptureSpec{
		Path:       path,
		SampleRate: s.sampleRate,
		Bitrate:    s.bitrate,
		Codec:      s.codec,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to open capture")
		if errors.Is(err, ErrMicrophoneUnavailable) {
			return ErrMicrophoneUnavailable
		}
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.handle = handle
	s.path = path
	s.state = StateRecording
	s.clock.reset()
	s.clock.resume()

	if s.notifier == nil || s.notifier.exited() {
		n := newDurationNotifier(s.tickInterval)
		s.notifier = n
		go n.run(func() bool { return s.tick(n) })
	}

	s.logger.Info().
		Str("path", path).
		Int("sample_rate", s.sampleRate).
		Int("bitrate", s.bitrate).
		Str("codec", s.codec).
		Msg("Recording started")

	return nil
}

// discardLocked force-stops the active session and deletes its output
func (s *Session) discardLocked() {
	path := s.path
	s.releaseCaptureLocked()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete discarded recording")
	}

	s.path = ""
	s.clock.reset()
	s.state = StateIdle

	s.logger.Info().Str("path", path).Msg("Previous recording discarded")
}

// releaseCaptureLocked flushes active time, then stops and releases the
// handle. Time spent finalizing the capture is not recorded time.
func (s *Session) releaseCaptureLocked() {
	if s.state == StateRecording {
		s.clock.pause()
	}

	if err := s.handle.Stop(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Capture stop failed")
	}

	if err := s.handle.Release(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Capture release failed")
	}
	s.handle = nil
}

// Pause suspends capture. Pausing a paused session is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()

	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return ErrNotRecording
	case StatePaused:
		s.mu.Unlock()
		return nil
	}

	if err := s.handle.Pause(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to pause capture: %w", err)
	}

	s.clock.pause()
	s.state = StatePaused
	elapsed := s.clock.elapsed()
	s.mu.Unlock()

	s.logger.Debug().Dur("elapsed", elapsed).Msg("Recording paused")
	s.emit(elapsed, s.joinTimeout)
	return nil
}

// Resume continues a paused capture. Resuming a recording session is a no-op.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return ErrNotRecording
	case StateRecording:
		return nil
	}

	if err := s.handle.Resume(); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}

	s.clock.resume()
	s.state = StateRecording

	s.logger.Debug().Dur("elapsed", s.clock.elapsed()).Msg("Recording resumed")
	return nil
}

// Stop finishes the recording and returns its path and active duration
func (s *Session) Stop() (StopResult, error) {
	s.mu.Lock()

	if s.state == StateIdle {
		s.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}

	s.releaseCaptureLocked()

	result := StopResult{
		Path:     s.path,
		Duration: s.clock.total.Seconds(),
	}

	s.path = ""
	s.clock.reset()
	s.state = StateIdle

	n := s.notifier
	s.notifier = nil
	s.mu.Unlock()

	deadline := time.Now().Add(s.joinTimeout)
	if n != nil {
		n.cancel()
		if !n.wait(s.joinTimeout) {
			s.logger.Warn().
				Dur("timeout", s.joinTimeout).
				Msg("Duration notifier did not exit in time, detaching")
		}
	}

	s.emit(0, time.Until(deadline))
	s.metrics.RecordStop(result.Duration)

	s.logger.Info().
		Str("path", result.Path).
		Float64("duration", result.Duration).
		Msg("Recording stopped")

	return result, nil
}

// Duration returns the active recording time in seconds
func (s *Session) Duration() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return 0, ErrNotRecording
	}
	return s.clock.elapsed().Seconds(), nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the current output path, empty when idle
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close stops an active recording, if any
func (s *Session) Close() error {
	if s.State() == StateIdle {
		return nil
	}
	_, err := s.Stop()
	return err
}

// tick is one notifier iteration. It returns false once n should exit:
// the handle is gone or n is no longer the session's notifier.
func (s *Session) tick(n *durationNotifier) bool {
	s.emitSlot <- struct{}{}
	defer func() { <-s.emitSlot }()

	s.mu.Lock()
	if s.handle == nil || s.notifier != n {
		s.mu.Unlock()
		return false
	}
	recording := s.state == StateRecording
	elapsed := s.clock.elapsed()
	s.mu.Unlock()

	if recording {
		s.listener.Notify(EventRecordDuration, DurationEvent{Duration: elapsed.Seconds()})
	}
	return true
}

// emit delivers one duration event. If the listener is still busy after
// timeout, the event is queued and delivered in order from a goroutine so
// the caller returns.
func (s *Session) emit(elapsed time.Duration, timeout time.Duration) {
	ev := DurationEvent{Duration: elapsed.Seconds()}

	s.backlogMu.Lock()
	if s.draining {
		s.backlog = append(s.backlog, ev)
		s.backlogMu.Unlock()
		return
	}
	s.backlogMu.Unlock()

	if s.acquireEmit(timeout) {
		s.listener.Notify(EventRecordDuration, ev)
		<-s.emitSlot
		return
	}

	s.logger.Warn().
		Float64("duration", ev.Duration).
		Msg("Listener busy, delivering duration event in the background")

	s.backlogMu.Lock()
	s.backlog = append(s.backlog, ev)
	if !s.draining {
		s.draining = true
		go s.drainBacklog()
	}
	s.backlogMu.Unlock()
}

func (s *Session) acquireEmit(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case s.emitSlot <- struct{}{}:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.emitSlot <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Session) drainBacklog() {
	for {
		s.backlogMu.Lock()
		if len(s.backlog) == 0 {
			s.draining = false
			s.backlogMu.Unlock()
			return
		}
		ev := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.backlogMu.Unlock()

		s.emitSlot <- struct{}{}
		s.listener.Notify(EventRecordDuration, ev)
		<-s.emitSlot
	}
}
