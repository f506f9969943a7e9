package concat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/fieldrec/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper defaults
const (
	DefaultSweepSchedule = "@every 30m"
	DefaultSweepMaxAge   = time.Hour
)

// SweeperConfig configures a Sweeper
type SweeperConfig struct {
	ScratchDir string
	// Schedule is a cron expression or descriptor such as "@every 30m"
	Schedule string
	// MaxAge is how old a scratch file must be before it is removed
	MaxAge  time.Duration
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// Clock is injectable for testing; defaults to time.Now
	Clock func() time.Time
}

// Sweeper periodically removes scratch files left behind by runs that never
// reached their cleanup, such as a process killed mid-transcode. Files
// younger than MaxAge are kept so that in-flight runs are not disturbed.
type Sweeper struct {
	scratchDir string
	schedule   string
	maxAge     time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper and validates its schedule
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("scratch directory is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSweepMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		scratchDir: cfg.ScratchDir,
		schedule:   cfg.Schedule,
		maxAge:     cfg.MaxAge,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "scratch-sweeper").Logger(),
		now:        cfg.Clock,
		cron:       cron.New(cron.WithParser(parser)),
	}, nil
}

// Start schedules the sweep and runs one immediately
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(); err != nil {
			s.logger.Warn().Err(err).Msg("Scratch sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	if _, err := s.Sweep(); err != nil {
		s.logger.Warn().Err(err).Msg("Initial scratch sweep failed")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("dir", s.scratchDir).
		Str("schedule", s.schedule).
		Dur("max_age", s.maxAge).
		Msg("Scratch sweeper started")
	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info().Msg("Scratch sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes stale scratch files and returns how many were removed
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch directory: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) || filepath.Ext(entry.Name()) != tempExt {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.scratchDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove stale scratch file")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.metrics.RecordTempFilesRemoved(removed)
		s.logger.Info().Int("removed", removed).Msg("Stale scratch files removed")
	}
	return removed, nil
}
