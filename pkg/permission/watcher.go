package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultStabilityThreshold debounces bursts of writes to the grants file
const DefaultStabilityThreshold = 100 * time.Millisecond

// Watcher reloads a Manager when its grants file changes on disk, so that
// `fieldrec permission grant` run from another terminal releases parked
// requests in a running server.
type Watcher struct {
	manager            *Manager
	watcher            *fsnotify.Watcher
	stabilityThreshold time.Duration
	logger             zerolog.Logger

	done     chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
}

// NewWatcher creates a watcher for m's grants file
func NewWatcher(m *Manager, stabilityThreshold time.Duration, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if stabilityThreshold <= 0 {
		stabilityThreshold = DefaultStabilityThreshold
	}

	return &Watcher{
		manager:            m,
		watcher:            fw,
		stabilityThreshold: stabilityThreshold,
		logger:             logger.With().Str("component", "permission-watcher").Logger(),
		done:               make(chan struct{}),
	}, nil
}

// Start watches the grants file's directory. The directory is watched
// rather than the file because saves replace the file by rename.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.manager.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create grants directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.manager.Path()).Msg("Permission watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	target := filepath.Clean(w.manager.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.manager.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to reload grants")
		}
	})
}
