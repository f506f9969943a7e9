// Package permission grants host capabilities such as microphone recording.
// Grants persist in a JSON file; requests for a capability that is not
// granted are parked until the user grants or denies it.
package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
)

// Prompter asks the user to grant a capability
type Prompter interface {
	Prompt(ctx context.Context, c recording.Capability) (bool, error)
}

// ManagerConfig configures a Manager
type ManagerConfig struct {
	// Path is the grants file
	Path string
	// Prompter is asked once per batch of parked requests; nil leaves
	// requests parked until Grant, Deny or Reload resolves them.
	Prompter Prompter
	Logger   zerolog.Logger
}

// Manager implements recording.PermissionGate
type Manager struct {
	path     string
	prompter Prompter
	logger   zerolog.Logger

	mu        sync.Mutex
	grants    map[recording.Capability]bool
	pending   map[recording.Capability][]func(bool)
	prompting map[recording.Capability]bool
}

// NewManager loads the grants file and returns a manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("grants file path is required")
	}

	grants, err := loadGrants(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &Manager{
		path:      cfg.Path,
		prompter:  cfg.Prompter,
		logger:    cfg.Logger.With().Str("component", "permission").Logger(),
		grants:    grants,
		pending:   make(map[recording.Capability][]func(bool)),
		prompting: make(map[recording.Capability]bool),
	}, nil
}

// Path returns the grants file path
func (m *Manager) Path() string {
	return m.path
}

// IsGranted implements recording.PermissionGate
func (m *Manager) IsGranted(c recording.Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[c]
}

// RequestGrant implements recording.PermissionGate. onResult runs on the
// goroutine that resolves the request.
func (m *Manager) RequestGrant(c recording.Capability, onResult func(bool)) {
	m.mu.Lock()
	if m.grants[c] {
		m.mu.Unlock()
		onResult(true)
		return
	}

	m.pending[c] = append(m.pending[c], onResult)
	startPrompt := m.prompter != nil && !m.prompting[c]
	if startPrompt {
		m.prompting[c] = true
	}
	parked := len(m.pending[c])
	m.mu.Unlock()

	m.logger.Info().
		Str("capability", string(c)).
		Int("parked", parked).
		Msg("Permission requested")

	if startPrompt {
		go m.prompt(c)
	}
}

func (m *Manager) prompt(c recording.Capability) {
	granted, err := m.prompter.Prompt(context.Background(), c)

	m.mu.Lock()
	m.prompting[c] = false
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Str("capability", string(c)).Msg("Permission prompt failed")
		granted = false
	}

	if granted {
		if err := m.Grant(c); err != nil {
			m.logger.Error().Err(err).Str("capability", string(c)).Msg("Failed to persist grant")
		}
		return
	}
	m.Deny(c)
}

// Grant grants c, persists it and resolves parked requests with true.
// Parked requests are resolved even if persisting fails.
func (m *Manager) Grant(c recording.Capability) error {
	m.mu.Lock()
	m.grants[c] = true
	err := saveGrants(m.path, m.snapshotLocked())
	waiters := m.takePendingLocked(c)
	m.mu.Unlock()

	m.logger.Info().Str("capability", string(c)).Int("resolved", len(waiters)).Msg("Permission granted")
	resolve(waiters, true)
	return err
}

// Revoke removes a persisted grant. Parked requests are not affected.
func (m *Manager) Revoke(c recording.Capability) error {
	m.mu.Lock()
	delete(m.grants, c)
	err := saveGrants(m.path, m.snapshotLocked())
	m.mu.Unlock()

	m.logger.Info().Str("capability", string(c)).Msg("Permission revoked")
	return err
}

// Deny resolves parked requests for c with false without persisting anything
func (m *Manager) Deny(c recording.Capability) {
	m.mu.Lock()
	waiters := m.takePendingLocked(c)
	m.mu.Unlock()

	m.logger.Info().Str("capability", string(c)).Int("resolved", len(waiters)).Msg("Permission denied")
	resolve(waiters, false)
}

// Reload re-reads the grants file and resolves parked requests whose
// capability is now granted
func (m *Manager) Reload() error {
	grants, err := loadGrants(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.grants = grants
	var waiters []func(bool)
	for c := range m.pending {
		if grants[c] {
			waiters = append(waiters, m.takePendingLocked(c)...)
		}
	}
	m.mu.Unlock()

	m.logger.Debug().Int("resolved", len(waiters)).Msg("Grants reloaded")
	resolve(waiters, true)
	return nil
}

// Status returns a copy of the current grants
func (m *Manager) Status() map[recording.Capability]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Pending returns the number of parked requests for c
func (m *Manager) Pending(c recording.Capability) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[c])
}

func (m *Manager) takePendingLocked(c recording.Capability) []func(bool) {
	waiters := m.pending[c]
	delete(m.pending, c)
	return waiters
}

func (m *Manager) snapshotLocked() map[recording.Capability]bool {
	out := make(map[recording.Capability]bool, len(m.grants))
	for k, v := range m.grants {
		out[k] = v
	}
	return out
}

func resolve(waiters []func(bool), granted bool) {
	for _, cb := range waiters {
		cb(granted)
	}
}
