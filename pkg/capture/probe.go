package capture

import (
	"os/exec"

	"github.com/rs/zerolog"
)

// LockProbe reports the capture device free when the capture binary is
// installed and no live process holds the device lock.
type LockProbe struct {
	binary string
	lock   *DeviceLock
	logger zerolog.Logger
}

// NewLockProbe creates a probe
func NewLockProbe(binary string, lock *DeviceLock, logger zerolog.Logger) *LockProbe {
	if binary == "" {
		binary = DefaultBinary
	}
	return &LockProbe{
		binary: binary,
		lock:   lock,
		logger: logger.With().Str("component", "device-probe").Logger(),
	}
}

// IsCaptureDeviceFree implements recording.DeviceProbe
func (p *LockProbe) IsCaptureDeviceFree() bool {
	if _, err := exec.LookPath(p.binary); err != nil {
		p.logger.Warn().Err(err).Str("binary", p.binary).Msg("Capture binary not available")
		return false
	}
	if p.lock != nil && p.lock.Held() {
		p.logger.Warn().Str("lock", p.lock.Path()).Msg("Capture device locked by another process")
		return false
	}
	return true
}
