package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrDeviceBusy is returned when another live process holds the device lock
var ErrDeviceBusy = errors.New("capture device is busy")

// DeviceLock is a PID file marking the capture device as in use. A lock left
// by a dead process is treated as free.
type DeviceLock struct {
	path string
}

// NewDeviceLock returns a lock backed by path
func NewDeviceLock(path string) *DeviceLock {
	return &DeviceLock{path: path}
}

// Path returns the lock file path
func (l *DeviceLock) Path() string {
	return l.path
}

// Acquire writes the current PID into the lock file
func (l *DeviceLock) Acquire() error {
	if pid, held := l.holder(); held {
		return fmt.Errorf("%w: held by pid %d", ErrDeviceBusy, pid)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	content := fmt.Sprintf("%d", os.Getpid())
	if err := os.WriteFile(l.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Release removes the lock file if this process holds it
func (l *DeviceLock) Release() error {
	pid, err := l.readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return os.Remove(l.path)
	}
	if pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Held reports whether a live process holds the lock
func (l *DeviceLock) Held() bool {
	_, held := l.holder()
	return held
}

func (l *DeviceLock) holder() (int, bool) {
	pid, err := l.readPID()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func (l *DeviceLock) readPID() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file: %w", err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks for existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
