package recording

import (
	"sync"
	"time"
)

const (
	// DefaultTickInterval is the duration event cadence while recording
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultJoinTimeout bounds how long Stop waits for the notifier to exit
	DefaultJoinTimeout = time.Second
)

// durationNotifier runs the periodic duration task. The tick callback
// decides what to emit and returns false once the task should exit.
type durationNotifier struct {
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newDurationNotifier(interval time.Duration) *durationNotifier {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &durationNotifier{
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (n *durationNotifier) run(tick func() bool) {
	defer close(n.done)

	if !tick() {
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			if !tick() {
				return
			}
		}
	}
}

func (n *durationNotifier) cancel() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})
}

// wait blocks until the task exits or timeout elapses. It reports whether
// the task exited.
func (n *durationNotifier) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.done:
		return true
	case <-timer.C:
		return false
	}
}

func (n *durationNotifier) exited() bool {
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}
