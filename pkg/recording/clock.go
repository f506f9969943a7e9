package recording

import "time"

// durationClock accumulates active recording time across pause/resume.
// activeSince is zero while paused or idle.
type durationClock struct {
	now         func() time.Time
	total       time.Duration
	activeSince time.Time
}

func newDurationClock(now func() time.Time) durationClock {
	if now == nil {
		now = time.Now
	}
	return durationClock{now: now}
}

func (c *durationClock) running() bool {
	return !c.activeSince.IsZero()
}

// resume marks the start of an active interval
func (c *durationClock) resume() {
	c.activeSince = c.now()
}

// pause flushes the current active interval into total
func (c *durationClock) pause() {
	if !c.running() {
		return
	}
	c.total += c.since()
	c.activeSince = time.Time{}
}

func (c *durationClock) reset() {
	c.total = 0
	c.activeSince = time.Time{}
}

// elapsed returns total plus the in-progress interval, if any
func (c *durationClock) elapsed() time.Duration {
	if !c.running() {
		return c.total
	}
	return c.total + c.since()
}

func (c *durationClock) since() time.Duration {
	d := c.now().Sub(c.activeSince)
	if d < 0 {
		return 0
	}
	return d
}
