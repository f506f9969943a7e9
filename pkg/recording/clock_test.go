package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationClock_AccumulatesActiveIntervals(t *testing.T) {
	fc := newFakeClock()
	c := newDurationClock(fc.Now)

	assert.False(t, c.running())
	assert.Zero(t, c.elapsed())

	c.resume()
	fc.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.elapsed())

	c.pause()
	fc.Advance(time.Minute)
	assert.Equal(t, 2*time.Second, c.elapsed())

	c.resume()
	fc.Advance(500 * time.Millisecond)
	c.pause()
	assert.Equal(t, 2500*time.Millisecond, c.total)
}

func TestDurationClock_PauseWhenStoppedIsNoop(t *testing.T) {
	fc := newFakeClock()
	c := newDurationClock(fc.Now)

	c.pause()
	assert.Zero(t, c.total)
}

func TestDurationClock_ClampsBackwardsTime(t *testing.T) {
	fc := newFakeClock()
	c := newDurationClock(fc.Now)

	c.resume()
	fc.Advance(-time.Second)
	assert.Zero(t, c.elapsed())
}

func TestDurationClock_Reset(t *testing.T) {
	fc := newFakeClock()
	c := newDurationClock(fc.Now)

	c.resume()
	fc.Advance(time.Second)
	c.reset()

	assert.False(t, c.running())
	assert.Zero(t, c.elapsed())
}

func TestDurationClock_DefaultsToWallClock(t *testing.T) {
	c := newDurationClock(nil)
	c.resume()
	assert.True(t, c.running())
	assert.GreaterOrEqual(t, c.elapsed(), time.Duration(0))
}
