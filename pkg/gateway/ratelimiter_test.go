package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(10, 5)

		for i := 0; i < 5; i++ {
			allowed, reason := limiter.Acquire()
			assert.True(t, allowed)
			assert.Empty(t, reason)
		}
	})

	t.Run("should reject when concurrent limit exceeded", func(t *testing.T) {
		limiter := NewClientRateLimiter(100, 2)
		limiter.Acquire()
		limiter.Acquire()

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, reasonTooConcurrent, reason)

		limiter.Release()
		allowed, _ = limiter.Acquire()
		assert.True(t, allowed)
	})

	t.Run("should reject when rate limit exceeded", func(t *testing.T) {
		limiter := NewClientRateLimiter(3, 10)
		for i := 0; i < 3; i++ {
			limiter.Acquire()
			limiter.Release()
		}

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, reasonRateLimited, reason)
	})

	t.Run("should allow again once the window slides", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		limiter := NewClientRateLimiter(1, 10)
		limiter.now = func() time.Time { return now }

		allowed, _ := limiter.Acquire()
		assert.True(t, allowed)
		limiter.Release()

		allowed, _ = limiter.Acquire()
		assert.False(t, allowed)

		now = now.Add(61 * time.Second)
		allowed, _ = limiter.Acquire()
		assert.True(t, allowed)
	})
}

func TestClientRateLimiter_Defaults(t *testing.T) {
	limiter := NewClientRateLimiter(0, -1)
	assert.Equal(t, DefaultRequestsPerMinute, limiter.requestsPerMinute)
	assert.Equal(t, DefaultMaxConcurrent, limiter.maxConcurrent)
}

func TestClientRateLimiter_Stats(t *testing.T) {
	limiter := NewClientRateLimiter(10, 5)
	limiter.Acquire()
	limiter.Acquire()
	limiter.Release()
	limiter.Release()
	limiter.Release()

	requests, concurrent := limiter.Stats()
	assert.Equal(t, 2, requests)
	assert.Zero(t, concurrent)
}
