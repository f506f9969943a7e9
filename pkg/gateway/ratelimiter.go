package gateway

import (
	"sync"
	"time"
)

// Default per-client limits
const (
	DefaultRequestsPerMinute = 120
	DefaultMaxConcurrent     = 4
)

// Rate limit rejection reasons
const (
	reasonRateLimited   = "rate limit exceeded"
	reasonTooConcurrent = "too many concurrent requests"
)

// ClientRateLimiter implements sliding window rate limiting per client
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	concurrent        int
	now               func() time.Time
}

// NewClientRateLimiter creates a rate limiter. Non-positive limits fall
// back to the defaults.
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits a request, returning a rejection reason when it is not
// allowed. Every admitted request must be paired with Release.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent >= r.maxConcurrent {
		return false, reasonTooConcurrent
	}

	r.pruneLocked()
	if len(r.requests) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}

	r.requests = append(r.requests, r.now())
	r.concurrent++
	return true, ""
}

// Release marks an admitted request as finished
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent > 0 {
		r.concurrent--
	}
}

// Stats returns the requests in the current window and those in flight
func (r *ClientRateLimiter) Stats() (requests, concurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	return len(r.requests), r.concurrent
}

func (r *ClientRateLimiter) pruneLocked() {
	cutoff := r.now().Add(-time.Minute)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}
