package marketplace

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding-window limiter. Durations are seconds.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests" json:"max_requests"`
	TimeWindow  int `yaml:"time_window" json:"time_window"`
	RetryAfter  int `yaml:"retry_after" json:"retry_after"`
}

// DefaultRateLimit returns the limits used when a broker configures none
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 60, TimeWindow: 60, RetryAfter: 60}
}

// Validate checks that every field is positive
func (c RateLimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return NewValidationError("max_requests must be positive, got %d", c.MaxRequests)
	}
	if c.TimeWindow <= 0 {
		return NewValidationError("time_window must be positive, got %d", c.TimeWindow)
	}
	if c.RetryAfter <= 0 {
		return NewValidationError("retry_after must be positive, got %d", c.RetryAfter)
	}
	return nil
}

// RateLimiter admits at most MaxRequests within any TimeWindow-long interval.
// The window slides with each check rather than resetting on fixed boundaries.
type RateLimiter struct {
	mu         sync.Mutex
	broker     string
	cfg        RateLimitConfig
	window     time.Duration
	timestamps []time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter. An invalid config falls back to
// DefaultRateLimit.
func NewRateLimiter(broker string, cfg RateLimitConfig) *RateLimiter {
	if cfg.Validate() != nil {
		cfg = DefaultRateLimit()
	}
	return &RateLimiter{
		broker: broker,
		cfg:    cfg,
		window: time.Duration(cfg.TimeWindow) * time.Second,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (r *RateLimiter) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Config returns the limiter's configuration
func (r *RateLimiter) Config() RateLimitConfig {
	return r.cfg
}

// Check admits the request and records it, or returns a *RateLimitError
// without recording anything.
func (r *RateLimiter) Check() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	if len(r.timestamps) >= r.cfg.MaxRequests {
		return &RateLimitError{Broker: r.broker, RetryAfter: r.cfg.RetryAfter}
	}

	r.timestamps = append(r.timestamps, now)
	return nil
}

// Remaining reports how many requests would be admitted right now
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return r.cfg.MaxRequests - len(r.timestamps)
}

// Reset forgets every recorded request
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timestamps = nil
}

func (r *RateLimiter) String() string {
	return fmt.Sprintf("RateLimiter(%s, %d/%ds)", r.broker, r.cfg.MaxRequests, r.cfg.TimeWindow)
}

// prune drops timestamps older than the window. Caller holds mu.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.timestamps) && !r.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.timestamps = append(r.timestamps[:0], r.timestamps[i:]...)
	}
}
