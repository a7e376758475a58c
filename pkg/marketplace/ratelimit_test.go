package marketplace

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter("test", RateLimitConfig{MaxRequests: 2, TimeWindow: 60, RetryAfter: 60})
	rl.SetClock(clock.Now)

	require.NoError(t, rl.Check())
	require.NoError(t, rl.Check())

	err := rl.Check()
	require.Error(t, err)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 60, rle.RetryAfter)
	assert.Equal(t, "test", rle.Broker)
	assert.True(t, IsRateLimitError(err))

	clock.Advance(61 * time.Second)
	assert.NoError(t, rl.Check())
}

func TestRateLimiter_WindowSlidesPerRequest(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter("test", RateLimitConfig{MaxRequests: 2, TimeWindow: 60, RetryAfter: 5})
	rl.SetClock(clock.Now)

	require.NoError(t, rl.Check())
	clock.Advance(30 * time.Second)
	require.NoError(t, rl.Check())

	// first request is 45s old, still inside the window
	clock.Advance(15 * time.Second)
	assert.Error(t, rl.Check())

	// first request has now aged out, second has not
	clock.Advance(16 * time.Second)
	assert.NoError(t, rl.Check())
	assert.Error(t, rl.Check())
}

func TestRateLimiter_RejectionNotRecorded(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter("test", RateLimitConfig{MaxRequests: 1, TimeWindow: 10, RetryAfter: 10})
	rl.SetClock(clock.Now)

	require.NoError(t, rl.Check())
	for i := 0; i < 5; i++ {
		assert.Error(t, rl.Check())
	}

	clock.Advance(11 * time.Second)
	assert.Equal(t, 1, rl.Remaining())
	assert.NoError(t, rl.Check())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter("test", RateLimitConfig{MaxRequests: 50, TimeWindow: 3600, RetryAfter: 1})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Check() == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted)
	assert.Equal(t, 0, rl.Remaining())
}

func TestRateLimiter_ResetAndDefaults(t *testing.T) {
	rl := NewRateLimiter("test", RateLimitConfig{MaxRequests: 0, TimeWindow: 60, RetryAfter: 60})
	assert.Equal(t, DefaultRateLimit(), rl.Config())

	for i := 0; i < 60; i++ {
		require.NoError(t, rl.Check())
	}
	assert.Error(t, rl.Check())

	rl.Reset()
	assert.NoError(t, rl.Check())
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{name: "default", cfg: DefaultRateLimit()},
		{name: "zero requests", cfg: RateLimitConfig{0, 60, 60}, wantErr: true},
		{name: "negative window", cfg: RateLimitConfig{1, -1, 60}, wantErr: true},
		{name: "zero retry", cfg: RateLimitConfig{1, 1, 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
