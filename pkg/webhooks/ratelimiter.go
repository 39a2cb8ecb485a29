package webhooks

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RateLimiter implements a fixed-window per-endpoint delivery cap. Counters
// are keyed by (endpoint id, calendar-minute bucket) and created lazily; a
// periodic sweep discards counters whose window has passed. This is a hard
// per-minute cap rather than a smoothed limiter: retries already
// self-throttle via backoff, so bursts at window edges are acceptable.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*rateWindow
	sweeper *cron.Cron

	now func() time.Time
}

type rateWindow struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a rate limiter allowing limit deliveries per
// endpoint per minute. A non-positive limit disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Allow reports whether a delivery to the endpoint fits in the current
// minute window. Denied calls do not increment the counter.
func (rl *RateLimiter) Allow(endpointID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket := now.Unix() / 60
	key := fmt.Sprintf("%s:%d", endpointID, bucket)

	window, exists := rl.windows[key]
	if !exists {
		window = &rateWindow{
			resetTime: time.Unix((bucket+1)*60, 0),
		}
		rl.windows[key] = window
	}

	if window.count >= rl.limit {
		return false
	}
	window.count++
	return true
}

// StartSweeper schedules a minutely sweep of expired window counters
func (rl *RateLimiter) StartSweeper() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.sweeper != nil {
		return
	}
	rl.sweeper = cron.New()
	rl.sweeper.AddFunc("@every 1m", rl.sweep)
	rl.sweeper.Start()
}

// StopSweeper stops the periodic sweep
func (rl *RateLimiter) StopSweeper() {
	rl.mu.Lock()
	sweeper := rl.sweeper
	rl.sweeper = nil
	rl.mu.Unlock()
	if sweeper != nil {
		sweeper.Stop()
	}
}

// sweep drops counters whose reset time has passed
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, window := range rl.windows {
		if now.After(window.resetTime) {
			delete(rl.windows, key)
		}
	}
}
