package webhooks

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffPolicy computes retry delays using exponential backoff with jitter.
// Jitter spreads retries so many endpoints failing at once do not produce a
// synchronized retry storm.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoffPolicy creates a backoff policy with the given base delay,
// capped at maxDelay
func NewBackoffPolicy(baseDelay, maxDelay time.Duration) *BackoffPolicy {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	return &BackoffPolicy{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay returns min(base * 2^attempts * jitter, max) with jitter drawn
// uniformly from [0.5, 1.0)
func (p *BackoffPolicy) NextDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	p.mu.Lock()
	jitter := 0.5 + p.rng.Float64()/2
	p.mu.Unlock()

	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempts)) * jitter
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
