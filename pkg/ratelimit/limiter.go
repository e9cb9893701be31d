// Package ratelimit throttles inbound menu commands with a token
// bucket, globally and per user.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	CommandsPerMinute int
	PerUserLimit      bool
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           false, // Off by default for single-user use
		CommandsPerMinute: 30,
		PerUserLimit:      true,
	}
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	config       Config
	buckets      sync.Map // map[string]*bucket
	globalBucket *bucket
}

// bucket represents a token bucket for rate limiting.
type bucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newBucket(maxTokens, refillRate float64) *bucket {
	return &bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill adds tokens based on elapsed time.
func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// tryTake attempts to take n tokens from the bucket.
func (b *bucket) tryTake(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	l := &Limiter{
		config: config,
	}

	if config.Enabled {
		l.globalBucket = newBucket(
			float64(config.CommandsPerMinute),
			float64(config.CommandsPerMinute)/60.0,
		)
	}

	return l
}

// AllowCommand checks if a command from userID is allowed under the
// rate limit. Returns true if allowed, false if exceeded.
func (l *Limiter) AllowCommand(userID string) bool {
	if !l.config.Enabled {
		return true
	}

	// Check global limit first
	if !l.globalBucket.tryTake(1) {
		return false
	}

	// Check per-user limit if enabled
	if l.config.PerUserLimit && userID != "" {
		userBucket := l.getUserBucket(userID)
		if !userBucket.tryTake(1) {
			return false
		}
	}

	return true
}

// getUserBucket gets or creates a bucket for a specific user.
func (l *Limiter) getUserBucket(userID string) *bucket {
	if cached, ok := l.buckets.Load(userID); ok {
		return cached.(*bucket)
	}

	newB := newBucket(
		float64(l.config.CommandsPerMinute),
		float64(l.config.CommandsPerMinute)/60.0,
	)

	actual, _ := l.buckets.LoadOrStore(userID, newB)
	return actual.(*bucket)
}
