package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
)

// ErrRateLimitExceeded is returned when a bucket stays empty past the
// caller's deadline.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// TokenBucket is a per-key token bucket rate limiter gating provider calls.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a limiter with the given per-key capacity and one
// token refilled every refillRate.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire takes one token for key, waiting for a refill when the bucket is
// empty. It fails only when ctx expires first.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		if ok := tb.tryTake(key); ok {
			return func() { tb.put(key) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRateLimitExceeded, ctx.Err())
		case <-time.After(tb.refillRate):
		}
	}
}

func (tb *TokenBucket) tryTake(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastRefill: time.Now()}
		tb.buckets[key] = b
	}

	elapsed := time.Since(b.lastRefill)
	if refills := int(elapsed / tb.refillRate); refills > 0 {
		b.tokens = minInt(b.tokens+refills, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(refills) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (tb *TokenBucket) put(key string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if b, ok := tb.buckets[key]; ok {
		b.tokens = minInt(b.tokens+1, tb.capacity)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Ensure TokenBucket implements the RateLimiter interface.
var _ ports.RateLimiter = (*TokenBucket)(nil)
