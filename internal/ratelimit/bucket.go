// Package ratelimit provides a leaky-bucket throttle for outbound
// notification traffic. State is in-memory per actor; a restart resets
// the bucket to full capacity.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token reservoir that refills continuously and drains one
// token per throttled call. Burst is bounded by capacity, sustained rate
// by the refill rate.
type Bucket struct {
	capacity float64
	rate     float64 // tokens per millisecond

	mu     sync.Mutex
	tokens float64
	last   time.Time

	now func() time.Time // test hook
}

// NewBucket creates a bucket with the given capacity and refill rate in
// tokens per millisecond. The bucket starts full.
func NewBucket(capacity int, tokensPerMs float64) *Bucket {
	return &Bucket{
		capacity: float64(capacity),
		rate:     tokensPerMs,
		tokens:   float64(capacity),
		last:     time.Now(),
		now:      time.Now,
	}
}

// Throttle blocks until a token is available or the context is done.
// After a forced wait the bucket is refilled and re-checked once; the
// token is then taken regardless, so concurrent callers may briefly run
// the balance negative rather than queueing indefinitely.
func (b *Bucket) Throttle(ctx context.Context) error {
	b.mu.Lock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}

	wait := time.Duration((1-b.tokens)/b.rate) * time.Millisecond
	b.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	b.mu.Lock()
	b.refill()
	b.tokens--
	b.mu.Unlock()
	return nil
}

// Tokens returns the current token count after refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// refill credits tokens for the time elapsed since the last refill.
// Callers must hold mu.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := float64(now.Sub(b.last)) / float64(time.Millisecond)
	b.last = now

	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}
