package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBucket(capacity int, tokensPerMs float64) (*Bucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBucket(capacity, tokensPerMs)
	b.now = clock.now
	b.last = clock.t
	return b, clock
}

func TestBucket_BurstBoundedByCapacity(t *testing.T) {
	b, _ := newTestBucket(5, 0.001)
	ctx := context.Background()

	// With no elapsed time, exactly capacity calls pass without waiting.
	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := b.Throttle(ctx); err != nil {
			t.Fatalf("throttle %d: %v", i, err)
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Fatalf("call %d should not have waited", i)
		}
	}

	if got := b.Tokens(); got >= 1 {
		t.Errorf("got %.2f tokens after burst, want < 1", got)
	}
}

func TestBucket_RefillCapped(t *testing.T) {
	b, clock := newTestBucket(3, 1.0) // 1 token/ms

	for i := 0; i < 3; i++ {
		if err := b.Throttle(context.Background()); err != nil {
			t.Fatalf("throttle: %v", err)
		}
	}

	// A long idle period refills to capacity, never beyond.
	clock.advance(time.Hour)
	if got := b.Tokens(); got != 3 {
		t.Errorf("got %.2f tokens, want 3", got)
	}
}

func TestBucket_WaitsWhenEmpty(t *testing.T) {
	// Real clock: capacity 1, 1 token per 20ms.
	b := NewBucket(1, 0.05)

	if err := b.Throttle(context.Background()); err != nil {
		t.Fatalf("first throttle: %v", err)
	}

	start := time.Now()
	if err := b.Throttle(context.Background()); err != nil {
		t.Fatalf("second throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("second call returned after %v, expected a forced wait", elapsed)
	}
}

func TestBucket_ContextCancel(t *testing.T) {
	b := NewBucket(1, 0.00001) // effectively never refills
	if err := b.Throttle(context.Background()); err != nil {
		t.Fatalf("first throttle: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := b.Throttle(ctx); err == nil {
		t.Error("expected context error while waiting for a token")
	}
}
