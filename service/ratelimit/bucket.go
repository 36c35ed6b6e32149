// Package ratelimit bounds how fast the scanner talks to an RPC provider.
//
// TokenBucket gates every individual request. Pacer spaces out whole batches.
// Both are constructed once and injected into the components that need them.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a refillable pool of request permits.
// It is safe for concurrent use.
type TokenBucket struct {
	limiter  *rate.Limiter
	capacity int
	refill   float64
}

// NewTokenBucket returns a full bucket holding capacity tokens that refills
// at refillPerSecond tokens per second.
func NewTokenBucket(capacity int, refillPerSecond float64) (*TokenBucket, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1, got %d", capacity)
	}
	if refillPerSecond <= 0 {
		return nil, fmt.Errorf("refill rate must be positive, got %v", refillPerSecond)
	}
	return &TokenBucket{
		limiter:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		capacity: capacity,
		refill:   refillPerSecond,
	}, nil
}

// Acquire blocks until a token is available and consumes it.
// It returns early with the context's error if ctx is done first.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// TryAcquireAt consumes a token if one is available at time t.
// It never blocks.
func (b *TokenBucket) TryAcquireAt(t time.Time) bool {
	return b.limiter.AllowN(t, 1)
}

// Available reports the number of tokens in the bucket at time t.
func (b *TokenBucket) Available(t time.Time) float64 {
	return b.limiter.TokensAt(t)
}

// Capacity returns the maximum number of tokens the bucket holds.
func (b *TokenBucket) Capacity() int {
	return b.capacity
}

// RefillRate returns the number of tokens added per second.
func (b *TokenBucket) RefillRate() float64 {
	return b.refill
}

// MaxWait is the longest a single Acquire waits once the bucket is empty.
func (b *TokenBucket) MaxWait() time.Duration {
	return time.Duration(math.Ceil(1/b.refill*1000)) * time.Millisecond
}
