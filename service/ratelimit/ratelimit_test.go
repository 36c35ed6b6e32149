package ratelimit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucket_Validation(t *testing.T) {
	_, err := NewTokenBucket(0, 1)
	assert.Error(t, err)

	_, err = NewTokenBucket(2, 0)
	assert.Error(t, err)

	b, err := NewTokenBucket(2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Capacity())
	assert.Equal(t, 0.3, b.RefillRate())
}

func TestTokenBucket_StartsFull(t *testing.T) {
	b, err := NewTokenBucket(3, 1)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, b.TryAcquireAt(now))
	assert.True(t, b.TryAcquireAt(now))
	assert.True(t, b.TryAcquireAt(now))
	assert.False(t, b.TryAcquireAt(now), "bucket should be empty after capacity acquisitions")
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	b, err := NewTokenBucket(2, 0.5)
	require.NoError(t, err)

	start := time.Now()
	require.True(t, b.TryAcquireAt(start))
	require.True(t, b.TryAcquireAt(start))
	assert.False(t, b.TryAcquireAt(start.Add(time.Second)))

	// One token every two seconds.
	assert.True(t, b.TryAcquireAt(start.Add(2*time.Second)))
	assert.False(t, b.TryAcquireAt(start.Add(2*time.Second)))
}

func TestTokenBucket_RefillCappedAtCapacity(t *testing.T) {
	b, err := NewTokenBucket(2, 10)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	assert.InDelta(t, 2.0, b.Available(later), 0.0001)
}

func TestTokenBucket_BurstPlusRefillBound(t *testing.T) {
	capacity := 2
	refill := 0.3

	b, err := NewTokenBucket(capacity, refill)
	require.NoError(t, err)

	// Hammer the bucket every 50ms for a minute of simulated time.
	start := time.Now()
	var granted []time.Time
	for step := 0; step < 1200; step++ {
		at := start.Add(time.Duration(step) * 50 * time.Millisecond)
		if b.TryAcquireAt(at) {
			granted = append(granted, at)
		}
	}
	require.NotEmpty(t, granted)

	// Any window W admits at most capacity + floor(W*refill) acquisitions.
	for i := range granted {
		for j := i; j < len(granted); j++ {
			w := granted[j].Sub(granted[i]).Seconds()
			limit := capacity + int(math.Floor(w*refill+1e-9))
			assert.LessOrEqual(t, j-i+1, limit, "grants %d..%d over %.2fs", i, j, w)
		}
	}

	// A full bucket spends its burst and then earns one more token inside
	// capacity/refill, so that window holds capacity+1 acquisitions.
	window := time.Duration(float64(capacity) / refill * float64(time.Second))
	count := 0
	for _, at := range granted {
		if at.Sub(start) < window {
			count++
		}
	}
	assert.Equal(t, capacity+1, count)
}

func TestTokenBucket_AcquireWaitsForRefill(t *testing.T) {
	b, err := NewTokenBucket(1, 20)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Acquire(ctx))

	start := time.Now()
	require.NoError(t, b.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.LessOrEqual(t, elapsed, b.MaxWait()+50*time.Millisecond)
}

func TestTokenBucket_AcquireHonoursCancellation(t *testing.T) {
	b, err := NewTokenBucket(1, 0.01)
	require.NoError(t, err)
	require.True(t, b.TryAcquireAt(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, b.Acquire(ctx))
}

func TestTokenBucket_MaxWait(t *testing.T) {
	b, err := NewTokenBucket(2, 0.3)
	require.NoError(t, err)

	// ceil(1/0.3*1000) = 3334ms
	assert.Equal(t, 3334*time.Millisecond, b.MaxWait())
}

func TestPacer_SpacesCallers(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}

	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, p.Interval())
}

func TestPacer_Disabled(t *testing.T) {
	p := NewPacer(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_CancelledContext(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
