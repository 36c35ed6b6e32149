package ratelimit

import (
	"context"
	"time"

	"go.uber.org/ratelimit"
)

// Pacer enforces a minimum gap between consecutive batches.
type Pacer struct {
	limiter ratelimit.Limiter
	every   time.Duration
}

// NewPacer returns a Pacer that lets one caller through per interval.
// A zero or negative interval disables pacing.
func NewPacer(every time.Duration) *Pacer {
	if every <= 0 {
		return &Pacer{limiter: ratelimit.NewUnlimited()}
	}
	return &Pacer{
		limiter: ratelimit.New(1, ratelimit.Per(every), ratelimit.WithoutSlack),
		every:   every,
	}
}

// Wait blocks until the next batch may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.limiter.Take()
	return ctx.Err()
}

// Interval returns the configured gap between batches.
func (p *Pacer) Interval() time.Duration {
	return p.every
}
