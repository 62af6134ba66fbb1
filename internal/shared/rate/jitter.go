// Package rate paces the scheduler's scan cycles through a leaky-bucket
// limiter exposed as a channel.
package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

type Jitter struct {
	ch      chan struct{}
	limiter ratelimit.Limiter
}

// NewJitter emits at most limit ticks per second on Chan until ctx is done.
func NewJitter(ctx context.Context, limit int) *Jitter {
	if limit < 1 {
		limit = 1
	}
	burst := limit / 10
	if burst < 1 {
		burst = 1
	}
	j := &Jitter{
		ch:      make(chan struct{}, burst),
		limiter: ratelimit.New(limit),
	}
	go j.feed(ctx)
	return j
}

func (j *Jitter) feed(ctx context.Context) {
	defer close(j.ch)
	for {
		j.limiter.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

func (j *Jitter) Chan() <-chan struct{} {
	return j.ch
}
