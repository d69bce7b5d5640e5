package internal

import (
	"context"
	"time"

	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/services/abicached/internal/metrics"
	"golang.org/x/time/rate"
)

// Backpressure slows the trace producer while the worker queue is over its
// limit. Each check over the limit adds step to the stall (capped at max) and
// sleeps for it; each check under the limit removes step.
//
// Wait is called from the single producer goroutine only.
type Backpressure struct {
	limit int
	step  time.Duration
	max   time.Duration
	stall time.Duration

	warn  rate.Sometimes
	sleep func(ctx context.Context, d time.Duration)
}

func NewBackpressure(limit int, step, max time.Duration) *Backpressure {
	return &Backpressure{
		limit: limit,
		step:  step,
		max:   max,
		warn:  rate.Sometimes{Interval: 10 * time.Second},
		sleep: sleepContext,
	}
}

func (b *Backpressure) Wait(ctx context.Context, pending int) time.Duration {
	metrics.QueueDepth.Set(float64(pending))
	if pending > b.limit {
		b.stall += b.step
		if b.stall > b.max {
			b.stall = b.max
		}
		b.warn.Do(func() {
			logger.Warning("Trace queue at %d (limit %d), stalling feed for %v", pending, b.limit, b.stall)
		})
		metrics.StallSeconds.Set(b.stall.Seconds())
		b.sleep(ctx, b.stall)
		return b.stall
	}
	if b.stall > 0 {
		b.stall -= b.step
		if b.stall < 0 {
			b.stall = 0
		}
		metrics.StallSeconds.Set(b.stall.Seconds())
	}
	return b.stall
}

func (b *Backpressure) Stall() time.Duration {
	return b.stall
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
