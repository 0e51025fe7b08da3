package resilience

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/ragdesk/pkg/fn"
)

var ErrRateLimited = errors.New("resilience: rate limited")

// LimiterOpts configures a token bucket. Rate <= 0 means unlimited.
type LimiterOpts struct {
	// Rate is tokens added per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

// Limiter is a token bucket on top of golang.org/x/time/rate.
type Limiter struct {
	lim *rate.Limiter
}

func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	r := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		r = rate.Inf
	}
	return &Limiter{lim: rate.NewLimiter(r, opts.Burst)}
}

// Allow reports whether a token was available and takes it.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

// LimiterStage waits for a token before running stage.
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}

// Guard combines a limiter and a breaker around one upstream.
type Guard struct {
	Limiter *Limiter
	Breaker *Breaker
}

// Guarded runs f after waiting on the limiter and through the breaker.
// Either may be nil.
func Guarded[T any](ctx context.Context, g Guard, f func(context.Context) (T, error)) (T, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	if g.Breaker == nil {
		return f(ctx)
	}
	return Do(ctx, g.Breaker, f)
}
