// Package resilience guards calls to flaky upstreams (LLM providers) with a
// circuit breaker and a token-bucket limiter.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/ragdesk/pkg/fn"
)

// State of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerOpts configures a Breaker. Zero fields take DefaultBreakerOpts.
type BreakerOpts struct {
	Name string
	// FailThreshold consecutive failures trip the breaker.
	FailThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Probes is the number of concurrent calls allowed while half-open.
	Probes int
	Logger *slog.Logger
}

var DefaultBreakerOpts = BreakerOpts{
	Name:          "upstream",
	FailThreshold: 5,
	Cooldown:      30 * time.Second,
	Probes:        1,
}

// Breaker is a closed/open/half-open circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	probing  int
	now      func() time.Time
}

func NewBreaker(opts BreakerOpts) *Breaker {
	d := DefaultBreakerOpts
	if opts.Name == "" {
		opts.Name = d.Name
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = d.FailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = d.Cooldown
	}
	if opts.Probes <= 0 {
		opts.Probes = d.Probes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Breaker{opts: opts, now: time.Now}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// current moves open to half-open once the cooldown has passed. Caller holds mu.
func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Cooldown {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// transition changes state. Caller holds mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.opts.Logger.Info("circuit breaker state change", "breaker", b.opts.Name, "from", b.state.String(), "to", to.String())
	b.state = to
	b.failures = 0
	b.probing = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.current() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing >= b.opts.Probes {
			return ErrCircuitOpen
		}
		b.probing++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.transition(StateClosed)
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
		b.transition(StateOpen)
	}
}

// Call runs f unless the breaker is open. Context cancellation by the
// caller does not count as an upstream failure.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := f(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release()
		return err
	}
	b.record(err)
	return err
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probing > 0 {
		b.probing--
	}
}

// Do is Call for functions returning a value.
func Do[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = f(ctx)
		return err
	})
	return out, err
}

// BreakerStage guards an fn.Stage.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return fn.FromPair(Do(ctx, b, func(ctx context.Context) (Out, error) {
			return stage(ctx, in).Unwrap()
		}))
	}
}
