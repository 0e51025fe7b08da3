package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/ragdesk/pkg/fn"
)

var errBoom = errors.New("boom")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Call(context.Background(), func(context.Context) error { return errBoom })
	}
}

func TestBreakerTrips(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
	failN(b, 3)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	called := false
	err := b.Call(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let call through: %v", err)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3})
	failN(b, 2)
	_ = b.Call(context.Background(), func(context.Context) error { return nil })
	failN(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: 5 * time.Second})
	b.now = func() time.Time { return now }

	failN(b, 2)
	now = now.Add(6 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, got %v", b.State())
	}

	now = now.Add(6 * time.Second)
	if err := b.Call(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("successful probe should close, got %v", b.State())
	}
}

func TestBreakerIgnoresCallerCancel(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("cancel tripped breaker: %v", b.State())
	}
}

func TestDo(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	v, err := Do(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2})
	stage := BreakerStage(b, func(context.Context, int) fn.Result[int] { return fn.Err[int](errBoom) })

	stage(context.Background(), 1)
	stage(context.Background(), 1)
	_, err := stage(context.Background(), 1).Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: got %q", s, s.String())
		}
	}
}
