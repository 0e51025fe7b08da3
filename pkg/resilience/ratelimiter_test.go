package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/ragdesk/pkg/fn"
)

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d rejected inside burst", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected rejection after burst")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter rejected")
		}
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLimiterStage(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})
	stage := LimiterStage(l, func(_ context.Context, n int) fn.Result[int] { return fn.Ok(n * 2) })
	v, err := stage(context.Background(), 4).Unwrap()
	if err != nil || v != 8 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestGuarded(t *testing.T) {
	g := Guard{Limiter: NewLimiter(LimiterOpts{Rate: 1000, Burst: 5}), Breaker: NewBreaker(BreakerOpts{FailThreshold: 1})}
	ctx := context.Background()

	if _, err := Guarded(ctx, g, func(context.Context) (string, error) { return "", errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("got %v", err)
	}
	if _, err := Guarded(ctx, g, func(context.Context) (string, error) { return "ok", nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	v, err := Guarded(ctx, Guard{}, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("empty guard: %q %v", v, err)
	}
}
