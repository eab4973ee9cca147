package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFetch = errors.New("fetch failed")

func failing(context.Context) error { return errFetch }
func succeeding(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); !errors.Is(err, errFetch) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}

	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	ctx := context.Background()
	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	// Advance past the open timeout; the next call is a probe.
	now = now.Add(2 * time.Minute)
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	ctx := context.Background()
	_ = b.Call(ctx, failing)
	now = now.Add(2 * time.Minute)
	_ = b.Call(ctx, failing)

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}
