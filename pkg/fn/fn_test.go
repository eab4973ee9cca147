package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestThenShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	first := func(_ context.Context, n int) Result[int] { return Err[int](boom) }
	second := func(_ context.Context, n int) Result[string] {
		t.Fatal("second stage should not run")
		return Ok("")
	}

	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() {
		t.Fatal("expected error result")
	}
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestPipelineAppliesInOrder(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	inc := MapStage(func(n int) int { return n + 1 })

	r := Pipeline(double, inc)(context.Background(), 5)
	v, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if v != 11 {
		t.Fatalf("got %d, want 11", v)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Errf[int]("attempt %d", attempts)
		}
		return Ok(attempts)
	})

	v, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 || attempts != 3 {
		t.Fatalf("got v=%d attempts=%d, want 3/3", v, attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		return Errf[int]("always fails")
	})
	if r.IsOk() {
		t.Fatal("expected failure after exhausting attempts")
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	out := ParMap(in, 2, func(n int) int { return n * n })
	for i, v := range out {
		if v != in[i]*in[i] {
			t.Fatalf("out[%d] = %d, want %d", i, v, in[i]*in[i])
		}
	}
}

func TestCollectReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	r := Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}
