package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepThroughInterruptsWaitsFullDuration(t *testing.T) {
	t.Parallel()

	const d = 30 * time.Millisecond
	start := time.Now()
	if err := SleepThroughInterrupts(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < d {
		t.Fatalf("slept %v, want at least %v", elapsed, d)
	}
}

func TestSleepThroughInterruptsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := SleepThroughInterrupts(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation took %v, should be prompt", elapsed)
	}
}

func TestSleepThroughInterruptsZeroDuration(t *testing.T) {
	t.Parallel()

	if err := SleepThroughInterrupts(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
