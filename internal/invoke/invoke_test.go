package invoke

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()

	inv := NewProcessInvoker()
	result, err := inv.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2; exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "out\n" {
		t.Fatalf("Stdout = %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Fatalf("Stderr = %q", result.Stderr)
	}
	if result.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	inv := NewProcessInvoker()
	result, err := inv.Run(context.Background(), "sh", "-c", "echo Submitted batch job 4821")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Stdout != "Submitted batch job 4821\n" {
		t.Fatalf("Stdout = %q", result.Stdout)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	t.Parallel()

	inv := NewProcessInvoker()
	result, err := inv.Run(context.Background(), "/nonexistent/definitely-not-a-command")
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if result.ExitCode != -1 {
		t.Fatalf("ExitCode = %d, want -1", result.ExitCode)
	}
}

func TestRunCancelledContextKillsProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	inv := NewProcessInvoker()
	start := time.Now()
	_, err := inv.Run(ctx, "sleep", "60")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("kill took %v, should be prompt", elapsed)
	}
}
