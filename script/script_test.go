package script_test

import (
	"context"
	"testing"
	"time"

	"github.com/a-h/icode/script"
)

func TestRunExpression_Basic(t *testing.T) {
	var stdout []byte
	emit := func(stream string, data []byte) {
		if stream == "stdout" {
			stdout = append(stdout, data...)
		}
	}

	code := script.RunExpression(context.Background(), "1 + 1", true, t.TempDir(), nil, emit)
	if code != script.ExitOK {
		t.Fatalf("exit code = %d, want %d", code, script.ExitOK)
	}
	if got, want := string(stdout), "2\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

// An infinite loop must actually stop once its context is cancelled,
// instead of leaking a goroutine that keeps emitting output after the
// caller has moved on.
func TestRunExpression_InfiniteLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- script.RunExpression(ctx, "while (true) {}", false, t.TempDir(), nil, func(string, []byte) {})
	}()

	select {
	case code := <-done:
		if code != script.ExitCancelled {
			t.Fatalf("exit code = %d, want %d", code, script.ExitCancelled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunExpression did not return after its context was cancelled")
	}
}

func TestRunExpression_ForLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- script.RunExpression(ctx, "for (;;) {}", false, t.TempDir(), nil, func(string, []byte) {})
	}()

	select {
	case code := <-done:
		if code != script.ExitCancelled {
			t.Fatalf("exit code = %d, want %d", code, script.ExitCancelled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunExpression did not return after its context was cancelled")
	}
}
