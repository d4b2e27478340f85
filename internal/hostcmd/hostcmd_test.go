package hostcmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testRunner(timeout time.Duration) *Runner {
	return New(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunCapturesOutput(t *testing.T) {
	out, err := testRunner(0).Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q, want hello", out)
	}
}

func TestRunCombinesStderr(t *testing.T) {
	out, err := testRunner(0).Run(context.Background(), "sh", "-c", "echo oops 1>&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "oops" {
		t.Errorf("out = %q, want oops", out)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	out, err := testRunner(0).Run(context.Background(), "sh", "-c", "echo failing; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("error type %T", err)
	}
	if terr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", terr.ExitCode)
	}
	if terr.TimedOut {
		t.Error("TimedOut set for a plain failure")
	}
	if out != "failing" {
		t.Errorf("out = %q", out)
	}
	if ExitCode(err) != 3 {
		t.Errorf("ExitCode(err) = %d", ExitCode(err))
	}
}

func TestRunMissingTool(t *testing.T) {
	_, err := testRunner(0).Run(context.Background(), "definitely-not-a-tool-xyz")
	if err == nil {
		t.Fatal("expected error")
	}
	if ExitCode(err) != -1 {
		t.Errorf("ExitCode = %d, want -1", ExitCode(err))
	}
}

func TestRunTimeout(t *testing.T) {
	_, err := testRunner(50 * time.Millisecond).Run(context.Background(), "sh", "-c", "sleep 5")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout = false for %v", err)
	}
	if ExitCode(err) != -1 {
		t.Errorf("ExitCode = %d, want -1", ExitCode(err))
	}
}

func TestHelpersOnForeignError(t *testing.T) {
	err := errors.New("plain")
	if ExitCode(err) != -1 {
		t.Errorf("ExitCode = %d", ExitCode(err))
	}
	if IsTimeout(err) {
		t.Error("IsTimeout true for a plain error")
	}
}
