// Package hostcmd runs host utilities (zfs, jail, rctl, mount, ...) with a
// bounded timeout and captured output. Every kernel-tool invocation in this
// codebase goes through here.
package hostcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool invocation when the caller's context
// carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// ToolError describes a failed or timed-out tool invocation.
type ToolError struct {
	Tool     string
	Args     []string
	Output   string // trimmed combined stdout+stderr
	ExitCode int    // -1 when the tool never ran or was killed
	TimedOut bool
	Err      error
}

func (e *ToolError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s %s: timed out", e.Tool, strings.Join(e.Args, " "))
	}
	if e.Output != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Tool, strings.Join(e.Args, " "), e.Output, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner invokes host tools. The zero value is not usable; use New.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Runner with the given per-invocation timeout.
// A zero timeout means DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes tool with args and returns its trimmed combined output.
// A non-zero exit or a timeout is returned as a *ToolError.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())

	r.logger.Debug("host tool",
		slog.String("tool", tool),
		slog.Any("args", args),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", err == nil),
	)

	if err == nil {
		return out, nil
	}

	terr := &ToolError{Tool: tool, Args: args, Output: out, ExitCode: -1, Err: err}
	if ctx.Err() != nil {
		terr.TimedOut = true
		return out, terr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		terr.ExitCode = exitErr.ExitCode()
	}
	return out, terr
}

// ExitCode extracts the tool exit code from err, or -1 if err does not
// carry one.
func ExitCode(err error) int {
	var terr *ToolError
	if errors.As(err, &terr) {
		return terr.ExitCode
	}
	return -1
}

// IsTimeout reports whether err is a timed-out tool invocation.
func IsTimeout(err error) bool {
	var terr *ToolError
	return errors.As(err, &terr) && terr.TimedOut
}
