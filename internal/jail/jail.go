// Package jail owns the lifecycle of a single isolation unit: a persistent
// FreeBSD jail created over a prepared root, queried live with jls, entered
// with jexec, and removed with jail -r.
package jail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KLDTECHNIX/openclaw/internal/hostcmd"
)

// NetworkMode selects the jail's network stack.
type NetworkMode string

const (
	NetworkInherit  NetworkMode = "inherit"        // share the host stack
	NetworkIsolated NetworkMode = "isolated-stack" // private vnet stack
	NetworkNone     NetworkMode = "none"           // no IP at all
)

// State is the live kernel view of a jail. It is observed with jls and never
// cached; the registry is deliberately not consulted here.
type State struct {
	Exists  bool
	Running bool
	JID     int
}

// CreateOptions shape the jail -c argument vector.
type CreateOptions struct {
	Network      NetworkMode
	ReadOnlyRoot bool
	ExtraParams  []string // raw name=value jail parameters, appended verbatim
}

// Manager drives the jail tools.
type Manager struct {
	run    *hostcmd.Runner
	logger *slog.Logger

	// execTimeout bounds a single jexec invocation; commands run inside a
	// sandbox can legitimately take far longer than control-plane tools.
	execTimeout time.Duration
}

func NewManager(run *hostcmd.Runner, logger *slog.Logger, execTimeout time.Duration) *Manager {
	if execTimeout <= 0 {
		execTimeout = 10 * time.Minute
	}
	return &Manager{run: run, logger: logger, execTimeout: execTimeout}
}

// QueryState asks the kernel whether the jail exists and is running. A jail
// in the dying state exists but is no longer running.
func (m *Manager) QueryState(ctx context.Context, name string) (State, error) {
	out, err := m.run.Run(ctx, "jls", "-j", name, "jid")
	if err == nil && strings.TrimSpace(out) != "" {
		jid, _ := strconv.Atoi(strings.TrimSpace(out))
		return State{Exists: true, Running: true, JID: jid}, nil
	}
	if err != nil && !isNotFound(err) {
		// jls exits non-zero for a missing jail; anything else (tool
		// missing, timeout) is a real failure.
		return State{}, fmt.Errorf("querying jail %s: %w", name, err)
	}

	// Not running; a dying jail still shows up with -d.
	out, err = m.run.Run(ctx, "jls", "-d", "-j", name, "jid")
	if err != nil {
		if isNotFound(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("querying jail %s: %w", name, err)
	}
	if strings.TrimSpace(out) == "" {
		return State{}, nil
	}
	jid, _ := strconv.Atoi(strings.TrimSpace(out))
	return State{Exists: true, Running: false, JID: jid}, nil
}

func isNotFound(err error) bool {
	var terr *hostcmd.ToolError
	return errors.As(err, &terr) && terr.ExitCode > 0
}

// CreateArgs builds the jail -c argument vector for a sandbox jail. The jail
// is persistent (survives with no processes), hostnamed after itself, barred
// from creating child jails, and pinned to the strictest securelevel. A
// read-only root additionally forbids mounting inside and tightens the
// statfs view.
func CreateArgs(name, root string, opts CreateOptions) []string {
	args := []string{
		"-c",
		"name=" + name,
		"path=" + root,
		"persist",
		"host.hostname=" + name,
	}
	switch opts.Network {
	case NetworkNone:
		args = append(args, "ip4=disable", "ip6=disable")
	case NetworkIsolated:
		args = append(args, "vnet")
	default:
		// inherit: no address parameters, the host stack is shared
	}
	if opts.ReadOnlyRoot {
		args = append(args, "allow.mount=0", "enforce_statfs=2")
	} else {
		args = append(args, "allow.mount=1", "enforce_statfs=1")
	}
	args = append(args, "children.max=0", "securelevel=3")
	args = append(args, opts.ExtraParams...)
	return args
}

// Create brings the jail up over an already-prepared root.
func (m *Manager) Create(ctx context.Context, name, root string, opts CreateOptions) error {
	if _, err := m.run.Run(ctx, "jail", CreateArgs(name, root, opts)...); err != nil {
		return fmt.Errorf("creating jail %s: %w", name, err)
	}
	m.logger.Info("jail created",
		slog.String("jail", name),
		slog.String("root", root),
		slog.String("network", string(opts.Network)),
	)
	return nil
}

// Remove requests graceful jail teardown; the kernel signals every process
// inside before reclaiming the jail.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if _, err := m.run.Run(ctx, "jail", "-r", name); err != nil {
		return fmt.Errorf("removing jail %s: %w", name, err)
	}
	m.logger.Info("jail removed", slog.String("jail", name))
	return nil
}

// ExecOptions modify a command run inside a jail.
type ExecOptions struct {
	User         string            // numeric uid or user name passed to jexec -U
	Dir          string            // working directory inside the jail
	Env          map[string]string // extra environment, exported before the command
	AllowFailure bool              // return a non-zero exit as data, not error
	Timeout      time.Duration     // overrides the manager default
}

// ExecResult captures a command's outcome.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs argv inside a running jail via jexec. When a working directory
// or environment is requested the command is wrapped in a /bin/sh invocation
// that cds, exports, and execs the original vector with every token quoted
// against shell reinterpretation.
func (m *Manager) Exec(ctx context.Context, name string, argv []string, opts ExecOptions) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.execTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := argv
	if opts.Dir != "" || len(opts.Env) > 0 {
		command = []string{"/bin/sh", "-c", wrapScript(argv, opts.Dir, opts.Env)}
	}

	jexecArgs := []string{}
	if opts.User != "" {
		jexecArgs = append(jexecArgs, "-U", opts.User)
	}
	jexecArgs = append(jexecArgs, name)
	jexecArgs = append(jexecArgs, command...)

	cmd := exec.CommandContext(ctx, "jexec", jexecArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	m.logger.Debug("jexec",
		slog.String("jail", name),
		slog.Any("argv", argv),
		slog.Duration("duration", time.Since(start)),
	)

	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &hostcmd.ToolError{
			Tool: "jexec", Args: jexecArgs,
			Output: strings.TrimSpace(stderr.String()),
			ExitCode: -1, TimedOut: true, Err: runErr,
		}
	}
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("jexec in %s: %w", name, runErr)
	}
	result.ExitCode = exitErr.ExitCode()
	if opts.AllowFailure {
		return result, nil
	}
	return result, fmt.Errorf("command exited %d in jail %s: %s",
		result.ExitCode, name, strings.TrimSpace(stderr.String()))
}

// AttachCmd returns a command that drops the caller into an interactive
// shell inside the jail. The TUI hands this to the terminal directly.
func AttachCmd(name string) *exec.Cmd {
	return exec.Command("jexec", name, "/bin/sh", "-l")
}

// wrapScript renders the interposing shell script: cd, exports in sorted
// order, then exec the original vector fully quoted.
func wrapScript(argv []string, dir string, env map[string]string) string {
	var b strings.Builder
	if dir != "" {
		b.WriteString("cd " + Quote(dir) + " && ")
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("export " + k + "=" + Quote(env[k]) + " && ")
	}
	b.WriteString("exec")
	for _, tok := range argv {
		b.WriteString(" " + Quote(tok))
	}
	return b.String()
}

// Quote single-quotes a token for /bin/sh, escaping embedded single quotes.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
