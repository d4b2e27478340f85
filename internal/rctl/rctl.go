// Package rctl translates a declarative limit bundle into kernel resource
// rules scoped to one jail, applied with rctl(8).
package rctl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KLDTECHNIX/openclaw/internal/hostcmd"
)

// NamePlaceholder is substituted with the jail name in extra rule templates,
// e.g. "jail:%name%:swapuse:deny=1G".
const NamePlaceholder = "%name%"

// Limits bounds a sandbox. Zero values mean "no limit" except CoreDumpBytes:
// a pointer so an explicit 0 ("no core dumps at all") survives.
type Limits struct {
	MaxProc       int      `yaml:"max_proc,omitempty" json:"max_proc,omitempty"`
	MemoryMB      int      `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	VMemoryMB     int      `yaml:"vmemory_mb,omitempty" json:"vmemory_mb,omitempty"`
	CPUPercent    int      `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	OpenFiles     int      `yaml:"open_files,omitempty" json:"open_files,omitempty"`
	CoreDumpBytes *int64   `yaml:"core_dump_bytes,omitempty" json:"core_dump_bytes,omitempty"`
	Extra         []string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// IsZero reports whether no bound is set at all.
func (l Limits) IsZero() bool {
	return l.MaxProc <= 0 && l.MemoryMB <= 0 && l.VMemoryMB <= 0 &&
		l.CPUPercent <= 0 && l.OpenFiles <= 0 && l.CoreDumpBytes == nil &&
		len(l.Extra) == 0
}

// Rules renders the rctl rule strings for a jail. One rule per bound that is
// set; extras have the jail name substituted in.
func (l Limits) Rules(name string) []string {
	var rules []string
	add := func(resource, value string) {
		rules = append(rules, fmt.Sprintf("jail:%s:%s:deny=%s", name, resource, value))
	}
	if l.MaxProc > 0 {
		add("maxproc", fmt.Sprintf("%d", l.MaxProc))
	}
	if l.MemoryMB > 0 {
		add("memoryuse", fmt.Sprintf("%dM", l.MemoryMB))
	}
	if l.VMemoryMB > 0 {
		add("vmemoryuse", fmt.Sprintf("%dM", l.VMemoryMB))
	}
	if l.CPUPercent > 0 {
		add("pcpu", fmt.Sprintf("%d", l.CPUPercent))
	}
	if l.OpenFiles > 0 {
		add("openfiles", fmt.Sprintf("%d", l.OpenFiles))
	}
	if l.CoreDumpBytes != nil && *l.CoreDumpBytes >= 0 {
		add("coredumpsize", fmt.Sprintf("%d", *l.CoreDumpBytes))
	}
	for _, tmpl := range l.Extra {
		rule := strings.ReplaceAll(tmpl, NamePlaceholder, name)
		if rule != "" {
			rules = append(rules, rule)
		}
	}
	return rules
}

// Limiter applies and removes rules via the rctl tool.
type Limiter struct {
	run    *hostcmd.Runner
	logger *slog.Logger
}

func NewLimiter(run *hostcmd.Runner, logger *slog.Logger) *Limiter {
	return &Limiter{run: run, logger: logger}
}

// Apply adds each rule independently. A rule that fails to apply is logged
// and does not block the others; the last failure is returned so the caller
// can decide whether partial enforcement is acceptable.
func (l *Limiter) Apply(ctx context.Context, name string, limits Limits) error {
	var lastErr error
	for _, rule := range limits.Rules(name) {
		if _, err := l.run.Run(ctx, "rctl", "-a", rule); err != nil {
			l.logger.Warn("rctl rule not applied",
				slog.String("jail", name),
				slog.String("rule", rule),
				slog.String("error", err.Error()),
			)
			lastErr = fmt.Errorf("applying rule %q: %w", rule, err)
		}
	}
	return lastErr
}

// RemoveAll drops every rule scoped to the jail in one bulk call. Succeeds
// even when no rules were ever applied.
func (l *Limiter) RemoveAll(ctx context.Context, name string) error {
	if _, err := l.run.Run(ctx, "rctl", "-r", "jail:"+name); err != nil {
		return fmt.Errorf("removing rules for jail %s: %w", name, err)
	}
	return nil
}
