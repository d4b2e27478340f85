package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/rctl"
	"github.com/KLDTECHNIX/openclaw/internal/zfs"
)

// CloneStore is the slice of internal/zfs the reconciler needs.
type CloneStore interface {
	Exists(ctx context.Context, dataset string) (bool, error)
	Clone(ctx context.Context, spec zfs.CloneSpec, name string) (string, error)
	Destroy(ctx context.Context, dataset string) error
	Mountpoint(ctx context.Context, dataset string) (string, error)
}

// Mounter is the slice of internal/mount the reconciler needs.
type Mounter interface {
	Apply(ctx context.Context, root string, plan mount.Plan) error
	UnmountAll(ctx context.Context, root string) ([]string, error)
}

// Limiter is the slice of internal/rctl the reconciler needs.
type Limiter interface {
	Apply(ctx context.Context, name string, limits rctl.Limits) error
	RemoveAll(ctx context.Context, name string) error
}

// Jailer is the slice of internal/jail the reconciler needs.
type Jailer interface {
	QueryState(ctx context.Context, name string) (jail.State, error)
	Create(ctx context.Context, name, root string, opts jail.CreateOptions) error
	Remove(ctx context.Context, name string) error
	Exec(ctx context.Context, name string, argv []string, opts jail.ExecOptions) (*jail.ExecResult, error)
}

// HintFunc renders a copy-pasteable recreate command for a drifted sandbox.
// The reconciler only supplies the scope; the CLI decides how the command
// looks.
type HintFunc func(key ScopeKey) string

// Manager is the sandbox reconciler. One Manager serves concurrent calls for
// different scope keys; calls for the same scope key serialize on a per-key
// lock so two racing ensures cannot collide on the same kernel objects.
type Manager struct {
	clones   CloneStore
	mounts   Mounter
	limits   Limiter
	jails    Jailer
	registry *Registry
	policy   HotPolicy
	hint     HintFunc
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(clones CloneStore, mounts Mounter, limits Limiter, jails Jailer,
	registry *Registry, policy HotPolicy, hint HintFunc, logger *slog.Logger) *Manager {
	if hint == nil {
		hint = func(key ScopeKey) string { return "" }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		clones:   clones,
		mounts:   mounts,
		limits:   limits,
		jails:    jails,
		registry: registry,
		policy:   policy,
		hint:     hint,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// scopeLock returns the mutex serializing operations on one scope key.
func (m *Manager) scopeLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Ensure makes the sandbox for a scope key exist and match the desired spec,
// and returns its jail name. An existing running sandbox with a matching
// configuration is reused; a dying or drifted one is destroyed and
// recreated, unless it is running and hot, in which case the stale sandbox
// is kept for this call and a recreate hint is logged.
func (m *Manager) Ensure(ctx context.Context, key ScopeKey, spec Spec) (string, error) {
	lock := m.scopeLock(key.String())
	lock.Lock()
	defer lock.Unlock()

	name := UnitName(spec.Prefix, key)
	desired := Fingerprint(spec)

	state, err := m.jails.QueryState(ctx, name)
	if err != nil {
		return "", err
	}
	entry, err := m.registry.Get(name)
	if err != nil {
		return "", err
	}

	if state.Exists {
		if state.Running && entry != nil && entry.Fingerprint == desired {
			entry.LastUsedAt = m.now()
			if err := m.registry.Upsert(entry); err != nil {
				return "", err
			}
			m.logger.Debug("sandbox reused", slog.String("jail", name))
			return name, nil
		}

		switch {
		case !state.Running:
			// A dying jail cannot accept commands regardless of its
			// recorded configuration.
			m.logger.Info("sandbox not running, recreating",
				slog.String("jail", name),
				slog.String("scope", key.String()),
			)
		case m.policy.IsHot(entry):
			// Drift: the live jail was built from a different (or
			// unknown) configuration, but it was used too recently to
			// tear down underneath the caller.
			m.logger.Warn("sandbox config drift, kept because recently used",
				slog.String("jail", name),
				slog.String("scope", key.String()),
				slog.String("hint", m.hint(key)),
			)
			return name, nil
		default:
			m.logger.Info("sandbox config drift, recreating",
				slog.String("jail", name),
				slog.String("scope", key.String()),
			)
		}
		if report := m.destroyUnit(ctx, name, spec); report.UnitRemovalFailed() {
			return "", fmt.Errorf("destroying stale sandbox %s: %w", name, report.Err())
		}
	} else if err := m.reapStaleClone(ctx, name, spec, entry, desired); err != nil {
		return "", err
	}

	if err := m.provision(ctx, name, spec); err != nil {
		return "", err
	}

	now := m.now()
	if err := m.registry.Upsert(&Entry{
		UnitName:    name,
		ScopeKey:    key.String(),
		CreatedAt:   now,
		LastUsedAt:  now,
		Origin:      spec.Clone.Origin(),
		Fingerprint: desired,
	}); err != nil {
		return "", err
	}
	return name, nil
}

// reapStaleClone handles the crash-mid-provisioning leftover: no live jail,
// but an on-disk clone whose recorded configuration does not match the
// desired one. Destroying it here lets provision start from a fresh clone;
// a matching clone is left alone and reused by the idempotent clone step.
func (m *Manager) reapStaleClone(ctx context.Context, name string, spec Spec, entry *Entry, desired string) error {
	if entry != nil && entry.Fingerprint == desired {
		return nil
	}
	dataset := spec.Clone.Dataset(name)
	exists, err := m.clones.Exists(ctx, dataset)
	if err != nil || !exists {
		return err
	}
	m.logger.Info("destroying stale sandbox clone",
		slog.String("jail", name),
		slog.String("dataset", dataset),
	)
	if root, mpErr := m.clones.Mountpoint(ctx, dataset); mpErr == nil && root != "" {
		if _, umErr := m.mounts.UnmountAll(ctx, root); umErr != nil {
			m.logger.Warn("stale clone unmount failed",
				slog.String("dataset", dataset), slog.String("error", umErr.Error()))
		}
	}
	return m.clones.Destroy(ctx, dataset)
}

// provision runs the full creation pipeline: clone, mounts, jail, resource
// rules, setup command, in that order. Any failure rolls back everything
// provisioned so far and re-raises the original error; partial sandboxes are
// never left behind.
func (m *Manager) provision(ctx context.Context, name string, spec Spec) (err error) {
	defer func() {
		if err == nil {
			return
		}
		report := m.destroyUnit(ctx, name, spec)
		for _, step := range report.Failed() {
			m.logger.Error("rollback step failed",
				slog.String("jail", name),
				slog.String("step", step.Step),
				slog.String("error", step.Err.Error()),
			)
		}
	}()

	root, err := m.clones.Clone(ctx, spec.Clone, name)
	if err != nil {
		return fmt.Errorf("provisioning clone for %s: %w", name, err)
	}
	if err = m.mounts.Apply(ctx, root, spec.MountPlan()); err != nil {
		return fmt.Errorf("mounting sandbox %s: %w", name, err)
	}
	if err = m.jails.Create(ctx, name, root, spec.JailOptions()); err != nil {
		return fmt.Errorf("creating sandbox %s: %w", name, err)
	}
	if err = m.limits.Apply(ctx, name, spec.Limits); err != nil {
		return fmt.Errorf("limiting sandbox %s: %w", name, err)
	}
	if spec.SetupCommand != "" {
		_, err = m.jails.Exec(ctx, name, []string{"/bin/sh", "-c", spec.SetupCommand}, jail.ExecOptions{
			User: spec.UserID,
			Dir:  spec.Workdir,
		})
		if err != nil {
			return fmt.Errorf("setup command in %s: %w", name, err)
		}
	}
	m.logger.Info("sandbox provisioned", slog.String("jail", name), slog.String("root", root))
	return nil
}

// Exec runs a command inside the sandbox and refreshes its last-used time.
func (m *Manager) Exec(ctx context.Context, name string, argv []string, opts jail.ExecOptions) (*jail.ExecResult, error) {
	result, err := m.jails.Exec(ctx, name, argv, opts)
	if entry, regErr := m.registry.Get(name); regErr == nil && entry != nil {
		entry.LastUsedAt = m.now()
		if upErr := m.registry.Upsert(entry); upErr != nil {
			m.logger.Warn("registry touch failed", slog.String("jail", name),
				slog.String("error", upErr.Error()))
		}
	}
	return result, err
}

// StepResult records the outcome of one teardown step.
type StepResult struct {
	Step string // "jail-remove", "rctl-remove", "unmount", "clone-destroy"
	Err  error
}

// DestroyReport aggregates the independently best-effort teardown steps.
type DestroyReport struct {
	Steps []StepResult
}

// Failed returns the steps that errored.
func (r DestroyReport) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// UnitRemovalFailed reports whether the jail-removal step failed; this is
// the one step whose failure fails the destroy as a whole.
func (r DestroyReport) UnitRemovalFailed() bool {
	for _, s := range r.Steps {
		if s.Step == "jail-remove" && s.Err != nil {
			return true
		}
	}
	return false
}

// Err returns the first step error, or nil.
func (r DestroyReport) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Destroy tears the sandbox down and drops its registry entry. Idempotent:
// destroying a scope with no backing jail or clone succeeds. The returned
// error is non-nil only when the jail itself could not be removed.
func (m *Manager) Destroy(ctx context.Context, key ScopeKey, spec Spec) (DestroyReport, error) {
	lock := m.scopeLock(key.String())
	lock.Lock()
	defer lock.Unlock()

	name := UnitName(spec.Prefix, key)
	report := m.destroyUnit(ctx, name, spec)
	if report.UnitRemovalFailed() {
		return report, fmt.Errorf("destroying sandbox %s: %w", name, report.Err())
	}
	if err := m.registry.Delete(name); err != nil {
		m.logger.Warn("registry delete failed", slog.String("jail", name),
			slog.String("error", err.Error()))
	}
	return report, nil
}

// destroyUnit is the teardown sequence shared by Destroy, drift recreation,
// and provisioning rollback: remove the jail (graceful, the kernel signals
// everything inside), drop resource rules, unmount deepest-first, destroy
// the clone. Every step runs regardless of earlier failures so teardown
// converges on "absent" even under partial failure.
func (m *Manager) destroyUnit(ctx context.Context, name string, spec Spec) DestroyReport {
	var report DestroyReport
	record := func(step string, err error) {
		report.Steps = append(report.Steps, StepResult{Step: step, Err: err})
	}

	state, err := m.jails.QueryState(ctx, name)
	if err != nil {
		m.logger.Warn("jail state query failed during destroy",
			slog.String("jail", name), slog.String("error", err.Error()))
		state = jail.State{Exists: true} // assume the worst, try removal anyway
	}
	if state.Exists {
		record("jail-remove", m.jails.Remove(ctx, name))
	}

	record("rctl-remove", m.limits.RemoveAll(ctx, name))

	dataset := spec.Clone.Dataset(name)
	if root, mpErr := m.clones.Mountpoint(ctx, dataset); mpErr == nil && root != "" {
		_, unmountErr := m.mounts.UnmountAll(ctx, root)
		record("unmount", unmountErr)
	}

	cloneErr := m.clones.Destroy(ctx, dataset)
	record("clone-destroy", cloneErr)
	if cloneErr != nil {
		// The one leak a failed destroy can leave behind; log enough to
		// remediate by hand.
		m.logger.Error("orphaned sandbox clone",
			slog.String("jail", name),
			slog.String("dataset", dataset),
			slog.String("error", cloneErr.Error()),
		)
	}
	return report
}

// State returns the live kernel view of a sandbox jail.
func (m *Manager) State(ctx context.Context, name string) (jail.State, error) {
	return m.jails.QueryState(ctx, name)
}

// Info joins a registry entry with the live jail state for display.
type Info struct {
	Entry *Entry
	State jail.State
}

// List returns all registered sandboxes with their live state, oldest first.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	entries, err := m.registry.Load()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		state, err := m.jails.QueryState(ctx, entry.UnitName)
		if err != nil {
			m.logger.Warn("jail state query failed",
				slog.String("jail", entry.UnitName), slog.String("error", err.Error()))
		}
		infos = append(infos, Info{Entry: entry, State: state})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Entry.CreatedAt.Before(infos[j].Entry.CreatedAt)
	})
	return infos, nil
}

// ConnectCmd returns a command that attaches an interactive shell to a
// sandbox jail.
func (m *Manager) ConnectCmd(name string) *exec.Cmd {
	return jail.AttachCmd(name)
}

func (m *Manager) now() time.Time {
	if m.policy.Now != nil {
		return m.policy.Now()
	}
	return time.Now()
}
