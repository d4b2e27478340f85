// Package zfs manages the copy-on-write clone datasets that back sandbox
// roots. Each sandbox gets one clone of a golden snapshot, named after the
// sandbox's jail, under a common clone-parent dataset.
package zfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KLDTECHNIX/openclaw/internal/hostcmd"
)

// CloneSpec identifies the golden snapshot and where clones live.
type CloneSpec struct {
	BaseDataset  string // e.g. "zroot/openclaw/base"
	BaseSnapshot string // e.g. "ready"
	CloneParent  string // e.g. "zroot/openclaw/sandboxes"
}

// Origin returns the base@snapshot identifier clones derive from.
func (s CloneSpec) Origin() string {
	return s.BaseDataset + "@" + s.BaseSnapshot
}

// Dataset returns the full dataset name for a sandbox clone.
func (s CloneSpec) Dataset(name string) string {
	return s.CloneParent + "/" + name
}

// Store talks to the zfs tool. It is the only component that does.
type Store struct {
	run    *hostcmd.Runner
	logger *slog.Logger
}

func NewStore(run *hostcmd.Runner, logger *slog.Logger) *Store {
	return &Store{run: run, logger: logger}
}

// Exists reports whether the dataset exists.
func (s *Store) Exists(ctx context.Context, dataset string) (bool, error) {
	out, err := s.run.Run(ctx, "zfs", "list", "-H", "-o", "name", dataset)
	if err != nil {
		// zfs list exits non-zero for a missing dataset; that is the
		// answer, not a failure.
		if hostcmd.ExitCode(err) > 0 {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) == dataset, nil
}

// Clone ensures spec.CloneParent/name exists as a clone of the golden
// snapshot and returns its mountpoint. Idempotent: an existing dataset is
// returned as-is with no side effects.
func (s *Store) Clone(ctx context.Context, spec CloneSpec, name string) (string, error) {
	dataset := spec.Dataset(name)

	exists, err := s.Exists(ctx, dataset)
	if err != nil {
		return "", fmt.Errorf("checking clone %s: %w", dataset, err)
	}
	if !exists {
		if err := s.ensureParent(ctx, spec.CloneParent); err != nil {
			return "", err
		}
		if _, err := s.run.Run(ctx, "zfs", "clone", spec.Origin(), dataset); err != nil {
			return "", fmt.Errorf("cloning %s to %s: %w", spec.Origin(), dataset, err)
		}
		s.logger.Info("cloned sandbox dataset",
			slog.String("origin", spec.Origin()),
			slog.String("dataset", dataset),
		)
	}

	return s.Mountpoint(ctx, dataset)
}

// ensureParent creates the clone-parent hierarchy. Two callers racing on the
// same parent are tolerated: a failed create is downgraded to success when a
// re-check finds the dataset present.
func (s *Store) ensureParent(ctx context.Context, parent string) error {
	exists, err := s.Exists(ctx, parent)
	if err != nil {
		return fmt.Errorf("checking clone parent %s: %w", parent, err)
	}
	if exists {
		return nil
	}
	if _, err := s.run.Run(ctx, "zfs", "create", "-p", parent); err != nil {
		exists, checkErr := s.Exists(ctx, parent)
		if checkErr == nil && exists {
			s.logger.Debug("clone parent create raced, already present",
				slog.String("dataset", parent))
			return nil
		}
		return fmt.Errorf("creating clone parent %s: %w", parent, err)
	}
	return nil
}

// Destroy removes the dataset and everything beneath it (descendant
// snapshots and datasets created during the sandbox's life). No-op if the
// dataset is already gone.
func (s *Store) Destroy(ctx context.Context, dataset string) error {
	exists, err := s.Exists(ctx, dataset)
	if err != nil {
		return fmt.Errorf("checking dataset %s: %w", dataset, err)
	}
	if !exists {
		return nil
	}
	if _, err := s.run.Run(ctx, "zfs", "destroy", "-r", dataset); err != nil {
		return fmt.Errorf("destroying %s: %w", dataset, err)
	}
	s.logger.Info("destroyed sandbox dataset", slog.String("dataset", dataset))
	return nil
}

// Mountpoint returns where the dataset is mounted.
func (s *Store) Mountpoint(ctx context.Context, dataset string) (string, error) {
	out, err := s.run.Run(ctx, "zfs", "get", "-H", "-o", "value", "mountpoint", dataset)
	if err != nil {
		return "", fmt.Errorf("reading mountpoint of %s: %w", dataset, err)
	}
	mp := strings.TrimSpace(out)
	if mp == "" || mp == "-" || mp == "none" || mp == "legacy" {
		return "", fmt.Errorf("dataset %s has no usable mountpoint (%q)", dataset, mp)
	}
	return mp, nil
}
