package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/KLDTECHNIX/openclaw/internal/config"
	"github.com/KLDTECHNIX/openclaw/internal/hostcmd"
	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/logging"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/rctl"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	"github.com/KLDTECHNIX/openclaw/internal/tui"
	"github.com/KLDTECHNIX/openclaw/internal/workspace"
	"github.com/KLDTECHNIX/openclaw/internal/zfs"
)

var debug bool

func main() {
	root := &cobra.Command{
		Use:   "clawjail",
		Short: "Jail sandboxes for AI agents on ZFS clones",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logging.SetDebug()
			}
		},
		RunE: runTUI,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log host tool invocations")

	root.AddCommand(initCmd())
	root.AddCommand(ensureCmd())
	root.AddCommand(execCmd())
	root.AddCommand(destroyCmd())
	root.AddCommand(recreateCmd())
	root.AddCommand(listCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// recreateHint renders the command a user can paste to force-recreate a
// drifted sandbox; the reconciler logs it instead of yanking a hot sandbox.
func recreateHint(key sandbox.ScopeKey) string {
	return "clawjail recreate " + key.String()
}

// newManager wires the reconciler against the real kernel tools.
func newManager(projectDir string, cfg *config.Config) *sandbox.Manager {
	logger := logging.Logger()
	run := hostcmd.New(0, logger)
	return sandbox.NewManager(
		zfs.NewStore(run, logger),
		mount.NewPlanner(run, logger),
		rctl.NewLimiter(run, logger),
		jail.NewManager(run, logger, 0),
		sandbox.NewRegistry(config.RegistryPath(projectDir)),
		cfg.HotPolicy(),
		recreateHint,
		logger,
	)
}

// loadProject returns the project dir, its config, and a wired manager.
func loadProject() (string, *config.Config, *sandbox.Manager, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return "", nil, nil, err
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return "", nil, nil, fmt.Errorf("not a clawjail project (run `clawjail init` first): %w", err)
	}
	return projectDir, cfg, newManager(projectDir, cfg), nil
}

// specFor resolves the workspace for a scope key and materializes the spec.
func specFor(projectDir string, cfg *config.Config, key sandbox.ScopeKey) (sandbox.Spec, error) {
	paths, err := workspace.Resolve(projectDir, cfg, key)
	if err != nil {
		return sandbox.Spec{}, err
	}
	return cfg.Spec(paths.Dir, paths.AgentDir, paths.Access), nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize clawjail in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}
			if config.Exists(projectDir) {
				fmt.Println("clawjail already initialized in this project.")
				return nil
			}

			det := config.Detect()
			for _, warning := range det.Warnings {
				fmt.Fprintln(os.Stderr, "Warning:", warning)
			}
			if !det.Ready() {
				return fmt.Errorf("host is missing jail or zfs tooling; cannot manage sandboxes")
			}

			cfg := config.Default(filepath.Base(projectDir))
			if err := config.Save(projectDir, cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Initialized clawjail for %s\n", cfg.Project)
			fmt.Printf("  Config: %s/%s\n", config.Dir, config.ConfigFile)
			fmt.Println("\nEdit the zfs section to point at your golden base@snapshot,")
			fmt.Println("then run `clawjail ensure session:<id>` or just `clawjail`.")
			return nil
		},
	}
}

func ensureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <scope>",
		Short: "Make the sandbox for a scope exist and match the configuration",
		Long:  "Scope is session:<id>, agent:<id>, or shared.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sandbox.ParseScopeKey(args[0])
			if err != nil {
				return err
			}
			projectDir, cfg, mgr, err := loadProject()
			if err != nil {
				return err
			}
			spec, err := specFor(projectDir, cfg, key)
			if err != nil {
				return err
			}
			name, err := mgr.Ensure(cmd.Context(), key, spec)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
}

func execCmd() *cobra.Command {
	var (
		user     string
		dir      string
		env      []string
		tolerate bool
	)
	cmd := &cobra.Command{
		Use:   "exec <scope> <command...>",
		Short: "Run a command inside a scope's sandbox",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sandbox.ParseScopeKey(args[0])
			if err != nil {
				return err
			}
			projectDir, cfg, mgr, err := loadProject()
			if err != nil {
				return err
			}
			spec, err := specFor(projectDir, cfg, key)
			if err != nil {
				return err
			}
			name, err := mgr.Ensure(cmd.Context(), key, spec)
			if err != nil {
				return err
			}

			argv := args[1:]
			if len(argv) == 1 {
				// A single quoted string is tokenized shell-style.
				if argv, err = shlex.Split(argv[0]); err != nil {
					return fmt.Errorf("parsing command: %w", err)
				}
			}

			opts := jail.ExecOptions{
				User:         user,
				Dir:          dir,
				Env:          parseEnv(env),
				AllowFailure: tolerate,
			}
			if opts.User == "" {
				opts.User = spec.UserID
			}
			if opts.Dir == "" {
				opts.Dir = spec.Workdir
			}
			if len(spec.Env) > 0 {
				merged := make(map[string]string, len(spec.Env)+len(opts.Env))
				for k, v := range spec.Env {
					merged[k] = v
				}
				for k, v := range opts.Env {
					merged[k] = v
				}
				opts.Env = merged
			}

			result, err := mgr.Exec(cmd.Context(), name, argv, opts)
			if result != nil {
				fmt.Print(result.Stdout)
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if err != nil {
				return err
			}
			if result.ExitCode != 0 {
				os.Exit(result.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "run as this uid/user inside the jail")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "working directory inside the jail")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "extra environment (KEY=value)")
	cmd.Flags().BoolVar(&tolerate, "allow-failure", false, "report a non-zero exit instead of failing")
	return cmd
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <scope>",
		Short: "Tear down a scope's sandbox (jail, limits, mounts, clone)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sandbox.ParseScopeKey(args[0])
			if err != nil {
				return err
			}
			projectDir, cfg, mgr, err := loadProject()
			if err != nil {
				return err
			}
			spec, err := specFor(projectDir, cfg, key)
			if err != nil {
				return err
			}
			report, err := mgr.Destroy(cmd.Context(), key, spec)
			if err != nil {
				return err
			}
			for _, step := range report.Failed() {
				fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", step.Step, step.Err)
			}
			if err := workspace.Remove(projectDir, cfg, key); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: workspace cleanup: %v\n", err)
			}
			fmt.Printf("Destroyed sandbox for %s\n", key)
			return nil
		},
	}
}

func recreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recreate <scope>",
		Short: "Destroy and re-provision a scope's sandbox from the current configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sandbox.ParseScopeKey(args[0])
			if err != nil {
				return err
			}
			projectDir, cfg, mgr, err := loadProject()
			if err != nil {
				return err
			}
			spec, err := specFor(projectDir, cfg, key)
			if err != nil {
				return err
			}
			if _, err := mgr.Destroy(cmd.Context(), key, spec); err != nil {
				return err
			}
			name, err := mgr.Ensure(cmd.Context(), key, spec)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sandboxes and their live state",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, cfg, mgr, err := loadProject()
			if err != nil {
				return err
			}
			infos, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No sandboxes.")
				return nil
			}
			fmt.Printf("%-24s %-16s %-8s %-7s %s\n", "JAIL", "SCOPE", "STATE", "DRIFT", "LAST USED")
			for _, info := range infos {
				state := "absent"
				if info.State.Running {
					state = "running"
				} else if info.State.Exists {
					state = "dying"
				}
				drift := "-"
				if key, perr := sandbox.ParseScopeKey(info.Entry.ScopeKey); perr == nil {
					if spec, serr := specFor(projectDir, cfg, key); serr == nil &&
						sandbox.Fingerprint(spec) != info.Entry.Fingerprint {
						drift = "yes"
					}
				}
				fmt.Printf("%-24s %-16s %-8s %-7s %s\n",
					info.Entry.UnitName, info.Entry.ScopeKey, state, drift,
					info.Entry.LastUsedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	projectDir, cfg, mgr, err := loadProject()
	if err != nil {
		return err
	}
	return tui.Run(projectDir, cfg, mgr)
}

func parseEnv(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, _ := strings.Cut(pair, "=")
		env[k] = v
	}
	return env
}
