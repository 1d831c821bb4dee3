// Package cli implements the task-master command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/config"
	"github.com/GasparDanilo/obsidian-task-master/internal/logging"
	"github.com/GasparDanilo/obsidian-task-master/internal/paths"
	"github.com/GasparDanilo/obsidian-task-master/internal/store"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir   string
	vaultPath   string
	storePath   string
	journalPath string
	tag         string
	dryRun      bool
	jsonMode    bool
	verbose     bool
}

// app is the state shared by subcommands once the root pre-run has
// resolved configuration.
type app struct {
	flags       rootFlags
	settings    *config.Settings
	vaultPath   string
	storePath   string
	journalPath string
	partition   string
	store       *store.Store
	log         *zap.Logger
}

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// NewRootCmd creates the top-level "task-master" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "task-master",
		Short: "Keep a Task Master task list in sync with an Obsidian vault",
		Long: "task-master synchronizes the tasks in a Task Master store with checklist\n" +
			"items in the notes of an Obsidian vault, in either direction.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: .taskmaster)")
	pf.StringVar(&a.flags.vaultPath, "vault", "", "path to the Obsidian vault")
	pf.StringVar(&a.flags.storePath, "store", "", "path to the task store (default: .taskmaster/tasks/tasks.json)")
	pf.StringVar(&a.flags.journalPath, "journal", "", "path to the sync journal database")
	pf.StringVar(&a.flags.tag, "tag", "", "task store partition (default: master)")
	pf.BoolVar(&a.flags.dryRun, "dry-run", false, "report what would change without writing anything")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newVaultCmd(a))
	return root
}

// newVaultCmd groups the vault synchronization commands.
func newVaultCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Synchronize tasks with an Obsidian vault",
	}
	cmd.AddCommand(
		newInitCmd(a),
		newSyncCmd(a),
		newStatusCmd(a),
		newScanCmd(a),
		newResolveCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newHistoryCmd(a),
		newSettleCmd(a),
	)
	return cmd
}

// setup loads config.yaml and resolves every path. Flags win over config
// values, which win over environment variables.
func (a *app) setup(cmd *cobra.Command) error {
	a.log = logging.New(cmd.ErrOrStderr(), a.flags.verbose)

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.settings, err = config.Decode(v)
	if err != nil {
		return err
	}

	if a.storePath, err = paths.ResolveStorePath(a.flags.storePath, a.settings.StorePath); err != nil {
		return fmt.Errorf("resolve store path: %w", err)
	}
	if a.vaultPath, err = paths.ResolveVaultPath(a.flags.vaultPath, a.settings.VaultPath); err != nil {
		return fmt.Errorf("resolve vault path: %w", err)
	}
	if a.journalPath, err = paths.ResolveJournalPath(a.flags.journalPath, a.settings.JournalPath); err != nil {
		a.log.Warn("no journal location", zap.Error(err))
		a.journalPath = ""
	}
	a.partition = a.flags.tag
	if a.partition == "" {
		a.partition = a.settings.Partition
	}
	a.store = store.New(a.storePath)
	a.log.Debug("configuration resolved",
		zap.String("config_dir", configDir),
		zap.String("store", a.storePath),
		zap.String("vault", a.vaultPath),
		zap.String("partition", a.partition))
	return nil
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root with args and maps the result to an exit code.
func run(ctx context.Context, root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

// exitCode maps an error to the exit status: 1 for bad input or missing
// things, 2 for everything else.
func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ue),
		errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrNoFiles),
		strings.HasPrefix(err.Error(), "unknown command"),
		strings.HasPrefix(err.Error(), "accepts "),
		strings.HasPrefix(err.Error(), "requires "):
		return exitUserError
	}
	return exitSysError
}
