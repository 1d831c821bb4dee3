package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/reconcile"
	"github.com/GasparDanilo/obsidian-task-master/internal/watch"
)

func newSyncCmd(a *app) *cobra.Command {
	var (
		mode      string
		watchFlag bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the task store and the vault",
		Long: `Sync runs one synchronization pass.

Modes:
  to-text        write task status into vault notes
  from-text      read vault checklists into the task store
  bidirectional  from-text, then to-text (default)

With --watch the pass is repeated whenever a note changes.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reconcile.ParseMode(mode)
			if err != nil {
				return err
			}
			vaultPath, err := a.resolveVault()
			if err != nil {
				return err
			}
			j := a.openJournal()
			defer closeJournal(j)
			e := a.engine(vaultPath, j)

			pass := func(ctx context.Context) error {
				results, err := e.Run(ctx, m)
				if err != nil {
					return err
				}
				return a.report(cmd, results)
			}
			if err := pass(cmd.Context()); err != nil {
				return err
			}
			if !watchFlag {
				return nil
			}

			w, err := watch.New(watch.Options{
				Scan:     a.scanOptions(vaultPath),
				Debounce: a.settings.Debounce,
				Logger:   a.log,
			}, pass)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(reconcile.ModeBidirectional), "to-text, from-text or bidirectional")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "keep running and sync after every vault change")
	return cmd
}

// report prints pass results. Per-task failures turn into an error after
// the summary is printed.
func (a *app) report(cmd *cobra.Command, results []*reconcile.Result) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printResult(out, r)
		}
	}
	failed := 0
	for _, r := range results {
		failed += len(r.Errors)
	}
	if failed > 0 {
		return fmt.Errorf("%d task(s) could not be synchronized", failed)
	}
	return nil
}
