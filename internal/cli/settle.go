package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/identity"
	"github.com/GasparDanilo/obsidian-task-master/internal/reconcile"
)

func newSettleCmd(a *app) *cobra.Command {
	var keep string
	cmd := &cobra.Command{
		Use:   "settle <id> --keep text|store",
		Short: "Resolve a sync conflict by keeping one side",
		Long: `Settle clears a conflict flagged by sync. --keep text copies the note's
checkbox and title into the task store; --keep store rewrites the note's
checkbox from the task store.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := identity.ParseRef(args[0])
			if err != nil {
				return err
			}
			if ref.IsSubtask() {
				return usagef("settle takes a task id; subtasks are settled with their task")
			}
			side, err := reconcile.ParseSide(keep)
			if err != nil {
				return err
			}
			vaultPath, err := a.resolveVault()
			if err != nil {
				return err
			}
			t, err := a.engine(vaultPath, nil).ResolveConflict(cmd.Context(), ref.ID, side)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, t)
			}
			fmt.Fprintf(out, "Task %d %q settled, keeping %s (status %s)\n", t.ID, t.Title, side, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "side to keep: text or store")
	return cmd
}
