package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/reconcile"
)

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a note for every task that has none",
		Long: "Export renders each task without a source file into its own note under\n" +
			"the export folder and links the task to it.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultPath, err := a.resolveVault()
			if err != nil {
				return err
			}
			res, err := a.engine(vaultPath, nil).Export(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Exported %d task(s), %d note(s) written\n", res.Linked, res.Written)
			for _, f := range res.Files {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", reconcile.DefaultExportDir, "vault folder for exported notes")
	return cmd
}
