package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
)

func newScanCmd(a *app) *cobra.Command {
	var consolidate bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the vault and report what it contains",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultPath, err := a.resolveVault()
			if err != nil {
				return err
			}
			res, err := vault.NewScanner(a.scanOptions(vaultPath)).Scan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if consolidate {
				_, err := fmt.Fprintln(out, vault.Consolidate(res))
				return err
			}
			if a.flags.jsonMode {
				return printJSON(out, res.Stats)
			}
			s := res.Stats
			fmt.Fprintf(out, "Files scanned: %d (%d skipped, %d bytes)\n", s.FilesScanned, s.FilesSkipped, s.BytesScanned)
			fmt.Fprintf(out, "Tasks: %d (%d done, %d open)\n", s.TotalTasks(), s.CompletedTasks, s.IncompleteTasks)
			if len(s.Tags) > 0 {
				fmt.Fprintf(out, "Tags: %s\n", strings.Join(s.Tags, ", "))
			}
			if len(s.Links) > 0 {
				fmt.Fprintf(out, "Links: %s\n", strings.Join(s.Links, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&consolidate, "consolidate", false, "print the scanned notes as one document")
	return cmd
}
