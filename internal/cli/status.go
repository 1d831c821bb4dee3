package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/status"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the task store with the vault without changing either",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultPath, vaultErr := a.resolveVault()
			scan := func(ctx context.Context) (*vault.ScanResult, error) {
				if vaultErr != nil {
					return nil, vaultErr
				}
				return vault.NewScanner(a.scanOptions(vaultPath)).Scan(ctx)
			}
			return status.Build(cmd.Context(), a.partition, a.readPartition, scan).Write(cmd.OutOrStdout(), a.flags.jsonMode)
		},
	}
}
