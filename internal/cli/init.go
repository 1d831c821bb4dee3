package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Prepare a vault for synchronization",
		Long: "Create the vault directory, its .taskmaster-sync.yaml and TASKMASTER.md\n" +
			"files, and the task store partition. Existing files are left alone.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.vaultPath == "" {
				return usagef("no vault path: pass --vault or set vault.path in config.yaml")
			}
			res, err := a.engine(a.vaultPath, nil).Init(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			verb := "initialized"
			if a.flags.dryRun {
				verb = "would be initialized"
			}
			fmt.Fprintf(out, "Vault %s at %s\n", verb, res.VaultPath)
			for _, item := range []struct {
				done bool
				what string
			}{
				{res.DirCreated, "vault directory"},
				{res.ConfigCreated, "sync config"},
				{res.InstructionsCreated, "instructions note"},
				{res.PartitionCreated, fmt.Sprintf("partition %s", a.partition)},
			} {
				if item.done {
					fmt.Fprintf(out, "  created %s\n", item.what)
				}
			}
			return nil
		},
	}
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("%s takes no arguments, got %q", cmd.CommandPath(), args[0])
	}
	return nil
}

// exactArgs requires n positional arguments.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("%s takes %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
