package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const modulePath = "github.com/GasparDanilo/obsidian-task-master"

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the task-master version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "task-master v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
