package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/journal"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent synchronization passes",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.journalPath == "" {
				return usagef("no journal path: pass --journal or set journal.path")
			}
			j, err := journal.Open(a.journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			partition := a.partition
			if all {
				partition = ""
			}
			runs, err := j.Recent(cmd.Context(), partition, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				if runs == nil {
					runs = []journal.Run{}
				}
				return printJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No synchronization runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tPARTITION\tMODE\tCREATED\tUPDATED\tUNCHANGED\tCONFLICTS\tERRORS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					r.StartedAt.Local().Format(time.DateTime), r.Partition, r.Mode,
					r.Created, r.Updated, r.Unchanged, r.Conflicts, len(r.Errors))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&all, "all", false, "include every partition")
	return cmd
}
