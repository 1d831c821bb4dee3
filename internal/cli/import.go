package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <drafts.json|->",
		Short: "Append generated draft tasks to the task store",
		Long: `Import reads draft tasks, as produced by a task generator, and appends them
with sequential ids. The file holds a JSON array of tasks or an object with a
"tasks" array. Draft ids are provisional: dependencies on earlier drafts are
remapped, dependencies on existing tasks are kept, and the rest are dropped.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("drafts %s: %w", args[0], types.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("read drafts: %w", err)
			}
			drafts, err := decodeDrafts(data)
			if err != nil {
				return err
			}

			res, err := a.engine(a.vaultPath, nil).ImportDrafts(cmd.Context(), drafts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Imported %d task(s) into %s\n", res.Created, a.partition)
			provisional := make([]int, 0, len(res.IDs))
			for k := range res.IDs {
				provisional = append(provisional, k)
			}
			sort.Ints(provisional)
			for _, k := range provisional {
				fmt.Fprintf(out, "  draft %d -> task %d\n", k, res.IDs[k])
			}
			for _, d := range res.Dropped {
				fmt.Fprintf(out, "  dropped dependency %d of task %d\n", d.Dependency, d.TaskID)
			}
			return nil
		},
	}
}

// decodeDrafts accepts a bare array of tasks or {"tasks": [...]}.
func decodeDrafts(data []byte) ([]types.Task, error) {
	data = bytes.TrimSpace(data)
	var drafts []types.Task
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &drafts); err != nil {
			return nil, fmt.Errorf("parse drafts: %w: %v", types.ErrInvalidData, err)
		}
		return drafts, nil
	}
	var wrapped struct {
		Tasks []types.Task `json:"tasks"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse drafts: %w: %v", types.ErrInvalidData, err)
	}
	return wrapped.Tasks, nil
}
