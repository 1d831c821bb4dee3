package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GasparDanilo/obsidian-task-master/internal/identity"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

type resolution struct {
	ID         string   `json:"id"`
	Token      string   `json:"token"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates,omitempty"`
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id|[[title]]>",
		Short: "Translate between task ids and [[title]] tokens",
		Long: `Resolve prints the [[title]] token for an id such as 7 or 7.2, or the id
for a token. Tokens match exact titles first and then title substrings;
when several tasks match, the first in store order wins.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.readPartition()
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("partition %s: %w", a.partition, types.ErrNotFound)
			}

			res := resolution{}
			var ref types.TaskRef
			if parsed, perr := identity.ParseRef(args[0]); perr == nil {
				ref = parsed
				if res.Token, err = identity.ResolveToToken(ref, p); err != nil {
					return err
				}
			} else {
				if ref, err = identity.ResolveToID(args[0], p); err != nil {
					return err
				}
				res.Token = identity.Token(title(p, ref))
				for _, c := range identity.Ambiguous(args[0], p) {
					res.Candidates = append(res.Candidates, c.String())
				}
				if len(res.Candidates) < 2 {
					res.Candidates = nil
				}
			}
			res.ID = ref.String()
			res.Title = title(p, ref)

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%s\t%s\n", res.ID, res.Token)
			if len(res.Candidates) > 0 {
				fmt.Fprintf(out, "ambiguous: also matches %v\n", res.Candidates[1:])
			}
			return nil
		},
	}
}

func title(p *types.Partition, ref types.TaskRef) string {
	t := p.Task(ref.ID)
	if t == nil {
		return ""
	}
	if ref.IsSubtask() {
		if st := t.Subtask(ref.SubID); st != nil {
			return st.Title
		}
		return ""
	}
	return t.Title
}
