package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Generator turns consolidated vault text into up to n draft tasks. Draft
// ids are provisional and dependencies refer to them.
type Generator interface {
	Generate(ctx context.Context, text string, n int) ([]types.Task, error)
}

// DroppedDependency is a draft dependency that resolved to no task.
type DroppedDependency struct {
	TaskID     int `json:"taskId"`
	Dependency int `json:"dependency"`
}

// ImportResult reports an ImportDrafts call.
type ImportResult struct {
	DryRun  bool                `json:"dryRun"`
	Created int                 `json:"created"`
	IDs     map[int]int         `json:"ids"` // provisional id to assigned id
	Dropped []DroppedDependency `json:"dropped,omitempty"`
}

// ImportDrafts appends drafts to the partition with sequential ids in draft
// order. A dependency is remapped to an earlier draft of the batch when one
// had that provisional id, kept when it names an existing task, and dropped
// otherwise. Any draft without a title rejects the whole batch.
func (e *Engine) ImportDrafts(ctx context.Context, drafts []types.Task) (*ImportResult, error) {
	for i := range drafts {
		if err := types.ValidateTitle(fmt.Sprintf("draft %d", i+1), drafts[i].Title); err != nil {
			return nil, err
		}
		for _, st := range drafts[i].Subtasks {
			if err := types.ValidateTitle(fmt.Sprintf("draft %d subtask", i+1), st.Title); err != nil {
				return nil, err
			}
		}
	}
	p, err := e.loadPartition(true)
	if err != nil {
		return nil, err
	}

	existing := make(map[int]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		existing[t.ID] = true
	}
	res := &ImportResult{DryRun: e.opts.DryRun, IDs: make(map[int]int)}
	next := p.NextID()
	batch := make(map[int]int)

	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := d
		t.ID = next
		next++
		t.SyncStatus = types.SyncPending
		t.LastSyncAt = nil
		t.Subtasks = append([]types.Subtask(nil), d.Subtasks...)
		t.ApplyDefaults()

		deps := []int{}
		for _, dep := range d.Dependencies {
			var target int
			switch mapped, ok := batch[dep]; {
			case dep == d.ID && d.ID != 0:
			case ok:
				target = mapped
			case existing[dep]:
				target = dep
			}
			if target == 0 {
				res.Dropped = append(res.Dropped, DroppedDependency{TaskID: t.ID, Dependency: dep})
				e.log.Warn("dropping unresolved dependency", zap.Int("task", t.ID), zap.Int("dependency", dep))
				continue
			}
			if !containsInt(deps, target) {
				deps = append(deps, target)
			}
		}
		t.Dependencies = deps

		if d.ID > 0 {
			batch[d.ID] = t.ID
			res.IDs[d.ID] = t.ID
		}
		p.Tasks = append(p.Tasks, t)
		res.Created++
		e.would("import task", zap.Int("id", t.ID), zap.String("title", t.Title))
	}

	if !res.DryRun && res.Created > 0 {
		if err := e.savePartition(p); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Generate scans the vault, hands the consolidated text to gen and imports
// the drafts it returns.
func (e *Engine) Generate(ctx context.Context, gen Generator, n int) (*ImportResult, error) {
	scan, err := vault.NewScanner(e.opts.Scan).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	drafts, err := gen.Generate(ctx, vault.Consolidate(scan), n)
	if err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}
	return e.ImportDrafts(ctx, drafts)
}
