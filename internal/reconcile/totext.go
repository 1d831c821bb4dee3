package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GasparDanilo/obsidian-task-master/internal/projector"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// fileGroup is the set of tasks projected into one vault file. A file has a
// single writer.
type fileGroup struct {
	file  string
	tasks []types.Task
}

type groupOutcome struct {
	created   int
	updated   int
	unchanged int
	errs      []TaskError
}

// ToText projects every task with a source file into the vault. Missing
// files are rendered from scratch; existing files get a minimal checkbox
// update and are only rewritten when the text changed. Tasks without a
// source file are skipped.
func (e *Engine) ToText(ctx context.Context) (*Result, error) {
	res := &Result{Mode: ModeToText, DryRun: e.opts.DryRun, StartedAt: e.now()}
	if err := e.requireVault(); err != nil {
		return nil, err
	}
	p, err := e.loadPartition(false)
	if err != nil {
		return nil, err
	}

	groups, skipped := groupBySource(p.Tasks)
	res.Skipped = skipped

	outcomes := make([]groupOutcome, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.projectFile(gctx, grp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("project tasks: %w", err)
	}

	for _, o := range outcomes {
		res.Created += o.created
		res.Updated += o.updated
		res.Unchanged += o.unchanged
		res.Errors = append(res.Errors, o.errs...)
	}
	res.FinishedAt = e.now()
	e.log.Info(res.Summary())
	e.record(ctx, res)
	return res, nil
}

// groupBySource groups tasks by source file in order of first appearance
// and counts the tasks that have none.
func groupBySource(tasks []types.Task) ([]fileGroup, int) {
	var groups []fileGroup
	index := make(map[string]int)
	skipped := 0
	for _, t := range tasks {
		if strings.TrimSpace(t.SourceFile) == "" {
			skipped++
			continue
		}
		i, ok := index[t.SourceFile]
		if !ok {
			i = len(groups)
			index[t.SourceFile] = i
			groups = append(groups, fileGroup{file: t.SourceFile})
		}
		groups[i].tasks = append(groups[i].tasks, t)
	}
	return groups, skipped
}

func (e *Engine) projectFile(ctx context.Context, grp fileGroup) groupOutcome {
	var out groupOutcome
	fail := func(err error) groupOutcome {
		failed := groupOutcome{}
		for _, t := range grp.tasks {
			failed.errs = append(failed.errs, TaskError{TaskID: t.ID, File: grp.file, Err: err})
			e.log.Warn("projection failed", zap.Int("id", t.ID), zap.String("file", grp.file), zap.Error(err))
		}
		return failed
	}

	abs, err := e.vaultFile(grp.file)
	if err != nil {
		return fail(err)
	}
	exists := true
	data, err := vault.ReadFile(ctx, abs, e.fileTimeout())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return fail(err)
	}

	original := string(data)
	content := original
	rendered := false
	for i := range grp.tasks {
		t := &grp.tasks[i]
		if err := types.ValidateTitle("title", t.Title); err != nil {
			out.errs = append(out.errs, TaskError{TaskID: t.ID, File: grp.file, Err: err})
			e.log.Warn("projection failed", zap.Int("id", t.ID), zap.String("file", grp.file), zap.Error(err))
			continue
		}
		if !exists && !rendered {
			content = projector.Render(t)
			rendered = true
			out.created++
			e.would("create file", zap.Int("id", t.ID), zap.String("file", grp.file))
			continue
		}
		next, changed := projector.Update(content, t)
		if !changed {
			out.unchanged++
			e.log.Debug("file up to date", zap.Int("id", t.ID), zap.String("file", grp.file))
			continue
		}
		content = next
		out.updated++
		e.would("update file", zap.Int("id", t.ID), zap.String("file", grp.file), zap.String("status", string(t.Status)))
	}

	if (exists && content == original) || (!exists && !rendered) || e.opts.DryRun {
		return out
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fail(fmt.Errorf("create directory: %w", err))
	}
	if err := atomic.WriteFile(abs, strings.NewReader(content)); err != nil {
		return fail(fmt.Errorf("write file: %w", err))
	}
	return out
}
