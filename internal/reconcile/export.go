package reconcile

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/projector"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// DefaultExportDir is the vault folder exported notes are written to.
const DefaultExportDir = "Tasks"

// ExportResult reports an Export call.
type ExportResult struct {
	DryRun  bool     `json:"dryRun"`
	Files   []string `json:"files"`
	Linked  int      `json:"linked"`
	Written int      `json:"written"`
}

// Export gives every task without a source file a note of its own under
// dir and links the task to it, so later to-text passes keep the note
// current. An existing note is linked but not rewritten.
func (e *Engine) Export(ctx context.Context, dir string) (*ExportResult, error) {
	if err := e.requireVault(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DefaultExportDir
	}
	dir = path.Clean(filepath.ToSlash(dir))
	p, err := e.loadPartition(false)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{DryRun: e.opts.DryRun, Files: []string{}}
	for i := range p.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := &p.Tasks[i]
		if strings.TrimSpace(t.SourceFile) != "" {
			continue
		}
		rel := path.Join(dir, projector.FileName(t))
		abs, err := e.vaultFile(rel)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, rel)
		res.Linked++
		t.SourceFile = rel
		t.SyncStatus = types.SyncPending

		if exists(abs) {
			e.would("link task", zap.Int("id", t.ID), zap.String("file", rel))
			continue
		}
		res.Written++
		e.would("export task", zap.Int("id", t.ID), zap.String("file", rel))
		if e.opts.DryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create export directory: %w", err)
		}
		if err := atomic.WriteFile(abs, strings.NewReader(projector.Render(t))); err != nil {
			return nil, &types.FileError{Path: rel, Err: err}
		}
	}

	if !res.DryRun && res.Linked > 0 {
		if err := e.savePartition(p); err != nil {
			return nil, err
		}
	}
	return res, nil
}
