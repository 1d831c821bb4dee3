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

	"github.com/GasparDanilo/obsidian-task-master/internal/projector"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Side names the version that wins when a conflict is settled.
type Side string

// Conflict sides.
const (
	KeepText  Side = "text"
	KeepStore Side = "store"
)

// ParseSide converts s to a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case KeepText:
		return KeepText, nil
	case KeepStore:
		return KeepStore, nil
	}
	return "", &types.ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q (want text or store)", s)}
}

// ResolveConflict settles a conflicted task on a human's instruction. With
// KeepText the task takes the title and status of its vault record; with
// KeepStore the vault checkbox is rewritten from the task. Either way the
// task is marked synced and stamped. Subtasks of the task are settled too.
func (e *Engine) ResolveConflict(ctx context.Context, id int, side Side) (*types.Task, error) {
	p, err := e.loadPartition(false)
	if err != nil {
		return nil, err
	}
	t := p.Task(id)
	if t == nil {
		return nil, fmt.Errorf("task %d: %w", id, types.ErrNotFound)
	}
	if t.SourceFile == "" {
		return nil, &types.ValidationError{Field: "task", Reason: fmt.Sprintf("task %d has no source file", id)}
	}
	abs, err := e.vaultFile(t.SourceFile)
	if err != nil {
		return nil, err
	}
	data, err := vault.ReadFile(ctx, abs, e.fileTimeout())
	if err != nil && !(side == KeepStore && errors.Is(err, fs.ErrNotExist)) {
		return nil, &types.FileError{Path: t.SourceFile, Err: err}
	}

	switch side {
	case KeepText:
		if err := e.keepText(t, data, abs); err != nil {
			return nil, err
		}
	case KeepStore:
		if err := e.keepStore(t, data, abs, err == nil); err != nil {
			return nil, err
		}
	default:
		return nil, &types.ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", side)}
	}

	now := e.now()
	stampTask(t, now)
	for i := range t.Subtasks {
		if t.Subtasks[i].SyncStatus == types.SyncConflict {
			stampSubtask(&t.Subtasks[i], now)
		}
	}
	e.would("settle conflict", zap.Int("id", id), zap.String("keep", string(side)))
	if e.opts.DryRun {
		return t, nil
	}
	if err := e.savePartition(p); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) keepText(t *types.Task, data []byte, abs string) error {
	info, err := os.Stat(abs)
	if err != nil {
		return &types.FileError{Path: t.SourceFile, Err: err}
	}
	res := vault.ExtractFile(t.SourceFile, data, info.ModTime())
	var rec *types.VaultRecord
	for i := range res.Records {
		r := &res.Records[i]
		if r.Parent == "" && types.KeyOf(t).Equal(r.Key()) {
			rec = r
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("task %d in %s: %w", t.ID, t.SourceFile, types.ErrNotFound)
	}
	t.Title = rec.Title
	t.Status = RecordStatus(t.Status, rec.Completed)
	if desc, ok := frontmatterString(rec, "description"); ok && rec.Primary {
		t.Description = desc
	}
	for i := range res.Records {
		r := &res.Records[i]
		if r.Parent == "" {
			continue
		}
		for j := range t.Subtasks {
			st := &t.Subtasks[j]
			if st.SyncStatus == types.SyncConflict && types.TitlesEqual(st.Title, r.Title) {
				st.Status = RecordStatus(st.Status, r.Completed)
			}
		}
	}
	return nil
}

func (e *Engine) keepStore(t *types.Task, data []byte, abs string, exists bool) error {
	var content string
	if exists {
		next, changed := projector.Update(string(data), t)
		if !changed {
			return nil
		}
		content = next
	} else {
		content = projector.Render(t)
	}
	if e.opts.DryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &types.FileError{Path: t.SourceFile, Err: err}
	}
	if err := atomic.WriteFile(abs, strings.NewReader(content)); err != nil {
		return &types.FileError{Path: t.SourceFile, Err: err}
	}
	return nil
}
