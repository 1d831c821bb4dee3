// Package reconcile synchronizes a task store partition with an Obsidian
// vault in either direction.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/journal"
	"github.com/GasparDanilo/obsidian-task-master/internal/logging"
	"github.com/GasparDanilo/obsidian-task-master/internal/store"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Recorder persists a summary of each pass. *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, run *journal.Run) error
}

// Options configures an Engine.
type Options struct {
	VaultPath string
	Partition string
	DryRun    bool
	// Concurrency bounds parallel file writes in to-text passes.
	Concurrency int
	// Scan configures vault scans; its Root is always VaultPath.
	Scan vault.ScanOptions
	// Statuses narrows the statuses accepted from front matter. Empty
	// allows the full vocabulary.
	Statuses []types.Status
	Now      func() time.Time
	Logger   *zap.Logger
	Journal  Recorder
}

// Engine runs synchronization passes against one partition.
type Engine struct {
	store *store.Store
	opts  Options
	log   *zap.Logger
}

// New creates an engine over st.
func New(st *store.Store, opts Options) *Engine {
	if opts.Partition == "" {
		opts.Partition = types.DefaultPartition
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	opts.Logger = logging.OrNop(opts.Logger)
	opts.Scan.Root = opts.VaultPath
	if opts.Scan.Logger == nil {
		opts.Scan.Logger = opts.Logger
	}
	return &Engine{
		store: st,
		opts:  opts,
		log:   opts.Logger.With(zap.String("partition", opts.Partition)),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

func (e *Engine) fileTimeout() time.Duration {
	if e.opts.Scan.FileTimeout > 0 {
		return e.opts.Scan.FileTimeout
	}
	return vault.DefaultFileTimeout
}

// Bidirectional runs a from-text pass, including its store write, and then a
// to-text pass.
func (e *Engine) Bidirectional(ctx context.Context) (*BidirectionalResult, error) {
	from, err := e.FromText(ctx)
	if err != nil {
		return nil, fmt.Errorf("from-text phase: %w", err)
	}
	to, err := e.ToText(ctx)
	if err != nil {
		return &BidirectionalResult{FromText: from}, fmt.Errorf("to-text phase: %w", err)
	}
	return &BidirectionalResult{FromText: from, ToText: to}, nil
}

// Run dispatches on mode and returns the tallies in phase order.
func (e *Engine) Run(ctx context.Context, mode Mode) ([]*Result, error) {
	switch mode {
	case ModeToText:
		r, err := e.ToText(ctx)
		if err != nil {
			return nil, err
		}
		return []*Result{r}, nil
	case ModeFromText:
		r, err := e.FromText(ctx)
		if err != nil {
			return nil, err
		}
		return []*Result{r}, nil
	case ModeBidirectional:
		r, err := e.Bidirectional(ctx)
		if err != nil {
			return nil, err
		}
		return []*Result{r.FromText, r.ToText}, nil
	}
	return nil, &types.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown sync mode %q", mode)}
}

// loadPartition reads the engine's partition. A missing partition yields a
// fresh one when create is set and ErrNotFound otherwise.
func (e *Engine) loadPartition(create bool) (*types.Partition, error) {
	p, ok, err := e.store.ReadPartition(e.opts.Partition)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", e.opts.Partition, err)
	}
	if ok {
		return p, nil
	}
	if !create {
		return nil, fmt.Errorf("partition %s: %w", e.opts.Partition, types.ErrNotFound)
	}
	p = types.NewPartition(e.now(), "")
	p.Metadata.VaultPath = e.opts.VaultPath
	return p, nil
}

func (e *Engine) savePartition(p *types.Partition) error {
	p.Metadata.Updated = e.now()
	if err := e.store.WritePartition(e.opts.Partition, p); err != nil {
		return fmt.Errorf("write partition %s: %w", e.opts.Partition, err)
	}
	return nil
}

// requireVault checks that the vault root exists and is a directory.
func (e *Engine) requireVault() error {
	if err := types.ValidateVaultPath(e.opts.VaultPath); err != nil {
		return err
	}
	info, err := os.Stat(e.opts.VaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault %s: %w", e.opts.VaultPath, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("stat vault: %w", err)
	}
	if !info.IsDir() {
		return &types.ValidationError{Field: "vault", Reason: fmt.Sprintf("%s is not a directory", e.opts.VaultPath)}
	}
	return nil
}

// vaultFile maps a slash-separated source file to a path inside the vault,
// rejecting paths that escape it.
func (e *Engine) vaultFile(rel string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(rel) {
		return "", &types.ValidationError{Field: "sourceFile", Reason: fmt.Sprintf("%q is outside the vault", rel)}
	}
	return filepath.Join(e.opts.VaultPath, filepath.FromSlash(clean)), nil
}

func (e *Engine) statusAllowed(s types.Status) bool {
	if len(e.opts.Statuses) == 0 {
		return true
	}
	for _, allowed := range e.opts.Statuses {
		if allowed == s {
			return true
		}
	}
	return false
}

// record writes res to the journal. Journal failures are logged, never
// returned: the pass itself already succeeded.
func (e *Engine) record(ctx context.Context, res *Result) {
	if e.opts.Journal == nil || res.DryRun {
		return
	}
	run := &journal.Run{
		Partition:  e.opts.Partition,
		Mode:       string(res.Mode),
		DryRun:     res.DryRun,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Created:    res.Created + res.SubtasksCreated,
		Updated:    res.Updated + res.SubtasksUpdated,
		Unchanged:  res.Unchanged,
		Conflicts:  res.Conflicts,
		Skipped:    res.Skipped,
	}
	for _, te := range res.Errors {
		run.Errors = append(run.Errors, journal.RunError{TaskID: te.TaskID, File: te.File, Message: te.Err.Error()})
	}
	if err := e.opts.Journal.Record(ctx, run); err != nil {
		e.log.Warn("journal write failed", zap.Error(err))
	}
}

// would logs a dry-run action at info level and a real one at debug level.
func (e *Engine) would(action string, fields ...zap.Field) {
	if e.opts.DryRun {
		e.log.Info("would "+action, fields...)
		return
	}
	e.log.Debug(action, fields...)
}
