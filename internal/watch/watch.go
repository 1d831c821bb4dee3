// Package watch re-runs a sync pass whenever notes in a vault change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/logging"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
)

// DefaultDebounce is the quiet period after the last change before a pass
// runs.
const DefaultDebounce = 500 * time.Millisecond

// TriggerFunc runs one pass. Its error is logged and watching continues.
type TriggerFunc func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// Scan supplies the root and the include and exclude globs.
	Scan     vault.ScanOptions
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher watches every non-excluded directory of a vault.
type Watcher struct {
	fsw      *fsnotify.Watcher
	filter   *vault.Scanner
	root     string
	debounce time.Duration
	trigger  TriggerFunc
	log      *zap.Logger
}

// New creates a watcher over opts.Scan.Root. Call Run to start it.
func New(opts Options, trigger TriggerFunc) (*Watcher, error) {
	if trigger == nil {
		return nil, errors.New("watch: nil trigger")
	}
	info, err := os.Stat(opts.Scan.Root)
	if err != nil {
		return nil, fmt.Errorf("watch vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch vault: %s is not a directory", opts.Scan.Root)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		filter:   vault.NewScanner(opts.Scan),
		root:     opts.Scan.Root,
		debounce: opts.Debounce,
		trigger:  trigger,
		log:      logging.OrNop(opts.Logger).Named("watch"),
	}, nil
}

// Run watches until ctx ends, then closes the watcher. It returns nil on
// cancellation. A pass still running when ctx ends is allowed to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info("watching vault", zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			w.log.Debug("vault changed, syncing")
			if err := w.trigger(ctx); err != nil {
				w.log.Warn("sync after change failed", zap.Error(err))
			}
		}
	}
}

// handle reacts to one event and reports whether it should schedule a pass.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.filter.Excluded(rel, true) {
				return false
			}
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("watch new directory", zap.String("path", rel), zap.Error(err))
			}
			return true
		}
	}
	if w.filter.Excluded(rel, false) || !w.filter.Included(rel) {
		return false
	}
	w.log.Debug("note changed", zap.String("path", rel), zap.String("op", event.Op.String()))
	return true
}

// addTree watches dir and its non-excluded subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, err := filepath.Rel(w.root, path)
			if err == nil && w.filter.Excluded(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
