package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// FileInfo describes one scanned file.
type FileInfo struct {
	Path    string // slash-separated, relative to the vault root
	Size    int64
	ModTime time.Time
	Content string
}

// ScanResult is the outcome of a vault scan.
type ScanResult struct {
	Root    string // the scanned vault root
	Records []types.VaultRecord
	Stats   types.ScanStats
	Files   []FileInfo
}

// Scanner extracts task-like records from a vault.
type Scanner struct {
	opts ScanOptions
	log  *zap.Logger
}

// NewScanner creates a scanner, filling unset options with defaults.
func NewScanner(opts ScanOptions) *Scanner {
	opts = opts.withDefaults()
	return &Scanner{opts: opts, log: opts.Logger}
}

// Options returns the effective options.
func (s *Scanner) Options() ScanOptions {
	return s.opts
}

type candidate struct {
	rel  string
	abs  string
	info fs.FileInfo
}

type fileOutcome struct {
	file    FileInfo
	result  FileResult
	warning string
	ok      bool
}

// Scan walks the vault and extracts records. Per-file failures become
// warnings. Scan fails only when the root is missing or not a directory, or
// when no file matches the include patterns.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	root := s.opts.Root
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault %s: %w", root, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat vault %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, &types.ValidationError{Field: "vault", Reason: fmt.Sprintf("%s is not a directory", root)}
	}

	candidates, err := s.walk(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("vault %s: %w", root, types.ErrNoFiles)
	}

	outcomes := make([]fileOutcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.processFile(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}

	res := &ScanResult{Root: root}
	tags := make(map[string]struct{})
	links := make(map[string]struct{})
	for _, o := range outcomes {
		if !o.ok {
			res.Stats.FilesSkipped++
			res.Stats.Warnings = append(res.Stats.Warnings, o.warning)
			s.log.Warn("skipping file", zap.String("file", o.file.Path), zap.String("reason", o.warning))
			continue
		}
		res.Stats.FilesScanned++
		res.Stats.BytesScanned += o.file.Size
		res.Files = append(res.Files, o.file)
		for _, r := range o.result.Records {
			if r.Completed {
				res.Stats.CompletedTasks++
			} else {
				res.Stats.IncompleteTasks++
			}
		}
		res.Records = append(res.Records, o.result.Records...)
		for _, t := range o.result.Tags {
			tags[t] = struct{}{}
		}
		for _, l := range o.result.Links {
			links[l] = struct{}{}
		}
	}
	res.Stats.Tags = sortedKeys(tags)
	res.Stats.Links = sortedKeys(links)
	s.log.Debug("vault scanned",
		zap.Int("files", res.Stats.FilesScanned),
		zap.Int("skipped", res.Stats.FilesSkipped),
		zap.Int("records", len(res.Records)))
	return res, nil
}

// walk lists included files in lexical order, pruning excluded directories.
func (s *Scanner) walk(ctx context.Context) ([]candidate, error) {
	var out []candidate
	err := filepath.WalkDir(s.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.opts.Root {
				return err
			}
			s.log.Warn("walk error", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.opts.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if s.Excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.Excluded(rel, false) || !s.Included(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.log.Warn("stat failed", zap.String("path", rel), zap.Error(err))
			return nil
		}
		out = append(out, candidate{rel: rel, abs: path, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault %s: %w", s.opts.Root, err)
	}
	return out, nil
}

// Included reports whether rel matches an include pattern.
func (s *Scanner) Included(rel string) bool {
	for _, p := range s.opts.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Excluded reports whether rel matches an exclude pattern. For directories a
// pattern ending in /** also matches the directory itself.
func (s *Scanner) Excluded(rel string, dir bool) bool {
	for _, p := range s.opts.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if dir {
			if prefix, found := strings.CutSuffix(p, "/**"); found {
				if ok, _ := doublestar.Match(prefix, rel); ok {
					return true
				}
			}
		}
	}
	return false
}

func (s *Scanner) processFile(ctx context.Context, c candidate) fileOutcome {
	fi := FileInfo{Path: c.rel, Size: c.info.Size(), ModTime: c.info.ModTime()}
	out := fileOutcome{file: fi}
	if fi.Size > s.opts.MaxFileSize {
		out.warning = fmt.Sprintf("%s: %d bytes exceeds limit of %d", c.rel, fi.Size, s.opts.MaxFileSize)
		return out
	}
	data, err := ReadFile(ctx, c.abs, s.opts.FileTimeout)
	if err != nil {
		out.warning = (&types.FileError{Path: c.rel, Err: err}).Error()
		return out
	}
	if !utf8.Valid(data) {
		out.warning = fmt.Sprintf("%s: not valid UTF-8", c.rel)
		return out
	}
	out.file.Size = int64(len(data))
	out.file.Content = string(data)
	out.result = ExtractFile(c.rel, data, fi.ModTime)
	out.ok = true
	return out
}

// ReadFile reads path, giving up after timeout. A zero timeout only honours
// ctx. An abandoned read finishes in the background.
func ReadFile(ctx context.Context, path string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type readResult struct {
		data []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		data, err := os.ReadFile(path)
		ch <- readResult{data: data, err: err}
	}()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), ctx.Err())
	}
}

// Consolidate concatenates the scanned files, each under a header naming it,
// in path order. The text feeds the task generator.
func Consolidate(res *ScanResult) string {
	files := make([]FileInfo, len(res.Files))
	copy(files, res.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n", f.Path)
		b.WriteString(strings.TrimRight(f.Content, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
