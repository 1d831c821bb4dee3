// Package store reads and writes the canonical task store: a single JSON
// document holding named partitions of tasks.
//
// Reads tolerate absence: a missing or unparsable document is an empty
// document. Writes are strict: they refuse to replace a document they cannot
// parse, replace one partition and leave every other partition's bytes
// untouched. The document is always replaced atomically.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Store accesses the task store document at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex // serializes read-modify-write cycles in this process
}

// New returns a Store for the document at path. The file need not exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the full document. A missing or unparsable file yields an
// empty document and no error; any other read failure is returned.
func (s *Store) Read() (*types.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.NewDocument(), nil
		}
		return nil, fmt.Errorf("read task store %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return types.NewDocument(), nil
	}
	doc, err := types.ParseDocument(data)
	if err != nil {
		return types.NewDocument(), nil
	}
	return doc, nil
}

// readForWrite is Read for writers. An unparsable non-empty document is an
// error wrapping types.ErrInvalidData, since rewriting it would drop every
// partition it holds.
func (s *Store) readForWrite() (*types.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.NewDocument(), nil
		}
		return nil, fmt.Errorf("read task store %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return types.NewDocument(), nil
	}
	doc, err := types.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("task store %s: %w", s.path, err)
	}
	return doc, nil
}

// Partitions returns the partition names in sorted order.
func (s *Store) Partitions() ([]string, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	return doc.Names(), nil
}

// ReadPartition decodes one partition. The boolean is false when the
// partition does not exist. A partition holding invalid records returns an
// error wrapping types.ErrInvalidData.
func (s *Store) ReadPartition(name string) (*types.Partition, bool, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, false, err
	}
	return doc.Partition(name)
}

// RequirePartition is ReadPartition for callers that need the partition to
// exist; absence returns an error wrapping types.ErrNotFound.
func (s *Store) RequirePartition(name string) (*types.Partition, error) {
	p, ok, err := s.ReadPartition(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("partition %q: %w", name, types.ErrNotFound)
	}
	return p, nil
}

// WritePartition replaces the named partition in the document read
// immediately before writing. Parent directories are created as needed. An
// existing document that does not parse is left untouched and the write
// fails with types.ErrInvalidData.
func (s *Store) WritePartition(name string, p *types.Partition) error {
	if name == "" {
		return &types.ValidationError{Field: "partition", Reason: types.ErrPartitionEmpty.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForWrite()
	if err != nil {
		return err
	}
	if err := doc.SetPartition(name, p); err != nil {
		return err
	}
	data, err := doc.MarshalIndent()
	if err != nil {
		return fmt.Errorf("encode task store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create task store directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write task store %s: %w", s.path, err)
	}
	return nil
}
