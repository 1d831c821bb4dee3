package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// InitResult reports what Init created. Existing files are never replaced.
type InitResult struct {
	VaultPath           string `json:"vaultPath"`
	DirCreated          bool   `json:"dirCreated"`
	ConfigCreated       bool   `json:"configCreated"`
	InstructionsCreated bool   `json:"instructionsCreated"`
	PartitionCreated    bool   `json:"partitionCreated"`
}

// Init prepares a vault for synchronization: the vault directory, the
// engine's config file, the instructions note, and the partition.
func (e *Engine) Init(ctx context.Context) (*InitResult, error) {
	if err := types.ValidateVaultPath(e.opts.VaultPath); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(e.opts.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("resolve vault path: %w", err)
	}
	res := &InitResult{VaultPath: abs}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.DirCreated = true
	case err != nil:
		return nil, fmt.Errorf("stat vault: %w", err)
	case !info.IsDir():
		return nil, &types.ValidationError{Field: "vault", Reason: fmt.Sprintf("%s is not a directory", abs)}
	}

	res.ConfigCreated = !exists(filepath.Join(abs, types.VaultConfigFileName))
	res.InstructionsCreated = !exists(filepath.Join(abs, types.VaultInstructionsFileName))
	_, found, err := e.store.ReadPartition(e.opts.Partition)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", e.opts.Partition, err)
	}
	res.PartitionCreated = !found

	if e.opts.DryRun {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	cfg := types.VaultConfig{VaultPath: abs, Partition: e.opts.Partition, InitializedAt: e.now()}
	if err := writeVaultConfigIfMissing(filepath.Join(abs, types.VaultConfigFileName), cfg); err != nil {
		return nil, err
	}
	if res.InstructionsCreated {
		if err := atomic.WriteFile(filepath.Join(abs, types.VaultInstructionsFileName), strings.NewReader(instructions)); err != nil {
			return nil, fmt.Errorf("write instructions: %w", err)
		}
	}
	if res.PartitionCreated {
		p := types.NewPartition(e.now(), "Tasks synchronized with an Obsidian vault")
		p.Metadata.VaultPath = abs
		if err := e.savePartition(p); err != nil {
			return nil, err
		}
	}
	e.log.Info("vault initialized")
	return res, nil
}

// writeVaultConfigIfMissing writes cfg as YAML unless path already exists.
func writeVaultConfigIfMissing(path string, cfg types.VaultConfig) error {
	if exists(path) {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal vault config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write vault config: %w", err)
	}
	return nil
}

// ReadVaultConfig loads the engine's config file from the vault root.
func ReadVaultConfig(vaultPath string) (*types.VaultConfig, error) {
	data, err := os.ReadFile(filepath.Join(vaultPath, types.VaultConfigFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault config: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read vault config: %w", err)
	}
	var cfg types.VaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse vault config: %w", types.ErrInvalidData)
	}
	return &cfg, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const instructions = `# Task Master

This vault is synchronized with a Task Master task list.

## Writing tasks

Write tasks as checklist items in any note:

    - [ ] Write the login handler #backend
    - [x] Design the schema

Indented items beneath a task become its subtasks. Tags on the line are
copied to the task and [[links]] are kept as related notes.

## Front matter

A note may set fields for its main task, the item named like the note's
title or the only top-level item:

    ---
    priority: high
    status: in-progress
    description: Short summary
    dependencies: ["[[Design the schema]]", 3]
    ---

## Synchronizing

    task-master vault sync --mode bidirectional

Tasks are matched by note path and title. If a task changed in both places
since the last sync it is flagged as a conflict and left alone; settle it
with task-master vault settle <id> --keep text|store.

Notes under Templates, Archive and Tasks are not scanned.
`
