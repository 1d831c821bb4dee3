package types

import (
	"errors"
	"strings"
	"time"
)

// VaultConfigFileName is the engine-owned configuration file kept at the
// vault root.
const VaultConfigFileName = ".taskmaster-sync.yaml"

// VaultInstructionsFileName is the engine-owned human-readable guide kept at
// the vault root.
const VaultInstructionsFileName = "TASKMASTER.md"

// VaultConfig is the content of the engine-owned vault configuration file.
type VaultConfig struct {
	VaultPath     string    `json:"vault_path" yaml:"vault_path"`
	Partition     string    `json:"partition" yaml:"partition"`
	InitializedAt time.Time `json:"initialized_at" yaml:"initialized_at"`
}

// Vault configuration errors.
var (
	ErrVaultPathEmpty = errors.New("vault path must not be empty")
	ErrPartitionEmpty = errors.New("partition must not be empty")
)

// Validate checks that the VaultConfig is well-formed.
func (c VaultConfig) Validate() error {
	if strings.TrimSpace(c.VaultPath) == "" {
		return ErrVaultPathEmpty
	}
	if strings.TrimSpace(c.Partition) == "" {
		return ErrPartitionEmpty
	}
	return nil
}

// ValidateVaultPath rejects vault paths that cannot name a directory.
func ValidateVaultPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "vault path", Reason: ErrVaultPathEmpty.Error()}
	}
	if strings.ContainsRune(path, 0) {
		return &ValidationError{Field: "vault path", Reason: "path contains a NUL byte"}
	}
	return nil
}
