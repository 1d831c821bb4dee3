// Package config loads config.yaml from the configuration directory with
// viper. A default file is written on first use; TASKMASTER_* environment
// variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "TASKMASTER"
)

// Config keys.
const (
	KeyVaultPath        = "vault.path"
	KeyVaultInclude     = "vault.include"
	KeyVaultExclude     = "vault.exclude"
	KeyVaultMaxFileSize = "vault.max_file_size"
	KeyVaultFileTimeout = "vault.file_timeout"
	KeyStorePath        = "store.path"
	KeyStorePartition   = "store.partition"
	KeySyncConcurrency  = "sync.concurrency"
	KeySyncStatuses     = "sync.statuses"
	KeySyncDebounce     = "sync.debounce"
	KeyJournalPath      = "journal.path"
)

const defaultConfigYAML = `# task-master vault sync configuration

vault:
  # path: /path/to/vault
  include:
    - "**/*.md"
    - "**/*.markdown"
  exclude:
    - "Templates/**"
    - "Archive/**"
    - ".obsidian/**"
    - ".trash/**"
    - ".git/**"
    - "Tasks/**"
    - "TASKMASTER.md"
  max_file_size: 1048576
  file_timeout: 5s

store:
  # path: .taskmaster/tasks/tasks.json
  partition: master

sync:
  concurrency: 4
  # Statuses front matter may set. Empty allows all of them.
  statuses: []
  debounce: 500ms

# journal:
#   path: ~/.local/share/obsidian-task-master/sync-journal.db
`

// Settings is the typed view of config.yaml.
type Settings struct {
	VaultPath   string
	Include     []string
	Exclude     []string
	MaxFileSize int64
	FileTimeout time.Duration
	StorePath   string
	Partition   string
	Concurrency int
	Statuses    []types.Status
	Debounce    time.Duration
	JournalPath string
}

// Load reads config.yaml from configDir, creating the directory and a
// default file when they are missing.
func Load(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyVaultInclude, vault.DefaultInclude)
	v.SetDefault(KeyVaultExclude, vault.DefaultExclude)
	v.SetDefault(KeyVaultMaxFileSize, vault.DefaultMaxFileSize)
	v.SetDefault(KeyVaultFileTimeout, vault.DefaultFileTimeout)
	v.SetDefault(KeyStorePartition, types.DefaultPartition)
	v.SetDefault(KeySyncConcurrency, 4)
	v.SetDefault(KeySyncStatuses, []string{})
	v.SetDefault(KeySyncDebounce, 500*time.Millisecond)
}

// ensureDefaultConfigFile writes the default config.yaml unless one exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// Decode converts v into Settings and validates it.
func Decode(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		VaultPath:   v.GetString(KeyVaultPath),
		Include:     v.GetStringSlice(KeyVaultInclude),
		Exclude:     v.GetStringSlice(KeyVaultExclude),
		MaxFileSize: v.GetInt64(KeyVaultMaxFileSize),
		FileTimeout: v.GetDuration(KeyVaultFileTimeout),
		StorePath:   v.GetString(KeyStorePath),
		Partition:   v.GetString(KeyStorePartition),
		Concurrency: v.GetInt(KeySyncConcurrency),
		Debounce:    v.GetDuration(KeySyncDebounce),
		JournalPath: v.GetString(KeyJournalPath),
	}
	for _, raw := range v.GetStringSlice(KeySyncStatuses) {
		st, err := types.ParseStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", KeySyncStatuses, err)
		}
		s.Statuses = append(s.Statuses, st)
	}
	if s.MaxFileSize < 0 {
		return nil, &types.ValidationError{Field: KeyVaultMaxFileSize, Reason: "must not be negative"}
	}
	if s.Concurrency < 0 {
		return nil, &types.ValidationError{Field: KeySyncConcurrency, Reason: "must not be negative"}
	}
	if strings.TrimSpace(s.Partition) == "" {
		s.Partition = types.DefaultPartition
	}
	return s, nil
}

// ScanOptions returns vault scan options for root built from s.
func (s *Settings) ScanOptions(root string) vault.ScanOptions {
	opts := vault.DefaultScanOptions(root)
	if len(s.Include) > 0 {
		opts.Include = s.Include
	}
	if s.Exclude != nil {
		opts.Exclude = s.Exclude
	}
	if s.MaxFileSize > 0 {
		opts.MaxFileSize = s.MaxFileSize
	}
	if s.FileTimeout > 0 {
		opts.FileTimeout = s.FileTimeout
	}
	return opts
}
