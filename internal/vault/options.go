package vault

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Scan defaults.
const (
	DefaultMaxFileSize int64 = 1 << 20
	DefaultFileTimeout       = 5 * time.Second
)

// DefaultInclude matches markdown notes anywhere in the vault.
var DefaultInclude = []string{"**/*.md", "**/*.markdown"}

// DefaultExclude skips templates, archives, editor metadata, the engine's own
// Tasks export folder, and the engine-owned instructions file.
var DefaultExclude = []string{
	"Templates/**",
	"Archive/**",
	".obsidian/**",
	".trash/**",
	".git/**",
	"Tasks/**",
	types.VaultInstructionsFileName,
}

// ScanOptions controls a vault scan.
type ScanOptions struct {
	// Root is the vault directory.
	Root string
	// Include lists doublestar patterns, relative to Root, a file must match.
	Include []string
	// Exclude lists doublestar patterns for files and directories to skip.
	// Matching is case-sensitive.
	Exclude []string
	// MaxFileSize skips larger files with a warning.
	MaxFileSize int64
	// Concurrency bounds the number of files read at once.
	Concurrency int
	// FileTimeout bounds the time spent reading one file.
	FileTimeout time.Duration
	Logger      *zap.Logger
}

// DefaultScanOptions returns options for root with every default applied.
func DefaultScanOptions(root string) ScanOptions {
	return ScanOptions{Root: root}.withDefaults()
}

func (o ScanOptions) withDefaults() ScanOptions {
	if len(o.Include) == 0 {
		o.Include = append([]string(nil), DefaultInclude...)
	}
	if o.Exclude == nil {
		o.Exclude = append([]string(nil), DefaultExclude...)
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency()
	}
	if o.FileTimeout <= 0 {
		o.FileTimeout = DefaultFileTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func defaultConcurrency() int {
	n := runtime.NumCPU()
	if n > 16 {
		n = 16
	}
	if n < 2 {
		n = 2
	}
	return n
}
