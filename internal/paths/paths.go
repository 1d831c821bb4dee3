// Package paths resolves the locations of the configuration directory, the
// task store document, the vault, and the sync journal.
//
// Every resolver follows the same precedence chain: an explicit flag wins,
// then the value loaded from config.yaml, then an environment variable, then
// a default. Results are always absolute.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative defaults for project-local state.
const (
	DefaultConfigDirName = ".taskmaster"
	DefaultStoreRelPath  = ".taskmaster/tasks/tasks.json"
	DefaultJournalName   = "sync-journal.db"
	appDirName           = "obsidian-task-master"
)

// Environment variable names for overrides.
const (
	EnvConfigDir = "TASKMASTER_CONFIG_DIR"
	EnvStorePath = "TASKMASTER_STORE"
	EnvVaultPath = "TASKMASTER_VAULT"
	EnvDataDir   = "TASKMASTER_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// DefaultDataDir returns the platform-specific default data directory used
// for the sync journal.
//
// Linux:   $XDG_DATA_HOME/obsidian-task-master (fallback ~/.local/share/obsidian-task-master)
// macOS:   ~/Library/Application Support/obsidian-task-master
// Windows: %APPDATA%/obsidian-task-master
func DefaultDataDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", appDirName), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appDirName), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > TASKMASTER_CONFIG_DIR env > $(CWD)/.taskmaster.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return cwdJoin(DefaultConfigDirName)
}

// ResolveStorePath returns the task store document path:
// flag > config.yaml store.path > TASKMASTER_STORE env > $(CWD)/.taskmaster/tasks/tasks.json.
func ResolveStorePath(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvStorePath, func() (string, error) {
		return cwdJoin(filepath.FromSlash(DefaultStoreRelPath))
	})
}

// ResolveVaultPath returns the vault root: flag > config.yaml vault.path >
// TASKMASTER_VAULT env. There is no default; an empty result means the
// caller must ask for one.
func ResolveVaultPath(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvVaultPath, func() (string, error) {
		return "", nil
	})
}

// ResolveJournalPath returns the sync journal database path:
// flag > config.yaml journal.path > TASKMASTER_DATA_DIR env (joined with the
// journal file name) > DefaultDataDir().
func ResolveJournalPath(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(filepath.Join(env, DefaultJournalName))
	}
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultJournalName), nil
}

func resolve(flag, configValue, envName string, fallback func() (string, error)) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(envName); env != "" {
		return filepath.Abs(env)
	}
	return fallback()
}

func cwdJoin(rel string) (string, error) {
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, rel), nil
}
