package reconcile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GasparDanilo/obsidian-task-master/internal/store"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	vault string
	store *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	vaultDir := filepath.Join(dir, "vault")
	require.NoError(t, os.MkdirAll(vaultDir, 0o755))
	return &fixture{
		t:     t,
		vault: vaultDir,
		store: store.New(filepath.Join(dir, ".taskmaster", "tasks", "tasks.json")),
	}
}

// write creates a vault file with the given modification time.
func (f *fixture) write(rel, content string, mtime time.Time) {
	f.t.Helper()
	path := filepath.Join(f.vault, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(f.t, os.Chtimes(path, mtime, mtime))
}

func (f *fixture) read(rel string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.vault, filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) fileCount() int {
	f.t.Helper()
	n := 0
	require.NoError(f.t, filepath.Walk(f.vault, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func (f *fixture) seed(tasks ...types.Task) {
	f.t.Helper()
	p := types.NewPartition(testNow.Add(-48*time.Hour), "")
	p.Tasks = tasks
	require.NoError(f.t, f.store.WritePartition(types.DefaultPartition, p))
}

func (f *fixture) partition() *types.Partition {
	f.t.Helper()
	p, ok, err := f.store.ReadPartition(types.DefaultPartition)
	require.NoError(f.t, err)
	require.True(f.t, ok, "partition missing")
	return p
}

func (f *fixture) storeExists() bool {
	_, err := os.Stat(f.store.Path())
	return err == nil
}

func (f *fixture) engine(mutate ...func(*Options)) *Engine {
	opts := Options{
		VaultPath: f.vault,
		Now:       func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(f.store, opts)
}

func dryRun(o *Options) { o.DryRun = true }

func observed(level zapcore.Level) (func(*Options), *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return func(o *Options) { o.Logger = zap.New(core) }, logs
}

func ptr(t time.Time) *time.Time { return &t }
