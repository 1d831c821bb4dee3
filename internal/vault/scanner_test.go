package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestScanBasic(t *testing.T) {
	root := writeVault(t, map[string]string{
		"a.md":                "- [ ] Alpha #x\n- [x] Beta\n",
		"dir/b.markdown":      "- [ ] Gamma [[a]]\n",
		"dir/c.txt":           "- [ ] not markdown\n",
		"Templates/tpl.md":    "- [ ] template task\n",
		".obsidian/ws.md":     "- [ ] editor\n",
		"Tasks/1-alpha.md":    "- [ ] exported\n",
		"TASKMASTER.md":       "- [ ] instructions\n",
		"Archive/old/2024.md": "- [x] archived\n",
	})

	res, err := NewScanner(ScanOptions{Root: root}).Scan(context.Background())
	require.NoError(t, err)

	var titles []string
	for _, r := range res.Records {
		titles = append(titles, r.SourceFile+":"+r.Title)
	}
	assert.Equal(t, []string{"a.md:Alpha #x", "a.md:Beta", "dir/b.markdown:Gamma [[a]]"}, titles)
	assert.Equal(t, 2, res.Stats.FilesScanned)
	assert.Equal(t, 0, res.Stats.FilesSkipped)
	assert.Equal(t, 1, res.Stats.CompletedTasks)
	assert.Equal(t, 2, res.Stats.IncompleteTasks)
	assert.Equal(t, []string{"x"}, res.Stats.Tags)
	assert.Equal(t, []string{"a"}, res.Stats.Links)
	assert.Equal(t, int64(len("- [ ] Alpha #x\n- [x] Beta\n")+len("- [ ] Gamma [[a]]\n")), res.Stats.BytesScanned)
}

func TestScanCustomPatterns(t *testing.T) {
	root := writeVault(t, map[string]string{
		"work/a.md":     "- [ ] Work\n",
		"personal/b.md": "- [ ] Personal\n",
		"work/Daily.md": "- [ ] Daily\n",
	})
	res, err := NewScanner(ScanOptions{
		Root:    root,
		Include: []string{"work/**/*.md"},
		Exclude: []string{"**/Daily.md"},
	}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "work/a.md", res.Records[0].SourceFile)
}

func TestScanExcludeIsCaseSensitive(t *testing.T) {
	root := writeVault(t, map[string]string{
		"templates/t.md": "- [ ] lower-case dir is scanned\n",
	})
	res, err := NewScanner(ScanOptions{Root: root}).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestScanSkipsOversizedAndBinary(t *testing.T) {
	root := writeVault(t, map[string]string{
		"big.md":   "- [ ] big\n" + strings.Repeat("x", 64),
		"small.md": "- [ ] small\n",
		"bin.md":   "- [ ] \xff\xfe\n",
	})
	res, err := NewScanner(ScanOptions{Root: root, MaxFileSize: 32}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "small", res.Records[0].Title)
	assert.Equal(t, 2, res.Stats.FilesSkipped)
	require.Len(t, res.Stats.Warnings, 2)
	assert.Contains(t, res.Stats.Warnings[0], "big.md")
	assert.Contains(t, res.Stats.Warnings[1], "bin.md")
}

func TestScanErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := NewScanner(ScanOptions{Root: filepath.Join(t.TempDir(), "nope")}).Scan(context.Background())
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
	t.Run("root is a file", func(t *testing.T) {
		root := writeVault(t, map[string]string{"f.md": "x"})
		_, err := NewScanner(ScanOptions{Root: filepath.Join(root, "f.md")}).Scan(context.Background())
		assert.ErrorIs(t, err, types.ErrValidation)
	})
	t.Run("no matching files", func(t *testing.T) {
		root := writeVault(t, map[string]string{"notes.txt": "- [ ] x\n"})
		_, err := NewScanner(ScanOptions{Root: root}).Scan(context.Background())
		assert.ErrorIs(t, err, types.ErrNoFiles)
	})
	t.Run("cancelled context", func(t *testing.T) {
		root := writeVault(t, map[string]string{"a.md": "- [ ] x\n"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewScanner(ScanOptions{Root: root}).Scan(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestScanDeterministicAcrossConcurrency(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 40; i++ {
		files[filepath.ToSlash(filepath.Join("d", string(rune('a'+i%26)), strings.Repeat("n", i%5+1)+".md"))] =
			"- [ ] task\n- [x] done\n"
	}
	root := writeVault(t, files)

	serial, err := NewScanner(ScanOptions{Root: root, Concurrency: 1}).Scan(context.Background())
	require.NoError(t, err)
	parallel, err := NewScanner(ScanOptions{Root: root, Concurrency: 8}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, serial.Records, parallel.Records)
	assert.Equal(t, serial.Stats, parallel.Stats)
}

func TestScanModTime(t *testing.T) {
	root := writeVault(t, map[string]string{"a.md": "- [ ] x\n"})
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.md"), stamp, stamp))

	res, err := NewScanner(ScanOptions{Root: root}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].ModTime.Equal(stamp))
}

func TestReadFileCancelled(t *testing.T) {
	root := writeVault(t, map[string]string{"a.md": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadFile(ctx, filepath.Join(root, "a.md"), time.Second)
	// Either the read wins the race or the context does.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestConsolidate(t *testing.T) {
	res := &ScanResult{Files: []FileInfo{
		{Path: "b.md", Content: "second\n"},
		{Path: "a.md", Content: "first"},
	}}
	assert.Equal(t, "=== a.md ===\nfirst\n\n\n=== b.md ===\nsecond\n", Consolidate(res))
}

func TestDefaultScanOptions(t *testing.T) {
	opts := DefaultScanOptions("/vault")
	assert.Equal(t, DefaultInclude, opts.Include)
	assert.Equal(t, DefaultExclude, opts.Exclude)
	assert.Equal(t, DefaultMaxFileSize, opts.MaxFileSize)
	assert.Equal(t, DefaultFileTimeout, opts.FileTimeout)
	assert.GreaterOrEqual(t, opts.Concurrency, 2)
}
