package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

func TestFromTextCreatesFromEmptyStore(t *testing.T) {
	f := newFixture(t)
	f.write("note.md", "- [ ] Write docs\n", testNow.Add(-time.Hour))

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Conflicts)

	p := f.partition()
	require.Len(t, p.Tasks, 1)
	task := p.Tasks[0]
	assert.Equal(t, 1, task.ID)
	assert.Equal(t, "Write docs", task.Title)
	assert.Equal(t, types.StatusPending, task.Status)
	assert.Equal(t, "note.md", task.SourceFile)
	assert.Equal(t, types.SyncSynced, task.SyncStatus)
	require.NotNil(t, task.LastSyncAt)
	assert.True(t, task.LastSyncAt.Equal(testNow))
	assert.NotEmpty(t, task.SyncFingerprint)
	assert.Equal(t, f.vault, p.Metadata.VaultPath)
	require.NotNil(t, p.Metadata.Sync)
	assert.True(t, p.Metadata.Sync.LastSyncAt.Equal(testNow))
}

func TestFromTextFirstSyncNeverConflicts(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Setup", SourceFile: "setup.md", Status: types.StatusPending})
	f.write("setup.md", "- [x] Setup\n", testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Conflicts)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Created)

	task := f.partition().Tasks[0]
	assert.Equal(t, types.StatusDone, task.Status)
	assert.Equal(t, types.SyncSynced, task.SyncStatus)
}

func TestFromTextConflicts(t *testing.T) {
	lastSync := testNow.Add(-2 * time.Hour)
	tests := []struct {
		name         string
		fingerprint  string
		mtime        time.Time
		content      string
		wantConflict bool
		wantStatus   types.Status
	}{
		{
			name:         "edited after sync without fingerprint",
			mtime:        testNow.Add(-time.Hour),
			content:      "- [x] Auth\n",
			wantConflict: true,
			wantStatus:   types.StatusInProgress,
		},
		{
			name:         "store changed since fingerprint",
			fingerprint:  Fingerprint("Auth", types.StatusPending, ""),
			mtime:        testNow.Add(-time.Hour),
			content:      "- [x] Auth\n",
			wantConflict: true,
			wantStatus:   types.StatusInProgress,
		},
		{
			name:        "only the vault moved",
			fingerprint: Fingerprint("Auth", types.StatusInProgress, ""),
			mtime:       testNow.Add(-time.Hour),
			content:     "- [x] Auth\n",
			wantStatus:  types.StatusDone,
		},
		{
			name:       "file older than last sync",
			mtime:      lastSync.Add(-time.Hour),
			content:    "- [x] Auth\n",
			wantStatus: types.StatusDone,
		},
		{
			name:       "newer file with same fields",
			mtime:      testNow.Add(-time.Hour),
			content:    "- [ ] Auth\n",
			wantStatus: types.StatusInProgress,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(types.Task{
				ID: 1, Title: "Auth", SourceFile: "auth.md", Status: types.StatusInProgress,
				SyncStatus: types.SyncSynced, LastSyncAt: ptr(lastSync), SyncFingerprint: tt.fingerprint,
			})
			f.write("auth.md", tt.content, tt.mtime)

			res, err := f.engine().FromText(context.Background())
			require.NoError(t, err)
			task := f.partition().Tasks[0]
			assert.Equal(t, tt.wantStatus, task.Status)
			if tt.wantConflict {
				assert.Equal(t, 1, res.Conflicts)
				assert.Equal(t, types.SyncConflict, task.SyncStatus)
				require.Len(t, res.Conflicted, 1)
				assert.Equal(t, []string{"status"}, res.Conflicted[0].Fields)
				assert.Equal(t, 1, res.Conflicted[0].TaskID)
				assert.True(t, task.LastSyncAt.Equal(lastSync), "conflict must not restamp")
				return
			}
			assert.Equal(t, 0, res.Conflicts)
			assert.Equal(t, types.SyncSynced, task.SyncStatus)
		})
	}
}

func TestFromTextConflictClearsWhenSidesAgree(t *testing.T) {
	f := newFixture(t)
	lastSync := testNow.Add(-2 * time.Hour)
	f.seed(types.Task{
		ID: 1, Title: "Auth", SourceFile: "auth.md", Status: types.StatusDone,
		SyncStatus: types.SyncConflict, LastSyncAt: ptr(lastSync),
	})
	f.write("auth.md", "- [x] Auth\n", testNow.Add(-time.Hour))

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Conflicts)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, types.SyncSynced, f.partition().Tasks[0].SyncStatus)
}

func TestFromTextNoChangesNoWrite(t *testing.T) {
	f := newFixture(t)
	f.write("plain.md", "# Nothing to do\n", testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.False(t, f.storeExists(), "a pass with nothing new must not write the store")
}

func TestFromTextSecondPassUnchanged(t *testing.T) {
	f := newFixture(t)
	f.write("a.md", "- [ ] One #x\n- [x] Two\n", testNow.Add(-time.Hour))

	_, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	before, err := f.store.Read()
	require.NoError(t, err)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Unchanged)

	after, err := f.store.Read()
	require.NoError(t, err)
	beforeRaw, _ := before.Raw(types.DefaultPartition)
	afterRaw, _ := after.Raw(types.DefaultPartition)
	assert.Equal(t, beforeRaw, afterRaw)
}

func TestFromTextIDMonotonicity(t *testing.T) {
	f := newFixture(t)
	f.seed(
		types.Task{ID: 1, Title: "Old one"},
		types.Task{ID: 5, Title: "Old five"},
	)
	f.write("a.md", "- [ ] New A\n- [ ] New B\n", testNow)
	f.write("b/c.md", "- [x] New C\n", testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Created)

	var ids []int
	for _, task := range f.partition().Tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []int{1, 5, 6, 7, 8}, ids)
}

func TestFromTextMergesTagsLinksAndTitleCase(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{
		ID: 1, Title: "write docs", SourceFile: "note.md", Status: types.StatusReview,
		Tags: []string{"docs"}, LinkedNotes: []string{"Style"},
	})
	f.write("note.md", "---\ntags: [urgent]\n---\n- [ ] Write Docs\n", testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Created)

	task := f.partition().Tasks[0]
	assert.Equal(t, "Write Docs", task.Title)
	assert.Equal(t, types.StatusReview, task.Status, "unchecked box keeps a non-done status")
	assert.Equal(t, []string{"docs", "urgent"}, task.Tags)
	assert.Equal(t, []string{"Style"}, task.LinkedNotes)
}

func TestFromTextChangedLineTextIsNewTask(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Write docs", SourceFile: "note.md"})
	f.write("note.md", "- [ ] Write docs for API [[Guide]]\n", testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	p := f.partition()
	require.Len(t, p.Tasks, 2)
	assert.Equal(t, []string{"Guide"}, p.Tasks[1].LinkedNotes)
	assert.Equal(t, "Write docs", p.Tasks[0].Title, "tasks are never deleted by sync")
}

func TestFromTextReopensDoneTask(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Ship", SourceFile: "s.md", Status: types.StatusDone})
	f.write("s.md", "- [ ] Ship\n", testNow)

	_, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, f.partition().Tasks[0].Status)
}

func TestFromTextSubtasks(t *testing.T) {
	f := newFixture(t)
	f.write("auth.md", "- [ ] Auth\n  - [x] Schema\n  - [ ] Handlers\n    - [ ] Login\n", testNow.Add(-time.Hour))

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.SubtasksCreated)

	p := f.partition()
	require.Len(t, p.Tasks, 1)
	subs := p.Tasks[0].Subtasks
	require.Len(t, subs, 3)
	assert.Equal(t, "Schema", subs[0].Title)
	assert.Equal(t, types.StatusDone, subs[0].Status)
	assert.Equal(t, 3, subs[2].ID)
	assert.Equal(t, "Login", subs[2].Title)

	// Checking a nested item after the sync merges: the store did not move.
	f.write("auth.md", "- [ ] Auth\n  - [x] Schema\n  - [x] Handlers\n    - [ ] Login\n", testNow.Add(time.Hour))
	res, err = f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Conflicts)
	assert.Equal(t, 1, res.SubtasksUpdated)
	assert.Equal(t, types.StatusDone, f.partition().Tasks[0].Subtasks[1].Status)
}

func TestFromTextFrontmatter(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Setup", SourceFile: "setup.md"})
	f.write("setup.md", "- [x] Setup\n", testNow)
	f.write("api.md", `---
priority: high
status: in-progress
description: Public REST API
details: Use chi
dependencies: ["[[Setup]]", 42, "[[Nope]]"]
---
# Build API

- [ ] Build API
- [ ] Unrelated item
`, testNow)

	res, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	p := f.partition()
	api := p.FindByKey(types.NaturalKey{SourceFile: "api.md", Title: "Build API"})
	require.NotNil(t, api)
	assert.Equal(t, types.PriorityHigh, api.Priority)
	assert.Equal(t, types.StatusInProgress, api.Status)
	assert.Equal(t, "Public REST API", api.Description)
	assert.Equal(t, "Use chi", api.Details)
	assert.Equal(t, []int{1}, api.Dependencies)

	other := p.FindByKey(types.NaturalKey{SourceFile: "api.md", Title: "Unrelated item"})
	require.NotNil(t, other)
	assert.Equal(t, types.PriorityMedium, other.Priority)
	assert.Empty(t, other.Dependencies)

	var dropped int
	for _, w := range res.Warnings {
		if strings.Contains(w, "dropped") {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)
}

func TestFromTextRenderedFrontmatterOnlyOnCreate(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 3, Title: "Docs", SourceFile: "docs.md", Status: types.StatusReview, Priority: types.PriorityLow})
	f.write("docs.md", "---\nid: 3\npriority: high\nstatus: pending\n---\n\n# Docs\n\n- [ ] Docs\n", testNow)

	_, err := f.engine().FromText(context.Background())
	require.NoError(t, err)
	task := f.partition().Tasks[0]
	assert.Equal(t, types.PriorityLow, task.Priority)
	assert.Equal(t, types.StatusReview, task.Status)
}

func TestFromTextRestrictedStatuses(t *testing.T) {
	f := newFixture(t)
	f.write("a.md", "---\nstatus: review\n---\n- [ ] Task\n", testNow)

	res, err := f.engine(func(o *Options) {
		o.Statuses = []types.Status{types.StatusPending, types.StatusDone}
	}).FromText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, f.partition().Tasks[0].Status)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "not enabled")
}

func TestFromTextDryRun(t *testing.T) {
	f := newFixture(t)
	f.write("a.md", "- [ ] One\n- [ ] Two\n", testNow)
	withLogs, logs := observed(zapcore.InfoLevel)

	res, err := f.engine(dryRun, withLogs).FromText(context.Background())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Created)
	assert.False(t, f.storeExists())
	assert.Equal(t, 2, logs.FilterMessage("would create task").Len())
}

func TestFromTextErrors(t *testing.T) {
	t.Run("missing vault", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine(func(o *Options) { o.VaultPath = f.vault + "-missing" }).FromText(context.Background())
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
	t.Run("empty vault path", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine(func(o *Options) { o.VaultPath = "" }).FromText(context.Background())
		assert.ErrorIs(t, err, types.ErrValidation)
	})
	t.Run("no markdown", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine().FromText(context.Background())
		assert.ErrorIs(t, err, types.ErrNoFiles)
	})
}

func TestFromTextLeavesOtherPartitions(t *testing.T) {
	f := newFixture(t)
	other := types.NewPartition(testNow, "feature work")
	other.Tasks = []types.Task{{ID: 1, Title: "Feature", Status: types.StatusPending, Priority: types.PriorityMedium}}
	require.NoError(t, f.store.WritePartition("feature", other))
	doc, err := f.store.Read()
	require.NoError(t, err)
	beforeRaw, _ := doc.Raw("feature")
	before := string(beforeRaw)

	f.write("a.md", "- [ ] One\n", testNow)
	_, err = f.engine().FromText(context.Background())
	require.NoError(t, err)

	doc, err = f.store.Read()
	require.NoError(t, err)
	afterRaw, _ := doc.Raw("feature")
	assert.Equal(t, before, string(afterRaw))
}

func TestDetectConflictDescription(t *testing.T) {
	last := testNow.Add(-time.Hour)
	task := &types.Task{ID: 1, Title: "A", Status: types.StatusPending, Description: "old", LastSyncAt: &last}
	rec := &types.VaultRecord{
		Title: "A", ModTime: testNow, Primary: true,
		Frontmatter: map[string]any{"description": "new"},
	}
	assert.Equal(t, []string{"description"}, DetectConflict(task, rec))

	rec.Primary = false
	assert.Nil(t, DetectConflict(task, rec))
}

func TestDetectConflictWithoutFingerprintKeepsBareRule(t *testing.T) {
	last := testNow.Add(-time.Hour)
	task := &types.Task{ID: 1, Title: "Auth", Status: types.StatusPending, LastSyncAt: &last}
	edited := &types.VaultRecord{Title: "auth flow", Completed: true, ModTime: testNow}

	assert.Equal(t, []string{"title", "status"}, DetectConflict(task, edited))

	task.SyncFingerprint = Fingerprint(task.Title, task.Status, task.Description)
	assert.Nil(t, DetectConflict(task, edited), "an unchanged store side lets the vault edit through")

	st := &types.Subtask{ID: 1, Title: "Tag release", Status: types.StatusPending, LastSyncAt: &last}
	assert.Equal(t, []string{"status"}, DetectSubtaskConflict(st, &types.VaultRecord{Title: "Tag release", Completed: true, ModTime: testNow}))
}

func TestRecordStatus(t *testing.T) {
	assert.Equal(t, types.StatusDone, RecordStatus(types.StatusDeferred, true))
	assert.Equal(t, types.StatusPending, RecordStatus(types.StatusDone, false))
	assert.Equal(t, types.StatusDeferred, RecordStatus(types.StatusDeferred, false))
	assert.Equal(t, types.StatusPending, RecordStatus("", false))
}
