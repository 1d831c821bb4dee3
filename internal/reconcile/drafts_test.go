package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

func TestImportDrafts(t *testing.T) {
	f := newFixture(t)
	f.seed(
		types.Task{ID: 1, Title: "Existing one", Status: types.StatusDone},
		types.Task{ID: 4, Title: "Existing four"},
	)

	drafts := []types.Task{
		{ID: 10, Title: "X", Dependencies: []int{1, 99}},
		{ID: 20, Title: "Y", Dependencies: []int{10, 4, 20}},
		{ID: 30, Title: "Z", Dependencies: []int{40, 20}},
		{ID: 40, Title: "W"},
	}
	res, err := f.engine().ImportDrafts(context.Background(), drafts)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, map[int]int{10: 5, 20: 6, 30: 7, 40: 8}, res.IDs)
	assert.ElementsMatch(t, []DroppedDependency{
		{TaskID: 5, Dependency: 99},
		{TaskID: 6, Dependency: 20},
		{TaskID: 7, Dependency: 40},
	}, res.Dropped)

	p := f.partition()
	require.Len(t, p.Tasks, 6)
	byTitle := map[string]types.Task{}
	for _, task := range p.Tasks {
		byTitle[task.Title] = task
	}
	assert.Equal(t, []int{1}, byTitle["X"].Dependencies)
	assert.Equal(t, []int{5, 4}, byTitle["Y"].Dependencies)
	assert.Equal(t, []int{6}, byTitle["Z"].Dependencies)
	assert.Equal(t, []int{}, byTitle["W"].Dependencies)
	for _, title := range []string{"X", "Y", "Z", "W"} {
		task := byTitle[title]
		assert.Equal(t, types.SyncPending, task.SyncStatus)
		assert.Equal(t, types.StatusPending, task.Status)
		assert.Equal(t, types.PriorityMedium, task.Priority)
		assert.Nil(t, task.LastSyncAt)
	}
	require.NoError(t, p.Validate())
}

func TestImportDraftsDependenciesResolve(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 2, Title: "Base"})
	drafts := []types.Task{
		{ID: 1, Title: "A", Dependencies: []int{2}},
		{ID: 2, Title: "B", Dependencies: []int{1, 2}},
		{ID: 3, Title: "C", Dependencies: []int{7, 1, 2}},
	}
	res, err := f.engine().ImportDrafts(context.Background(), drafts)
	require.NoError(t, err)

	p := f.partition()
	ids := map[int]bool{}
	for _, task := range p.Tasks {
		ids[task.ID] = true
	}
	for _, task := range p.Tasks {
		for _, dep := range task.Dependencies {
			assert.True(t, ids[dep], "task %d depends on missing %d", task.ID, dep)
			assert.NotEqual(t, task.ID, dep)
		}
	}
	assert.ElementsMatch(t, []DroppedDependency{
		{TaskID: 4, Dependency: 2},
		{TaskID: 5, Dependency: 7},
	}, res.Dropped)
}

func TestImportDraftsRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Existing"})

	_, err := f.engine().ImportDrafts(context.Background(), []types.Task{{ID: 1, Title: "ok"}, {ID: 2, Title: "  "}})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Len(t, f.partition().Tasks, 1)
}

func TestImportDraftsRejectsMultilineTitle(t *testing.T) {
	f := newFixture(t)
	f.seed(types.Task{ID: 1, Title: "Existing"})

	_, err := f.engine().ImportDrafts(context.Background(), []types.Task{{ID: 1, Title: "Line one\nline two"}})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.ErrorContains(t, err, "line break")

	_, err = f.engine().ImportDrafts(context.Background(), []types.Task{
		{ID: 1, Title: "ok", Subtasks: []types.Subtask{{ID: 1, Title: "a\r\nb"}}},
	})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Len(t, f.partition().Tasks, 1)
}

func TestImportDraftsDryRun(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine(dryRun).ImportDrafts(context.Background(), []types.Task{{ID: 1, Title: "A"}})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Created)
	assert.False(t, f.storeExists())
}

type fakeGenerator struct {
	text  string
	n     int
	tasks []types.Task
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, text string, n int) ([]types.Task, error) {
	g.text, g.n = text, n
	return g.tasks, g.err
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	f.write("b.md", "- [ ] second\n", testNow)
	f.write("a.md", "- [ ] first\n", testNow)
	gen := &fakeGenerator{tasks: []types.Task{{ID: 1, Title: "Drafted"}}}

	res, err := f.engine().Generate(context.Background(), gen, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, gen.n)
	assert.True(t, strings.Index(gen.text, "=== a.md ===") < strings.Index(gen.text, "=== b.md ==="))
	assert.Contains(t, gen.text, "- [ ] first")
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, "Drafted", f.partition().Tasks[0].Title)
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().Generate(context.Background(), &fakeGenerator{}, 3)
	assert.ErrorIs(t, err, types.ErrNoFiles)

	f.write("a.md", "text\n", testNow)
	boom := errors.New("model unavailable")
	_, err = f.engine().Generate(context.Background(), &fakeGenerator{err: boom}, 3)
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.storeExists())
}
