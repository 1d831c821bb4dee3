package vault

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

var mtime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestExtractFileCheckboxes(t *testing.T) {
	content := "# Project\n\n" +
		"- [ ] Write docs #docs\n" +
		"* [x] Ship release\n" +
		"+ [X] Tag build\n" +
		"- [ ]    \n" +
		"- [?] Not a checkbox\n" +
		"-[ ] Missing space\n"

	got := ExtractFile("notes/project.md", []byte(content), mtime)
	want := []types.VaultRecord{
		{Title: "Write docs #docs", SourceFile: "notes/project.md", Line: 3, Tags: []string{"docs"}, ModTime: mtime},
		{Title: "Ship release", Completed: true, SourceFile: "notes/project.md", Line: 4, ModTime: mtime},
		{Title: "Tag build", Completed: true, SourceFile: "notes/project.md", Line: 5, ModTime: mtime},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFileNesting(t *testing.T) {
	content := "- [ ] Auth system\n" +
		"  - [x] Design schema\n" +
		"  - [ ] Handlers\n" +
		"\t- [ ] Login\n" +
		"- [ ] Docs\n"

	got := ExtractFile("auth.md", []byte(content), mtime)
	require.Len(t, got.Records, 5)

	parents := make([]string, len(got.Records))
	for i, r := range got.Records {
		parents[i] = r.Parent
	}
	assert.Equal(t, []string{"", "Auth system", "Auth system", "Handlers", ""}, parents)
	assert.Equal(t, 4, got.Records[3].Indent)
	assert.False(t, got.Records[0].Primary, "two top-level records and no heading")
}

func TestExtractFileTagsAndLinks(t *testing.T) {
	content := "# Heading is not a tag\n" +
		"## Another\n" +
		"Text with #alpha and #beta/child, plus #123 and foo#bar.\n" +
		"See [[Design Doc|the doc]] and [[API#Auth]] and [[Notes#tag]].\n" +
		"- [ ] Review [[Roadmap Draft]] #review\n"

	got := ExtractFile("a.md", []byte(content), mtime)
	assert.Equal(t, []string{"alpha", "beta/child", "review"}, got.Tags)
	assert.Equal(t, []string{"API", "Design Doc", "Notes", "Roadmap Draft"}, got.Links)

	require.Len(t, got.Records, 1)
	assert.Equal(t, []string{"review"}, got.Records[0].Tags)
	assert.Equal(t, []string{"Roadmap Draft"}, got.Records[0].LinkedNotes)
}

func TestExtractFileFencedCode(t *testing.T) {
	content := "```\n- [ ] inside code #nope\n```\n- [ ] outside\n"
	got := ExtractFile("a.md", []byte(content), mtime)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "outside", got.Records[0].Title)
	assert.Equal(t, 4, got.Records[0].Line)
	assert.Empty(t, got.Tags)
}

func TestExtractFileFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantFM   map[string]any
		wantTags []string
		wantLine int
	}{
		{
			name:     "yaml list tags",
			content:  "---\npriority: high\ntags:\n  - backend\n  - \"#api\"\n---\n- [ ] Build API\n",
			wantFM:   map[string]any{"priority": "high", "tags": []any{"backend", "#api"}},
			wantTags: []string{"backend", "api"},
			wantLine: 7,
		},
		{
			name:     "string tags",
			content:  "---\ntags: one, two\n---\n- [ ] Task\n",
			wantFM:   map[string]any{"tags": "one, two"},
			wantTags: []string{"one", "two"},
			wantLine: 4,
		},
		{
			name:     "invalid yaml falls back to lines",
			content:  "---\nstatus: done\ntitle: [unclosed\nnot a pair\n---\n- [ ] Task\n",
			wantFM:   map[string]any{"status": "done", "title": "[unclosed"},
			wantLine: 6,
		},
		{
			name:     "unterminated block is body",
			content:  "---\nstatus: done\n- [ ] Task\n",
			wantLine: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFile("a.md", []byte(tt.content), mtime)
			require.Len(t, got.Records, 1)
			r := got.Records[0]
			assert.Equal(t, tt.wantLine, r.Line)
			if tt.wantFM == nil {
				assert.Empty(t, r.Frontmatter)
			} else {
				assert.Equal(t, tt.wantFM, r.Frontmatter)
			}
			assert.Equal(t, tt.wantTags, r.Tags)
		})
	}
}

func TestExtractFilePrimary(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []bool
	}{
		{"heading match", "# Ship It\n- [ ] Prep\n- [ ] ship it\n", []bool{false, true}},
		{"frontmatter title", "---\ntitle: Prep\n---\n# Other\n- [ ] Prep\n- [ ] Go\n", []bool{true, false}},
		{"single top-level", "- [ ] Only\n  - [ ] Child\n", []bool{true, false}},
		{"none", "- [ ] A\n- [ ] B\n", []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFile("a.md", []byte(tt.content), mtime)
			var flags []bool
			for _, r := range got.Records {
				flags = append(flags, r.Primary)
			}
			assert.Equal(t, tt.want, flags)
		})
	}
}

func TestExtractFileCRLF(t *testing.T) {
	got := ExtractFile("a.md", []byte("- [x] Windows line\r\n- [ ] Next\r\n"), mtime)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "Windows line", got.Records[0].Title)
	assert.True(t, got.Records[0].Completed)
}

func TestLinkTarget(t *testing.T) {
	assert.Equal(t, "Note", LinkTarget("Note"))
	assert.Equal(t, "Note", LinkTarget(" Note | alias "))
	assert.Equal(t, "Note", LinkTarget("Note#Section"))
	assert.Equal(t, "", LinkTarget("#Section"))
}
