// Package projector renders canonical tasks as vault notes and applies
// minimal checkbox updates to notes that already exist.
package projector

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// header is the front matter block of a rendered note. Field order is the
// encoding order.
type header struct {
	ID       int            `yaml:"id"`
	Priority types.Priority `yaml:"priority"`
	Status   types.Status   `yaml:"status"`
	Tags     []string       `yaml:"tags,omitempty"`
	LastSync string         `yaml:"lastSync,omitempty"`
}

// Render produces a complete note for t. The same task always renders to the
// same bytes.
func Render(t *types.Task) string {
	var b strings.Builder

	h := header{ID: t.ID, Priority: t.Priority, Status: t.Status, Tags: t.Tags}
	if h.Priority == "" {
		h.Priority = types.PriorityMedium
	}
	if h.Status == "" {
		h.Status = types.StatusPending
	}
	if t.LastSyncAt != nil {
		h.LastSync = t.LastSyncAt.UTC().Format(time.RFC3339)
	}
	b.WriteString("---\n")
	b.Write(encodeYAML(h))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	b.WriteString(checkbox("", t.Completed(), t.Title))
	for _, st := range t.Subtasks {
		b.WriteString(checkbox("  ", st.Completed(), st.Title))
	}

	section(&b, "Description", t.Description)
	section(&b, "Details", t.Details)
	section(&b, "Test Strategy", t.TestStrategy)

	if len(t.Dependencies) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, dep := range t.Dependencies {
			fmt.Fprintf(&b, "- Task %d\n", dep)
		}
	}
	if len(t.LinkedNotes) > 0 {
		b.WriteString("\n## Related\n\n")
		for _, note := range t.LinkedNotes {
			fmt.Fprintf(&b, "- [[%s]]\n", note)
		}
	}
	return b.String()
}

func encodeYAML(v any) []byte {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	// Encoding a plain struct of strings and ints cannot fail.
	_ = enc.Encode(v)
	_ = enc.Close()
	return buf.Bytes()
}

func section(b *strings.Builder, name, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", name, body)
}

func checkbox(indent string, done bool, title string) string {
	mark := " "
	if done {
		mark = "x"
	}
	return fmt.Sprintf("%s- [%s] %s\n", indent, mark, title)
}

var checkboxLine = regexp.MustCompile(`^([ \t]*[-*+][ \t]+\[)([ xX])(\][ \t]+)(.*?)([ \t]*)$`)

// Update toggles the first checkbox whose text equals the task title,
// ignoring case, so it reflects the task's completion. When no such line
// exists one is appended, after closing a dangling code fence so the line
// stays visible. Indented checkboxes naming the task's subtasks are toggled
// too but never appended. Every other byte of existing is preserved. The
// second result reports whether the text changed.
func Update(existing string, t *types.Task) (string, bool) {
	lines := strings.SplitAfter(existing, "\n")
	found, changed, inFence := toggle(lines, t.Title, t.Completed(), false)
	for i := range t.Subtasks {
		st := &t.Subtasks[i]
		if _, c, _ := toggle(lines, st.Title, st.Completed(), true); c {
			changed = true
		}
	}
	out := strings.Join(lines, "")
	if found {
		return out, changed
	}

	var b strings.Builder
	b.WriteString(out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		b.WriteString("\n")
	}
	if inFence {
		b.WriteString("```\n")
	}
	b.WriteString(checkbox("", t.Completed(), t.Title))
	return b.String(), true
}

// toggle sets the first checkbox line titled title, skipping fenced code.
// nested restricts the search to indented lines. It reports whether a line
// was found, whether it changed, and whether the text ends inside a fence.
func toggle(lines []string, title string, done, nested bool) (found, changed, inFence bool) {
	want := " "
	if done {
		want = "x"
	}
	for i, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(body)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || found {
			continue
		}
		m := checkboxLine.FindStringSubmatch(body)
		if m == nil || !types.TitlesEqual(m[4], title) {
			continue
		}
		if nested && strings.TrimLeft(m[1], " \t") == m[1] {
			continue
		}
		found = true
		if strings.EqualFold(m[2], want) {
			continue
		}
		lines[i] = m[1] + want + m[3] + m[4] + m[5] + line[len(body):]
		changed = true
	}
	return found, changed, inFence
}

var unsafeName = regexp.MustCompile(`[\\/:*?"<>|#^\[\]\x00-\x1f]+`)

// FileName returns a file name for exporting t: "<id>-<title>.md" with
// characters that are unsafe in file names or links replaced.
func FileName(t *types.Task) string {
	name := unsafeName.ReplaceAllString(strings.TrimSpace(t.Title), "-")
	name = strings.Trim(name, "-. ")
	if r := []rune(name); len(r) > 80 {
		name = strings.TrimRight(string(r[:80]), "-. ")
	}
	if name == "" {
		name = "task"
	}
	return fmt.Sprintf("%d-%s.md", t.ID, name)
}
