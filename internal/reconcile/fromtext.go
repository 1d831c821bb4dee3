package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/identity"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// FromText scans the vault and merges its records into the partition. New
// records become tasks with the next free ids; matched tasks are merged
// unless the match is a conflict. The partition is written once, and only
// when something changed.
func (e *Engine) FromText(ctx context.Context) (*Result, error) {
	res := &Result{Mode: ModeFromText, DryRun: e.opts.DryRun, StartedAt: e.now()}
	if err := types.ValidateVaultPath(e.opts.VaultPath); err != nil {
		return nil, err
	}
	p, err := e.loadPartition(true)
	if err != nil {
		return nil, err
	}
	scan, err := vault.NewScanner(e.opts.Scan).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	res.Warnings = append(res.Warnings, scan.Stats.Warnings...)

	m := &merger{e: e, p: p, res: res, now: e.now(), owners: make(map[string]int)}
	for i := range scan.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.apply(&scan.Records[i])
	}
	res.FinishedAt = e.now()

	if !res.DryRun && res.Changed() {
		if p.Metadata.Sync == nil {
			p.Metadata.Sync = &types.SyncSettings{}
		}
		stamp := m.now
		p.Metadata.Sync.LastSyncAt = &stamp
		if p.Metadata.VaultPath == "" {
			p.Metadata.VaultPath = e.opts.VaultPath
		}
		if err := e.savePartition(p); err != nil {
			return nil, err
		}
	}
	e.log.Info(res.Summary())
	e.record(ctx, res)
	return res, nil
}

// merger applies vault records to a partition in scan order.
type merger struct {
	e   *Engine
	p   *types.Partition
	res *Result
	now time.Time
	// owners maps a record (file and title) to the top-level task that
	// owns it, so nested checkboxes find their task.
	owners map[string]int
}

func ownerKey(file, title string) string {
	return file + "\x00" + strings.ToLower(strings.TrimSpace(title))
}

func (m *merger) apply(r *types.VaultRecord) {
	if r.Parent != "" {
		m.applySubtask(r)
		return
	}
	t := m.p.FindByKey(r.Key())
	if t == nil {
		t = m.create(r)
	} else {
		m.merge(t, r)
	}
	m.owners[ownerKey(r.SourceFile, r.Title)] = t.ID
}

func (m *merger) create(r *types.VaultRecord) *types.Task {
	t := types.Task{
		ID:           m.p.NextID(),
		Title:        r.Title,
		Priority:     types.PriorityMedium,
		Status:       RecordStatus("", r.Completed),
		Dependencies: []int{},
		SourceFile:   r.SourceFile,
		Tags:         mergeStrings(nil, r.Tags),
		LinkedNotes:  mergeStrings(nil, r.LinkedNotes),
	}
	if r.Primary {
		m.applyFrontmatter(&t, r, true)
	}
	stampTask(&t, m.now)
	m.p.Tasks = append(m.p.Tasks, t)
	m.res.Created++
	m.e.would("create task",
		zap.Int("id", t.ID), zap.String("title", t.Title), zap.String("file", r.SourceFile))
	return &m.p.Tasks[len(m.p.Tasks)-1]
}

func (m *merger) merge(t *types.Task, r *types.VaultRecord) {
	if fields := DetectConflict(t, r); fields != nil {
		m.conflict(Conflict{
			TaskID: t.ID, Title: t.Title, File: r.SourceFile, Fields: fields,
			LastSyncAt: *t.LastSyncAt, TextModTime: r.ModTime,
		})
		t.SyncStatus = types.SyncConflict
		return
	}

	before := *t
	t.Title = r.Title
	t.Status = RecordStatus(t.Status, r.Completed)
	t.Tags = mergeStrings(t.Tags, r.Tags)
	t.LinkedNotes = mergeStrings(t.LinkedNotes, r.LinkedNotes)
	if r.Primary {
		m.applyFrontmatter(t, r, false)
	}
	if reflect.DeepEqual(before, *t) && taskInSync(t) {
		m.res.Unchanged++
		return
	}
	stampTask(t, m.now)
	m.res.Updated++
	m.e.would("update task",
		zap.Int("id", t.ID), zap.String("title", t.Title), zap.String("status", string(t.Status)))
}

func (m *merger) conflict(c Conflict) {
	m.res.Conflicts++
	m.res.Conflicted = append(m.res.Conflicted, c)
	m.e.would("flag conflict",
		zap.String("task", c.Ref().String()), zap.String("file", c.File), zap.Strings("fields", c.Fields))
}

func (m *merger) applySubtask(r *types.VaultRecord) {
	ownerID, ok := m.owners[ownerKey(r.SourceFile, r.Parent)]
	parent := m.p.Task(ownerID)
	if !ok || parent == nil {
		m.res.Skipped++
		m.res.Warnings = append(m.res.Warnings,
			fmt.Sprintf("%s:%d: nested item %q has no parent task", r.SourceFile, r.Line, r.Title))
		return
	}
	if key := ownerKey(r.SourceFile, r.Title); m.owners[key] == 0 {
		m.owners[key] = ownerID
	}

	var st *types.Subtask
	for i := range parent.Subtasks {
		if types.TitlesEqual(parent.Subtasks[i].Title, r.Title) {
			st = &parent.Subtasks[i]
			break
		}
	}
	if st == nil {
		sub := types.Subtask{
			ID:          parent.NextSubtaskID(),
			Title:       r.Title,
			Status:      RecordStatus("", r.Completed),
			SourceFile:  r.SourceFile,
			Tags:        mergeStrings(nil, r.Tags),
			LinkedNotes: mergeStrings(nil, r.LinkedNotes),
		}
		stampSubtask(&sub, m.now)
		parent.Subtasks = append(parent.Subtasks, sub)
		m.res.SubtasksCreated++
		m.e.would("create subtask",
			zap.String("id", types.TaskRef{ID: parent.ID, SubID: parent.Subtasks[len(parent.Subtasks)-1].ID}.String()),
			zap.String("title", r.Title))
		return
	}

	if fields := DetectSubtaskConflict(st, r); fields != nil {
		m.conflict(Conflict{
			TaskID: parent.ID, SubtaskID: st.ID, Title: st.Title, File: r.SourceFile, Fields: fields,
			LastSyncAt: *st.LastSyncAt, TextModTime: r.ModTime,
		})
		st.SyncStatus = types.SyncConflict
		return
	}
	before := *st
	st.Title = r.Title
	st.Status = RecordStatus(st.Status, r.Completed)
	st.SourceFile = r.SourceFile
	st.Tags = mergeStrings(st.Tags, r.Tags)
	st.LinkedNotes = mergeStrings(st.LinkedNotes, r.LinkedNotes)
	if reflect.DeepEqual(before, *st) && subtaskInSync(st) {
		m.res.Unchanged++
		return
	}
	stampSubtask(st, m.now)
	m.res.SubtasksUpdated++
	m.e.would("update subtask",
		zap.String("id", types.TaskRef{ID: parent.ID, SubID: st.ID}.String()), zap.String("status", string(st.Status)))
}

// applyFrontmatter copies task fields from the record's front matter. Notes
// rendered by the engine carry an id key; their front matter is only read
// when the task is created because to-text never rewrites it.
func (m *merger) applyFrontmatter(t *types.Task, r *types.VaultRecord, creating bool) {
	fm := r.Frontmatter
	if len(fm) == 0 {
		return
	}
	_, rendered := fm["id"]
	if creating || !rendered {
		if s, ok := frontmatterString(r, "priority"); ok {
			if pr, err := types.ParsePriority(s); err == nil {
				t.Priority = pr
			} else {
				m.warnf("%s: %v", r.SourceFile, err)
			}
		}
		if s, ok := frontmatterString(r, "status"); ok {
			st, err := types.ParseStatus(s)
			switch {
			case err != nil:
				m.warnf("%s: %v", r.SourceFile, err)
			case !m.e.statusAllowed(st):
				m.warnf("%s: status %q is not enabled", r.SourceFile, st)
			case r.Completed:
				// A checked box always means done.
			case st != types.StatusDone:
				t.Status = st
			}
		}
		if s, ok := frontmatterString(r, "description"); ok {
			t.Description = s
		}
		if s, ok := frontmatterString(r, "details"); ok {
			t.Details = s
		}
		if s, ok := frontmatterString(r, "testStrategy"); ok {
			t.TestStrategy = s
		}
	}
	m.applyDependencies(t, r)
}

// applyDependencies adds the front-matter dependencies that resolve to an
// earlier task. Others are dropped with a warning.
func (m *merger) applyDependencies(t *types.Task, r *types.VaultRecord) {
	raw, ok := r.Frontmatter["dependencies"]
	if !ok {
		raw, ok = r.Frontmatter["depends_on"]
	}
	if !ok {
		return
	}
	var add []int
	for _, token := range dependencyTokens(raw) {
		id, ok := m.resolveDependency(token)
		if !ok || id == t.ID || id > t.ID || m.p.Task(id) == nil {
			m.warnf("%s: dependency %q of task %d dropped", r.SourceFile, token, t.ID)
			continue
		}
		if !containsInt(t.Dependencies, id) && !containsInt(add, id) {
			add = append(add, id)
		}
	}
	if len(add) == 0 {
		return
	}
	deps := make([]int, 0, len(t.Dependencies)+len(add))
	deps = append(deps, t.Dependencies...)
	t.Dependencies = append(deps, add...)
}

func (m *merger) resolveDependency(token string) (int, bool) {
	if ref, err := identity.ParseRef(token); err == nil {
		return ref.ID, true
	}
	if refs := identity.Ambiguous(token, m.p); len(refs) > 1 {
		m.warnf("dependency %q is ambiguous, using task %s", token, refs[0])
	}
	ref, err := identity.ResolveToID(token, m.p)
	if err != nil {
		return 0, false
	}
	return ref.ID, true
}

func (m *merger) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.res.Warnings = append(m.res.Warnings, msg)
	m.e.log.Warn(msg)
}

// dependencyTokens flattens a front-matter dependencies value: a list, a
// comma separated string, or a single number.
func dependencyTokens(raw any) []string {
	var out []string
	add := func(v any) {
		switch x := v.(type) {
		case []any:
			// An unquoted [[Title]] parses as a nested YAML list.
			if len(x) == 1 {
				if inner, ok := x[0].([]any); ok && len(inner) == 1 {
					if title, ok := inner[0].(string); ok {
						out = append(out, identity.Token(title))
					}
				}
			}
		case int:
			out = append(out, strconv.Itoa(x))
		case float64:
			out = append(out, identity.FormatID(x))
		case string:
			for _, part := range strings.Split(x, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	if list, ok := raw.([]any); ok && !isLinkList(list) {
		for _, v := range list {
			add(v)
		}
	} else {
		add(raw)
	}
	return out
}

// isLinkList reports whether list is the YAML reading of [[Title]].
func isLinkList(list []any) bool {
	if len(list) != 1 {
		return false
	}
	inner, ok := list[0].([]any)
	return ok && len(inner) == 1
}

// frontmatterString returns a scalar front-matter value as trimmed text.
func frontmatterString(r *types.VaultRecord, key string) (string, bool) {
	v, ok := r.Frontmatter[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case int, int64, float64, bool:
		return fmt.Sprint(x), true
	}
	return "", false
}

// mergeStrings returns a with the values of b it lacks appended. a itself is
// returned when nothing is added.
func mergeStrings(a, b []string) []string {
	var add []string
	for _, s := range b {
		if !containsString(a, s) && !containsString(add, s) {
			add = append(add, s)
		}
	}
	if len(add) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(add))
	out = append(out, a...)
	return append(out, add...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
