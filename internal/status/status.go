// Package status compares a task store partition with a vault scan without
// changing either side.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GasparDanilo/obsidian-task-master/internal/reconcile"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// ScanFunc produces the vault side of a report.
type ScanFunc func(ctx context.Context) (*vault.ScanResult, error)

// LoadFunc produces the store side of a report. A nil partition means the
// partition does not exist.
type LoadFunc func() (*types.Partition, error)

// Entry names a task or record present on one side only.
type Entry struct {
	ID     int    `json:"id,omitempty"`
	Title  string `json:"title"`
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Status string `json:"status"`
}

// Counts tallies tasks by status and sync status.
type Counts struct {
	Total     int            `json:"total"`
	Linked    int            `json:"linked"`
	ByStatus  map[string]int `json:"byStatus"`
	Synced    int            `json:"synced"`
	Pending   int            `json:"pending"`
	Conflicts int            `json:"conflicts"`
}

// Report is the state of one partition against its vault.
type Report struct {
	Partition  string               `json:"partition"`
	LastSyncAt *time.Time           `json:"lastSyncAt,omitempty"`
	Store      Counts               `json:"store"`
	Vault      types.ScanStats      `json:"vault"`
	StoreOnly  []Entry              `json:"storeOnly"`
	Unscanned  []Entry              `json:"unscanned"`
	VaultOnly  []Entry              `json:"vaultOnly"`
	Conflicts  []reconcile.Conflict `json:"conflicts"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// Build compares the partition returned by load with the records returned
// by scan. A missing or unreadable side yields zero counts for that side and
// a warning. Tasks whose note exists but was not scanned, such as notes in
// excluded folders, are reported as Unscanned rather than StoreOnly.
func Build(ctx context.Context, name string, load LoadFunc, scan ScanFunc) *Report {
	r := &Report{
		Partition: name,
		Store:     Counts{ByStatus: map[string]int{}},
		StoreOnly: []Entry{},
		Unscanned: []Entry{},
		VaultOnly: []Entry{},
		Conflicts: []reconcile.Conflict{},
	}
	p, err := load()
	switch {
	case err != nil:
		r.Warnings = append(r.Warnings, fmt.Sprintf("task store unreadable: %v", err))
		p = nil
	case p == nil:
		r.Warnings = append(r.Warnings, fmt.Sprintf("partition %s not found in the task store", name))
	}
	if p == nil {
		p = types.NewPartition(time.Time{}, "")
	} else if p.Metadata.Sync != nil {
		r.LastSyncAt = p.Metadata.Sync.LastSyncAt
	}
	countStore(&r.Store, p)

	res, err := scan(ctx)
	if err != nil {
		r.Warnings = append(r.Warnings, fmt.Sprintf("vault unavailable: %v", err))
		return r
	}
	r.Vault = res.Stats
	r.Warnings = append(r.Warnings, res.Stats.Warnings...)

	matched := make(map[int]bool)
	owners := make(map[string]*types.Task)
	for i := range res.Records {
		rec := &res.Records[i]
		if rec.Parent != "" {
			r.compareNested(rec, owners)
			continue
		}
		t := p.FindByKey(rec.Key())
		if t == nil {
			r.VaultOnly = append(r.VaultOnly, recordEntry(rec))
			continue
		}
		matched[t.ID] = true
		owners[ownerKey(rec.SourceFile, rec.Title)] = t
		if fields := reconcile.DetectConflict(t, rec); len(fields) > 0 {
			c := reconcile.Conflict{TaskID: t.ID, Title: t.Title, File: rec.SourceFile, Fields: fields, TextModTime: rec.ModTime}
			if t.LastSyncAt != nil {
				c.LastSyncAt = *t.LastSyncAt
			}
			r.Conflicts = append(r.Conflicts, c)
		}
	}

	scanned := make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		scanned[f.Path] = true
	}
	for _, t := range p.Tasks {
		if t.SourceFile == "" || matched[t.ID] {
			continue
		}
		e := Entry{ID: t.ID, Title: t.Title, File: t.SourceFile, Status: string(t.Status)}
		if !scanned[t.SourceFile] && noteExists(res.Root, t.SourceFile) {
			r.Unscanned = append(r.Unscanned, e)
		} else {
			r.StoreOnly = append(r.StoreOnly, e)
		}
	}
	return r
}

// compareNested matches an indented checkbox against the subtasks of the
// task that owns its parent checkbox, the way a from-text pass does.
func (r *Report) compareNested(rec *types.VaultRecord, owners map[string]*types.Task) {
	parent := owners[ownerKey(rec.SourceFile, rec.Parent)]
	if parent == nil {
		r.VaultOnly = append(r.VaultOnly, recordEntry(rec))
		return
	}
	key := ownerKey(rec.SourceFile, rec.Title)
	if owners[key] == nil {
		owners[key] = parent
	}
	for i := range parent.Subtasks {
		st := &parent.Subtasks[i]
		if !types.TitlesEqual(st.Title, rec.Title) {
			continue
		}
		if fields := reconcile.DetectSubtaskConflict(st, rec); len(fields) > 0 {
			c := reconcile.Conflict{
				TaskID: parent.ID, SubtaskID: st.ID, Title: st.Title, File: rec.SourceFile,
				Fields: fields, TextModTime: rec.ModTime,
			}
			if st.LastSyncAt != nil {
				c.LastSyncAt = *st.LastSyncAt
			}
			r.Conflicts = append(r.Conflicts, c)
		}
		return
	}
	r.VaultOnly = append(r.VaultOnly, recordEntry(rec))
}

func ownerKey(file, title string) string {
	return file + "\x00" + strings.ToLower(strings.TrimSpace(title))
}

func recordEntry(rec *types.VaultRecord) Entry {
	return Entry{Title: rec.Title, File: rec.SourceFile, Line: rec.Line, Status: recordStatus(rec)}
}

// noteExists reports whether the vault-relative note rel exists under root.
func noteExists(root, rel string) bool {
	if root == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

func countStore(c *Counts, p *types.Partition) {
	for _, t := range p.Tasks {
		c.Total++
		c.ByStatus[string(t.Status)]++
		if t.SourceFile != "" {
			c.Linked++
		}
		switch t.SyncStatus {
		case types.SyncSynced:
			c.Synced++
		case types.SyncConflict:
			c.Conflicts++
		default:
			c.Pending++
		}
	}
}

func recordStatus(r *types.VaultRecord) string {
	if r.Completed {
		return string(types.StatusDone)
	}
	return string(types.StatusPending)
}

// Write renders the report as indented JSON or as text.
func (r *Report) Write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Partition:\t%s\n", r.Partition)
	last := "never"
	if r.LastSyncAt != nil {
		last = r.LastSyncAt.Format(time.RFC3339)
	}
	fmt.Fprintf(tw, "Last sync:\t%s\n", last)
	fmt.Fprintf(tw, "Store tasks:\t%d (%d linked, %d synced, %d pending, %d conflicts)\n",
		r.Store.Total, r.Store.Linked, r.Store.Synced, r.Store.Pending, r.Store.Conflicts)
	if len(r.Store.ByStatus) > 0 {
		fmt.Fprintf(tw, "By status:\t%s\n", byStatus(r.Store.ByStatus))
	}
	fmt.Fprintf(tw, "Vault tasks:\t%d (%d done, %d open) in %d files\n",
		r.Vault.TotalTasks(), r.Vault.CompletedTasks, r.Vault.IncompleteTasks, r.Vault.FilesScanned)
	if err := tw.Flush(); err != nil {
		return err
	}

	list := func(title string, entries []Entry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d):\n", title, len(entries))
		for _, e := range entries {
			if e.ID > 0 {
				fmt.Fprintf(w, "  %d  %s  (%s)\n", e.ID, e.Title, e.File)
			} else {
				fmt.Fprintf(w, "  %s  (%s:%d)\n", e.Title, e.File, e.Line)
			}
		}
	}
	list("Only in store", r.StoreOnly)
	list("Linked to unscanned notes", r.Unscanned)
	list("Only in vault", r.VaultOnly)
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(w, "\nConflicts (%d):\n", len(r.Conflicts))
		for _, c := range r.Conflicts {
			fmt.Fprintf(w, "  %s  %s  (%s): %s\n", c.Ref(), c.Title, c.File, strings.Join(c.Fields, ", "))
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}

func byStatus(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
