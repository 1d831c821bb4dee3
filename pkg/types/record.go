package types

import "time"

// VaultRecord is a task-like record extracted from one vault file. It never
// carries a canonical id; priority and dependencies arrive only through
// front matter.
type VaultRecord struct {
	Title       string
	Completed   bool
	SourceFile  string // slash-separated path relative to the vault root
	Line        int    // 1-based line of the checkbox
	Indent      int    // leading whitespace width of the checkbox line
	Parent      string // title of the enclosing checkbox for nested items
	// Primary marks the record front-matter task fields belong to: the
	// top-level checkbox titled like the note, or the only top-level one.
	Primary     bool
	Tags        []string
	LinkedNotes []string
	Frontmatter map[string]any
	ModTime     time.Time
}

// Key returns the natural key of the record.
func (r *VaultRecord) Key() NaturalKey {
	return NaturalKey{SourceFile: r.SourceFile, Title: r.Title}
}

// ScanStats summarises one vault scan.
type ScanStats struct {
	FilesScanned    int      `json:"filesScanned"`
	FilesSkipped    int      `json:"filesSkipped"`
	BytesScanned    int64    `json:"bytesScanned"`
	Tags            []string `json:"tags"`
	Links           []string `json:"links"`
	CompletedTasks  int      `json:"completedTasks"`
	IncompleteTasks int      `json:"incompleteTasks"`
	Warnings        []string `json:"warnings,omitempty"`
}

// TotalTasks returns completed plus incomplete tasks.
func (s *ScanStats) TotalTasks() int {
	return s.CompletedTasks + s.IncompleteTasks
}
