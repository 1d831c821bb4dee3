package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Mode selects the direction of a synchronization pass.
type Mode string

// Synchronization modes.
const (
	ModeToText        Mode = "to-text"
	ModeFromText      Mode = "from-text"
	ModeBidirectional Mode = "bidirectional"
)

// ParseMode converts s to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeToText:
		return ModeToText, nil
	case ModeFromText:
		return ModeFromText, nil
	case ModeBidirectional, "":
		return ModeBidirectional, nil
	}
	return "", &types.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown sync mode %q (want to-text, from-text or bidirectional)", s)}
}

// TaskError is a per-task failure. The pass records it and continues.
type TaskError struct {
	TaskID int
	File   string
	Err    error
}

func (e TaskError) Error() string {
	switch {
	case e.TaskID > 0 && e.File != "":
		return fmt.Sprintf("task %d (%s): %v", e.TaskID, e.File, e.Err)
	case e.TaskID > 0:
		return fmt.Sprintf("task %d: %v", e.TaskID, e.Err)
	case e.File != "":
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	}
	return e.Err.Error()
}

func (e TaskError) Unwrap() error {
	return e.Err
}

// MarshalJSON encodes the error as its message.
func (e TaskError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TaskID int    `json:"taskId,omitempty"`
		File   string `json:"file,omitempty"`
		Error  string `json:"error"`
	}{e.TaskID, e.File, e.Err.Error()})
}

// Conflict describes a task whose store and vault versions both changed.
type Conflict struct {
	TaskID      int       `json:"taskId"`
	SubtaskID   int       `json:"subtaskId,omitempty"`
	Title       string    `json:"title"`
	File        string    `json:"file"`
	Fields      []string  `json:"fields"`
	LastSyncAt  time.Time `json:"lastSyncAt"`
	TextModTime time.Time `json:"textModTime"`
}

// Ref returns the task reference of the conflict.
func (c Conflict) Ref() types.TaskRef {
	return types.TaskRef{ID: c.TaskID, SubID: c.SubtaskID}
}

// Result tallies one pass.
type Result struct {
	Mode            Mode        `json:"mode"`
	DryRun          bool        `json:"dryRun"`
	Created         int         `json:"created"`
	Updated         int         `json:"updated"`
	Unchanged       int         `json:"unchanged"`
	Conflicts       int         `json:"conflicts"`
	Skipped         int         `json:"skipped"`
	SubtasksCreated int         `json:"subtasksCreated"`
	SubtasksUpdated int         `json:"subtasksUpdated"`
	Errors          []TaskError `json:"errors"`
	Conflicted      []Conflict  `json:"conflicted"`
	Warnings        []string    `json:"warnings,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	FinishedAt      time.Time   `json:"finishedAt"`
}

// Changed reports whether the pass produced anything worth persisting.
func (r *Result) Changed() bool {
	return r.Created+r.Updated+r.Conflicts+r.SubtasksCreated+r.SubtasksUpdated > 0
}

// Summary renders the counters on one line.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d created, %d updated, %d unchanged, %d conflicts, %d skipped, %d errors",
		r.Mode, r.Created, r.Updated, r.Unchanged, r.Conflicts, r.Skipped, len(r.Errors))
	if r.SubtasksCreated+r.SubtasksUpdated > 0 {
		fmt.Fprintf(&b, ", %d subtasks created, %d subtasks updated", r.SubtasksCreated, r.SubtasksUpdated)
	}
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	return b.String()
}

func (r *Result) addError(taskID int, file string, err error) {
	r.Errors = append(r.Errors, TaskError{TaskID: taskID, File: file, Err: err})
}

// BidirectionalResult holds the tallies of both phases.
type BidirectionalResult struct {
	FromText *Result `json:"fromText"`
	ToText   *Result `json:"toText"`
}
