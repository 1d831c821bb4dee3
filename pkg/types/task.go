package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a task or subtask.
type Status string

// Task statuses. The vocabulary is closed; configuration may narrow it but
// never extend it.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusDeferred   Status = "deferred"
	StatusCancelled  Status = "cancelled"
	StatusReview     Status = "review"
)

// validStatuses is the set of recognized status values, in display order.
var validStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusDeferred,
	StatusCancelled,
	StatusReview,
}

// Statuses returns every recognized status in display order.
func Statuses() []Status {
	out := make([]Status, len(validStatuses))
	copy(out, validStatuses)
	return out
}

// ParseStatus converts s to a Status. Matching is case-insensitive and
// accepts "in_progress" and "in progress" for in-progress. Unknown values
// return a ValidationError.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	if norm == "canceled" {
		norm = string(StatusCancelled)
	}
	for _, st := range validStatuses {
		if string(st) == norm {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// UnmarshalJSON rejects statuses outside the closed vocabulary. An empty
// string decodes to pending.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = StatusPending
		return nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Priority is the relative importance of a task.
type Priority string

// Task priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority converts s to a Priority, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	}
	return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", s)}
}

// UnmarshalJSON rejects unknown priorities. An empty string decodes to medium.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*p = PriorityMedium
		return nil
	}
	pr, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = pr
	return nil
}

// SyncStatus records how a task relates to its vault file.
type SyncStatus string

// Sync statuses.
const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// ParseSyncStatus converts s to a SyncStatus.
func ParseSyncStatus(s string) (SyncStatus, error) {
	switch SyncStatus(strings.ToLower(strings.TrimSpace(s))) {
	case SyncPending:
		return SyncPending, nil
	case SyncSynced:
		return SyncSynced, nil
	case SyncConflict:
		return SyncConflict, nil
	}
	return "", &ValidationError{Field: "syncStatus", Reason: fmt.Sprintf("unknown sync status %q", s)}
}

// UnmarshalJSON rejects unknown sync statuses. An empty string decodes to
// pending.
func (s *SyncStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = SyncPending
		return nil
	}
	st, err := ParseSyncStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Task is a canonical task record. JSON field names follow the task store
// document format.
type Task struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Priority     Priority   `json:"priority,omitempty"`
	Status       Status     `json:"status"`
	Dependencies []int      `json:"dependencies"`
	Subtasks     []Subtask  `json:"subtasks,omitempty"`
	SourceFile   string     `json:"sourceFile,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	LinkedNotes  []string   `json:"linkedNotes,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus,omitempty"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`

	// SyncFingerprint digests title, status and description as they were
	// at LastSyncAt.
	SyncFingerprint string `json:"syncFingerprint,omitempty"`
}

// Subtask is a task nested under a parent, addressed as parentID.subID.
// Dependencies refer to sibling subtask ids.
type Subtask struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Status       Status     `json:"status"`
	Dependencies []int      `json:"dependencies,omitempty"`
	SourceFile   string     `json:"sourceFile,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	LinkedNotes  []string   `json:"linkedNotes,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus,omitempty"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`

	SyncFingerprint string `json:"syncFingerprint,omitempty"`
}

// Completed reports whether the task is done.
func (t *Task) Completed() bool {
	return t.Status == StatusDone
}

// Completed reports whether the subtask is done.
func (s *Subtask) Completed() bool {
	return s.Status == StatusDone
}

// ApplyDefaults fills absent enum fields: pending status, medium priority,
// pending sync status.
func (t *Task) ApplyDefaults() {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.SyncStatus == "" {
		t.SyncStatus = SyncPending
	}
	if t.Dependencies == nil {
		t.Dependencies = []int{}
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].Status == "" {
			t.Subtasks[i].Status = StatusPending
		}
	}
}

// Validate checks the record-level invariants: a positive id, a non-empty
// title, and no self dependency.
func (t *Task) Validate() error {
	if t.ID <= 0 {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("id must be positive, got %d", t.ID)}
	}
	if err := ValidateTitle("title", t.Title); err != nil {
		return err
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return &ValidationError{Field: "dependencies", Reason: fmt.Sprintf("task %d depends on itself", t.ID)}
		}
	}
	for i := range t.Subtasks {
		st := &t.Subtasks[i]
		if st.ID <= 0 {
			return &ValidationError{Field: "subtasks", Reason: fmt.Sprintf("subtask of %d has non-positive id", t.ID)}
		}
		if strings.TrimSpace(st.Title) == "" {
			return &ValidationError{Field: "subtasks", Reason: fmt.Sprintf("subtask %d.%d has empty title", t.ID, st.ID)}
		}
		if err := ValidateTitle("subtasks", st.Title); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTitle checks that title is non-empty and fits on one line. A
// title is matched against a single checkbox line, so a line break would
// never match and every to-text pass would append the task again.
func ValidateTitle(field, title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: field, Reason: "title must not be empty"}
	}
	if strings.ContainsAny(title, "\r\n") {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("title %q contains a line break", title)}
	}
	return nil
}

// Subtask returns the subtask with the given id, or nil.
func (t *Task) Subtask(id int) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// NextSubtaskID returns max subtask id + 1.
func (t *Task) NextSubtaskID() int {
	maxID := 0
	for _, st := range t.Subtasks {
		if st.ID > maxID {
			maxID = st.ID
		}
	}
	return maxID + 1
}

// TaskRef addresses a task (SubID == 0) or a subtask.
type TaskRef struct {
	ID    int
	SubID int
}

// IsSubtask reports whether the reference addresses a subtask.
func (r TaskRef) IsSubtask() bool {
	return r.SubID > 0
}

// String renders the reference as "7" or "7.2".
func (r TaskRef) String() string {
	if r.SubID > 0 {
		return strconv.Itoa(r.ID) + "." + strconv.Itoa(r.SubID)
	}
	return strconv.Itoa(r.ID)
}
