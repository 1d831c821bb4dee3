package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// syncState is the part of a task or subtask the conflict rule looks at.
type syncState struct {
	title       string
	status      types.Status
	description string
	lastSyncAt  *time.Time
	fingerprint string
}

func taskState(t *types.Task) syncState {
	return syncState{
		title: t.Title, status: t.Status, description: t.Description,
		lastSyncAt: t.LastSyncAt, fingerprint: t.SyncFingerprint,
	}
}

func subtaskState(st *types.Subtask) syncState {
	return syncState{
		title: st.Title, status: st.Status, description: st.Description,
		lastSyncAt: st.LastSyncAt, fingerprint: st.SyncFingerprint,
	}
}

// Fingerprint digests the fields the conflict rule compares.
func Fingerprint(title string, status types.Status, description string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(title) + "\x00" + string(status) + "\x00" + strings.TrimSpace(description)))
	return hex.EncodeToString(sum[:8])
}

func (s syncState) storeUnchanged() bool {
	return s.fingerprint != "" && s.fingerprint == Fingerprint(s.title, s.status, s.description)
}

// DetectConflict returns the fields on which r disagrees with t when the
// disagreement counts as a conflict, and nil otherwise. A conflict needs a
// previous sync, a vault file modified after it, and a differing title,
// status or description. A task whose fingerprint shows it unchanged since
// the last sync does not conflict: only the vault side moved.
func DetectConflict(t *types.Task, r *types.VaultRecord) []string {
	return detect(taskState(t), r)
}

// DetectSubtaskConflict applies the DetectConflict rule to a subtask.
func DetectSubtaskConflict(st *types.Subtask, r *types.VaultRecord) []string {
	return detect(subtaskState(st), r)
}

func detect(s syncState, r *types.VaultRecord) []string {
	if s.lastSyncAt == nil || !r.ModTime.After(*s.lastSyncAt) {
		return nil
	}
	fields := differingFields(s, r)
	if len(fields) == 0 || s.storeUnchanged() {
		return nil
	}
	return fields
}

func differingFields(s syncState, r *types.VaultRecord) []string {
	var fields []string
	if strings.TrimSpace(s.title) != r.Title {
		fields = append(fields, "title")
	}
	if RecordStatus(s.status, r.Completed) != s.status {
		fields = append(fields, "status")
	}
	if desc, ok := frontmatterString(r, "description"); ok && r.Primary && desc != strings.TrimSpace(s.description) {
		fields = append(fields, "description")
	}
	return fields
}

// RecordStatus derives the status a vault record implies for a task
// currently in status current. A checked box means done; an unchecked box
// reopens a done task and otherwise keeps the current status.
func RecordStatus(current types.Status, completed bool) types.Status {
	if completed {
		return types.StatusDone
	}
	if current == types.StatusDone || current == "" {
		return types.StatusPending
	}
	return current
}

func stampTask(t *types.Task, now time.Time) {
	t.SyncStatus = types.SyncSynced
	t.LastSyncAt = &now
	t.SyncFingerprint = Fingerprint(t.Title, t.Status, t.Description)
}

func stampSubtask(st *types.Subtask, now time.Time) {
	st.SyncStatus = types.SyncSynced
	st.LastSyncAt = &now
	st.SyncFingerprint = Fingerprint(st.Title, st.Status, st.Description)
}

func taskInSync(t *types.Task) bool {
	return t.SyncStatus == types.SyncSynced && t.LastSyncAt != nil &&
		t.SyncFingerprint == Fingerprint(t.Title, t.Status, t.Description)
}

func subtaskInSync(st *types.Subtask) bool {
	return st.SyncStatus == types.SyncSynced && st.LastSyncAt != nil &&
		st.SyncFingerprint == Fingerprint(st.Title, st.Status, st.Description)
}
