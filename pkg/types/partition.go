package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultPartition is the partition used when none is named.
const DefaultPartition = "master"

// SyncSettings holds per-partition vault sync preferences.
type SyncSettings struct {
	AutoSync   bool       `json:"autoSync,omitempty"`
	Exclude    []string   `json:"exclude,omitempty"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

// PartitionMetadata describes a partition ("tag context").
type PartitionMetadata struct {
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
	Description string        `json:"description,omitempty"`
	VaultPath   string        `json:"vaultPath,omitempty"`
	Sync        *SyncSettings `json:"sync,omitempty"`
}

// Partition is a named, independently writable collection of tasks.
type Partition struct {
	Tasks    []Task            `json:"tasks"`
	Metadata PartitionMetadata `json:"metadata"`
}

// NewPartition returns an empty partition stamped with now.
func NewPartition(now time.Time, description string) *Partition {
	return &Partition{
		Tasks: []Task{},
		Metadata: PartitionMetadata{
			Created:     now,
			Updated:     now,
			Description: description,
		},
	}
}

// MaxID returns the largest task id, or 0 for an empty partition.
func (p *Partition) MaxID() int {
	maxID := 0
	for _, t := range p.Tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID
}

// NextID returns the id the next inserted task receives.
func (p *Partition) NextID() int {
	return p.MaxID() + 1
}

// Task returns the task with the given id, or nil.
func (p *Partition) Task(id int) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// HasRef reports whether ref addresses an existing task or subtask.
func (p *Partition) HasRef(ref TaskRef) bool {
	t := p.Task(ref.ID)
	if t == nil {
		return false
	}
	if !ref.IsSubtask() {
		return true
	}
	return t.Subtask(ref.SubID) != nil
}

// FindByKey returns the top-level task matching the natural key, or nil.
func (p *Partition) FindByKey(key NaturalKey) *Task {
	for i := range p.Tasks {
		if KeyOf(&p.Tasks[i]).Equal(key) {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Validate checks every task and the dependency rules: unique ids, targets
// exist, and no forward references in insertion order.
func (p *Partition) Validate() error {
	seen := make(map[int]bool, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return &ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate task id %d", t.ID)}
		}
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return &ValidationError{Field: "dependencies", Reason: fmt.Sprintf("task %d depends on %d which does not precede it", t.ID, dep)}
			}
		}
		seen[t.ID] = true
	}
	return nil
}

// NaturalKey matches a canonical task to a vault record across runs.
type NaturalKey struct {
	SourceFile string
	Title      string
}

// KeyOf returns the natural key of a task.
func KeyOf(t *Task) NaturalKey {
	return NaturalKey{SourceFile: t.SourceFile, Title: t.Title}
}

// Equal compares source files exactly and titles case-insensitively after
// trimming.
func (k NaturalKey) Equal(other NaturalKey) bool {
	return k.SourceFile == other.SourceFile && TitlesEqual(k.Title, other.Title)
}

// TitlesEqual compares titles case-insensitively after trimming.
func TitlesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// String renders the key as "file#title".
func (k NaturalKey) String() string {
	return k.SourceFile + "#" + k.Title
}

// Document is the full multi-partition store document. Partitions are kept
// as raw JSON until decoded so untouched partitions round-trip unchanged.
type Document struct {
	partitions map[string]json.RawMessage
	dirty      map[string]bool // partitions replaced through SetPartition
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{partitions: make(map[string]json.RawMessage)}
}

// ParseDocument decodes the top-level object of a store document.
func ParseDocument(data []byte) (*Document, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &Document{partitions: raw}, nil
}

// Names returns the partition names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.partitions))
	for name := range d.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the partition exists.
func (d *Document) Has(name string) bool {
	_, ok := d.partitions[name]
	return ok
}

// Raw returns the undecoded JSON of a partition.
func (d *Document) Raw(name string) (json.RawMessage, bool) {
	raw, ok := d.partitions[name]
	return raw, ok
}

// Partition decodes the named partition. The boolean is false when the
// partition is absent.
func (d *Document) Partition(name string) (*Partition, bool, error) {
	raw, ok := d.partitions[name]
	if !ok {
		return nil, false, nil
	}
	var p Partition
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, true, fmt.Errorf("%w: partition %q: %v", ErrInvalidData, name, err)
	}
	if p.Tasks == nil {
		p.Tasks = []Task{}
	}
	for i := range p.Tasks {
		p.Tasks[i].ApplyDefaults()
	}
	return &p, true, nil
}

// SetPartition encodes p under name, replacing any previous value.
func (d *Document) SetPartition(name string, p *Partition) error {
	raw, err := encodeJSON(p)
	if err != nil {
		return fmt.Errorf("encode partition %q: %w", name, err)
	}
	if d.partitions == nil {
		d.partitions = make(map[string]json.RawMessage)
	}
	if d.dirty == nil {
		d.dirty = make(map[string]bool)
	}
	d.partitions[name] = raw
	d.dirty[name] = true
	return nil
}

// MarshalIndent encodes the document with two-space indentation. Partitions
// replaced through SetPartition are indented; every other partition is
// written back byte for byte as it was parsed.
func (d *Document) MarshalIndent() ([]byte, error) {
	names := d.Names()
	if len(names) == 0 {
		return []byte("{}\n"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := encodeJSON(name)
		if err != nil {
			return nil, err
		}
		b.WriteString("\n  ")
		b.Write(key)
		b.WriteString(": ")
		raw := bytes.TrimSpace(d.partitions[name])
		if !d.dirty[name] {
			b.Write(raw)
			continue
		}
		if err := json.Indent(&b, raw, "  ", "  "); err != nil {
			return nil, fmt.Errorf("indent partition %q: %w", name, err)
		}
	}
	b.WriteString("\n}\n")
	return b.Bytes(), nil
}

// encodeJSON marshals v without escaping HTML characters, so titles such as
// "R&D <draft>" are stored as written.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
