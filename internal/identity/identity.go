// Package identity maps between canonical task ids and [[Title]]
// cross-reference tokens.
package identity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// Token delimiters.
const (
	Open  = "[["
	Close = "]]"
)

// match levels, in precedence order.
const (
	exactTask = iota
	exactSubtask
	substringTask
	substringSubtask
)

// Inner strips the token delimiters, when present, and trims whitespace.
func Inner(token string) string {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, Open)
	s = strings.TrimSuffix(s, Close)
	return strings.TrimSpace(s)
}

// Token wraps a title in delimiters.
func Token(title string) string {
	return Open + title + Close
}

// ResolveToID resolves a token or bare title against the partition. Exact
// case-insensitive title matches beat substring matches and top-level tasks
// beat subtasks; within a level the first task in insertion order wins.
func ResolveToID(token string, p *types.Partition) (types.TaskRef, error) {
	refs := candidates(token, p, true)
	if len(refs) == 0 {
		return types.TaskRef{}, fmt.Errorf("resolve %q: %w", token, types.ErrNotFound)
	}
	return refs[0], nil
}

// Ambiguous returns every task matching token at the winning precedence
// level. More than one result means ResolveToID picked the first of several.
func Ambiguous(token string, p *types.Partition) []types.TaskRef {
	return candidates(token, p, false)
}

func candidates(token string, p *types.Partition, firstOnly bool) []types.TaskRef {
	needle := strings.ToLower(Inner(token))
	if needle == "" || p == nil {
		return nil
	}
	for level := exactTask; level <= substringSubtask; level++ {
		var refs []types.TaskRef
		for i := range p.Tasks {
			t := &p.Tasks[i]
			switch level {
			case exactTask, substringTask:
				if matches(t.Title, needle, level == exactTask) {
					refs = append(refs, types.TaskRef{ID: t.ID})
				}
			default:
				for _, st := range t.Subtasks {
					if matches(st.Title, needle, level == exactSubtask) {
						refs = append(refs, types.TaskRef{ID: t.ID, SubID: st.ID})
					}
				}
			}
			if firstOnly && len(refs) > 0 {
				return refs
			}
		}
		if len(refs) > 0 {
			return refs
		}
	}
	return nil
}

func matches(title, needle string, exact bool) bool {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return false
	}
	if exact {
		return title == needle
	}
	return strings.Contains(title, needle)
}

// ResolveToToken returns the [[Title]] token for a task or subtask.
func ResolveToToken(ref types.TaskRef, p *types.Partition) (string, error) {
	if p != nil {
		if t := p.Task(ref.ID); t != nil {
			title := t.Title
			if ref.IsSubtask() {
				title = ""
				if st := t.Subtask(ref.SubID); st != nil {
					title = st.Title
				}
			}
			if strings.TrimSpace(title) != "" {
				return Token(title), nil
			}
		}
	}
	return "", fmt.Errorf("task %s: %w", ref, types.ErrNotFound)
}

// ParseRef parses "7" or "7.2". Leading zeros and surrounding space are
// accepted.
func ParseRef(s string) (types.TaskRef, error) {
	s = strings.TrimSpace(s)
	head, tail, dotted := strings.Cut(s, ".")
	id, err := strconv.Atoi(head)
	if err != nil || id <= 0 {
		return types.TaskRef{}, &types.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not a task id", s)}
	}
	ref := types.TaskRef{ID: id}
	if dotted {
		sub, err := strconv.Atoi(tail)
		if err != nil || sub <= 0 {
			return types.TaskRef{}, &types.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not a subtask id", s)}
		}
		ref.SubID = sub
	}
	return ref, nil
}

// FormatID normalises an id for display. Integers print in decimal, dotted
// numeric strings lose leading zeros per segment, and tokens and other
// strings are returned trimmed but otherwise untouched. FormatID is
// idempotent.
func FormatID(id any) string {
	switch v := id.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10)
		}
		return FormatID(strconv.FormatFloat(v, 'f', -1, 64))
	case types.TaskRef:
		return v.String()
	case *types.TaskRef:
		if v == nil {
			return ""
		}
		return v.String()
	case string:
		return formatString(v)
	case fmt.Stringer:
		return formatString(v.String())
	case nil:
		return ""
	}
	return formatString(fmt.Sprint(id))
}

func formatString(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, Open) && strings.HasSuffix(s, Close) {
		return s
	}
	segments := strings.Split(s, ".")
	for i, seg := range segments {
		if seg == "" || !isDigits(seg) {
			return s
		}
		seg = strings.TrimLeft(seg, "0")
		if seg == "" {
			seg = "0"
		}
		segments[i] = seg
	}
	return strings.Join(segments, ".")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateToken checks that token is a well-formed [[...]] reference.
func ValidateToken(token string) error {
	s := strings.TrimSpace(token)
	switch {
	case !strings.HasPrefix(s, Open):
		return &types.ValidationError{Field: "token", Reason: fmt.Sprintf("%q is missing the opening %s", token, Open)}
	case !strings.HasSuffix(s, Close) || len(s) < len(Open)+len(Close):
		return &types.ValidationError{Field: "token", Reason: fmt.Sprintf("%q is missing the closing %s", token, Close)}
	}
	inner := s[len(Open) : len(s)-len(Close)]
	if strings.Contains(inner, Open) || strings.Contains(inner, Close) {
		return &types.ValidationError{Field: "token", Reason: fmt.Sprintf("%q contains a nested delimiter", token)}
	}
	if strings.TrimSpace(inner) == "" {
		return &types.ValidationError{Field: "token", Reason: fmt.Sprintf("%q has no text between the delimiters", token)}
	}
	return nil
}
