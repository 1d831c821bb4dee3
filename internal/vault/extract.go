package vault

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

var (
	checkboxPattern = regexp.MustCompile(`^([ \t]*)[-*+][ \t]+\[([ xX])\][ \t]+(.*?)[ \t]*$`)
	tagPattern      = regexp.MustCompile(`(?:^|[\s(,])#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)
	linkPattern     = regexp.MustCompile(`\[\[([^\[\]]+?)\]\]`)
	headingPattern  = regexp.MustCompile(`^#[ \t]+(.+?)[ \t]*#*[ \t]*$`)
)

// FileResult is what one file contributes to a scan.
type FileResult struct {
	Path        string
	Records     []types.VaultRecord
	Tags        []string
	Links       []string
	Frontmatter map[string]any
}

// ExtractFile parses one markdown file. rel is the slash-separated path of the
// file relative to the vault root.
func ExtractFile(rel string, content []byte, modTime time.Time) FileResult {
	lines := strings.Split(string(content), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	fm, bodyStart := splitFrontmatter(lines)
	fmTags := frontmatterTags(fm)

	res := FileResult{Path: rel, Frontmatter: fm}
	tags := make(map[string]struct{})
	links := make(map[string]struct{})
	for _, t := range fmTags {
		tags[t] = struct{}{}
	}

	type open struct {
		indent int
		title  string
	}
	var stack []open
	var heading string
	inFence := false

	for i := bodyStart; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if heading == "" {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				heading = m[1]
			}
		}

		lineTags := extractTags(line)
		lineLinks := extractLinks(line)
		for _, t := range lineTags {
			tags[t] = struct{}{}
		}
		for _, l := range lineLinks {
			links[l] = struct{}{}
		}

		m := checkboxPattern.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[3]) == "" {
			continue
		}
		indent := indentWidth(m[1])
		title := strings.TrimSpace(m[3])
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := ""
		if len(stack) > 0 {
			parent = stack[len(stack)-1].title
		}
		stack = append(stack, open{indent: indent, title: title})

		res.Records = append(res.Records, types.VaultRecord{
			Title:       title,
			Completed:   m[2] != " ",
			SourceFile:  rel,
			Line:        i + 1,
			Indent:      indent,
			Parent:      parent,
			Tags:        union(lineTags, fmTags),
			LinkedNotes: lineLinks,
			Frontmatter: fm,
			ModTime:     modTime,
		})
	}

	markPrimary(res.Records, fm, heading)
	res.Tags = sortedKeys(tags)
	res.Links = sortedKeys(links)
	return res
}

// markPrimary flags the top-level record named by the front-matter title or
// the first heading, falling back to the only top-level record.
func markPrimary(records []types.VaultRecord, fm map[string]any, heading string) {
	name := heading
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		name = t
	}
	topLevel := -1
	count := 0
	for i := range records {
		if records[i].Parent != "" {
			continue
		}
		if name != "" && types.TitlesEqual(records[i].Title, name) {
			records[i].Primary = true
			return
		}
		if topLevel < 0 {
			topLevel = i
		}
		count++
	}
	if count == 1 {
		records[topLevel].Primary = true
	}
}

// splitFrontmatter parses a leading --- block and returns it along with the
// index of the first body line. Files without front matter return a nil map.
func splitFrontmatter(lines []string) (map[string]any, int) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, 0
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i]); t == "---" || t == "..." {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, 0
	}
	block := strings.Join(lines[1:end], "\n")
	fm := make(map[string]any)
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		fm = parseFrontmatterLines(lines[1:end])
	}
	return fm, end + 1
}

// parseFrontmatterLines is the fallback for front matter that is not valid
// YAML. Lines without a "key: value" shape are ignored.
func parseFrontmatterLines(lines []string) map[string]any {
	fm := make(map[string]any)
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		fm[key] = value
	}
	return fm
}

// frontmatterTags reads the tags key, accepting a YAML list or a string of
// comma or space separated tags, with or without a leading #.
func frontmatterTags(fm map[string]any) []string {
	raw, ok := fm["tags"]
	if !ok {
		raw, ok = fm["tag"]
	}
	if !ok {
		return nil
	}
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s != "" {
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(f)
		}
	}
	return union(out, nil)
}

func extractTags(line string) []string {
	if headingPattern.MatchString(line) {
		line = strings.TrimLeft(line, "# \t")
	}
	line = linkPattern.ReplaceAllString(line, " ")
	var out []string
	for _, m := range tagPattern.FindAllStringSubmatch(line, -1) {
		tag := strings.TrimRight(m[1], "/-")
		if tag == "" || allDigits(tag) {
			continue
		}
		out = append(out, tag)
	}
	return union(out, nil)
}

// extractLinks returns link targets with any alias or heading suffix removed.
func extractLinks(line string) []string {
	var out []string
	for _, m := range linkPattern.FindAllStringSubmatch(line, -1) {
		if target := LinkTarget(m[1]); target != "" {
			out = append(out, target)
		}
	}
	return union(out, nil)
}

// LinkTarget normalises the inner text of a [[...]] link: [[a|b]] and
// [[a#h]] both name a.
func LinkTarget(inner string) string {
	inner, _, _ = strings.Cut(inner, "|")
	inner, _, _ = strings.Cut(inner, "#")
	return strings.TrimSpace(inner)
}

func indentWidth(ws string) int {
	n := 0
	for _, r := range ws {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// union returns the distinct values of a and b in first-seen order.
func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
