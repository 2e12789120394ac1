// Package patchengine implements all reasoning over unified-diff text (§4.3):
// syntax validation, stats/complexity, conflict detection, preview, apply,
// split, and combine. It is built on top of internal/repostore, the only
// component allowed to touch git or the catalog.
package patchengine

import "strings"

// Hunk is one @@ -a,b +c,d @@ region within a file section.
type Hunk struct {
	Header  string
	Lines   []string
	OldLine int
	OldSpan int
	NewLine int
	NewSpan int
}

// FileSection is one `diff --git a/… b/…` block.
type FileSection struct {
	OldPath    string
	NewPath    string
	IsNew      bool
	IsDeleted  bool
	IsRename   bool
	IsBinary   bool
	Hunks      []Hunk
	RawHeader  []string
}

// Path returns the section's effective path (new path, or old path for a
// pure delete).
func (f FileSection) Path() string {
	if f.NewPath != "" && f.NewPath != "/dev/null" {
		return f.NewPath
	}
	return f.OldPath
}

// parsePatch splits diff into file sections with their hunks. It is
// deliberately forgiving of trailing whitespace and missing final newlines
// — strict well-formedness is ValidateSyntax's job, not the parser's.
func parsePatch(diff string) []FileSection {
	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	var sections []FileSection
	var cur *FileSection

	flushHunk := func(h *Hunk) {
		if cur != nil && h != nil {
			cur.Hunks = append(cur.Hunks, *h)
		}
	}

	var hunk *Hunk
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushHunk(hunk)
			hunk = nil
			if cur != nil {
				sections = append(sections, *cur)
			}
			cur = &FileSection{RawHeader: []string{line}}
			old, new := parseDiffGitLine(line)
			cur.OldPath, cur.NewPath = old, new
		case cur == nil:
			continue
		case strings.HasPrefix(line, "rename from "):
			cur.IsRename = true
			cur.RawHeader = append(cur.RawHeader, line)
		case strings.HasPrefix(line, "new file mode"):
			cur.IsNew = true
			cur.RawHeader = append(cur.RawHeader, line)
		case strings.HasPrefix(line, "deleted file mode"):
			cur.IsDeleted = true
			cur.RawHeader = append(cur.RawHeader, line)
		case strings.HasPrefix(line, "Binary files") || strings.Contains(line, "GIT binary patch"):
			cur.IsBinary = true
			cur.RawHeader = append(cur.RawHeader, line)
		case strings.HasPrefix(line, "--- "):
			cur.RawHeader = append(cur.RawHeader, line)
			if cur.OldPath == "" {
				cur.OldPath = strings.TrimPrefix(line, "--- ")
			}
		case strings.HasPrefix(line, "+++ "):
			cur.RawHeader = append(cur.RawHeader, line)
			if cur.NewPath == "" {
				cur.NewPath = strings.TrimPrefix(line, "+++ ")
			}
		case strings.HasPrefix(line, "index "):
			cur.RawHeader = append(cur.RawHeader, line)
		case strings.HasPrefix(line, "@@ "):
			flushHunk(hunk)
			hunk = &Hunk{Header: line}
			hunk.OldLine, hunk.OldSpan, hunk.NewLine, hunk.NewSpan = parseHunkHeader(line)
		default:
			if hunk != nil {
				hunk.Lines = append(hunk.Lines, line)
			}
		}
	}
	flushHunk(hunk)
	if cur != nil {
		sections = append(sections, *cur)
	}
	return sections
}

// parseDiffGitLine extracts the a/ and b/ paths from a "diff --git a/x b/y"
// header. Paths containing spaces make this inherently ambiguous from the
// header alone; the --- / +++ lines (parsed separately) are the source of
// truth when they disagree.
func parseDiffGitLine(line string) (oldPath, newPath string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	parts := strings.SplitN(rest, " b/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	oldPath = strings.TrimPrefix(parts[0], "a/")
	newPath = parts[1]
	return oldPath, newPath
}

// parseHunkHeader parses "@@ -a,b +c,d @@ ..." into its four numbers. A
// missing ",span" defaults span to 1, per the unified diff format.
func parseHunkHeader(header string) (oldLine, oldSpan, newLine, newSpan int) {
	inner := strings.TrimPrefix(header, "@@ ")
	end := strings.Index(inner, " @@")
	if end >= 0 {
		inner = inner[:end]
	}
	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return 0, 0, 0, 0
	}
	oldLine, oldSpan = parseRange(fields[0], "-")
	newLine, newSpan = parseRange(fields[1], "+")
	return
}

func parseRange(field, sigil string) (line, span int) {
	field = strings.TrimPrefix(field, sigil)
	parts := strings.SplitN(field, ",", 2)
	line = atoiSafe(parts[0])
	span = 1
	if len(parts) == 2 {
		span = atoiSafe(parts[1])
	}
	return
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
