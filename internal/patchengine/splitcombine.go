package patchengine

import "strings"

// SplitByFile partitions diff into one diff string per affected file,
// keyed by the section's effective path. Each value is independently
// re-appliable: the full "diff --git" header plus that file's hunks.
func SplitByFile(diff string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(diff) == "" {
		return out
	}

	var current []string
	var path string
	flush := func() {
		if path != "" && len(current) > 0 {
			body := strings.Join(current, "\n")
			if !strings.HasSuffix(body, "\n") {
				body += "\n"
			}
			out[path] = body
		}
	}

	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			current = nil
			old, new := parseDiffGitLine(line)
			path = new
			if path == "" || path == "/dev/null" {
				path = old
			}
		}
		if path != "" || len(current) > 0 {
			current = append(current, line)
		}
	}
	flush()
	return out
}

// CombinePatches concatenates diffs in order, preserving hunk order within
// and across files. An empty list produces the empty string.
func CombinePatches(diffs []string) string {
	var parts []string
	for _, d := range diffs {
		d = strings.TrimRight(d, "\n")
		if d == "" {
			continue
		}
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}
