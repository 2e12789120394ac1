package patchengine

import "strings"

// FileConflict describes one file's apply-check failure within a patch.
type FileConflict struct {
	Path    string
	Kind    string
	Message string
}

// Conflicts is detect_conflicts_detailed's output.
type Conflicts struct {
	CanApply bool
	PerFile  []FileConflict
}

// workpadApplyChecker is the capability DetectConflicts needs from the
// Repository Store: a non-mutating "would this apply" check against a
// workpad's current tip (§4.3 "uses git apply --check semantics").
type workpadApplyChecker interface {
	CheckApply(padID, diff string) (ok bool, stderr string, err error)
}

// DetectConflicts reports, per file, whether diff would apply cleanly
// against pad's current tip. It has no side effects.
func DetectConflicts(store workpadApplyChecker, padID, diff string) (Conflicts, error) {
	ok, stderr, err := store.CheckApply(padID, diff)
	if err != nil {
		return Conflicts{}, err
	}
	if ok {
		return Conflicts{CanApply: true}, nil
	}

	sections := parsePatch(diff)
	out := Conflicts{CanApply: false}
	affected := classifyApplyStderr(stderr)
	if len(affected) == 0 {
		// git gave no per-file detail; attribute the conflict to every file
		// the patch touches so the caller still gets an actionable list.
		for _, sec := range sections {
			out.PerFile = append(out.PerFile, FileConflict{
				Path:    sec.Path(),
				Kind:    "does-not-apply",
				Message: stderr,
			})
		}
		return out, nil
	}
	out.PerFile = affected
	return out, nil
}

// classifyApplyStderr extracts per-file conflict entries from git apply
// --check's stderr, which reports one "error: patch failed: path:line" or
// "error: path: patch does not apply" line per offending file.
func classifyApplyStderr(stderr string) []FileConflict {
	var out []FileConflict
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "error: patch failed:"):
			rest := strings.TrimPrefix(line, "error: patch failed:")
			rest = strings.TrimSpace(rest)
			path := rest
			if idx := strings.LastIndex(rest, ":"); idx >= 0 {
				path = rest[:idx]
			}
			out = append(out, FileConflict{Path: path, Kind: "content-mismatch", Message: line})
		case strings.HasPrefix(line, "error:") && strings.Contains(line, "does not apply"):
			rest := strings.TrimPrefix(line, "error:")
			rest = strings.TrimSpace(rest)
			path := strings.TrimSuffix(rest, ": patch does not apply")
			out = append(out, FileConflict{Path: path, Kind: "does-not-apply", Message: line})
		case strings.HasPrefix(line, "error:") && strings.Contains(line, "No such file or directory"):
			rest := strings.TrimPrefix(line, "error:")
			out = append(out, FileConflict{Path: strings.TrimSpace(rest), Kind: "missing-file", Message: line})
		}
	}
	return out
}
