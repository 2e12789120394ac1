package repostore

import "strings"

// checkpointStats is the minimal per-checkpoint summary the catalog record
// stores (§3 Checkpoint.patch-summary). This is deliberately a much smaller
// computation than the Patch Engine's full PatchStats (no hunk count, no
// complexity bucket) — it exists only so catalog.Checkpoint can report
// files/additions/deletions without the Repository Store depending on the
// Patch Engine package (layering runs patchengine -> repostore, not back).
type checkpointStats struct {
	FilesAffected int
	Additions     int
	Deletions     int
}

// computePatchStats scans a unified diff's file headers and +/- lines.
func computePatchStats(diff string) checkpointStats {
	var st checkpointStats
	inFile := false
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			st.FilesAffected++
			inFile = true
		case strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "--- "):
			// header line, not a content line
		case strings.HasPrefix(line, "+") && inFile:
			st.Additions++
		case strings.HasPrefix(line, "-") && inFile:
			st.Deletions++
		}
	}
	return st
}
