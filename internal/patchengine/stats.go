package patchengine

import "strings"

// Complexity buckets a patch by (files affected, total lines changed, hunk
// count), per §4.3's documented thresholds.
type Complexity string

const (
	Trivial     Complexity = "trivial"
	Simple      Complexity = "simple"
	Moderate    Complexity = "moderate"
	Complex     Complexity = "complex"
	VeryComplex Complexity = "very_complex"
)

// Stats is get_patch_stats's output.
type Stats struct {
	FilesAffected int
	Additions     int
	Deletions     int
	HunkCount     int
	Complexity    Complexity
}

func (s Stats) totalLines() int { return s.Additions + s.Deletions }

// GetStats computes affected-file/addition/deletion/hunk counts and the
// complexity bucket for diff.
func GetStats(diff string) Stats {
	sections := parsePatch(diff)
	var st Stats
	st.FilesAffected = len(sections)
	for _, sec := range sections {
		st.HunkCount += len(sec.Hunks)
		for _, h := range sec.Hunks {
			for _, line := range h.Lines {
				switch {
				case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
					st.Additions++
				case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
					st.Deletions++
				}
			}
		}
	}
	st.Complexity = bucketComplexity(st)
	return st
}

// bucketComplexity applies §4.3's documented thresholds:
// trivial <= 1 file & <= 10 lines; simple <= 3 files & <= 50 lines;
// moderate <= 10 files & <= 200 lines; complex <= 30 files & <= 1000 lines;
// else very_complex.
func bucketComplexity(st Stats) Complexity {
	lines := st.totalLines()
	switch {
	case st.FilesAffected <= 1 && lines <= 10:
		return Trivial
	case st.FilesAffected <= 3 && lines <= 50:
		return Simple
	case st.FilesAffected <= 10 && lines <= 200:
		return Moderate
	case st.FilesAffected <= 30 && lines <= 1000:
		return Complex
	default:
		return VeryComplex
	}
}
