package repostore

import (
	"path/filepath"
	"strings"

	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/eventlog"
)

// SwitchWorkpad is C2's switch_workpad: it makes pad the repo's active
// workpad and checks out its branch in the shared working tree. Per §4.2's
// policy, active-workpad switching never discards uncommitted state
// silently — if the working tree is dirty, it fails with DirtyWorkingTree
// instead of checking out over the top of it.
func (s *Store) SwitchWorkpad(padID string) (*catalog.Workpad, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return nil, err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return nil, err
	}

	err = s.withRepoLock(pad.RepoID, func() error {
		cur, cerr := s.git.CurrentBranch(repo.Path)
		if cerr == nil && cur == pad.Branch {
			repo.ActiveWorkpad = pad.ID
			return s.cat.PutRepo(repo)
		}

		st, serr := s.git.Status(repo.Path)
		if serr != nil {
			return &errs.Io{Op: "read status", Err: serr}
		}
		if !st.Clean {
			return &errs.DirtyWorkingTree{RepoID: repo.ID}
		}
		if werr := s.checkoutWorkpadBranch(repo, pad); werr != nil {
			return werr
		}
		repo.ActiveWorkpad = pad.ID
		if perr := s.cat.PutRepo(repo); perr != nil {
			return &errs.Io{Op: "update repository record", Err: perr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pad, nil
}

// GetActiveWorkpad is C2's get_active_workpad: it returns repo's currently
// active workpad, or nil if none has been switched to yet.
func (s *Store) GetActiveWorkpad(repoID string) (*catalog.Workpad, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	if repo.ActiveWorkpad == "" {
		return nil, nil
	}
	return s.GetWorkpad(repo.ActiveWorkpad)
}

// CompareResult is compare_workpads's output.
type CompareResult struct {
	Diff         string
	FilesChanged int
	Additions    int
	Deletions    int
}

// CompareWorkpads is C2's compare_workpads: the unified diff from padAID's
// branch tip to padBID's, plus its size — for comparing two in-flight
// attempts at the same change before deciding which to promote.
func (s *Store) CompareWorkpads(padAID, padBID string) (CompareResult, error) {
	padA, err := s.GetWorkpad(padAID)
	if err != nil {
		return CompareResult{}, err
	}
	padB, err := s.GetWorkpad(padBID)
	if err != nil {
		return CompareResult{}, err
	}
	if padA.RepoID != padB.RepoID {
		return CompareResult{}, &errs.InvalidInput{Field: "pad", Message: "workpads belong to different repos"}
	}
	repo, err := s.GetRepo(padA.RepoID)
	if err != nil {
		return CompareResult{}, err
	}

	diff, err := s.git.Diff(repo.Path, padA.Branch, padB.Branch)
	if err != nil {
		return CompareResult{}, &errs.Io{Op: "diff workpads", Err: err}
	}
	stats := computePatchStats(diff)
	return CompareResult{
		Diff:         diff,
		FilesChanged: stats.FilesAffected,
		Additions:    stats.Additions,
		Deletions:    stats.Deletions,
	}, nil
}

// MergePreview is C2's get_merge_preview output: a non-destructive
// simulation of promoting pad.
type MergePreview struct {
	CanFastForward bool
	Ahead          int
	Behind         int
	Conflicts      []string
	ReadyToPromote bool
}

// GetMergePreview is C2's get_merge_preview. It never mutates trunk or the
// workpad: it reuses CanPromote's fast-forward check, and when a
// fast-forward is not possible because real content conflicts exist (as
// opposed to a clean-but-non-linear divergence), it lists the conflicting
// files by simulating the merge.
func (s *Store) GetMergePreview(padID string) (MergePreview, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return MergePreview{}, err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return MergePreview{}, err
	}

	canFF, reason, err := s.CanPromote(padID)
	if err != nil {
		return MergePreview{}, err
	}
	ahead, behind, err := s.GetCommitsAheadBehind(padID)
	if err != nil {
		return MergePreview{}, err
	}

	preview := MergePreview{CanFastForward: canFF, Ahead: ahead, Behind: behind, ReadyToPromote: canFF}
	if canFF || reason != errs.ReasonConflicts {
		return preview, nil
	}
	conflicts, cerr := s.mergeConflicts(repo, pad)
	if cerr != nil {
		return MergePreview{}, cerr
	}
	preview.Conflicts = conflicts
	return preview, nil
}

// mergeConflicts simulates merging pad onto trunk without leaving any
// lasting state behind: it diffs pad against its base commit, checks that
// diff against trunk's current tip with git apply --check, and restores
// whatever branch was checked out before returning. Shared by CanPromote
// (to tell ReasonConflicts apart from ReasonDiverged) and GetMergePreview.
//
// This duplicates patchengine's stderr classification in miniature rather
// than importing that package: patchengine composes repostore, not the
// other way around, and this only needs a flat list of paths, not
// patchengine's richer per-file Kind/Message records.
func (s *Store) mergeConflicts(repo *catalog.Repository, pad *catalog.Workpad) ([]string, error) {
	var paths []string
	err := s.withRepoLock(repo.ID, func() error {
		diff, derr := s.git.Diff(repo.Path, pad.BaseCommit, pad.Branch)
		if derr != nil {
			return &errs.Io{Op: "diff workpad against base", Err: derr}
		}
		if diff == "" {
			return nil
		}

		orig, cerr := s.git.CurrentBranch(repo.Path)
		if cerr != nil {
			return &errs.Io{Op: "read current branch", Err: cerr}
		}
		if orig != repo.TrunkBranch {
			if err := s.git.Checkout(repo.Path, repo.TrunkBranch); err != nil {
				return &errs.Io{Op: "checkout trunk", Err: err}
			}
			defer func() { _ = s.git.Checkout(repo.Path, orig) }()
		}

		ok, stderr, aerr := s.git.ApplyCheck(repo.Path, diff)
		if aerr != nil {
			return &errs.Io{Op: "check merge apply", Err: aerr}
		}
		if !ok {
			paths = classifyConflictPaths(stderr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// classifyConflictPaths extracts the file paths git apply --check's stderr
// blames for a failed merge simulation, matching the same line prefixes
// patchengine's classifyApplyStderr does. Each path is listed once, even
// when several stderr lines blame it.
func classifyConflictPaths(stderr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		var path string
		switch {
		case strings.HasPrefix(line, "error: patch failed:"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "error: patch failed:"))
			if idx := strings.LastIndex(rest, ":"); idx >= 0 {
				rest = rest[:idx]
			}
			path = rest
		case strings.HasPrefix(line, "error:") && strings.Contains(line, "does not apply"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "error:"))
			path = strings.TrimSuffix(rest, ": patch does not apply")
		case strings.HasPrefix(line, "error:") && strings.Contains(line, "No such file or directory"):
			path = strings.TrimSpace(strings.TrimPrefix(line, "error:"))
		}
		if path != "" && !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	return out
}

// eventReader is the read-back capability GetOperationalLog needs. It is
// kept separate from capability.EventSink (which every publisher in the
// core depends on and which only promises Publish) because most EventSink
// implementations have no way to answer "what happened since" — only the
// local SQLite-backed eventlog.DB does.
type eventReader interface {
	Since(repoID, since string) ([]eventlog.LoggedEvent, error)
}

// GetOperationalLog returns repoID's recorded events at or after since
// (RFC3339), oldest first, when the configured event sink also supports
// reading back.
func (s *Store) GetOperationalLog(repoID, since string) ([]eventlog.LoggedEvent, error) {
	reader, ok := s.events.(eventReader)
	if !ok {
		return nil, &errs.InvariantViolation{Message: "configured event sink does not support reading back its log"}
	}
	return reader.Since(repoID, since)
}

// Reconcile implements the startup invariant from §4.1's data model: the
// catalog is reconciled with on-disk git state. Branches with no catalog
// entry are left alone — they may belong to something else entirely, and
// the Repository Store never assumes it owns every branch in a repo it
// manages. A catalog entry whose branch has disappeared out from under it
// (e.g. deleted by hand outside sologit) is marked DELETED rather than left
// pointing at nothing. Returns the ids marked DELETED.
func (s *Store) Reconcile(repoID string) ([]string, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	pads, err := s.ListWorkpads(WorkpadFilter{RepoID: repoID}, SortByCreatedAt, false)
	if err != nil {
		return nil, err
	}

	var marked []string
	err = s.withRepoLock(repoID, func() error {
		branches, berr := s.git.ListBranches(repo.Path)
		if berr != nil {
			return &errs.Io{Op: "list branches", Err: berr}
		}
		present := make(map[string]bool, len(branches))
		for _, b := range branches {
			present[b] = true
		}
		for _, pad := range pads {
			if pad.Status != catalog.WorkpadActive || present[pad.Branch] {
				continue
			}
			pad.Status = catalog.WorkpadDeleted
			pad.LastActivity = now()
			if perr := s.cat.PutWorkpad(pad); perr != nil {
				return &errs.Io{Op: "update workpad record", Err: perr}
			}
			marked = append(marked, pad.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// ReconcileAll runs Reconcile across every repo in the catalog — called
// once at startup so a workpad whose branch was deleted outside sologit
// doesn't linger as a phantom ACTIVE record.
func (s *Store) ReconcileAll() error {
	repos, err := s.ListRepos()
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if _, err := s.Reconcile(repo.ID); err != nil {
			return err
		}
	}
	return nil
}

// WorktreeFor checks out pad's branch into an isolated git worktree under
// baseDir/data/worktrees/<pad-id>, instead of switching the repo's one
// shared working tree — for callers (the CI Orchestrator's ephemeral
// verification workpad) that run concurrently with other repo activity and
// need real isolation rather than a plain branch switch. The returned
// cleanup must be called before the workpad's branch is deleted: git
// refuses to delete a branch that is checked out in another worktree.
func (s *Store) WorktreeFor(padID string) (dir string, cleanup func() error, err error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return "", nil, err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return "", nil, err
	}

	wtPath := filepath.Join(s.baseDir, "data", "worktrees", pad.ID)
	err = s.withRepoLock(pad.RepoID, func() error {
		return s.git.WorktreeAddExisting(repo.Path, wtPath, pad.Branch)
	})
	if err != nil {
		return "", nil, &errs.Io{Op: "add worktree", Err: err}
	}

	cleanup = func() error {
		return s.withRepoLock(pad.RepoID, func() error {
			if rerr := s.git.WorktreeRemove(repo.Path, wtPath, true); rerr != nil {
				return &errs.Io{Op: "remove worktree", Err: rerr}
			}
			return nil
		})
	}
	return wtPath, cleanup, nil
}
