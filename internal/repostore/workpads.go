package repostore

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sologit/sologit/internal/capability"
	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/gitengine"
	"github.com/sologit/sologit/internal/idgen"
)

// idgenNew is a package-level indirection so tests could swap id generation;
// kept as a thin wrapper rather than a field because ids are never faked in
// the store's own tests (only the Runner is).
func idgenNew(prefix string) string { return idgen.New(prefix) }

// gitenginehistory aliases the Git Engine's commit record so Store's public
// surface doesn't leak the gitengine import into callers that only need the
// shape, not the package.
type gitenginehistory = gitengine.CommitInfo

// statusInfo aliases the Git Engine's working-tree status shape.
type statusInfo gitengine.StatusInfo

const maxTitleLen = 100

// validateTitle enforces §4.1's workpad title rule: non-empty, <=100 chars.
// Slugging (not validation) handles the character set.
func validateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return &errs.InvalidInput{Field: "title", Message: "must not be empty"}
	}
	if len(t) > maxTitleLen {
		return &errs.InvalidInput{Field: "title", Message: "must be <= 100 characters"}
	}
	return nil
}

// CreateWorkpad creates branch pads/<slug>-<ts> from the repo's current
// trunk tip and records a new ACTIVE workpad.
func (s *Store) CreateWorkpad(repoID, title string) (*catalog.Workpad, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	base, err := s.git.RevParse(repo.Path, repo.TrunkBranch)
	if err != nil {
		return nil, &errs.Io{Op: "resolve trunk tip", Err: err}
	}
	return s.createWorkpadFrom(repoID, title, base)
}

// CreateWorkpadFromCommit creates a workpad branched from an arbitrary
// commit rather than trunk's current tip — used by the CI Orchestrator's
// ephemeral verification workpads (§4.8) and by rollback recreation (§4.8
// step 2), neither of which wants to race trunk's tip moving underneath it.
func (s *Store) CreateWorkpadFromCommit(repoID, title, baseSHA string) (*catalog.Workpad, error) {
	return s.createWorkpadFrom(repoID, title, baseSHA)
}

func (s *Store) createWorkpadFrom(repoID, title, base string) (*catalog.Workpad, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}

	var pad *catalog.Workpad
	err = s.withRepoLock(repoID, func() error {
		branch := branchName(title)
		if err := s.git.CreateBranchFrom(repo.Path, branch, base); err != nil {
			return &errs.Io{Op: "create workpad branch", Err: err}
		}

		ts := now()
		pad = &catalog.Workpad{
			ID:           idgenNew("pad"),
			RepoID:       repoID,
			Title:        title,
			Branch:       branch,
			BaseCommit:   base,
			Status:       catalog.WorkpadActive,
			TestStatus:   catalog.TestStatusNone,
			CreatedAt:    ts,
			LastActivity: ts,
		}
		if err := s.cat.PutWorkpad(pad); err != nil {
			return &errs.Io{Op: "persist workpad record", Err: err}
		}
		repo.WorkpadCount++
		if err := s.cat.PutRepo(repo); err != nil {
			return &errs.Io{Op: "update repository record", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(capability.Event{RepoID: repoID, WorkpadID: pad.ID, Kind: capability.EventWorkpadCreated, Detail: title})
	return pad, nil
}

// GetWorkpad looks up a single workpad by id.
func (s *Store) GetWorkpad(id string) (*catalog.Workpad, error) {
	pad, ok, err := s.cat.GetWorkpad(id)
	if err != nil {
		return nil, &errs.Io{Op: "read workpad record", Err: err}
	}
	if !ok {
		return nil, &errs.NotFound{Kind: errs.EntityWorkpad, ID: id}
	}
	return pad, nil
}

// WorkpadFilter narrows ListWorkpads. Zero-valued fields match anything.
type WorkpadFilter struct {
	RepoID     string
	Status     catalog.WorkpadStatus
	TestStatus catalog.TestStatus
}

// WorkpadSortKey is the field list_workpads_filtered sorts by.
type WorkpadSortKey string

const (
	SortByCreatedAt    WorkpadSortKey = "created_at"
	SortByLastActivity WorkpadSortKey = "last_activity"
	SortByTitle        WorkpadSortKey = "title"
)

// ListWorkpads returns every workpad matching filter, sorted by sortBy
// (ascending unless reverse).
func (s *Store) ListWorkpads(filter WorkpadFilter, sortBy WorkpadSortKey, reverse bool) ([]*catalog.Workpad, error) {
	all, err := s.cat.ListWorkpads()
	if err != nil {
		return nil, &errs.Io{Op: "list workpads", Err: err}
	}

	var out []*catalog.Workpad
	for _, p := range all {
		if filter.RepoID != "" && p.RepoID != filter.RepoID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.TestStatus != "" && p.TestStatus != filter.TestStatus {
			continue
		}
		out = append(out, p)
	}

	less := func(i, j int) bool {
		switch sortBy {
		case SortByTitle:
			return out[i].Title < out[j].Title
		case SortByLastActivity:
			return out[i].LastActivity < out[j].LastActivity
		default:
			return out[i].CreatedAt < out[j].CreatedAt
		}
	}
	sort.Slice(out, less)
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// DeleteWorkpad removes a workpad's branch and all its checkpoint tags, and
// tombstones the record. If force is false and status is not PROMOTED, it
// refuses with InvalidInput: force=true is the confirmation signal, and
// this method itself performs no interactive prompt (the core has no UI
// layer).
func (s *Store) DeleteWorkpad(padID string, force bool) error {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return err
	}
	if !force && pad.Status != catalog.WorkpadPromoted {
		return &errs.InvalidInput{Field: "force", Message: "deleting a non-promoted workpad requires force=true"}
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return err
	}

	err = s.withRepoLock(pad.RepoID, func() error {
		tags, err := s.git.ListTags(repo.Path, "pads/"+pad.ID+"@*")
		if err == nil {
			for _, tag := range tags {
				_ = s.git.DeleteTag(repo.Path, tag)
			}
		}
		if pad.Status != catalog.WorkpadPromoted {
			_ = s.git.DeleteBranch(repo.Path, pad.Branch, true)
		}

		pad.Status = catalog.WorkpadDeleted
		pad.LastActivity = now()
		if err := s.cat.PutWorkpad(pad); err != nil {
			return &errs.Io{Op: "update workpad record", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(capability.Event{RepoID: pad.RepoID, WorkpadID: pad.ID, Kind: capability.EventWorkpadDeleted})
	return nil
}

// ApplyPatchAsCheckpoint applies diff to the workpad's working tree,
// commits it, and tags the commit pads/<pad>@tN. Used by the Patch Engine
// after it has validated and checked the patch; this method itself applies
// unconditionally and lets the caller interpret a git-apply failure.
func (s *Store) ApplyPatchAsCheckpoint(padID, diff, message string) (checkpointID string, commitSHA string, err error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return "", "", err
	}
	if pad.Status != catalog.WorkpadActive {
		return "", "", &errs.InvalidInput{Field: "workpad", Message: "workpad is not ACTIVE"}
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return "", "", err
	}

	err = s.withRepoLock(pad.RepoID, func() error {
		preApply, perr := s.git.RevParse(repo.Path, pad.Branch)
		if perr != nil {
			return &errs.Io{Op: "resolve workpad tip", Err: perr}
		}
		if curBranch, cerr := s.git.CurrentBranch(repo.Path); cerr != nil || curBranch != pad.Branch {
			if werr := s.checkoutWorkpadBranch(repo, pad); werr != nil {
				return werr
			}
		}

		if aerr := s.git.Apply(repo.Path, diff); aerr != nil {
			_ = s.git.ResetHard(repo.Path, preApply)
			var gerr *gitengine.Error
			if ge, ok := aerr.(*gitengine.Error); ok {
				gerr = ge
			}
			if gerr != nil {
				return &errs.ApplyFailed{Stderr: gerr.Stderr, Err: aerr}
			}
			return &errs.ApplyFailed{Err: aerr}
		}

		sha, cerr := s.git.CommitAll(repo.Path, message, authorName, authorEmail)
		if cerr != nil {
			_ = s.git.ResetHard(repo.Path, preApply)
			return &errs.Io{Op: "commit checkpoint", Err: cerr}
		}

		ordinal := pad.NextOrdinal()
		tag := checkpointTag(pad.ID, ordinal)
		if terr := s.git.Tag(repo.Path, tag, sha); terr != nil {
			return &errs.Io{Op: "tag checkpoint", Err: terr}
		}

		stats := computePatchStats(diff)
		pad.Checkpoints = append(pad.Checkpoints, catalog.Checkpoint{
			Ordinal:      ordinal,
			CommitSHA:    sha,
			FilesChanged: stats.FilesAffected,
			Additions:    stats.Additions,
			Deletions:    stats.Deletions,
			Message:      message,
			Timestamp:    now(),
		})
		pad.LastActivity = now()
		if perr := s.cat.PutWorkpad(pad); perr != nil {
			return &errs.Io{Op: "update workpad record", Err: perr}
		}

		checkpointID = formatCheckpointID(ordinal)
		commitSHA = sha
		return nil
	})
	if err != nil {
		return "", "", err
	}

	s.publish(capability.Event{RepoID: pad.RepoID, WorkpadID: pad.ID, Kind: capability.EventCheckpointCreated, Detail: checkpointID})
	return checkpointID, commitSHA, nil
}

func formatCheckpointID(ordinal int) string {
	return "t" + strconv.Itoa(ordinal)
}

// checkoutWorkpadBranch ensures the repository's single working tree has
// pad's branch checked out. Workpads share the repo's one working tree
// (only WorktreeFor creates a separate worktree), so switching is a plain
// checkout guarded by the dirty-tree policy callers enforce via
// Store.SwitchWorkpad.
func (s *Store) checkoutWorkpadBranch(repo *catalog.Repository, pad *catalog.Workpad) error {
	if err := s.git.Checkout(repo.Path, pad.Branch); err != nil {
		return &errs.Io{Op: "checkout workpad branch", Err: err}
	}
	return nil
}

// CheckApply reports whether diff would apply cleanly against pad's current
// tip, without mutating the working tree — the Patch Engine's conflict
// detection delegates here (§4.3 "uses git apply --check semantics").
func (s *Store) CheckApply(padID, diff string) (bool, string, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return false, "", err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return false, "", err
	}

	var ok bool
	var stderr string
	err = s.withRepoLock(pad.RepoID, func() error {
		if curBranch, cerr := s.git.CurrentBranch(repo.Path); cerr != nil || curBranch != pad.Branch {
			if werr := s.checkoutWorkpadBranch(repo, pad); werr != nil {
				return werr
			}
		}
		var aerr error
		ok, stderr, aerr = s.git.ApplyCheck(repo.Path, diff)
		return aerr
	})
	if err != nil {
		return false, "", &errs.Io{Op: "check patch apply", Err: err}
	}
	return ok, stderr, nil
}

// CanPromote reports whether pad currently satisfies the fast-forward
// promotion precondition, and why not otherwise.
func (s *Store) CanPromote(padID string) (bool, errs.PromotionBlockReason, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return false, "", err
	}
	if pad.Status != catalog.WorkpadActive {
		return false, errs.ReasonEmpty, nil
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return false, "", err
	}
	if len(pad.Checkpoints) == 0 {
		return false, errs.ReasonEmpty, nil
	}

	trunkTip, err := s.git.RevParse(repo.Path, repo.TrunkBranch)
	if err != nil {
		return false, "", &errs.Io{Op: "resolve trunk tip", Err: err}
	}
	if trunkTip != pad.BaseCommit {
		// Diverged unless the workpad's base has been fast-forwarded in the
		// meantime and the new trunk tip is still an ancestor of the pad.
		isAncestor, aerr := s.git.IsAncestor(repo.Path, trunkTip, pad.Branch)
		if aerr != nil {
			return false, "", &errs.Io{Op: "check ancestry", Err: aerr}
		}
		if !isAncestor {
			conflicts, cerr := s.mergeConflicts(repo, pad)
			if cerr != nil {
				return false, "", cerr
			}
			if len(conflicts) > 0 {
				return false, errs.ReasonConflicts, nil
			}
			return false, errs.ReasonDiverged, nil
		}
	}
	return true, "", nil
}

// Promote fast-forwards trunk to pad's tip. Atomic from the caller's point
// of view: either trunk advances, the workpad branch is deleted, and the
// record flips to PROMOTED, or none of that happens.
func (s *Store) Promote(padID string) (string, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return "", err
	}
	ok, reason, err := s.CanPromote(padID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &errs.CannotPromote{WorkpadID: padID, Reason: reason}
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return "", err
	}

	var sha string
	err = s.withRepoLock(pad.RepoID, func() error {
		sha, err = s.git.RevParse(repo.Path, pad.Branch)
		if err != nil {
			return &errs.Io{Op: "resolve workpad tip", Err: err}
		}

		if cur, _ := s.git.CurrentBranch(repo.Path); cur != repo.TrunkBranch {
			if err := s.git.Checkout(repo.Path, repo.TrunkBranch); err != nil {
				return &errs.Io{Op: "checkout trunk", Err: err}
			}
		}
		if err := s.git.MergeFastForward(repo.Path, pad.Branch); err != nil {
			return &errs.CannotPromote{WorkpadID: padID, Reason: errs.ReasonDiverged}
		}

		_ = s.git.DeleteBranch(repo.Path, pad.Branch, false)

		pad.Status = catalog.WorkpadPromoted
		pad.PromotedSHA = sha
		pad.LastActivity = now()
		if err := s.cat.PutWorkpad(pad); err != nil {
			return &errs.Io{Op: "update workpad record", Err: err}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.publish(capability.Event{RepoID: pad.RepoID, WorkpadID: pad.ID, Kind: capability.EventWorkpadPromoted, Detail: sha})
	return sha, nil
}

// RevertLast creates a revert commit on repo's trunk for its current tip,
// returning both the reverted commit's sha and the new revert commit's sha.
func (s *Store) RevertLast(repoID string) (oldSHA, revertSHA string, err error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return "", "", err
	}

	err = s.withRepoLock(repoID, func() error {
		tip, rerr := s.git.RevParse(repo.Path, repo.TrunkBranch)
		if rerr != nil {
			return &errs.Io{Op: "resolve trunk tip", Err: rerr}
		}
		if cur, _ := s.git.CurrentBranch(repo.Path); cur != repo.TrunkBranch {
			if cerr := s.git.Checkout(repo.Path, repo.TrunkBranch); cerr != nil {
				return &errs.Io{Op: "checkout trunk", Err: cerr}
			}
		}
		revSHA, rerr := s.git.RevertCommit(repo.Path, tip)
		if rerr != nil {
			return &errs.RollbackFailed{RepoID: repoID, Err: rerr}
		}
		oldSHA = tip
		revertSHA = revSHA
		return nil
	})
	if err != nil {
		return "", "", err
	}

	s.publish(capability.Event{RepoID: repoID, Kind: capability.EventTrunkReverted, Detail: revertSHA})
	return oldSHA, revertSHA, nil
}

// GetCommitsAheadBehind reports pad's branch's ahead/behind count relative
// to its repo's trunk.
func (s *Store) GetCommitsAheadBehind(padID string) (ahead, behind int, err error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return 0, 0, err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return 0, 0, err
	}
	ahead, behind, err = s.git.AheadBehind(repo.Path, repo.TrunkBranch, pad.Branch)
	if err != nil {
		return 0, 0, &errs.Io{Op: "compute ahead/behind", Err: err}
	}
	return ahead, behind, nil
}

// Workdir ensures pad's branch is checked out in its repo's working tree and
// returns that tree's path, for callers (the Test Orchestrator) that need a
// real directory to run commands in.
func (s *Store) Workdir(padID string) (string, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return "", err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return "", err
	}
	var outErr error
	err = s.withRepoLock(pad.RepoID, func() error {
		if cur, cerr := s.git.CurrentBranch(repo.Path); cerr != nil || cur != pad.Branch {
			outErr = s.checkoutWorkpadBranch(repo, pad)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if outErr != nil {
		return "", outErr
	}
	return repo.Path, nil
}

// WorkpadStats is C2's get_workpad_stats view: the aggregate size of every
// checkpoint applied so far, used by the Promotion Gate's change-size rules.
type WorkpadStats struct {
	FilesChanged int
	LinesChanged int
}

// GetWorkpadStats computes the cumulative diff size between pad's base
// commit and its current tip.
func (s *Store) GetWorkpadStats(padID string) (WorkpadStats, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return WorkpadStats{}, err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return WorkpadStats{}, err
	}
	diff, err := s.git.Diff(repo.Path, pad.BaseCommit, pad.Branch)
	if err != nil {
		return WorkpadStats{}, &errs.Io{Op: "diff workpad against base", Err: err}
	}
	stats := computePatchStats(diff)
	return WorkpadStats{
		FilesChanged: stats.FilesAffected,
		LinesChanged: stats.Additions + stats.Deletions,
	}, nil
}

// CleanupStale deletes every ACTIVE workpad whose last activity is older
// than days (§3's 7-day default TTL reclamation), returning the ids deleted.
func (s *Store) CleanupStale(days int) ([]string, error) {
	all, err := s.cat.ListWorkpads()
	if err != nil {
		return nil, &errs.Io{Op: "list workpads", Err: err}
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var deleted []string
	for _, pad := range all {
		if pad.Status != catalog.WorkpadActive {
			continue
		}
		last, perr := time.Parse(time.RFC3339, pad.LastActivity)
		if perr != nil || last.After(cutoff) {
			continue
		}
		if err := s.DeleteWorkpad(pad.ID, true); err != nil {
			continue
		}
		deleted = append(deleted, pad.ID)
	}
	return deleted, nil
}
