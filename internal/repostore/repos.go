package repostore

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sologit/sologit/internal/capability"
	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
)

const defaultTrunkBranch = "main"

// InitFromZip explodes a zip archive into a new working tree, initializes a
// git repo on trunk, and commits the extracted content as the initial
// commit. Trunk is guaranteed to point at a commit even for an empty
// archive (InitRepo uses --allow-empty).
func (s *Store) InitFromZip(name string, archive []byte) (*catalog.Repository, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &errs.InvalidInput{Field: "name", Message: "must not be empty"}
	}

	id := idgenNew("repo")
	dir := s.repoPath(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &errs.Io{Op: "create repo directory", Err: err}
	}

	if err := extractZip(archive, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	var repo *catalog.Repository
	err := s.withRepoLock(id, func() error {
		if _, err := s.git.InitRepo(dir, defaultTrunkBranch, authorName, authorEmail); err != nil {
			return &errs.Io{Op: "git init", Err: err}
		}

		ts := now()
		repo = &catalog.Repository{
			ID:           id,
			Name:         name,
			Path:         dir,
			TrunkBranch:  defaultTrunkBranch,
			OriginKind:   catalog.OriginZip,
			OriginRef:    name,
			CreatedAt:    ts,
			LastActivity: ts,
		}
		if err := s.cat.PutRepo(repo); err != nil {
			return &errs.Io{Op: "persist repository record", Err: err}
		}
		return nil
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	s.publish(capability.Event{RepoID: id, Kind: capability.EventRepoCreated, Detail: name})
	return repo, nil
}

// extractZip writes every regular-file entry of archive under dir,
// rejecting path traversal (entries resolving outside dir).
func extractZip(archive []byte, dir string) error {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return &errs.InvalidInput{Field: "archive", Message: "not a valid zip archive"}
	}
	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
			return &errs.InvalidInput{Field: "archive", Message: "entry escapes archive root: " + f.Name}
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &errs.Io{Op: "create directory from archive", Err: err}
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &errs.Io{Op: "create directory from archive", Err: err}
		}
		rc, err := f.Open()
		if err != nil {
			return &errs.Io{Op: "read archive entry", Err: err}
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o600)
		if err != nil {
			rc.Close()
			return &errs.Io{Op: "write extracted file", Err: err}
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return &errs.Io{Op: "write extracted file", Err: copyErr}
		}
	}
	return nil
}

// InitFromGit clones url at a single commit into trunk.
func (s *Store) InitFromGit(name, url string) (*catalog.Repository, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &errs.InvalidInput{Field: "name", Message: "must not be empty"}
	}
	if strings.TrimSpace(url) == "" {
		return nil, &errs.InvalidInput{Field: "url", Message: "must not be empty"}
	}

	id := idgenNew("repo")
	dir := s.repoPath(id)

	var repo *catalog.Repository
	err := s.withRepoLock(id, func() error {
		if _, err := s.git.Clone(url, dir, defaultTrunkBranch); err != nil {
			return &errs.Io{Op: "git clone", Err: err}
		}

		ts := now()
		repo = &catalog.Repository{
			ID:           id,
			Name:         name,
			Path:         dir,
			TrunkBranch:  defaultTrunkBranch,
			OriginKind:   catalog.OriginGitURL,
			OriginRef:    url,
			CreatedAt:    ts,
			LastActivity: ts,
		}
		if err := s.cat.PutRepo(repo); err != nil {
			return &errs.Io{Op: "persist repository record", Err: err}
		}
		return nil
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	s.publish(capability.Event{RepoID: id, Kind: capability.EventRepoCreated, Detail: name})
	return repo, nil
}

// ListRepos returns every repository record, sorted by id for stable output.
func (s *Store) ListRepos() ([]*catalog.Repository, error) {
	repos, err := s.cat.ListRepos()
	if err != nil {
		return nil, &errs.Io{Op: "list repositories", Err: err}
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return repos, nil
}

// GetRepo looks up a single repository by id.
func (s *Store) GetRepo(id string) (*catalog.Repository, error) {
	repo, ok, err := s.cat.GetRepo(id)
	if err != nil {
		return nil, &errs.Io{Op: "read repository record", Err: err}
	}
	if !ok {
		return nil, &errs.NotFound{Kind: errs.EntityRepo, ID: id}
	}
	return repo, nil
}

// ListFiles lists tracked files in repo at ref (defaulting to trunk).
func (s *Store) ListFiles(repoID, ref string) ([]string, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = repo.TrunkBranch
	}
	files, err := s.git.ListFiles(repo.Path, ref)
	if err != nil {
		return nil, &errs.Io{Op: "list files", Err: err}
	}
	return files, nil
}

// GetHistory returns up to limit commits reachable from branch (defaulting
// to trunk), newest first.
func (s *Store) GetHistory(repoID, branch string, limit int) ([]gitenginehistory, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = repo.TrunkBranch
	}
	infos, err := s.git.History(repo.Path, branch, limit)
	if err != nil {
		return nil, &errs.Io{Op: "read history", Err: err}
	}
	return infos, nil
}

// GetStatus reports working tree state for repo, or for a workpad's branch
// if padID is non-empty.
func (s *Store) GetStatus(repoID, padID string) (statusInfo, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return statusInfo{}, err
	}
	if padID != "" {
		pad, err := s.GetWorkpad(padID)
		if err != nil {
			return statusInfo{}, err
		}
		if pad.RepoID != repoID {
			return statusInfo{}, &errs.InvalidInput{Field: "pad", Message: "workpad does not belong to repo"}
		}
		var checkoutErr error
		err = s.withRepoLock(repoID, func() error {
			if cur, cerr := s.git.CurrentBranch(repo.Path); cerr != nil || cur != pad.Branch {
				checkoutErr = s.checkoutWorkpadBranch(repo, pad)
			}
			return nil
		})
		if err != nil {
			return statusInfo{}, err
		}
		if checkoutErr != nil {
			return statusInfo{}, checkoutErr
		}
	}
	st, err := s.git.Status(repo.Path)
	if err != nil {
		return statusInfo{}, &errs.Io{Op: "read status", Err: err}
	}
	return statusInfo(st), nil
}

// GetFileContent returns a file's content at ref (defaulting to trunk) in
// repo, plus whether it appears to be binary.
func (s *Store) GetFileContent(repoID, path, ref string) ([]byte, bool, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return nil, false, err
	}
	if ref == "" {
		ref = repo.TrunkBranch
	}
	content, isBinary, err := s.git.ShowFile(repo.Path, ref, path)
	if err != nil {
		return nil, false, &errs.Io{Op: "read file content", Err: err}
	}
	return content, isBinary, nil
}

// GetDiff returns the unified diff from base (defaulting to the repo's
// trunk) to the workpad's branch tip.
func (s *Store) GetDiff(padID, base string) (string, error) {
	pad, err := s.GetWorkpad(padID)
	if err != nil {
		return "", err
	}
	repo, err := s.GetRepo(pad.RepoID)
	if err != nil {
		return "", err
	}
	if base == "" {
		base = repo.TrunkBranch
	}
	diff, err := s.git.Diff(repo.Path, base, pad.Branch)
	if err != nil {
		return "", &errs.Io{Op: "compute diff", Err: err}
	}
	return diff, nil
}

// GetDiffForCommit returns the unified diff a single commit introduced —
// used by the CI Orchestrator to recreate a workpad from a reverted change
// (§4.8 step 2).
func (s *Store) GetDiffForCommit(repoID, sha string) (string, error) {
	repo, err := s.GetRepo(repoID)
	if err != nil {
		return "", err
	}
	diff, err := s.git.DiffForCommit(repo.Path, sha)
	if err != nil {
		return "", &errs.Io{Op: "diff commit", Err: err}
	}
	return diff, nil
}
