package repostore

import (
	"archive/zip"
	"bytes"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/eventlog"
	"github.com/sologit/sologit/internal/gitengine"
)

// newTestStore wires a Store over a real git binary and the real JSON
// catalog backend, rooted at a fresh temp directory — these methods exist
// to drive actual git state, so faking the Runner would just mean
// reimplementing git badly.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.NewJSONBackend(dir + "/catalog")
	if err != nil {
		t.Fatalf("new catalog backend: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	git := gitengine.New(gitengine.NewExecRunner(30 * time.Second))
	return New(dir, git, cat, nil)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestSwitchWorkpadRefusesDirtyWorkingTree(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "line1\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	pad, err := s.CreateWorkpad(repo.ID, "my pad")
	if err != nil {
		t.Fatalf("create workpad: %v", err)
	}

	cmd := exec.Command("bash", "-c", "echo dirty >> a.txt")
	cmd.Dir = repo.Path
	if err := cmd.Run(); err != nil {
		t.Fatalf("dirty the working tree: %v", err)
	}

	_, err = s.SwitchWorkpad(pad.ID)
	var dirty *errs.DirtyWorkingTree
	if !errors.As(err, &dirty) {
		t.Fatalf("expected DirtyWorkingTree, got %v", err)
	}
}

func TestSwitchWorkpadSetsActiveWorkpad(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "line1\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if active, err := s.GetActiveWorkpad(repo.ID); err != nil || active != nil {
		t.Fatalf("expected no active workpad initially, got %+v, err=%v", active, err)
	}

	pad, err := s.CreateWorkpad(repo.ID, "my pad")
	if err != nil {
		t.Fatalf("create workpad: %v", err)
	}
	if _, err := s.SwitchWorkpad(pad.ID); err != nil {
		t.Fatalf("switch workpad: %v", err)
	}

	active, err := s.GetActiveWorkpad(repo.ID)
	if err != nil {
		t.Fatalf("get active workpad: %v", err)
	}
	if active == nil || active.ID != pad.ID {
		t.Fatalf("expected active workpad %s, got %+v", pad.ID, active)
	}
}

func TestCompareWorkpadsWithNoDivergenceIsEmpty(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "line1\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	padA, err := s.CreateWorkpad(repo.ID, "pad a")
	if err != nil {
		t.Fatalf("create pad a: %v", err)
	}
	padB, err := s.CreateWorkpad(repo.ID, "pad b")
	if err != nil {
		t.Fatalf("create pad b: %v", err)
	}

	cmp, err := s.CompareWorkpads(padA.ID, padB.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.FilesChanged != 0 || cmp.Diff != "" {
		t.Fatalf("expected no difference between two pads off the same base, got %+v", cmp)
	}
}

func TestCompareWorkpadsRejectsCrossRepoPads(t *testing.T) {
	s := newTestStore(t)
	repoA, err := s.InitFromZip("repoA", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init a: %v", err)
	}
	repoB, err := s.InitFromZip("repoB", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init b: %v", err)
	}
	padA, err := s.CreateWorkpad(repoA.ID, "pad a")
	if err != nil {
		t.Fatalf("create pad a: %v", err)
	}
	padB, err := s.CreateWorkpad(repoB.ID, "pad b")
	if err != nil {
		t.Fatalf("create pad b: %v", err)
	}

	if _, err := s.CompareWorkpads(padA.ID, padB.ID); err == nil {
		t.Fatal("expected an error comparing workpads from different repos")
	}
}

// TestCanPromoteDistinguishesConflictsFromDivergence reproduces both branches
// of the fast-forward failure: a workpad whose change touches the same line
// trunk has since moved (ReasonConflicts), and one whose change is disjoint
// from trunk's (ReasonDiverged).
func TestCanPromoteDistinguishesConflictsFromDivergence(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "line1\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	padA, err := s.CreateWorkpad(repo.ID, "pad a")
	if err != nil {
		t.Fatalf("create pad a: %v", err)
	}
	origSHA := padA.BaseCommit

	diffA := "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-line1\n+line1-A\n"
	if _, _, err := s.ApplyPatchAsCheckpoint(padA.ID, diffA, "rewrite line1 from A"); err != nil {
		t.Fatalf("apply checkpoint a: %v", err)
	}
	if _, err := s.Promote(padA.ID); err != nil {
		t.Fatalf("promote a: %v", err)
	}

	// padB: conflicts with padA's promoted change (same line, different content).
	padB, err := s.CreateWorkpadFromCommit(repo.ID, "pad b", origSHA)
	if err != nil {
		t.Fatalf("create pad b: %v", err)
	}
	diffB := "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-line1\n+line1-B\n"
	if _, _, err := s.ApplyPatchAsCheckpoint(padB.ID, diffB, "rewrite line1 from B"); err != nil {
		t.Fatalf("apply checkpoint b: %v", err)
	}

	ok, reason, err := s.CanPromote(padB.ID)
	if err != nil {
		t.Fatalf("can promote b: %v", err)
	}
	if ok || reason != errs.ReasonConflicts {
		t.Fatalf("expected ReasonConflicts, got ok=%v reason=%q", ok, reason)
	}

	preview, err := s.GetMergePreview(padB.ID)
	if err != nil {
		t.Fatalf("merge preview b: %v", err)
	}
	if preview.ReadyToPromote || len(preview.Conflicts) != 1 || preview.Conflicts[0] != "a.txt" {
		t.Fatalf("expected a single conflict on a.txt, got %+v", preview)
	}

	// padC: adds a disjoint file, so it is diverged but not conflicting.
	padC, err := s.CreateWorkpadFromCommit(repo.ID, "pad c", origSHA)
	if err != nil {
		t.Fatalf("create pad c: %v", err)
	}
	diffC := "diff --git a/b.txt b/b.txt\nnew file mode 100644\n--- /dev/null\n+++ b/b.txt\n@@ -0,0 +1 @@\n+hello\n"
	if _, _, err := s.ApplyPatchAsCheckpoint(padC.ID, diffC, "add b.txt from C"); err != nil {
		t.Fatalf("apply checkpoint c: %v", err)
	}

	ok, reason, err = s.CanPromote(padC.ID)
	if err != nil {
		t.Fatalf("can promote c: %v", err)
	}
	if ok || reason != errs.ReasonDiverged {
		t.Fatalf("expected ReasonDiverged, got ok=%v reason=%q", ok, reason)
	}

	preview, err = s.GetMergePreview(padC.ID)
	if err != nil {
		t.Fatalf("merge preview c: %v", err)
	}
	if preview.ReadyToPromote || len(preview.Conflicts) != 0 {
		t.Fatalf("expected no conflicts for a disjoint change, got %+v", preview)
	}
}

func TestReconcileMarksWorkpadsWithMissingBranchesDeleted(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	pad, err := s.CreateWorkpad(repo.ID, "doomed pad")
	if err != nil {
		t.Fatalf("create workpad: %v", err)
	}

	cmd := exec.Command("git", "branch", "-D", pad.Branch)
	cmd.Dir = repo.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("delete branch out of band: %v: %s", err, out)
	}

	marked, err := s.Reconcile(repo.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(marked) != 1 || marked[0] != pad.ID {
		t.Fatalf("expected %s to be marked deleted, got %v", pad.ID, marked)
	}

	got, err := s.GetWorkpad(pad.ID)
	if err != nil {
		t.Fatalf("get workpad: %v", err)
	}
	if got.Status != catalog.WorkpadDeleted {
		t.Fatalf("expected status DELETED, got %s", got.Status)
	}
}

func TestReconcileLeavesUntrackedBranchesAlone(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	cmd := exec.Command("git", "branch", "someone-elses-branch")
	cmd.Dir = repo.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("create branch: %v: %s", err, out)
	}

	if _, err := s.Reconcile(repo.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	cmd = exec.Command("git", "rev-parse", "--verify", "someone-elses-branch")
	cmd.Dir = repo.Path
	if err := cmd.Run(); err != nil {
		t.Fatal("expected the untracked branch to survive reconciliation")
	}
}

func TestWorktreeForIsolatesFromSharedCheckout(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	pad, err := s.CreateWorkpad(repo.ID, "my pad")
	if err != nil {
		t.Fatalf("create workpad: %v", err)
	}

	wtDir, cleanup, err := s.WorktreeFor(pad.ID)
	if err != nil {
		t.Fatalf("worktree for: %v", err)
	}
	if wtDir == repo.Path {
		t.Fatal("expected an isolated worktree directory, got the shared repo path")
	}

	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = wtDir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("rev-parse in worktree: %v", err)
	}
	if got := string(bytes.TrimSpace(out)); got != pad.Branch {
		t.Fatalf("expected worktree on branch %s, got %s", pad.Branch, got)
	}

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := s.DeleteWorkpad(pad.ID, true); err != nil {
		t.Fatalf("delete workpad after cleanup: %v", err)
	}
}

func TestGetOperationalLogRequiresReadCapableSink(t *testing.T) {
	s := newTestStore(t)
	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.GetOperationalLog(repo.ID, "2000-01-01"); err == nil {
		t.Fatal("expected an error when no read-capable event sink is configured")
	}
}

func TestGetOperationalLogDelegatesToEventLog(t *testing.T) {
	dir := t.TempDir()
	db, err := eventlog.Open(dir + "/events.db")
	if err != nil {
		t.Fatalf("open eventlog: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.NewJSONBackend(dir + "/catalog")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	git := gitengine.New(gitengine.NewExecRunner(30 * time.Second))
	s := New(dir, git, cat, db)

	repo, err := s.InitFromZip("repo1", zipOf(t, map[string]string{"a.txt": "x\n"}))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	events, err := s.GetOperationalLog(repo.ID, "2000-01-01")
	if err != nil {
		t.Fatalf("get operational log: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "repo.created" {
		t.Fatalf("expected the repo.created event published during init, got %+v", events)
	}
}
