package gitengine

import (
	"fmt"
	"testing"
)

type call struct {
	Dir   string
	Stdin string
	Args  []string
}

type fakeRunner struct {
	calls   []call
	results []struct {
		out string
		err error
	}
	idx int
}

func (f *fakeRunner) next() (string, error) {
	if f.idx >= len(f.results) {
		return "", nil
	}
	r := f.results[f.idx]
	f.idx++
	return r.out, r.err
}

func (f *fakeRunner) Run(dir string, args ...string) (string, error) {
	f.calls = append(f.calls, call{Dir: dir, Args: args})
	return f.next()
}

func (f *fakeRunner) RunWithStdin(dir string, stdin string, args ...string) (string, error) {
	f.calls = append(f.calls, call{Dir: dir, Stdin: stdin, Args: args})
	return f.next()
}

func (f *fakeRunner) push(out string, err error) {
	f.results = append(f.results, struct {
		out string
		err error
	}{out, err})
}

func TestAheadBehind(t *testing.T) {
	fr := &fakeRunner{}
	fr.push("0\t3", nil)
	e := New(fr)

	ahead, behind, err := e.AheadBehind("/repo", "main", "pads/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ahead != 3 || behind != 0 {
		t.Fatalf("expected ahead=3 behind=0, got ahead=%d behind=%d", ahead, behind)
	}
}

func TestApplyCheck_Conflict(t *testing.T) {
	fr := &fakeRunner{}
	fr.push("", &Error{Command: "apply --check", Stderr: "error: patch failed: a.txt:1", Err: fmt.Errorf("exit status 1")})
	e := New(fr)

	ok, msg, err := e.ApplyCheck("/repo", "diff --git a/a.txt b/a.txt\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on conflict")
	}
	if msg == "" {
		t.Fatal("expected conflict message to be preserved")
	}
}

func TestStatus_ParsesPorcelain(t *testing.T) {
	fr := &fakeRunner{}
	fr.push(" M modified.go\n?? new.go\nA  staged.go", nil)
	e := New(fr)

	status, err := e.Status("/repo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Clean {
		t.Fatal("expected not clean")
	}
	if len(status.Modified) != 1 || status.Modified[0] != "modified.go" {
		t.Fatalf("unexpected modified: %v", status.Modified)
	}
	if len(status.Untracked) != 1 || status.Untracked[0] != "new.go" {
		t.Fatalf("unexpected untracked: %v", status.Untracked)
	}
	if len(status.Staged) != 1 || status.Staged[0] != "staged.go" {
		t.Fatalf("unexpected staged: %v", status.Staged)
	}
}

func TestIsAncestor_TrueWhenCommandSucceeds(t *testing.T) {
	fr := &fakeRunner{}
	fr.push("", nil)
	e := New(fr)

	ok, err := e.IsAncestor("/repo", "main", "pads/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected true when merge-base --is-ancestor exits zero")
	}
}

// IsAncestor only treats a failure as "not an ancestor" when the wrapped
// cause is a real *exec.ExitError with code 1 — any other failure (e.g. git
// itself missing, a context deadline) must propagate as a genuine error
// rather than being swallowed into a false "not an ancestor" result.
func TestIsAncestor_PropagatesNonExitErrors(t *testing.T) {
	fr := &fakeRunner{}
	fr.push("", &Error{Command: "merge-base --is-ancestor", Err: fmt.Errorf("git binary not found")})
	e := New(fr)

	ok, err := e.IsAncestor("/repo", "main", "pads/foo")
	if err == nil {
		t.Fatal("expected the underlying error to propagate")
	}
	if ok {
		t.Fatal("expected false alongside the propagated error")
	}
}
