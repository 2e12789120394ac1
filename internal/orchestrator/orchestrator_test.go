package orchestrator

import (
	"context"
	"testing"

	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/gate"
	"github.com/sologit/sologit/internal/repostore"
	"github.com/sologit/sologit/internal/sandbox"
)

// fakeStore implements repoStore so Execute can be exercised without a real
// git-backed repository, mirroring the teacher's fake-over-interface tests.
type fakeStore struct {
	pad          *catalog.Workpad
	workdir      string
	canFF        bool
	blockReason  errs.PromotionBlockReason
	stats        repostore.WorkpadStats
	promoteSHA   string
	promoteErr   error
	promoteCalls int
}

func (f *fakeStore) GetWorkpad(id string) (*catalog.Workpad, error) { return f.pad, nil }
func (f *fakeStore) Workdir(padID string) (string, error)           { return f.workdir, nil }
func (f *fakeStore) CanPromote(padID string) (bool, errs.PromotionBlockReason, error) {
	return f.canFF, f.blockReason, nil
}
func (f *fakeStore) GetWorkpadStats(padID string) (repostore.WorkpadStats, error) {
	return f.stats, nil
}
func (f *fakeStore) Promote(padID string) (string, error) {
	f.promoteCalls++
	return f.promoteSHA, f.promoteErr
}

// fakeRunner scripts each test's outcome by exit code, bypassing subprocess
// execution entirely.
type fakeRunner struct{ exitCodes map[string]int }

func (r *fakeRunner) Run(ctx context.Context, cfg sandbox.TestConfig, scratchDir string, sandboxCfg sandbox.Config) (string, string, int, error) {
	return "", "", r.exitCodes[cfg.Name], nil
}

func newWorkflow(store *fakeStore, exitCodes map[string]int, rules gate.Rules) *Workflow {
	sb := sandbox.New(&fakeRunner{exitCodes: exitCodes}, sandbox.DefaultConfig(), 0)
	return New(store, sb, rules, nil)
}

func defaultRules() gate.Rules {
	return gate.Rules{RequireTests: true, RequireAllTestsPass: true, RequireFastForward: true}
}

// TestExecuteGreenPathPromotes reproduces S1: passing tests, fast-forwardable,
// auto_promote=true -> APPROVE with a commit sha.
func TestExecuteGreenPathPromotes(t *testing.T) {
	store := &fakeStore{
		pad:   &catalog.Workpad{ID: "pad_1", RepoID: "repo_1"},
		canFF: true,
		promoteSHA: "abc123",
	}
	w := newWorkflow(store, map[string]int{"pytest": 0}, defaultRules())

	result, err := w.Execute(context.Background(), "pad_1", []sandbox.TestConfig{{Name: "pytest", Command: "true"}}, false, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != gate.Approve {
		t.Fatalf("decision = %s, want APPROVE", result.Decision)
	}
	if result.CommitSHA != "abc123" {
		t.Fatalf("commit sha = %q, want abc123", result.CommitSHA)
	}
	if store.promoteCalls != 1 {
		t.Fatalf("promote called %d times, want 1", store.promoteCalls)
	}
}

// TestExecuteRedPathRejectsWithoutPromoting reproduces S2.
func TestExecuteRedPathRejectsWithoutPromoting(t *testing.T) {
	store := &fakeStore{pad: &catalog.Workpad{ID: "pad_1", RepoID: "repo_1"}, canFF: true}
	w := newWorkflow(store, map[string]int{"pytest": 1}, defaultRules())

	result, err := w.Execute(context.Background(), "pad_1", []sandbox.TestConfig{{Name: "pytest", Command: "false"}}, false, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != gate.Reject {
		t.Fatalf("decision = %s, want REJECT", result.Decision)
	}
	if store.promoteCalls != 0 {
		t.Fatal("promote must not be called on REJECT")
	}
}

// TestExecuteEvaluateModeSkipsPromotion covers auto_promote=false.
func TestExecuteEvaluateModeSkipsPromotion(t *testing.T) {
	store := &fakeStore{pad: &catalog.Workpad{ID: "pad_1", RepoID: "repo_1"}, canFF: true}
	w := newWorkflow(store, map[string]int{"pytest": 0}, defaultRules())

	result, err := w.Execute(context.Background(), "pad_1", []sandbox.TestConfig{{Name: "pytest", Command: "true"}}, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != gate.Approve {
		t.Fatalf("decision = %s, want APPROVE", result.Decision)
	}
	if store.promoteCalls != 0 {
		t.Fatal("promote must not be called when auto_promote=false")
	}
	if result.CommitSHA != "" {
		t.Fatal("commit sha must be empty in evaluate mode")
	}
}

// TestExecuteTestCycleFailsInTestsPhase exercises the DAG-cycle error path:
// the workflow must surface a tests-phase failure rather than erroring out.
func TestExecuteTestCycleFailsInTestsPhase(t *testing.T) {
	store := &fakeStore{pad: &catalog.Workpad{ID: "pad_1", RepoID: "repo_1"}}
	w := newWorkflow(store, nil, defaultRules())

	result, err := w.Execute(context.Background(), "pad_1", []sandbox.TestConfig{
		{Name: "x", DependsOn: []string{"y"}},
		{Name: "y", DependsOn: []string{"x"}},
	}, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FailedPhase != PhaseTests {
		t.Fatalf("failed phase = %q, want tests", result.FailedPhase)
	}
}

func TestCheckInExecutesPendingRequestOnce(t *testing.T) {
	store := &fakeStore{pad: &catalog.Workpad{ID: "pad_1", RepoID: "repo_1"}, canFF: true, promoteSHA: "sha1"}
	w := newWorkflow(store, map[string]int{"pytest": 0}, defaultRules())

	w.RequestAutoMerge("repo_1", "pad_1", []sandbox.TestConfig{{Name: "pytest", Command: "true"}}, false, true)
	result, err := w.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Actions) != 1 || result.Actions[0].Action != "executed" {
		t.Fatalf("unexpected actions: %+v", result.Actions)
	}

	second, err := w.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Actions) != 0 {
		t.Fatalf("expected no pending requests left, got %+v", second.Actions)
	}
}
