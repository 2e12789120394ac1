// Package orchestrator implements the Auto-Merge Workflow (§4.7): it
// composes the Test Orchestrator, Test Analyzer, and Promotion Gate against
// a single workpad, and optionally fast-forwards trunk on APPROVE.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sologit/sologit/internal/analyzer"
	"github.com/sologit/sologit/internal/capability"
	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/gate"
	"github.com/sologit/sologit/internal/repostore"
	"github.com/sologit/sologit/internal/sandbox"
)

// Phase names used in PhaseOutcome and in AutoMergeResult.FailedPhase.
const (
	PhaseTests    = "tests"
	PhaseAnalysis = "analysis"
	PhaseGate     = "gate"
)

// PhaseOutcome records one step of the workflow.
type PhaseOutcome struct {
	Phase   string
	Passed  bool
	Summary string
}

// AutoMergeResult is §3's AutoMergeResult record.
type AutoMergeResult struct {
	WorkpadID string
	Phases    []PhaseOutcome
	Decision  gate.Decision
	CommitSHA string
	Summary   string
	// FailedPhase is non-empty only when the workflow aborted because a step
	// itself errored (not merely found failing tests or a non-APPROVE
	// decision): PhaseTests when the working tree or test run could not be
	// set up, PhaseGate when the promotion preconditions or change size could
	// not be read, and "promote" when an approved promotion failed.
	FailedPhase string
}

// repoStore is the subset of *repostore.Store the workflow depends on,
// narrowed to an interface so tests can fake it rather than standing up a
// real git-backed repository.
type repoStore interface {
	GetWorkpad(id string) (*catalog.Workpad, error)
	Workdir(padID string) (string, error)
	CanPromote(padID string) (bool, errs.PromotionBlockReason, error)
	GetWorkpadStats(padID string) (repostore.WorkpadStats, error)
	Promote(padID string) (string, error)
}

// Workflow composes C4 (sandbox), C5 (analyzer), and C6 (gate) over a
// repostore.Store-backed repository.
type Workflow struct {
	store    repoStore
	sandbox  *sandbox.Orchestrator
	rules    gate.Rules
	events   capability.EventSink
	progress io.Writer // optional live progress output

	mu      sync.Mutex
	pending map[string]pendingRequest // repo id -> queued auto-merge request
}

type pendingRequest struct {
	workpadID string
	tests     []sandbox.TestConfig
	parallel  bool
	autoPromo bool
}

// New creates a Workflow. store is typically *repostore.Store.
func New(store repoStore, sb *sandbox.Orchestrator, rules gate.Rules, events capability.EventSink) *Workflow {
	return &Workflow{
		store:   store,
		sandbox: sb,
		rules:   rules,
		events:  events,
		pending: make(map[string]pendingRequest),
	}
}

// SetProgress configures a writer for human-readable progress lines.
func (w *Workflow) SetProgress(out io.Writer) {
	w.progress = out
}

func (w *Workflow) logf(format string, args ...interface{}) {
	if w.progress != nil {
		fmt.Fprintf(w.progress, "  → "+format+"\n", args...)
	}
}

func (w *Workflow) publish(e capability.Event) {
	if w.events != nil {
		_ = w.events.Publish(e)
	}
}

// Execute runs the full §4.7 sequence for one workpad: run tests, analyze,
// gather preconditions, evaluate the gate, and (if APPROVE and autoPromote)
// fast-forward trunk.
func (w *Workflow) Execute(ctx context.Context, workpadID string, tests []sandbox.TestConfig, parallel, autoPromote bool) (AutoMergeResult, error) {
	result := AutoMergeResult{WorkpadID: workpadID}

	pad, err := w.store.GetWorkpad(workpadID)
	if err != nil {
		return result, err
	}

	workdir, err := w.store.Workdir(workpadID)
	if err != nil {
		result.FailedPhase = PhaseTests
		result.Summary = "could not prepare working tree: " + err.Error()
		return result, nil
	}

	w.logf("running %d test(s) for workpad %s", len(tests), workpadID)
	w.publish(capability.Event{RepoID: pad.RepoID, WorkpadID: workpadID, Kind: capability.EventTestsStarted})
	results, err := w.sandbox.RunTests(ctx, workdir, tests, parallel)
	if err != nil {
		result.FailedPhase = PhaseTests
		result.Phases = append(result.Phases, PhaseOutcome{Phase: PhaseTests, Passed: false, Summary: err.Error()})
		result.Summary = "test run failed: " + err.Error()
		return result, nil
	}
	counts := sandbox.Summary(results)
	w.publish(capability.Event{RepoID: pad.RepoID, WorkpadID: workpadID, Kind: capability.EventTestsFinished})
	result.Phases = append(result.Phases, PhaseOutcome{
		Phase:   PhaseTests,
		Passed:  sandbox.AllPassed(results),
		Summary: fmt.Sprintf("%d/%d passed", counts.Passed, counts.Total),
	})

	w.logf("analyzing %d result(s)", len(results))
	analysis := analyzer.Analyze(results)
	result.Phases = append(result.Phases, PhaseOutcome{
		Phase:   PhaseAnalysis,
		Passed:  analysis.Status == analyzer.Green,
		Summary: fmt.Sprintf("status=%s complexity=%s", analysis.Status, analysis.Complexity),
	})

	canFF, reason, err := w.store.CanPromote(workpadID)
	if err != nil {
		result.FailedPhase = PhaseGate
		result.Phases = append(result.Phases, PhaseOutcome{Phase: PhaseGate, Passed: false, Summary: err.Error()})
		result.Summary = "precondition check failed: " + err.Error()
		return result, nil
	}
	stats, err := w.store.GetWorkpadStats(workpadID)
	if err != nil {
		result.FailedPhase = PhaseGate
		result.Phases = append(result.Phases, PhaseOutcome{Phase: PhaseGate, Passed: false, Summary: err.Error()})
		result.Summary = "change size lookup failed: " + err.Error()
		return result, nil
	}

	// The gate only distinguishes "diverged" from "can't fast-forward for any
	// other reason"; a has-conflicts result is still non-linear from trunk's
	// point of view, so it's folded into Diverged rather than silently
	// treated as a plain cannot-fast-forward.
	pre := gate.Preconditions{CanFastForward: canFF, Diverged: reason == errs.ReasonDiverged || reason == errs.ReasonConflicts}
	size := gate.ChangeSize{FilesChanged: stats.FilesChanged, LinesChanged: stats.LinesChanged}
	decision := gate.Evaluate(w.rules, &analysis, pre, size)
	result.Decision = decision.Decision
	result.Phases = append(result.Phases, PhaseOutcome{
		Phase:   PhaseGate,
		Passed:  decision.Decision == gate.Approve,
		Summary: fmt.Sprintf("%s %v", decision.Decision, decision.Reasons),
	})
	w.logf("gate decision: %s", decision.Decision)

	switch decision.Decision {
	case gate.Approve:
		if !autoPromote {
			result.Summary = "approved; auto-promote disabled, no merge attempted"
			return result, nil
		}
		sha, perr := w.store.Promote(workpadID)
		if perr != nil {
			result.FailedPhase = "promote"
			result.Summary = "approved but promotion failed: " + perr.Error()
			return result, nil
		}
		result.CommitSHA = sha
		result.Summary = "promoted at " + sha
	case gate.Reject:
		result.Summary = "rejected: " + fmt.Sprint(decision.Reasons)
	case gate.ManualReview:
		result.Summary = "requires manual review: " + fmt.Sprint(decision.Reasons)
	}
	return result, nil
}

// RequestAutoMerge enqueues a pending auto-merge request for repoID,
// replacing any earlier pending request for the same repo. CheckIn later
// dequeues and executes it.
func (w *Workflow) RequestAutoMerge(repoID, workpadID string, tests []sandbox.TestConfig, parallel, autoPromote bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[repoID] = pendingRequest{workpadID: workpadID, tests: tests, parallel: parallel, autoPromo: autoPromote}
}

// CheckInAction describes one sweep's outcome for a single repo.
type CheckInAction struct {
	RepoID  string
	Action  string // "skip", "executed"
	Result  *AutoMergeResult
	Message string
}

// CheckInResult is CheckIn's return value: one action per repo visited.
type CheckInResult struct {
	Actions []CheckInAction
}

// CheckIn performs one non-blocking sweep (SPEC_FULL §C): for every repo
// with a pending auto-merge request, Execute it once, then clear the
// request regardless of outcome — same "strict sequential, one action per
// tick" shape as the teacher's check-in loop, generalized across repos
// instead of across pipelines.
func (w *Workflow) CheckIn(ctx context.Context) (*CheckInResult, error) {
	w.mu.Lock()
	reqs := make(map[string]pendingRequest, len(w.pending))
	for k, v := range w.pending {
		reqs[k] = v
	}
	w.mu.Unlock()

	result := &CheckInResult{}
	for repoID, req := range reqs {
		w.mu.Lock()
		delete(w.pending, repoID)
		w.mu.Unlock()

		amResult, err := w.Execute(ctx, req.workpadID, req.tests, req.parallel, req.autoPromo)
		if err != nil {
			result.Actions = append(result.Actions, CheckInAction{RepoID: repoID, Action: "skip", Message: err.Error()})
			continue
		}
		result.Actions = append(result.Actions, CheckInAction{RepoID: repoID, Action: "executed", Result: &amResult})
	}
	return result, nil
}
