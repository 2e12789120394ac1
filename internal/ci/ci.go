// Package ci implements the CI Orchestrator + Rollback Handler (§4.8): a
// post-promotion smoke run against trunk, with revert-on-failure and
// optional workpad recreation.
package ci

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sologit/sologit/internal/capability"
	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/idgen"
	"github.com/sologit/sologit/internal/sandbox"
)

// Status is CIResult's lifecycle state.
type Status string

const (
	Pending  Status = "PENDING"
	Running  Status = "RUNNING"
	Success  Status = "SUCCESS"
	Failure  Status = "FAILURE"
	Unstable Status = "UNSTABLE"
)

// CIResult is §3's CIResult record.
type CIResult struct {
	RunID      string
	RepoID     string
	CommitSHA  string
	Status     Status
	Results    []sandbox.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// RollbackResult is §3's RollbackResult record.
type RollbackResult struct {
	OldSHA             string
	RevertSHA          string
	RecreatedWorkpadID string
	Reason             string
}

// ProgressKind enumerates the async variant's callback events.
type ProgressKind string

const (
	ProgressTestsStarted ProgressKind = "tests-started"
	ProgressRunning      ProgressKind = "running"
	ProgressCompleted    ProgressKind = "completed"
)

// ProgressEvent is delivered to RunSmokeTestsAsync's optional callback.
type ProgressEvent struct {
	Kind   ProgressKind
	Result CIResult
}

// Config mirrors config.CIConfig.
type Config struct {
	AutoRollback              bool
	RecreateWorkpadOnRollback bool
}

// Store is the subset of *repostore.Store the CI Orchestrator depends on.
type Store interface {
	CreateWorkpadFromCommit(repoID, title, baseSHA string) (*catalog.Workpad, error)
	DeleteWorkpad(padID string, force bool) error
	WorktreeFor(padID string) (dir string, cleanup func() error, err error)
	RevertLast(repoID string) (oldSHA, revertSHA string, err error)
	GetDiffForCommit(repoID, sha string) (string, error)
	ApplyPatchAsCheckpoint(padID, diff, message string) (checkpointID, commitSHA string, err error)
}

// Orchestrator runs smoke tests on trunk and drives rollback on failure.
type Orchestrator struct {
	store    Store
	sandbox  *sandbox.Orchestrator
	events   capability.EventSink
	cfg      Config
	progress io.Writer
}

// New creates an Orchestrator.
func New(store Store, sb *sandbox.Orchestrator, cfg Config, events capability.EventSink) *Orchestrator {
	return &Orchestrator{store: store, sandbox: sb, cfg: cfg, events: events}
}

// SetProgress configures a writer for human-readable progress lines.
func (o *Orchestrator) SetProgress(w io.Writer) { o.progress = w }

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

func (o *Orchestrator) publish(e capability.Event) {
	if o.events != nil {
		_ = o.events.Publish(e)
	}
}

// RunSmokeTests is the synchronous variant of §4.8's run_smoke_tests.
func (o *Orchestrator) RunSmokeTests(ctx context.Context, repoID, commitSHA string, tests []sandbox.TestConfig) (CIResult, error) {
	return o.run(ctx, repoID, commitSHA, tests, nil)
}

// RunSmokeTestsAsync is identical to RunSmokeTests but additionally invokes
// onProgress at each documented transition, for a caller that wants to
// surface live status (e.g. a CLI spinner).
func (o *Orchestrator) RunSmokeTestsAsync(ctx context.Context, repoID, commitSHA string, tests []sandbox.TestConfig, onProgress func(ProgressEvent)) (CIResult, error) {
	return o.run(ctx, repoID, commitSHA, tests, onProgress)
}

func (o *Orchestrator) run(ctx context.Context, repoID, commitSHA string, tests []sandbox.TestConfig, onProgress func(ProgressEvent)) (CIResult, error) {
	result := CIResult{
		RunID:     idgen.New("run"),
		RepoID:    repoID,
		CommitSHA: commitSHA,
		Status:    Pending,
	}
	emit := func(kind ProgressKind) {
		if onProgress != nil {
			onProgress(ProgressEvent{Kind: kind, Result: result})
		}
	}

	o.publish(capability.Event{RepoID: repoID, Kind: capability.EventCIStarted, Detail: commitSHA})
	result.Status = Running
	result.StartedAt = time.Now()
	emit(ProgressTestsStarted)

	padTitle := "ci-verify-" + shortSHA(commitSHA)
	pad, err := o.store.CreateWorkpadFromCommit(repoID, padTitle, commitSHA)
	if err != nil {
		return result, err
	}
	defer func() {
		if derr := o.store.DeleteWorkpad(pad.ID, true); derr != nil {
			o.logf("cleanup of verification workpad %s failed: %v (ignored)", pad.ID, derr)
		}
	}()

	workdir, cleanupWorktree, err := o.store.WorktreeFor(pad.ID)
	if err != nil {
		return result, err
	}
	// Must run (and therefore be deferred) before the DeleteWorkpad above:
	// deferred after it, so LIFO order removes the worktree first — git
	// refuses to delete a branch still checked out in another worktree.
	defer func() {
		if derr := cleanupWorktree(); derr != nil {
			o.logf("cleanup of verification worktree for %s failed: %v (ignored)", pad.ID, derr)
		}
	}()

	emit(ProgressRunning)
	o.logf("running %d smoke test(s) against commit %s", len(tests), shortSHA(commitSHA))
	results, err := o.sandbox.RunTests(ctx, workdir, tests, true)
	if err != nil {
		return result, err
	}
	result.Results = results
	result.Status = computeStatus(results)
	result.FinishedAt = time.Now()
	emit(ProgressCompleted)

	o.publish(capability.Event{RepoID: repoID, Kind: capability.EventCIFinished, Detail: string(result.Status)})
	o.logf("smoke test run %s: %s", result.RunID, result.Status)
	return result, nil
}

// computeStatus implements §4.8's status rules.
func computeStatus(results []sandbox.Result) Status {
	counts := sandbox.Summary(results)
	if counts.Failed > 0 || counts.Error > 0 {
		return Failure
	}
	if counts.Timeout > 0 && counts.Failed == 0 && counts.Error == 0 {
		nonPassed := counts.Total - counts.Passed
		if nonPassed == counts.Timeout {
			return Unstable
		}
		return Failure
	}
	return Success
}

// HandleResult implements §4.8's rollback policy: on FAILURE with
// auto-rollback enabled, revert trunk and optionally recreate a workpad
// from the reverted diff. Returns nil, nil when no rollback was warranted.
func (o *Orchestrator) HandleResult(ctx context.Context, repoID string, result CIResult) (*RollbackResult, error) {
	if result.Status != Failure || !o.cfg.AutoRollback {
		return nil, nil
	}

	oldSHA, revertSHA, err := o.store.RevertLast(repoID)
	if err != nil {
		return nil, err
	}
	rr := &RollbackResult{OldSHA: oldSHA, RevertSHA: revertSHA, Reason: "ci-smoke-test-failure"}

	if o.cfg.RecreateWorkpadOnRollback {
		diff, derr := o.store.GetDiffForCommit(repoID, oldSHA)
		if derr != nil {
			o.logf("could not read reverted commit's diff: %v (revert already applied)", derr)
		} else {
			pad, perr := o.store.CreateWorkpadFromCommit(repoID, "retry-"+shortSHA(oldSHA), revertSHA)
			if perr != nil {
				o.logf("could not recreate workpad from reverted change: %v", perr)
			} else if _, _, cerr := o.store.ApplyPatchAsCheckpoint(pad.ID, diff, "reapply reverted change "+shortSHA(oldSHA)); cerr != nil {
				o.logf("could not reapply reverted diff to new workpad %s: %v", pad.ID, cerr)
			} else {
				rr.RecreatedWorkpadID = pad.ID
			}
		}
	}

	o.publish(capability.Event{RepoID: repoID, Kind: capability.EventRollbackPerformed, Detail: revertSHA})
	return rr, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
