package gate

import (
	"testing"

	"github.com/sologit/sologit/internal/analyzer"
	"github.com/sologit/sologit/internal/sandbox"
)

func defaultRules() Rules {
	return Rules{
		RequireTests:        true,
		RequireAllTestsPass: true,
		RequireFastForward:  true,
	}
}

// TestGateApprovesGreenPath reproduces S1: all green, fast-forwardable,
// within size limits -> APPROVE.
func TestGateApprovesGreenPath(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	d := Evaluate(defaultRules(), &analysis, Preconditions{CanFastForward: true}, ChangeSize{FilesChanged: 1, LinesChanged: 3})
	if d.Decision != Approve {
		t.Fatalf("decision = %s, want APPROVE, reasons=%v", d.Decision, d.Reasons)
	}
}

// TestGateRejectsOnRedTests reproduces S2: failing tests -> REJECT tests-failed.
func TestGateRejectsOnRedTests(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Failed, Stderr: "AssertionError: expected 'Hello'"}})
	d := Evaluate(defaultRules(), &analysis, Preconditions{CanFastForward: true}, ChangeSize{})
	if d.Decision != Reject {
		t.Fatalf("decision = %s, want REJECT", d.Decision)
	}
	if !containsReason(d.Reasons, "tests-failed") {
		t.Fatalf("reasons = %v, want tests-failed", d.Reasons)
	}
}

// TestGateRejectsOnDivergence reproduces S3.
func TestGateRejectsOnDivergence(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	d := Evaluate(defaultRules(), &analysis, Preconditions{CanFastForward: false, Diverged: true}, ChangeSize{})
	if d.Decision != Reject || !containsReason(d.Reasons, "diverged") {
		t.Fatalf("decision = %+v, want REJECT diverged", d)
	}
}

func TestGateRequireTestsRejectsWhenAnalysisNil(t *testing.T) {
	d := Evaluate(defaultRules(), nil, Preconditions{CanFastForward: true}, ChangeSize{})
	if d.Decision != Reject || !containsReason(d.Reasons, "no-tests") {
		t.Fatalf("decision = %+v, want REJECT no-tests", d)
	}
}

func TestGateManualReviewOnChangeSize(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	rules := defaultRules()
	rules.MaxFilesChanged = 5
	d := Evaluate(rules, &analysis, Preconditions{CanFastForward: true}, ChangeSize{FilesChanged: 10})
	if d.Decision != ManualReview || !containsReason(d.Reasons, "change-size") {
		t.Fatalf("decision = %+v, want MANUAL_REVIEW change-size", d)
	}
}

func TestGateRejectDominatesManualReview(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Failed, Stderr: "AssertionError"}})
	rules := defaultRules()
	rules.MaxFilesChanged = 1
	d := Evaluate(rules, &analysis, Preconditions{CanFastForward: true}, ChangeSize{FilesChanged: 10})
	if d.Decision != Reject {
		t.Fatalf("decision = %s, want REJECT to dominate MANUAL_REVIEW", d.Decision)
	}
}

func TestGateAllowMergeConflictsBecomesManualReview(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	rules := defaultRules()
	rules.AllowMergeConflicts = true
	d := Evaluate(rules, &analysis, Preconditions{CanFastForward: false, Diverged: false}, ChangeSize{})
	if d.Decision != ManualReview {
		t.Fatalf("decision = %s, want MANUAL_REVIEW", d.Decision)
	}
}

func TestGateMinCoverageIsWarningOnly(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	rules := defaultRules()
	rules.MinCoverage = 80
	d := Evaluate(rules, &analysis, Preconditions{CanFastForward: true}, ChangeSize{})
	if d.Decision != Approve {
		t.Fatalf("decision = %s, want APPROVE (coverage is warning-only)", d.Decision)
	}
	if len(d.Warnings) == 0 {
		t.Fatal("expected a coverage warning")
	}
}

func TestGatePureRepeatable(t *testing.T) {
	analysis := analyzer.Analyze([]sandbox.Result{{Name: "pytest", Status: sandbox.Passed}})
	rules := defaultRules()
	pre := Preconditions{CanFastForward: true}
	size := ChangeSize{FilesChanged: 2, LinesChanged: 10}
	d1 := Evaluate(rules, &analysis, pre, size)
	d2 := Evaluate(rules, &analysis, pre, size)
	if d1.Decision != d2.Decision || len(d1.Reasons) != len(d2.Reasons) {
		t.Fatalf("gate is not pure: %+v vs %+v", d1, d2)
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
