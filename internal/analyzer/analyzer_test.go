package analyzer

import (
	"testing"

	"github.com/sologit/sologit/internal/sandbox"
)

func TestAnalyzeAllPassedIsGreen(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "a", Status: sandbox.Passed},
		{Name: "b", Status: sandbox.Passed},
	})
	if a.Status != Green {
		t.Fatalf("status = %s, want GREEN", a.Status)
	}
	if len(a.Patterns) != 0 {
		t.Fatalf("expected no patterns, got %+v", a.Patterns)
	}
}

// TestAnalyzeAssertionFailure reproduces the documented AssertionError
// scenario: one failing test, category assertion, file/line extracted.
func TestAnalyzeAssertionFailure(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{
			Name:   "test_totals",
			Status: sandbox.Failed,
			Stderr: "AssertionError: expected 10 to equal 12\n  at tests/totals_test.py:42",
		},
	})
	if a.Status != Red {
		t.Fatalf("status = %s, want RED", a.Status)
	}
	if len(a.Patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(a.Patterns))
	}
	p := a.Patterns[0]
	if p.Category != CategoryAssertion {
		t.Fatalf("category = %s, want assertion", p.Category)
	}
	if p.File != "tests/totals_test.py" || p.Line != 42 {
		t.Fatalf("file/line = %s:%d, want tests/totals_test.py:42", p.File, p.Line)
	}
}

// TestAnalyzeSkipPropagationIsRedWithAssertionCategory reproduces a DAG-skip
// scenario: one real failure plus one dependency-skip feeding into the same
// analysis; the skip itself contributes no pattern.
func TestAnalyzeSkipPropagationIsRedWithAssertionCategory(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "unit", Status: sandbox.Failed, Stderr: "AssertionError: boom"},
		{Name: "integration", Status: sandbox.Skipped, Reason: "dependency unit did not pass"},
	})
	if a.Status != Red {
		t.Fatalf("status = %s, want RED", a.Status)
	}
	if a.Failed != 1 {
		t.Fatalf("failed = %d, want 1", a.Failed)
	}
	if len(a.Patterns) != 1 || a.Patterns[0].Category != CategoryAssertion {
		t.Fatalf("unexpected patterns: %+v", a.Patterns)
	}
}

func TestAnalyzeOnlySkippedIsYellow(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "a", Status: sandbox.Skipped, Reason: "cancelled"},
	})
	if a.Status != Yellow {
		t.Fatalf("status = %s, want YELLOW", a.Status)
	}
}

func TestAnalyzeTimeoutCategorized(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "slow", Status: sandbox.Timeout},
	})
	if len(a.Patterns) != 1 || a.Patterns[0].Category != CategoryTimeout {
		t.Fatalf("unexpected patterns: %+v", a.Patterns)
	}
}

func TestAnalyzeOccurrenceCollapsing(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "a", Status: sandbox.Failed, Stderr: "AssertionError: boom\n  at tests/x_test.py:10"},
		{Name: "b", Status: sandbox.Failed, Stderr: "AssertionError: boom\n  at tests/x_test.py:10"},
	})
	if len(a.Patterns) != 1 {
		t.Fatalf("expected patterns to collapse to 1, got %d", len(a.Patterns))
	}
	if a.Patterns[0].Occurrence != 2 {
		t.Fatalf("occurrence = %d, want 2", a.Patterns[0].Occurrence)
	}
}

func TestAnalyzeSplitSuggestionOnManyCategories(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "a", Status: sandbox.Failed, Stderr: "AssertionError: boom"},
		{Name: "b", Status: sandbox.Failed, Stderr: "ImportError: no module named foo"},
		{Name: "c", Status: sandbox.Failed, Stderr: "SyntaxError: unexpected token"},
	})
	if a.Complexity != High {
		t.Fatalf("complexity = %s, want high", a.Complexity)
	}
	found := false
	for _, s := range a.Suggestions {
		if s == "split this workpad into smaller pieces" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected split suggestion, got %+v", a.Suggestions)
	}
}

func TestAnalyzeLowComplexitySingleFailure(t *testing.T) {
	a := Analyze([]sandbox.Result{
		{Name: "a", Status: sandbox.Failed, Stderr: "AssertionError: boom"},
	})
	if a.Complexity != Low {
		t.Fatalf("complexity = %s, want low", a.Complexity)
	}
}
