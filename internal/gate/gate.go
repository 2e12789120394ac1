// Package gate implements the Promotion Gate (§4.6): a pure decision
// function with no git or catalog side effects.
package gate

import (
	"github.com/sologit/sologit/internal/analyzer"
)

// Decision is the gate's verdict.
type Decision string

const (
	Approve      Decision = "APPROVE"
	Reject       Decision = "REJECT"
	ManualReview Decision = "MANUAL_REVIEW"
)

// Rules mirrors the config.PromotionConfig options this gate enforces.
type Rules struct {
	RequireTests          bool
	RequireAllTestsPass   bool
	RequireFastForward    bool
	MaxFilesChanged       int // 0 = unlimited
	MaxLinesChanged       int // 0 = unlimited
	AllowMergeConflicts   bool
	RequireAIReview       bool
	ReviewerAvailable     bool
	MinCoverage           int // 0 = not enforced
}

// Preconditions is the C1.can_promote view the gate consumes.
type Preconditions struct {
	CanFastForward bool
	Diverged       bool
}

// ChangeSize is the C2.get_workpad_stats view the gate consumes.
type ChangeSize struct {
	FilesChanged int
	LinesChanged int
}

// PromotionDecision is §3's PromotionDecision record.
type PromotionDecision struct {
	Decision Decision
	Reasons  []string
	Warnings []string
}

// Evaluate implements §4.6 exactly: each rule independently evaluated, then
// REJECT dominates, else MANUAL_REVIEW dominates, else APPROVE.
func Evaluate(rules Rules, analysis *analyzer.Analysis, pre Preconditions, size ChangeSize) PromotionDecision {
	var reasons, warnings []string
	verdict := Approve

	reject := func(reason string) {
		verdict = Reject
		reasons = append(reasons, reason)
	}
	manual := func(reason string) {
		if verdict != Reject {
			verdict = ManualReview
		}
		reasons = append(reasons, reason)
	}

	if rules.RequireTests && analysis == nil {
		reject("no-tests")
	}

	if rules.RequireAllTestsPass && analysis != nil && analysis.Status != analyzer.Green {
		reject("tests-failed")
	}

	if rules.RequireFastForward && !pre.CanFastForward {
		if pre.Diverged {
			reject("diverged")
		} else if rules.AllowMergeConflicts {
			manual("merge-conflicts-allowed-manual-review")
		} else {
			reject("cannot-fast-forward")
		}
	}

	if (rules.MaxFilesChanged > 0 && size.FilesChanged > rules.MaxFilesChanged) ||
		(rules.MaxLinesChanged > 0 && size.LinesChanged > rules.MaxLinesChanged) {
		manual("change-size")
	}

	if rules.RequireAIReview && !rules.ReviewerAvailable {
		warnings = append(warnings, "ai review required but no reviewer available")
	}

	if rules.MinCoverage > 0 {
		warnings = append(warnings, "coverage tracking not yet implemented")
	}

	return PromotionDecision{Decision: verdict, Reasons: reasons, Warnings: warnings}
}
