package patchengine

// Recommendation is preview_patch's suggested next action.
type Recommendation string

const (
	RecommendApply  Recommendation = "apply"
	RecommendReview Recommendation = "review"
	RecommendSplit  Recommendation = "split"
	RecommendReject Recommendation = "reject"
)

// PreviewResult is preview_patch's output. It has no side effects.
type PreviewResult struct {
	Stats          Stats
	Validation     ValidationResult
	Conflicts      Conflicts
	Recommendation Recommendation
}

// Preview computes stats, conflicts, and a recommendation for diff against
// pad, without mutating anything. Recommendation rule (§4.3): apply if
// trivial/simple and no conflicts; review if moderate; split if
// complex/very_complex; reject if any conflict or invalid syntax.
func Preview(store workpadApplyChecker, padID, diff string) (PreviewResult, error) {
	validation := ValidateSyntax(diff)
	stats := GetStats(diff)

	if len(validation.Errors) > 0 {
		return PreviewResult{
			Stats:          stats,
			Validation:     validation,
			Recommendation: RecommendReject,
		}, nil
	}

	conflicts, err := DetectConflicts(store, padID, diff)
	if err != nil {
		return PreviewResult{}, err
	}

	p := PreviewResult{Stats: stats, Validation: validation, Conflicts: conflicts}
	switch {
	case !conflicts.CanApply:
		p.Recommendation = RecommendReject
	case stats.Complexity == Trivial || stats.Complexity == Simple:
		p.Recommendation = RecommendApply
	case stats.Complexity == Moderate:
		p.Recommendation = RecommendReview
	default:
		p.Recommendation = RecommendSplit
	}
	return p, nil
}
