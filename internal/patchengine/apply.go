package patchengine

import "github.com/sologit/sologit/internal/errs"

// checkpointApplier is the capability Apply needs from the Repository
// Store: committing diff as a new checkpoint on pad.
type checkpointApplier interface {
	workpadApplyChecker
	ApplyPatchAsCheckpoint(padID, diff, message string) (checkpointID string, commitSHA string, err error)
}

// Apply validates diff, then delegates to the Repository Store to commit
// it as a checkpoint. On any failure the workpad tree is left unchanged —
// the Store's ApplyPatchAsCheckpoint resets on a failed git-apply, and
// Apply itself never calls it when validation already rejects the patch.
func Apply(store checkpointApplier, padID, diff, message string) (string, error) {
	validation := ValidateSyntax(diff)
	if len(validation.Errors) > 0 {
		return "", &errs.InvalidPatchSyntax{Reasons: validation.Errors}
	}

	conflicts, err := DetectConflicts(store, padID, diff)
	if err != nil {
		return "", err
	}
	if !conflicts.CanApply {
		return "", &errs.PatchConflict{PerFile: toErrsConflicts(conflicts.PerFile)}
	}

	checkpointID, _, err := store.ApplyPatchAsCheckpoint(padID, diff, message)
	if err != nil {
		return "", err
	}
	return checkpointID, nil
}

func toErrsConflicts(in []FileConflict) []errs.PatchFileConflict {
	out := make([]errs.PatchFileConflict, len(in))
	for i, c := range in {
		out[i] = errs.PatchFileConflict{Path: c.Path, Kind: c.Kind, Message: c.Message}
	}
	return out
}

// StageOutcome is one named stage's result within InteractiveResult.
type StageOutcome struct {
	Stage   string
	Passed  bool
	Summary string
}

// InteractiveResult is apply_patch_interactive's output.
type InteractiveResult struct {
	Stages       []StageOutcome
	CheckpointID string
}

// ApplyInteractive runs validate -> preview -> (stop if dryRun) -> apply,
// recording each stage's outcome. It never panics on a rejected patch —
// the pipeline simply stops early and returns what ran.
func ApplyInteractive(store checkpointApplier, padID, diff, message string, dryRun bool) (InteractiveResult, error) {
	var result InteractiveResult

	validation := ValidateSyntax(diff)
	validateOutcome := StageOutcome{Stage: "validate", Passed: len(validation.Errors) == 0}
	if !validateOutcome.Passed {
		validateOutcome.Summary = validation.Errors[0]
		result.Stages = append(result.Stages, validateOutcome)
		return result, nil
	}
	result.Stages = append(result.Stages, validateOutcome)

	preview, err := Preview(store, padID, diff)
	if err != nil {
		return result, err
	}
	previewOutcome := StageOutcome{
		Stage:   "preview",
		Passed:  preview.Recommendation != RecommendReject,
		Summary: string(preview.Recommendation),
	}
	result.Stages = append(result.Stages, previewOutcome)
	if !previewOutcome.Passed {
		return result, nil
	}

	if dryRun {
		result.Stages = append(result.Stages, StageOutcome{Stage: "dry-run", Passed: true, Summary: "stopped before apply"})
		return result, nil
	}

	checkpointID, err := Apply(store, padID, diff, message)
	applyOutcome := StageOutcome{Stage: "apply", Passed: err == nil}
	if err != nil {
		applyOutcome.Summary = err.Error()
		result.Stages = append(result.Stages, applyOutcome)
		return result, err
	}
	applyOutcome.Summary = checkpointID
	result.Stages = append(result.Stages, applyOutcome)
	result.CheckpointID = checkpointID
	return result, nil
}
