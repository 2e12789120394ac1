package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It returns
// every issue found rather than stopping at the first (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.WorkpadTTLDays < 0 {
		errs = append(errs, ValidationError{Field: "workpad_ttl_days", Message: "must not be negative"})
	}

	s := cfg.Sandbox
	if s.MaxParallel < 1 {
		errs = append(errs, ValidationError{Field: "sandbox.max_parallel", Message: "must be at least 1"})
	}
	if s.MemMiB < 0 {
		errs = append(errs, ValidationError{Field: "sandbox.mem_mib", Message: "must not be negative"})
	}
	if s.CPUs < 0 {
		errs = append(errs, ValidationError{Field: "sandbox.cpus", Message: "must not be negative"})
	}
	if s.OutputCaptureBytes < 1 {
		errs = append(errs, ValidationError{Field: "sandbox.output_capture_bytes", Message: "must be positive"})
	}

	p := cfg.Promotion
	if p.MaxFilesChanged < 0 {
		errs = append(errs, ValidationError{Field: "promotion.max_files_changed", Message: "must not be negative"})
	}
	if p.MaxLinesChanged < 0 {
		errs = append(errs, ValidationError{Field: "promotion.max_lines_changed", Message: "must not be negative"})
	}
	if p.MinCoverage < 0 || p.MinCoverage > 100 {
		errs = append(errs, ValidationError{Field: "promotion.min_coverage", Message: "must be between 0 and 100"})
	}

	if cfg.Git.SubprocessTimeoutSeconds < 1 {
		errs = append(errs, ValidationError{Field: "git.subprocess_timeout_seconds", Message: "must be positive"})
	}

	return errs
}
