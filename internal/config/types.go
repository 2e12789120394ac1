package config

// Config is the top-level configuration structure parsed from the core's
// YAML config file.
type Config struct {
	TrunkBranchName string           `yaml:"trunk_branch_name"`
	WorkpadTTLDays  int              `yaml:"workpad_ttl_days"`
	Sandbox         SandboxConfig    `yaml:"sandbox"`
	Promotion       PromotionConfig  `yaml:"promotion"`
	CI              CIConfig         `yaml:"ci"`
	Git             GitConfig        `yaml:"git"`
}

// SandboxConfig controls the Test Orchestrator's per-test execution contract.
type SandboxConfig struct {
	MaxParallel         int  `yaml:"max_parallel"`
	MemMiB              int  `yaml:"mem_mib"`
	CPUs                int  `yaml:"cpus"`
	NetworkEnabled      bool `yaml:"network_enabled"`
	OutputCaptureBytes  int  `yaml:"output_capture_bytes"`
}

// PromotionConfig holds the Promotion Gate's configurable rules.
//
// RequireTests, RequireAllPass, and RequireFastForward default to true, so
// they're pointers: nil means "not set in the file, use the default",
// distinct from an explicit `false`, which a plain bool can't represent.
type PromotionConfig struct {
	RequireTests        *bool `yaml:"require_tests"`
	RequireAllPass      *bool `yaml:"require_all_pass"`
	RequireFastForward  *bool `yaml:"require_fast_forward"`
	MaxFilesChanged     int   `yaml:"max_files_changed"`
	MaxLinesChanged     int   `yaml:"max_lines_changed"`
	AllowMergeConflicts bool  `yaml:"allow_merge_conflicts"`
	RequireAIReview     bool  `yaml:"require_ai_review"`
	MinCoverage         int   `yaml:"min_coverage"`
}

// CIConfig controls the CI Orchestrator + Rollback Handler. Both fields
// default to true; see PromotionConfig's doc comment for why they're
// pointers.
type CIConfig struct {
	AutoRollback              *bool `yaml:"auto_rollback"`
	RecreateWorkpadOnRollback *bool `yaml:"recreate_workpad_on_rollback"`
}

// GitConfig controls the Git Engine's subprocess behavior.
type GitConfig struct {
	SubprocessTimeoutSeconds int `yaml:"subprocess_timeout_seconds"`
}
