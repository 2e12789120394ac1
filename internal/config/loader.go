package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the core configuration from the given YAML file
// path, then fills in any zero-valued field with its documented default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config file in standard locations and loads
// the first one found, falling back to all-default values if none exists.
// Search order: ./sologit.yaml, then <base-dir>/config.yaml.
func LoadDefault(baseDir string) (*Config, error) {
	candidates := []string{"sologit.yaml"}
	if baseDir != "" {
		candidates = append(candidates, filepath.Join(baseDir, "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero-valued fields with their documented default,
// never overriding a value the file set explicitly.
func applyDefaults(cfg *Config) {
	if cfg.TrunkBranchName == "" {
		cfg.TrunkBranchName = "main"
	}
	if cfg.WorkpadTTLDays == 0 {
		cfg.WorkpadTTLDays = 7
	}

	s := &cfg.Sandbox
	if s.MaxParallel == 0 {
		s.MaxParallel = 4
	}
	if s.MemMiB == 0 {
		s.MemMiB = 2048
	}
	if s.CPUs == 0 {
		s.CPUs = 1
	}
	if s.OutputCaptureBytes == 0 {
		s.OutputCaptureBytes = 1_048_576
	}

	p := &cfg.Promotion
	p.RequireTests = boolDefault(p.RequireTests, true)
	p.RequireAllPass = boolDefault(p.RequireAllPass, true)
	p.RequireFastForward = boolDefault(p.RequireFastForward, true)

	c := &cfg.CI
	c.AutoRollback = boolDefault(c.AutoRollback, true)
	c.RecreateWorkpadOnRollback = boolDefault(c.RecreateWorkpadOnRollback, true)

	if cfg.Git.SubprocessTimeoutSeconds == 0 {
		cfg.Git.SubprocessTimeoutSeconds = 60
	}
}

// boolDefault returns v if set, otherwise a pointer to def.
func boolDefault(v *bool, def bool) *bool {
	if v != nil {
		return v
	}
	return &def
}
