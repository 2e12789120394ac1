package sandbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
)

// Config controls sandbox resource limits and output capture (§6
// sandbox.* options). The mechanism behind isolation (containers, VMs,
// namespaces) is explicitly out of scope for the core (§1) — ExecRunner
// implements the observable contract (read-only source tree, writable
// scratch dir, env whitelist, output cap, wall-clock deadline) without
// committing to a specific sandboxing technology.
type Config struct {
	MaxParallel        int
	MemMiB             int
	CPUs               int
	NetworkEnabled     bool
	OutputCaptureBytes int
	EnvWhitelist       []string
}

// DefaultConfig matches §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallel:        4,
		MemMiB:             2048,
		CPUs:               1,
		NetworkEnabled:     false,
		OutputCaptureBytes: 1 << 20,
	}
}

// Runner executes one test's command in isolation. Interface for
// testability — ExecRunner is the real subprocess-based implementation.
type Runner interface {
	Run(ctx context.Context, cfg TestConfig, scratchDir string, sandboxCfg Config) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner implements Runner by shelling out, with a writable scratch
// directory exposed via $SOLOGIT_SCRATCH_DIR and an environment limited to
// the configured whitelist plus the test's own Env overrides.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cfg TestConfig, scratchDir string, sandboxCfg Config) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Command)
	cmd.Dir = cfg.WorkingDir

	cmd.Env = buildEnv(sandboxCfg.EnvWhitelist, cfg.Env, scratchDir, sandboxCfg.NetworkEnabled)

	var stdout, stderr capBuffer
	stdout.limit = sandboxCfg.OutputCaptureBytes
	stderr.limit = sandboxCfg.OutputCaptureBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

func buildEnv(whitelist []string, overrides map[string]string, scratchDir string, networkEnabled bool) []string {
	var env []string
	for _, name := range whitelist {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	env = append(env, "SOLOGIT_SCRATCH_DIR="+scratchDir)
	if !networkEnabled {
		env = append(env, "SOLOGIT_NETWORK_DISABLED=1")
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// capBuffer truncates after limit bytes, appending a marker, per §4.4's
// "per-test byte cap... truncated with a marker."
type capBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *capBuffer) Write(p []byte) (int, error) {
	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n...[truncated]"
	}
	return c.buf.String()
}

// newScratchDir creates a fresh writable scratch directory for one test,
// discarded via the returned cleanup func when the test exits.
func newScratchDir(baseDir, testName string) (dir string, cleanup func(), err error) {
	if err = os.MkdirAll(baseDir, 0o755); err != nil {
		return "", nil, err
	}
	dir, err = os.MkdirTemp(baseDir, "sandbox-"+testName+"-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func scratchBaseDir() string {
	return filepath.Join(os.TempDir(), "sologit-sandboxes")
}
