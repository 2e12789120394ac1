package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/ci"
	"github.com/sologit/sologit/internal/config"
	"github.com/sologit/sologit/internal/eventlog"
	"github.com/sologit/sologit/internal/gate"
	"github.com/sologit/sologit/internal/gitengine"
	"github.com/sologit/sologit/internal/orchestrator"
	"github.com/sologit/sologit/internal/repostore"
	"github.com/sologit/sologit/internal/sandbox"
)

// app bundles every wired subsystem a command needs. Built fresh per
// invocation from ~/.sologit and the discovered config file — this CLI is a
// thin machine-callable wrapper, not a long-lived server.
type app struct {
	cfg      *config.Config
	events   *eventlog.DB
	store    *repostore.Store
	sandbox  *sandbox.Orchestrator
	workflow *orchestrator.Workflow
	ci       *ci.Orchestrator
}

// defaultBaseDir returns ~/.sologit, creating it if needed.
func defaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".sologit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}

// newApp wires config, the event log, the catalog backend, and every
// component command handlers call into.
func newApp() (*app, error) {
	baseDir, err := defaultBaseDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefault(baseDir)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs[0])
	}

	dbPath, err := eventlog.DefaultPath(baseDir)
	if err != nil {
		return nil, err
	}
	events, err := eventlog.Open(dbPath)
	if err != nil {
		return nil, err
	}

	catPath := filepath.Join(baseDir, "catalog")
	if err := os.MkdirAll(catPath, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	cat, err := catalog.NewJSONBackend(catPath)
	if err != nil {
		return nil, err
	}

	timeoutSeconds := secondsOrDefault(cfg.Git.SubprocessTimeoutSeconds, 60)
	git := gitengine.New(gitengine.NewExecRunner(time.Duration(timeoutSeconds) * time.Second))
	store := repostore.New(baseDir, git, cat, events)
	if err := store.ReconcileAll(); err != nil {
		return nil, fmt.Errorf("reconcile catalog: %w", err)
	}

	sandboxCfg := sandbox.Config{
		MaxParallel:        cfg.Sandbox.MaxParallel,
		MemMiB:             cfg.Sandbox.MemMiB,
		CPUs:               cfg.Sandbox.CPUs,
		NetworkEnabled:     cfg.Sandbox.NetworkEnabled,
		OutputCaptureBytes: cfg.Sandbox.OutputCaptureBytes,
	}
	sb := sandbox.New(sandbox.ExecRunner{}, sandboxCfg, 1)

	rules := gate.Rules{
		RequireTests:        boolOrDefault(cfg.Promotion.RequireTests, true),
		RequireAllTestsPass: boolOrDefault(cfg.Promotion.RequireAllPass, true),
		RequireFastForward:  boolOrDefault(cfg.Promotion.RequireFastForward, true),
		MaxFilesChanged:     cfg.Promotion.MaxFilesChanged,
		MaxLinesChanged:     cfg.Promotion.MaxLinesChanged,
		AllowMergeConflicts: cfg.Promotion.AllowMergeConflicts,
		RequireAIReview:     cfg.Promotion.RequireAIReview,
		MinCoverage:         cfg.Promotion.MinCoverage,
	}
	workflow := orchestrator.New(store, sb, rules, events)
	workflow.SetProgress(os.Stderr)

	ciCfg := ci.Config{
		AutoRollback:              boolOrDefault(cfg.CI.AutoRollback, true),
		RecreateWorkpadOnRollback: boolOrDefault(cfg.CI.RecreateWorkpadOnRollback, true),
	}
	ciOrch := ci.New(store, sb, ciCfg, events)
	ciOrch.SetProgress(os.Stderr)

	return &app{
		cfg:      cfg,
		events:   events,
		store:    store,
		sandbox:  sb,
		workflow: workflow,
		ci:       ciOrch,
	}, nil
}

func (a *app) close() {
	if a.events != nil {
		_ = a.events.Close()
	}
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func secondsOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
