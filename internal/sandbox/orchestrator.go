package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/sologit/sologit/internal/errs"
)

// Orchestrator runs TestConfigs against a workpad's working tree. One
// instance may be reused across runs; it holds no per-run state itself.
type Orchestrator struct {
	runner  Runner
	cfg     Config
	retries int // max spawn-attempt retries before the test is recorded ERROR with SandboxSpawnFailed (SPEC_FULL §C)
}

// New creates an Orchestrator. retries bounds SandboxSpawnFailed retries
// per test (0 = no retry, fail on first spawn error).
func New(runner Runner, cfg Config, retries int) *Orchestrator {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Orchestrator{runner: runner, cfg: cfg, retries: retries}
}

// RunTests executes every config against workdir, resolving the dependency
// DAG built from DependsOn. If parallel, independent tests run concurrently
// up to cfg.MaxParallel; otherwise execution is sequential in input order
// and short-circuits to SKIPPED on the first non-PASSED result. Cancelling
// ctx aborts in-flight sandboxes (recorded ERROR) and skips the rest
// (recorded SKIPPED, reason "cancelled").
//
// Exactly one Result per input config is returned, in input order (§8
// invariant 4), unless the DAG itself has a cycle, in which case an empty
// slice and an error are returned per §4.4 step 2.
func (o *Orchestrator) RunTests(ctx context.Context, workdir string, configs []TestConfig, parallel bool) ([]Result, error) {
	d := newDAG(configs)
	if bad := d.detectCycle(); bad != "" {
		return nil, &errs.InvariantViolation{Message: cycleErrorMessage(bad)}
	}
	for i := range configs {
		if configs[i].WorkingDir == "" {
			configs[i].WorkingDir = workdir
		}
	}

	if parallel {
		return o.runParallel(ctx, d, configs)
	}
	return o.runSequential(ctx, configs)
}

func (o *Orchestrator) runSequential(ctx context.Context, configs []TestConfig) ([]Result, error) {
	results := make([]Result, len(configs))
	shortCircuit := false
	var shortCircuitReason string

	for i, cfg := range configs {
		select {
		case <-ctx.Done():
			results[i] = Result{Name: cfg.Name, Status: Skipped, Reason: "cancelled"}
			continue
		default:
		}

		if shortCircuit {
			results[i] = Result{Name: cfg.Name, Status: Skipped, Reason: shortCircuitReason}
			continue
		}

		results[i] = o.runOne(ctx, cfg)
		if results[i].Status != Passed {
			shortCircuit = true
			shortCircuitReason = "preceding test " + cfg.Name + " did not pass"
		}
	}
	return results, nil
}

func (o *Orchestrator) runParallel(ctx context.Context, d *dag, configs []TestConfig) ([]Result, error) {
	results := make([]Result, len(configs))
	index := make(map[string]int, len(configs))
	for i, c := range configs {
		index[c.Name] = i
	}

	var mu sync.Mutex
	done := make(map[string]Result, len(configs))
	started := make(map[string]bool, len(configs))

	maxGoroutines := o.cfg.MaxParallel
	if maxGoroutines <= 0 {
		maxGoroutines = 4
	}

	for len(done) < len(configs) {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, c := range configs {
				if _, ok := done[c.Name]; !ok {
					r := Result{Name: c.Name, Status: Skipped, Reason: "cancelled"}
					done[c.Name] = r
					results[index[c.Name]] = r
				}
			}
			mu.Unlock()
			return results, nil
		default:
		}

		mu.Lock()
		readyNames := d.ready(done, started)
		var runNow []TestConfig
		for _, name := range readyNames {
			if blocker := d.blockedDependency(name, done); blocker != "" {
				r := Result{Name: name, Status: Skipped, Reason: "dependency " + blocker + " did not pass"}
				done[name] = r
				started[name] = true
				results[index[name]] = r
				continue
			}
			started[name] = true
			runNow = append(runNow, d.configs[name])
		}
		mu.Unlock()

		if len(runNow) == 0 {
			break
		}

		p := pool.NewWithResults[Result]().WithContext(ctx).WithMaxGoroutines(maxGoroutines)
		for _, cfg := range runNow {
			cfg := cfg
			p.Go(func(ctx context.Context) (Result, error) {
				return o.runOne(ctx, cfg), nil
			})
		}
		batch, _ := p.Wait()

		mu.Lock()
		for _, r := range batch {
			done[r.Name] = r
			results[index[r.Name]] = r
		}
		mu.Unlock()
	}

	return results, nil
}

// runOne executes a single test with its configured timeout, retrying a
// sandbox spawn failure up to o.retries times before surfacing ERROR.
func (o *Orchestrator) runOne(ctx context.Context, cfg TestConfig) Result {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	var scratch string
	var cleanup func()
	var err error
	for attempt := 0; attempt <= o.retries; attempt++ {
		scratch, cleanup, err = newScratchDir(scratchBaseDir(), sanitizeForPath(cfg.Name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return Result{Name: cfg.Name, Status: Error, Reason: (&errs.SandboxSpawnFailed{TestName: cfg.Name, Err: err}).Error()}
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, runErr := o.runner.Run(runCtx, cfg, scratch, o.cfg)
	finish := time.Now()

	base := Result{
		Name:       cfg.Name,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   exitCode,
		StartedAt:  start,
		FinishedAt: finish,
		Duration:   finish.Sub(start),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		base.Status = Timeout
		base.Reason = (&errs.TestTimeout{TestName: cfg.Name, Timeout: timeout.String()}).Error()
	case ctx.Err() != nil:
		base.Status = Error
		base.Reason = "cancelled"
	case runErr != nil:
		base.Status = Error
		base.Reason = runErr.Error()
	case exitCode == 0:
		base.Status = Passed
	default:
		base.Status = Failed
	}
	return base
}

func sanitizeForPath(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "test"
	}
	return string(out)
}
