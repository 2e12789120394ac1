package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sologit/sologit/internal/analyzer"
	"github.com/sologit/sologit/internal/sandbox"
)

var testCmd = &cobra.Command{
	Use:   "test [workpad-id]",
	Short: "Run tests for a workpad in a sandbox and print the failure analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawCmds, err := cmd.Flags().GetStringArray("cmd")
		if err != nil {
			return err
		}
		parallel, _ := cmd.Flags().GetBool("parallel")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		configs, err := parseTestCmds(rawCmds, timeout)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		workdir, err := a.store.Workdir(args[0])
		if err != nil {
			return err
		}

		results, err := a.sandbox.RunTests(cmd.Context(), workdir, configs, parallel)
		if err != nil {
			return err
		}

		analysis := analyzer.Analyze(results)
		printAnalysis(cmd, results, analysis)
		return nil
	},
}

// parseTestCmds turns "name=shell command" flag values into sandbox
// TestConfigs, sharing one timeout across the run.
func parseTestCmds(raw []string, timeout time.Duration) ([]sandbox.TestConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --cmd name=command is required")
	}
	configs := make([]sandbox.TestConfig, 0, len(raw))
	for _, r := range raw {
		name, command, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --cmd %q, expected name=command", r)
		}
		configs = append(configs, sandbox.TestConfig{
			Name:    name,
			Command: command,
			Timeout: timeout,
		})
	}
	return configs, nil
}

func printAnalysis(cmd *cobra.Command, results []sandbox.Result, a analyzer.Analysis) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s\t%s\t%s\n", r.Name, r.Status, r.Duration)
	}
	fmt.Fprintf(out, "\nstatus: %s (%d/%d passed, complexity=%s)\n", a.Status, a.Passed, a.Total, a.Complexity)
	for _, p := range a.Patterns {
		loc := ""
		if p.File != "" {
			loc = fmt.Sprintf(" %s:%d", p.File, p.Line)
		}
		fmt.Fprintf(out, "  [%s]%s x%d %s\n", p.Category, loc, p.Occurrence, p.Message)
	}
	for _, s := range a.Suggestions {
		fmt.Fprintf(out, "  suggestion: %s\n", s)
	}
}

func init() {
	testCmd.Flags().StringArray("cmd", nil, "name=command pair to run as a test, repeatable")
	testCmd.Flags().Bool("parallel", false, "Run independent tests concurrently")
	testCmd.Flags().Duration("timeout", 5*time.Minute, "Per-test timeout")
}
