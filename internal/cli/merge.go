package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [workpad-id]",
	Short: "Run the auto-merge workflow: test, analyze, gate, and (if approved) promote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawCmds, err := cmd.Flags().GetStringArray("cmd")
		if err != nil {
			return err
		}
		parallel, _ := cmd.Flags().GetBool("parallel")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		autoPromote, _ := cmd.Flags().GetBool("auto-promote")

		configs, err := parseTestCmds(rawCmds, timeout)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.workflow.Execute(cmd.Context(), args[0], configs, parallel, autoPromote)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range result.Phases {
			fmt.Fprintf(out, "[%s] %t %s\n", p.Phase, p.Passed, p.Summary)
		}
		if result.FailedPhase != "" {
			fmt.Fprintf(out, "aborted in phase %q: %s\n", result.FailedPhase, result.Summary)
			return nil
		}
		fmt.Fprintf(out, "decision: %s\n%s\n", result.Decision, result.Summary)
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringArray("cmd", nil, "name=command pair to run as a test, repeatable")
	mergeCmd.Flags().Bool("parallel", false, "Run independent tests concurrently")
	mergeCmd.Flags().Duration("timeout", 5*time.Minute, "Per-test timeout")
	mergeCmd.Flags().Bool("auto-promote", true, "Fast-forward trunk automatically on APPROVE")
}
