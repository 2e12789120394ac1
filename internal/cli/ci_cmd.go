package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sologit/sologit/internal/ci"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Run post-promotion smoke tests and drive rollback on failure",
}

var ciRunCmd = &cobra.Command{
	Use:   "run [repo-id] [commit-sha]",
	Short: "Run smoke tests against a trunk commit, rolling back on failure",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawCmds, err := cmd.Flags().GetStringArray("cmd")
		if err != nil {
			return err
		}
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

		out := cmd.OutOrStdout()
		repoID, commitSHA := args[0], args[1]
		result, err := a.ci.RunSmokeTestsAsync(cmd.Context(), repoID, commitSHA, configs, func(ev ci.ProgressEvent) {
			fmt.Fprintf(out, "  [%s]\n", ev.Kind)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "run %s: %s\n", result.RunID, result.Status)

		rollback, err := a.ci.HandleResult(cmd.Context(), repoID, result)
		if err != nil {
			return fmt.Errorf("rollback handling: %w", err)
		}
		if rollback != nil {
			fmt.Fprintf(out, "rolled back %s -> revert %s (%s)\n", rollback.OldSHA, rollback.RevertSHA, rollback.Reason)
			if rollback.RecreatedWorkpadID != "" {
				fmt.Fprintf(out, "recreated workpad %s from the reverted change\n", rollback.RecreatedWorkpadID)
			}
		}
		return nil
	},
}

func init() {
	ciRunCmd.Flags().StringArray("cmd", nil, "name=command pair to run as a smoke test, repeatable")
	ciRunCmd.Flags().Duration("timeout", 5*time.Minute, "Per-test timeout")
	ciCmd.AddCommand(ciRunCmd)
}
