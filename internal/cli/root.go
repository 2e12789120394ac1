// Package cli is sologit's thin cobra-based command tree: a machine-callable
// wrapper over the core engines, not a product surface in its own right.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion records the build-time version string for the version command.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "sologit",
	Short: "sologit — trunk-centric git workflow automation",
	Long: `sologit manages ephemeral workpads on top of a trunk branch: apply a
patch, run tests in sandboxes, gate promotion on the result, fast-forward
trunk, and run a post-merge smoke check that can roll itself back.

All state is stored in ~/.sologit/ (SQLite for the event log, JSON for the
repository/workpad catalog by default).`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(workpadCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(ciCmd)
}
