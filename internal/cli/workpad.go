package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sologit/sologit/internal/patchengine"
	"github.com/sologit/sologit/internal/repostore"
)

var workpadCmd = &cobra.Command{
	Use:   "workpad",
	Short: "Manage workpads",
}

var workpadCreateCmd = &cobra.Command{
	Use:   "create [repo-id] [title]",
	Short: "Create a new workpad",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pad, err := a.store.CreateWorkpad(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workpad %s created on branch %s\n", pad.ID, pad.Branch)
		return nil
	},
}

var workpadListCmd = &cobra.Command{
	Use:   "list [repo-id]",
	Short: "List workpads for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pads, err := a.store.ListWorkpads(repostore.WorkpadFilter{RepoID: args[0]}, repostore.SortByCreatedAt, false)
		if err != nil {
			return err
		}
		for _, p := range pads {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Status, p.TestStatus)
		}
		return nil
	},
}

var workpadDeleteCmd = &cobra.Command{
	Use:   "delete [workpad-id]",
	Short: "Delete a workpad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.DeleteWorkpad(args[0], force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workpad %s deleted\n", args[0])
		return nil
	},
}

var workpadApplyCmd = &cobra.Command{
	Use:   "apply [workpad-id] [patch-file] [message]",
	Short: "Validate, check, and apply a unified diff as a new checkpoint",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		diff, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read patch file: %w", err)
		}
		checkpointID, err := patchengine.Apply(a.store, args[0], string(diff), args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s created\n", checkpointID)
		return nil
	},
}

var workpadDiffCmd = &cobra.Command{
	Use:   "diff [workpad-id]",
	Short: "Show a workpad's diff against trunk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		diff, err := a.store.GetDiff(args[0], "")
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), diff)
		return nil
	},
}

var workpadSwitchCmd = &cobra.Command{
	Use:   "switch [workpad-id]",
	Short: "Make a workpad the repo's active workpad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pad, err := a.store.SwitchWorkpad(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "switched to workpad %s (%s)\n", pad.ID, pad.Branch)
		return nil
	},
}

var workpadActiveCmd = &cobra.Command{
	Use:   "active [repo-id]",
	Short: "Show a repository's active workpad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pad, err := a.store.GetActiveWorkpad(args[0])
		if err != nil {
			return err
		}
		if pad == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no active workpad")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", pad.ID, pad.Title, pad.Branch)
		return nil
	},
}

var workpadCompareCmd = &cobra.Command{
	Use:   "compare [workpad-a] [workpad-b]",
	Short: "Diff two workpads against each other",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		cmp, err := a.store.CompareWorkpads(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) changed, +%d -%d\n", cmp.FilesChanged, cmp.Additions, cmp.Deletions)
		fmt.Fprint(cmd.OutOrStdout(), cmp.Diff)
		return nil
	},
}

var workpadPreviewCmd = &cobra.Command{
	Use:   "preview [workpad-id]",
	Short: "Preview a workpad's promotion without mutating anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		preview, err := a.store.GetMergePreview(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "can_fast_forward=%t ahead=%d behind=%d ready_to_promote=%t\n",
			preview.CanFastForward, preview.Ahead, preview.Behind, preview.ReadyToPromote)
		for _, path := range preview.Conflicts {
			fmt.Fprintf(out, "  conflict: %s\n", path)
		}
		return nil
	},
}

func init() {
	workpadDeleteCmd.Flags().Bool("force", false, "Delete even if the workpad is still ACTIVE")

	workpadCmd.AddCommand(workpadCreateCmd)
	workpadCmd.AddCommand(workpadListCmd)
	workpadCmd.AddCommand(workpadDeleteCmd)
	workpadCmd.AddCommand(workpadApplyCmd)
	workpadCmd.AddCommand(workpadDiffCmd)
	workpadCmd.AddCommand(workpadSwitchCmd)
	workpadCmd.AddCommand(workpadActiveCmd)
	workpadCmd.AddCommand(workpadCompareCmd)
	workpadCmd.AddCommand(workpadPreviewCmd)
}
