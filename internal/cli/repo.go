package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage repositories",
}

var repoInitZipCmd = &cobra.Command{
	Use:   "init-zip [name] [archive.zip]",
	Short: "Initialize a repository from a zip archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		archive, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		repo, err := a.store.InitFromZip(args[0], archive)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "repository %s created at %s\n", repo.ID, repo.Path)
		return nil
	},
}

var repoInitGitCmd = &cobra.Command{
	Use:   "init-git [name] [url]",
	Short: "Initialize a repository by cloning a git URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		repo, err := a.store.InitFromGit(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "repository %s created at %s\n", repo.ID, repo.Path)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		repos, err := a.store.ListRepos()
		if err != nil {
			return err
		}
		for _, r := range repos {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d workpad(s)\n", r.ID, r.Name, r.WorkpadCount)
		}
		return nil
	},
}

var repoStatusCmd = &cobra.Command{
	Use:   "status [repo-id]",
	Short: "Show a repository's working tree status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		status, err := a.store.GetStatus(args[0], "")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", status)
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoInitZipCmd)
	repoCmd.AddCommand(repoInitGitCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoStatusCmd)
}
