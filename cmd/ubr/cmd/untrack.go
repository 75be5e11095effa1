package cmd

import (
	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
	"github.com/unibranch/ubr/internal/gitrepo"
)

var untrackCmd = &cobra.Command{
	Use:   "untrack [revision]",
	Short: "Forget a commit's remote branch linkage",
	Long: `Removes the note linking the given commit (HEAD by default) to its remote
branch. The remote branch itself is left untouched; the next create run
for the commit starts a fresh branch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openRepo(cmd.Context(), gitrepo.ModeDefault)
		if err != nil {
			return err
		}

		opts := engine.UntrackOptions{}
		if len(args) == 1 {
			opts.Rev = args[0]
		}

		eng := &engine.UntrackEngine{Repo: repo}
		res, err := eng.Untrack(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if !res.WasTracked {
			info("Commit is not tracked")
			return nil
		}
		info("No longer tracking %s/%s", repo.RemoteName(), res.Branch)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(untrackCmd)
}
