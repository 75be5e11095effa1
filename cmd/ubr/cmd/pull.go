package cmd

import (
	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
	"github.com/unibranch/ubr/internal/gitrepo"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Reconcile the stack and republish it",
	Long: `Runs the full round trip for the whole stack: folds every remote branch's
changes into its tracked local commit exactly like sync, then pushes every
local commit's own changes back out to its branch. After a clean pull each
tracked commit and its remote branch describe the same change again.

Merge conflicts halt the run like sync; resolve the conflict, stage the
result, and run 'ubr sync --continue'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cfg, err := openRepo(cmd.Context(), gitrepo.ModeDefault)
		if err != nil {
			return err
		}

		eng := &engine.PullEngine{Repo: repo, BranchPrefix: cfg.BranchPrefix}
		res, err := eng.Pull(cmd.Context(), engine.PullOptions{})
		if err != nil {
			return err
		}

		if res.Sync.Changed {
			info("Reconciled %d commit(s), %s now at %s",
				res.Sync.Rewritten, repo.CurrentBranch(), shortID(res.Sync.Head))
		}
		for _, pub := range res.Published {
			info("Updated %s/%s (%s)", repo.RemoteName(), pub.Branch, shortID(pub.RemoteCommit))
		}
		if !res.Sync.Changed && len(res.Published) == 0 {
			info("Everything up to date")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
