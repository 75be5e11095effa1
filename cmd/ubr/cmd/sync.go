package cmd

import (
	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
)

var (
	syncContinue bool
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fold remote branch changes back into the local stack",
	Long: `Fetches the remote and merges every tracked commit with the tip of its
remote branch, oldest first, rebuilding the commits above it as it goes.
The local branch moves once, after the whole stack has been reconciled.

On a merge conflict the run halts with the conflict left in the working
tree; resolve it, stage the result, and run 'ubr sync --continue'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openRepo(cmd.Context(), runMode(syncDryRun))
		if err != nil {
			return err
		}

		eng := &engine.SyncEngine{Repo: repo}
		res, err := eng.Sync(cmd.Context(), engine.SyncOptions{Continue: syncContinue})
		if err != nil {
			return err
		}

		if !res.Changed {
			info("Everything up to date")
			return nil
		}
		info("Reconciled %d commit(s), %s now at %s", res.Rewritten, repo.CurrentBranch(), shortID(res.Head))
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncContinue, "continue", false, "resume after resolving a merge conflict")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without rewriting anything")
	rootCmd.AddCommand(syncCmd)
}
