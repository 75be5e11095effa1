package cmd

import (
	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
)

var cherryPickDryRun bool

var cherryPickCmd = &cobra.Command{
	Use:   "cherry-pick [revision]",
	Short: "Publish one commit directly onto the remote base",
	Long: `Publishes the given commit (HEAD by default) onto the base commit instead
of chaining it on the stack, so a fix can ship out of the middle of a
stack. An already tracked commit updates its own branch with a Fixup!
commit instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cfg, err := openRepo(cmd.Context(), runMode(cherryPickDryRun))
		if err != nil {
			return err
		}

		opts := engine.CherryPickOptions{}
		if len(args) == 1 {
			opts.Rev = args[0]
		}

		eng := &engine.CherryPickEngine{Repo: repo, BranchPrefix: cfg.BranchPrefix}
		res, err := eng.CherryPick(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if res.UpToDate {
			info("Already up to date")
			return nil
		}
		action := "Updated"
		if res.NewBranch {
			action = "Created"
		}
		info("%s %s/%s (%s)", action, repo.RemoteName(), res.Branch, shortID(res.RemoteCommit))
		return nil
	},
}

func init() {
	cherryPickCmd.Flags().BoolVar(&cherryPickDryRun, "dry-run", false, "show what would be pushed without touching the remote")
	rootCmd.AddCommand(cherryPickCmd)
}
