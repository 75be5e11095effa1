package cmd

import (
	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
)

var (
	createForce  bool
	createDryRun bool
)

var createCmd = &cobra.Command{
	Use:   "create [revision]",
	Short: "Publish a stack commit as its own remote branch",
	Long: `Publishes the given commit (HEAD by default) to a dedicated remote branch
so it can be reviewed as its own pull request. A first publish derives the
branch name from the commit subject and records the linkage in a note;
later publishes of the same commit update the recorded branch with a
Fixup! commit that autosquash tooling can fold.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cfg, err := openRepo(cmd.Context(), runMode(createDryRun))
		if err != nil {
			return err
		}

		opts := engine.CreateOptions{Force: createForce}
		if len(args) == 1 {
			opts.Rev = args[0]
		}

		eng := &engine.CreateEngine{Repo: repo, BranchPrefix: cfg.BranchPrefix}
		res, err := eng.Create(cmd.Context(), opts)
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
	createCmd.Flags().BoolVar(&createForce, "force", false, "claim an existing branch name and force-push over it")
	createCmd.Flags().BoolVar(&createDryRun, "dry-run", false, "show what would be pushed without touching the remote")
	rootCmd.AddCommand(createCmd)
}
