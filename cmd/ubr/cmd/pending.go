package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unibranch/ubr/internal/engine"
	"github.com/unibranch/ubr/internal/gitrepo"
)

var pendingDiff bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the unpushed stack and its remote state",
	Long: `Lists every commit between the remote base and the branch head, oldest
first: tracked commits (*) with their remote branch and whether the branch
still matches, untracked commits (-) that have never been published.
Reads only; nothing is fetched or rewritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openRepo(cmd.Context(), gitrepo.ModeSilent)
		if err != nil {
			return err
		}

		eng := &engine.PendingEngine{Repo: repo}
		entries, err := eng.Pending(cmd.Context(), engine.PendingOptions{Diff: pendingDiff})
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			info("No unpushed commits")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s %s %-48s %s\n", marker(e), shortID(e.ID), e.Subject, remoteState(repo.RemoteName(), e))
			if pendingDiff && e.Diff != "" {
				fmt.Println(e.Diff)
			}
		}
		return nil
	},
}

func marker(e engine.PendingEntry) string {
	if e.Tracked {
		return "*"
	}
	return "-"
}

// remoteState renders the tracked side of a pending entry.
func remoteState(remote string, e engine.PendingEntry) string {
	if !e.Tracked {
		return "untracked"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s", remote, e.Branch)
	if e.Pinned {
		sb.WriteString(" (pinned)")
	}
	switch {
	case e.BranchMissing:
		sb.WriteString(" (remote branch missing)")
	case e.InSync:
		sb.WriteString(", in sync")
	default:
		sb.WriteString(", differs from remote")
	}
	return sb.String()
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingDiff, "diff", false, "include a unified diff for every entry")
	rootCmd.AddCommand(pendingCmd)
}
