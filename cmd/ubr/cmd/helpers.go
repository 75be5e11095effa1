package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/unibranch/ubr/internal/config"
	"github.com/unibranch/ubr/internal/gitrepo"
)

// openRepo opens the repository containing the working directory, with
// the project configuration applied. The configuration lives at the
// worktree root, so the root is resolved first.
func openRepo(ctx context.Context, mode gitrepo.Mode) (*gitrepo.Repo, *config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving working directory: %w", err)
	}
	root, err := gitrepo.WorktreeRoot(ctx, wd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, err
	}
	repo, err := gitrepo.Open(ctx, wd, gitrepo.Options{Mode: mode, Remote: cfg.Remote})
	if err != nil {
		return nil, nil, err
	}
	detail("repository %s, branch %s", repo.Root(), repo.CurrentBranch())
	return repo, cfg, nil
}

// runMode translates a command's --dry-run flag into the repository mode.
func runMode(dryRun bool) gitrepo.Mode {
	if dryRun {
		return gitrepo.ModeDryRun
	}
	return gitrepo.ModeDefault
}

// shortID abbreviates a commit id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}
