package gitrepo

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// RemoteCommand wraps the network operations against the configured remote.
// The mode decides what the user sees: ModeDefault streams git's own
// progress output, ModeSilent captures it and surfaces it only inside
// errors, ModeDryRun reports the ref movement that would happen and leaves
// the remote untouched.
type RemoteCommand struct {
	run    *runner
	remote string
	mode   Mode
}

// Push updates refs/heads/<branch> on the remote to the given commit.
// Non-fast-forward pushes are rejected by the remote unless force is set.
func (c *RemoteCommand) Push(ctx context.Context, commit *object.Commit, branch string, force bool) error {
	args := []string{"push"}
	if c.mode == ModeDryRun {
		args = append(args, "--dry-run")
	}
	if force {
		args = append(args, "--force")
	}
	args = append(args, c.remote, fmt.Sprintf("%s:refs/heads/%s", commit.Hash, branch))

	switch c.mode {
	case ModeDefault:
		return c.run.gitStreaming(ctx, args...)
	case ModeDryRun:
		fmt.Printf("Would push %s to %s/%s\n", commit.Hash, c.remote, branch)
	}
	if _, err := c.run.git(ctx, args...); err != nil {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}

// Fetch updates the remote-tracking refs. A dry run skips it; everything
// the dry-run report needs is already in the tracking refs.
func (c *RemoteCommand) Fetch(ctx context.Context) error {
	switch c.mode {
	case ModeDryRun:
		return nil
	case ModeDefault:
		return c.run.gitStreaming(ctx, "fetch", c.remote)
	}
	if _, err := c.run.git(ctx, "fetch", c.remote); err != nil {
		return fmt.Errorf("fetching from %s: %w", c.remote, err)
	}
	return nil
}
