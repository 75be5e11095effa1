package engine

import (
	"context"

	"github.com/unibranch/ubr/internal/gitrepo"
)

// UntrackEngine removes the remote linkage from stack commits. The
// remote branch itself is left alone; only the local note goes away, so
// the next publish of the commit starts a fresh branch.
type UntrackEngine struct {
	Repo *gitrepo.Repo
}

// UntrackOptions configures an untrack operation.
type UntrackOptions struct {
	// Rev selects the commit. Empty means HEAD.
	Rev string
}

// Untrack drops the selected commit's tracking metadata. Untracking an
// untracked commit is a no-op, not an error.
func (e *UntrackEngine) Untrack(ctx context.Context, opts UntrackOptions) (*UntrackResult, error) {
	if e.Repo.SyncState() != nil {
		return nil, gitrepo.ErrSyncInProgress
	}
	rev := opts.Rev
	if rev == "" {
		rev = "HEAD"
	}
	target, err := e.Repo.FindUnpushedCommit(rev)
	if err != nil {
		return nil, err
	}

	tracked, ok := target.(gitrepo.TrackedCommit)
	if !ok {
		return &UntrackResult{}, nil
	}

	res := &UntrackResult{WasTracked: true, Branch: tracked.Meta.RemoteBranchName}
	if e.Repo.DryRun() {
		return res, nil
	}
	if err := e.Repo.RemoveMetadata(ctx, tracked.Commit()); err != nil {
		return nil, err
	}
	return res, nil
}
