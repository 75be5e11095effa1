package engine

import (
	"context"

	"github.com/unibranch/ubr/internal/gitrepo"
)

// PullEngine runs the full round trip for the whole stack: fold every
// remote branch's changes into its local commit, then push every local
// commit's changes back out to its branch. After a clean pull each
// tracked commit and its remote branch describe the same change again.
type PullEngine struct {
	Repo *gitrepo.Repo
	// BranchPrefix is prepended to branch names derived from commit
	// subjects.
	BranchPrefix string
}

// PullOptions configures a pull. There are none yet; the struct keeps
// the call shape uniform with the other engines.
type PullOptions struct{}

// Pull reconciles the stack and republishes it. The reconciliation half
// behaves exactly like Sync, including halting on a merge conflict; the
// republish half then walks the reconciled stack oldest first and
// updates every tracked commit's remote branch that no longer matches.
// Untracked commits are left alone: publishing them for the first time
// is create's job.
func (e *PullEngine) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	sync := &SyncEngine{Repo: e.Repo}
	syncRes, err := sync.Sync(ctx, SyncOptions{})
	if err != nil {
		return nil, err
	}

	res := &PullResult{Sync: syncRes}

	stack, err := e.Repo.UnpushedCommits()
	if err != nil {
		return nil, err
	}

	base, err := e.Repo.BaseCommit()
	if err != nil {
		return nil, err
	}
	create := &CreateEngine{Repo: e.Repo, BranchPrefix: e.BranchPrefix}

	for _, element := range stack {
		tracked, ok := element.(gitrepo.TrackedCommit)
		if !ok {
			continue
		}
		if tracked.Meta.RemoteCommit != "" {
			// Pinned to a frozen remote state; there is no live branch
			// to push to.
			continue
		}
		// The reconciliation half already failed the run if a live
		// branch went missing, so this resolves.
		onto, err := tracked.RemoteTip(ctx)
		if err != nil {
			return nil, err
		}
		name := tracked.Meta.RemoteBranchName
		pub, err := create.publish(ctx, tracked.Commit(), name, onto, onto.Hash != base.Hash, false)
		if err != nil {
			return nil, err
		}
		if !pub.UpToDate {
			res.Published = append(res.Published, *pub)
		}
	}
	return res, nil
}
